package protocol

import (
	"fmt"
	"time"
)

// EventKey is the tagged-sum marker for a subscribable event, parameterised
// at subscribe time (e.g. which pin, which sampling interval). Two keys of
// the same variant with different parameters are distinct subscriptions —
// GpioPin(3) and GpioPin(5) never share a subscriber list.
//
// Index is the discriminant used by the tagged-enum wire encoding
// (§4.B "variant index as u32 big-endian"); Name is the stable textual
// identifier used in logs, the text codec's debug form, and the HTTP
// introspection surface. WireKey returns a canonical comparable string
// used as the event bus's map key, standing in for Rust's derived
// PartialEq+Hash on the enum.
type EventKey interface {
	Index() uint32
	Name() string
	WireKey() string
}

const (
	EventIndexGpioPin           uint32 = 0
	EventIndexTrackSensor       uint32 = 1
	EventIndexUltraSensor       uint32 = 2
	EventIndexCamlocConnect     uint32 = 3
	EventIndexCamlocDisconnect  uint32 = 4
	EventIndexCamlocPosition    uint32 = 5
	EventIndexCamlocInfoUpdate  uint32 = 6
)

const (
	EventNameGpioPin          = "GpioPin"
	EventNameTrackSensor      = "TrackSensor"
	EventNameUltraSensor      = "UltraSensor"
	EventNameCamlocConnect    = "CamlocConnect"
	EventNameCamlocDisconnect = "CamlocDisconnect"
	EventNameCamlocPosition   = "CamlocPosition"
	EventNameCamlocInfoUpdate = "CamlocInfoUpdate"
)

// GpioPinKey subscribes to level changes on a single raw GPIO pin.
type GpioPinKey struct{ Pin uint8 }

func (GpioPinKey) Index() uint32  { return EventIndexGpioPin }
func (GpioPinKey) Name() string   { return EventNameGpioPin }
func (k GpioPinKey) WireKey() string { return fmt.Sprintf("%s:%d", EventNameGpioPin, k.Pin) }

// TrackSensorKey subscribes to the four-sensor line-tracking array. It
// carries no parameters — all subscribers share one upstream source.
type TrackSensorKey struct{}

func (TrackSensorKey) Index() uint32   { return EventIndexTrackSensor }
func (TrackSensorKey) Name() string    { return EventNameTrackSensor }
func (TrackSensorKey) WireKey() string { return EventNameTrackSensor }

// UltraSensorKey subscribes to periodic ultrasonic readings at the given
// sampling interval. Two subscriptions with different intervals are
// distinct event keys and coexist independently (§4.F).
type UltraSensorKey struct{ Interval time.Duration }

func (UltraSensorKey) Index() uint32 { return EventIndexUltraSensor }
func (UltraSensorKey) Name() string  { return EventNameUltraSensor }
func (k UltraSensorKey) WireKey() string {
	return fmt.Sprintf("%s:%d", EventNameUltraSensor, k.Interval.Milliseconds())
}

// CamlocConnectKey subscribes to the LocationService's connect notification.
type CamlocConnectKey struct{}

func (CamlocConnectKey) Index() uint32   { return EventIndexCamlocConnect }
func (CamlocConnectKey) Name() string    { return EventNameCamlocConnect }
func (CamlocConnectKey) WireKey() string { return EventNameCamlocConnect }

// CamlocDisconnectKey subscribes to the LocationService's disconnect
// notification.
type CamlocDisconnectKey struct{}

func (CamlocDisconnectKey) Index() uint32   { return EventIndexCamlocDisconnect }
func (CamlocDisconnectKey) Name() string    { return EventNameCamlocDisconnect }
func (CamlocDisconnectKey) WireKey() string { return EventNameCamlocDisconnect }

// CamlocPositionKey subscribes to position updates.
type CamlocPositionKey struct{}

func (CamlocPositionKey) Index() uint32   { return EventIndexCamlocPosition }
func (CamlocPositionKey) Name() string    { return EventNameCamlocPosition }
func (CamlocPositionKey) WireKey() string { return EventNameCamlocPosition }

// CamlocInfoUpdateKey subscribes to free-text diagnostic info from the
// LocationService.
type CamlocInfoUpdateKey struct{}

func (CamlocInfoUpdateKey) Index() uint32   { return EventIndexCamlocInfoUpdate }
func (CamlocInfoUpdateKey) Name() string    { return EventNameCamlocInfoUpdate }
func (CamlocInfoUpdateKey) WireKey() string { return EventNameCamlocInfoUpdate }

// NewEventKeyByIndex constructs a zero-valued key for the given tagged-enum
// discriminant, for decoders to populate in place. Unknown indices return
// (nil, false); callers must translate that into DecodeError(UnknownEvent).
func NewEventKeyByIndex(index uint32) (EventKey, bool) {
	switch index {
	case EventIndexGpioPin:
		return &GpioPinKey{}, true
	case EventIndexTrackSensor:
		return TrackSensorKey{}, true
	case EventIndexUltraSensor:
		return &UltraSensorKey{}, true
	case EventIndexCamlocConnect:
		return CamlocConnectKey{}, true
	case EventIndexCamlocDisconnect:
		return CamlocDisconnectKey{}, true
	case EventIndexCamlocPosition:
		return CamlocPositionKey{}, true
	case EventIndexCamlocInfoUpdate:
		return CamlocInfoUpdateKey{}, true
	default:
		return nil, false
	}
}

// NewEventKeyByName is the text-codec counterpart, used nowhere on the wire
// (the text codec encodes the same decimal index as the binary codec —
// see §4.C) but kept for log/HTTP introspection lookups by name.
func NewEventKeyByName(name string) (EventKey, bool) {
	switch name {
	case EventNameGpioPin:
		return &GpioPinKey{}, true
	case EventNameTrackSensor:
		return TrackSensorKey{}, true
	case EventNameUltraSensor:
		return &UltraSensorKey{}, true
	case EventNameCamlocConnect:
		return CamlocConnectKey{}, true
	case EventNameCamlocDisconnect:
		return CamlocDisconnectKey{}, true
	case EventNameCamlocPosition:
		return CamlocPositionKey{}, true
	case EventNameCamlocInfoUpdate:
		return CamlocInfoUpdateKey{}, true
	default:
		return nil, false
	}
}

// AllEventNames enumerates every registered event, used by the event-name
// uniqueness property test (§8.3).
func AllEventNames() []string {
	return []string{
		EventNameGpioPin, EventNameTrackSensor, EventNameUltraSensor,
		EventNameCamlocConnect, EventNameCamlocDisconnect,
		EventNameCamlocPosition, EventNameCamlocInfoUpdate,
	}
}
