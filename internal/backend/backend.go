// Package backend declares the contracts the dispatcher calls into:
// Gpio, Roland, and LocationService. These are opaque collaborators —
// concrete hardware drivers are out of scope for this module (see
// spec.md §1 "Out of scope"); this package ships only the interfaces
// and the Set that holds them. A backend left nil in the Set is absent,
// and the dispatcher answers its commands with the benign defaults of
// §4.D so partial deployments (no board attached, no localization
// service reachable) stay observable instead of erroring.
package backend

import (
	"context"
	"time"

	"github.com/kareszklub/roblibd/internal/protocol"
)

// TrackReading is the result of a single poll of the track-sensor
// interrupt lines: which of the four sensors changed, and its new level.
type TrackReading struct {
	Index uint8
	Value bool
}

// Gpio is the raw GPIO capability set.
type Gpio interface {
	ReadPin(ctx context.Context, pin uint8) (bool, error)
	WritePin(ctx context.Context, pin uint8, value bool) error
	Pwm(ctx context.Context, pin uint8, hz, duty float64) error
	Servo(ctx context.Context, pin uint8, degrees float64) error
	PinMode(ctx context.Context, pin uint8, mode protocol.PinMode) error

	// Subscribe registers a pin-change handler invoked from the owning
	// backend's own goroutine; it must not block. Unsubscribe tears it
	// down. Both are called by the event bus's upstream-activation path
	// (§4.F), never directly by the dispatcher.
	Subscribe(pin uint8, handler func(level bool)) error
	Unsubscribe(pin uint8) error
}

// Roland is the capability set for the bundled Roland motor/sensor board.
type Roland interface {
	Drive(ctx context.Context, left, right float64) (*protocol.MotionHint, error)
	DriveByAngle(ctx context.Context, angle, speed float64) (*protocol.MotionHint, error)
	Led(ctx context.Context, red, green, blue bool) error
	Servo(ctx context.Context, degrees float64) error
	Buzzer(ctx context.Context, duty float64) error
	TrackSensor(ctx context.Context) ([4]bool, error)
	UltraSensor(ctx context.Context) (float64, error)

	// SetupTrackSensorInterrupts arms the four track-sensor GPIO lines for
	// edge-triggered interrupts; called once when the first TrackSensor
	// subscriber appears.
	SetupTrackSensorInterrupts(ctx context.Context) error
	// PollTrackSensor blocks for at most timeout waiting for an edge on any
	// track-sensor line, returning the reading that fired or (nil, nil) on
	// timeout. It is the sole blocking call in the event bus's earliest-
	// deadline-first worker (§4.F).
	PollTrackSensor(ctx context.Context, timeout time.Duration) (*TrackReading, error)
}

// LocationService is the external camera-based localization collaborator.
type LocationService interface {
	GetPosition(ctx context.Context) (*protocol.Position, error)
	// SetMotionHint forwards the dispatcher's derived hint (§4.E step 3) so
	// the estimator can bias its filter towards the commanded direction.
	SetMotionHint(ctx context.Context, hint protocol.MotionHint) error

	// Subscribe registers the event bus as the service's own subscriber,
	// receiving connect/disconnect/position/info notifications. The
	// returned cancel func deactivates the upstream source; it must be
	// idempotent.
	Subscribe(handler LocationEventHandler) (cancel func(), err error)
}

// LocationEventHandler receives push notifications from a LocationService.
// Exactly one of the fields is meaningful per call, mirroring the source's
// four Camloc* event variants.
type LocationEventHandler struct {
	OnConnect    func()
	OnDisconnect func()
	OnPosition   func(protocol.Position)
	OnInfo       func(message string)
}

// Set bundles the three optional backend handles the dispatcher is built
// with. Each field may be nil — representing an absent backend as a
// nullable handle rather than a polymorphic empty-stub implementation, per
// the design notes — making the absent-backend defaults explicit at every
// call site instead of hidden behind an interface that silently no-ops.
type Set struct {
	Gpio     Gpio
	Roland   Roland
	Location LocationService
}
