package protocol

// Command is the tagged-sum marker every command variant implements. The
// discriminant is the wire prefix byte, not a derived index — this mirrors
// the "tagged sum with an associated Return type per variant" pattern
// called for in the design notes: a single switch over Prefix() drives
// both codecs and the dispatcher, rather than reflection or generated
// per-variant boilerplate.
type Command interface {
	// Prefix returns the stable ASCII prefix byte identifying this command
	// on the wire. Prefix assignment is part of the wire contract and must
	// never change once shipped.
	Prefix() byte
}

// Prefix table (canonical — see GLOSSARY and §6 of the distilled spec).
// Abort and PinMode prefixes are implementation-chosen, as the source
// leaves them unassigned; 'x' and 'd' are picked here and are now part
// of this implementation's wire contract.
const (
	PrefixNop              byte = 'n'
	PrefixGetUptime        byte = 'U'
	PrefixSubscribe        byte = '+'
	PrefixUnsubscribe      byte = '-'
	PrefixAbort            byte = 'x'
	PrefixMoveRobot        byte = 'm'
	PrefixMoveRobotByAngle byte = 'M'
	PrefixStopRobot        byte = 's'
	PrefixLed              byte = 'l'
	PrefixRolandServo      byte = 'a'
	PrefixBuzzer           byte = 'b'
	PrefixTrackSensor      byte = 't'
	PrefixUltraSensor      byte = 'u'
	PrefixReadPin          byte = 'r'
	PrefixWritePin         byte = 'p'
	PrefixPwm              byte = 'w'
	PrefixServo            byte = 'V'
	PrefixPinMode          byte = 'd'
	PrefixGetPosition      byte = 'P'
)

// Nop performs no backend action and returns the unit value.
type Nop struct{}

func (Nop) Prefix() byte { return PrefixNop }

// GetUptime returns the Duration elapsed since server start.
type GetUptime struct{}

func (GetUptime) Prefix() byte { return PrefixGetUptime }

// Subscribe is intercepted by the transport layer (§4.E) rather than
// dispatched to a backend; it carries the event key the client wants to
// receive values for.
type Subscribe struct {
	Event EventKey
}

func (Subscribe) Prefix() byte { return PrefixSubscribe }

// Unsubscribe retracts a previously established subscription, matched by
// event key on the same client.
type Unsubscribe struct {
	Event EventKey
}

func (Unsubscribe) Prefix() byte { return PrefixUnsubscribe }

// Abort signals the server's abort token. Transports observe the
// cancellation and shut down gracefully.
type Abort struct{}

func (Abort) Prefix() byte { return PrefixAbort }

// MoveRobot drives by independent left/right wheel speeds in [-1.0, 1.0].
type MoveRobot struct {
	Left  float64
	Right float64
}

func (MoveRobot) Prefix() byte { return PrefixMoveRobot }

// MoveRobotByAngle drives along a heading (radians) at a given speed.
type MoveRobotByAngle struct {
	Angle float64
	Speed float64
}

func (MoveRobotByAngle) Prefix() byte { return PrefixMoveRobotByAngle }

// StopRobot halts all motion immediately.
type StopRobot struct{}

func (StopRobot) Prefix() byte { return PrefixStopRobot }

// Led sets the Roland board's tri-colour indicator.
type Led struct {
	Red   bool
	Green bool
	Blue  bool
}

func (Led) Prefix() byte { return PrefixLed }

// RolandServo points the Roland board's built-in pan servo.
type RolandServo struct {
	DegreesAbsolute float64
}

func (RolandServo) Prefix() byte { return PrefixRolandServo }

// Buzzer drives the onboard buzzer at the given duty cycle in [0.0, 1.0].
type Buzzer struct {
	Duty float64
}

func (Buzzer) Prefix() byte { return PrefixBuzzer }

// TrackSensor reads the four line-tracking sensors.
type TrackSensor struct{}

func (TrackSensor) Prefix() byte { return PrefixTrackSensor }

// UltraSensor reads the ultrasonic rangefinder, in metres.
type UltraSensor struct{}

func (UltraSensor) Prefix() byte { return PrefixUltraSensor }

// ReadPin reads the digital level of a raw GPIO pin.
type ReadPin struct {
	Pin uint8
}

func (ReadPin) Prefix() byte { return PrefixReadPin }

// WritePin sets the digital level of a raw GPIO pin.
type WritePin struct {
	Pin   uint8
	Value bool
}

func (WritePin) Prefix() byte { return PrefixWritePin }

// Pwm drives a raw GPIO pin with the given frequency and duty cycle.
type Pwm struct {
	Pin  uint8
	Hz   float64
	Duty float64
}

func (Pwm) Prefix() byte { return PrefixPwm }

// Servo points a raw GPIO-attached servo to the given angle in degrees.
type Servo struct {
	Pin     uint8
	Degrees float64
}

func (Servo) Prefix() byte { return PrefixServo }

// SetPinMode configures a raw GPIO pin's direction.
type SetPinMode struct {
	Pin  uint8
	Mode PinMode
}

func (SetPinMode) Prefix() byte { return PrefixPinMode }

// GetPosition queries the external LocationService for the robot's last
// known pose.
type GetPosition struct{}

func (GetPosition) Prefix() byte { return PrefixGetPosition }

// NewByPrefix constructs a zero-valued command for the given prefix, for
// decoders to populate in place. Unknown prefixes return (nil, false);
// callers must translate that into DecodeError(UnknownPrefix).
func NewByPrefix(prefix byte) (Command, bool) {
	switch prefix {
	case PrefixNop:
		return &Nop{}, true
	case PrefixGetUptime:
		return &GetUptime{}, true
	case PrefixSubscribe:
		return &Subscribe{}, true
	case PrefixUnsubscribe:
		return &Unsubscribe{}, true
	case PrefixAbort:
		return &Abort{}, true
	case PrefixMoveRobot:
		return &MoveRobot{}, true
	case PrefixMoveRobotByAngle:
		return &MoveRobotByAngle{}, true
	case PrefixStopRobot:
		return &StopRobot{}, true
	case PrefixLed:
		return &Led{}, true
	case PrefixRolandServo:
		return &RolandServo{}, true
	case PrefixBuzzer:
		return &Buzzer{}, true
	case PrefixTrackSensor:
		return &TrackSensor{}, true
	case PrefixUltraSensor:
		return &UltraSensor{}, true
	case PrefixReadPin:
		return &ReadPin{}, true
	case PrefixWritePin:
		return &WritePin{}, true
	case PrefixPwm:
		return &Pwm{}, true
	case PrefixServo:
		return &Servo{}, true
	case PrefixPinMode:
		return &SetPinMode{}, true
	case PrefixGetPosition:
		return &GetPosition{}, true
	default:
		return nil, false
	}
}

// AllPrefixes enumerates every registered prefix, used by the prefix
// uniqueness property test (§8.3) and by documentation/introspection
// endpoints.
func AllPrefixes() []byte {
	return []byte{
		PrefixNop, PrefixGetUptime, PrefixSubscribe, PrefixUnsubscribe,
		PrefixAbort, PrefixMoveRobot, PrefixMoveRobotByAngle, PrefixStopRobot,
		PrefixLed, PrefixRolandServo, PrefixBuzzer, PrefixTrackSensor,
		PrefixUltraSensor, PrefixReadPin, PrefixWritePin, PrefixPwm,
		PrefixServo, PrefixPinMode, PrefixGetPosition,
	}
}
