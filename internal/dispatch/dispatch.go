// Package dispatch implements the command dispatcher (§4.E): given a
// decoded command and the shared backend handle, it produces the typed
// return value, forwards derived motion hints to the localization
// service, and tracks server uptime. Subscribe/Unsubscribe are not
// executed here — the transport layer intercepts them and routes them to
// the event bus (internal/eventbus) — but Dispatch still answers them
// with the uptime ack described in §4.E, for transports that choose to
// route the ack value through the dispatcher after the bus has handled
// the side effect.
package dispatch

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/kareszklub/roblibd/internal/backend"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/protocol"
)

// Dispatcher holds the server's start instant and backend handles. It is
// safe for concurrent use — one Dispatcher is shared by every transport
// connection (§5 "Backend handles are shared behind a mutex per
// backend"; the mutexing itself lives inside each concrete backend, not
// here).
type Dispatcher struct {
	start      time.Time
	backends   backend.Set
	logger     *logging.Logger
	abort      func()
	dispatched atomic.Int64
}

// New constructs a Dispatcher with the given start instant (ordinarily
// time.Now(), parameterised for tests), backend set, logger, and the
// abort callback invoked by the Abort command.
func New(start time.Time, backends backend.Set, logger *logging.Logger, abort func()) *Dispatcher {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Dispatcher{start: start, backends: backends, logger: logger, abort: abort}
}

// Uptime returns the Duration elapsed since server start, used both by
// GetUptime and by the Subscribe/Unsubscribe ack.
func (d *Dispatcher) Uptime() time.Duration { return time.Since(d.start) }

// CommandsDispatched returns the cumulative number of Dispatch calls,
// for the ops surface's /api/stats and the telemetry gRPC channel's
// MetricsSnapshot (§4.K, §4.L).
func (d *Dispatcher) CommandsDispatched() int64 { return d.dispatched.Load() }

// Dispatch performs step 1-4 of §4.E: logs the command at debug level,
// performs the backend call, forwards motion hints, and returns the
// typed result (or an error) for the transport to serialize.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd protocol.Command) (any, error) {
	d.dispatched.Add(1)
	d.logger.Debug("dispatch", logging.String("prefix", string(rune(cmd.Prefix()))))

	switch c := cmd.(type) {
	case *protocol.Nop:
		return struct{}{}, nil
	case *protocol.GetUptime:
		return d.Uptime(), nil
	case *protocol.Abort:
		if d.abort != nil {
			d.abort()
		}
		return struct{}{}, nil
	case *protocol.Subscribe, *protocol.Unsubscribe:
		// Side effects belong to the event bus; this is the ack only.
		return d.Uptime(), nil
	case *protocol.MoveRobot:
		if err := validateUnit("left", c.Left); err != nil {
			return nil, err
		}
		if err := validateUnit("right", c.Right); err != nil {
			return nil, err
		}
		return d.drive(ctx, c.Left, c.Right)
	case *protocol.MoveRobotByAngle:
		if err := validateUnit("speed", c.Speed); err != nil {
			return nil, err
		}
		return d.driveByAngle(ctx, c.Angle, c.Speed)
	case *protocol.StopRobot:
		_, err := d.drive(ctx, 0, 0)
		return struct{}{}, err
	case *protocol.Led:
		if d.backends.Roland == nil {
			return struct{}{}, nil
		}
		return struct{}{}, wrapBackend(d.backends.Roland.Led(ctx, c.Red, c.Green, c.Blue))
	case *protocol.RolandServo:
		if err := validateServoDegrees(c.DegreesAbsolute); err != nil {
			return nil, err
		}
		if d.backends.Roland == nil {
			return struct{}{}, nil
		}
		return struct{}{}, wrapBackend(d.backends.Roland.Servo(ctx, c.DegreesAbsolute))
	case *protocol.Buzzer:
		if err := validateUnitInterval("duty", c.Duty); err != nil {
			return nil, err
		}
		if d.backends.Roland == nil {
			return struct{}{}, nil
		}
		return struct{}{}, wrapBackend(d.backends.Roland.Buzzer(ctx, c.Duty))
	case *protocol.TrackSensor:
		if d.backends.Roland == nil {
			return [4]bool{}, nil
		}
		reading, err := d.backends.Roland.TrackSensor(ctx)
		return reading, wrapBackend(err)
	case *protocol.UltraSensor:
		if d.backends.Roland == nil {
			return math.NaN(), nil
		}
		reading, err := d.backends.Roland.UltraSensor(ctx)
		return reading, wrapBackend(err)
	case *protocol.ReadPin:
		if err := validatePin(c.Pin); err != nil {
			return nil, err
		}
		if d.backends.Gpio == nil {
			return false, nil
		}
		v, err := d.backends.Gpio.ReadPin(ctx, c.Pin)
		return v, wrapBackend(err)
	case *protocol.WritePin:
		if err := validatePin(c.Pin); err != nil {
			return nil, err
		}
		if d.backends.Gpio == nil {
			return struct{}{}, nil
		}
		return struct{}{}, wrapBackend(d.backends.Gpio.WritePin(ctx, c.Pin, c.Value))
	case *protocol.Pwm:
		if err := validatePin(c.Pin); err != nil {
			return nil, err
		}
		if err := validateUnitInterval("duty", c.Duty); err != nil {
			return nil, err
		}
		if d.backends.Gpio == nil {
			return struct{}{}, nil
		}
		return struct{}{}, wrapBackend(d.backends.Gpio.Pwm(ctx, c.Pin, c.Hz, c.Duty))
	case *protocol.Servo:
		if err := validatePin(c.Pin); err != nil {
			return nil, err
		}
		if err := validateServoDegrees(c.Degrees); err != nil {
			return nil, err
		}
		if d.backends.Gpio == nil {
			return struct{}{}, nil
		}
		return struct{}{}, wrapBackend(d.backends.Gpio.Servo(ctx, c.Pin, c.Degrees))
	case *protocol.SetPinMode:
		if err := validatePin(c.Pin); err != nil {
			return nil, err
		}
		if d.backends.Gpio == nil {
			return struct{}{}, nil
		}
		return struct{}{}, wrapBackend(d.backends.Gpio.PinMode(ctx, c.Pin, c.Mode))
	case *protocol.GetPosition:
		if d.backends.Location == nil {
			return (*protocol.Position)(nil), nil
		}
		pos, err := d.backends.Location.GetPosition(ctx)
		return pos, wrapBackend(err)
	default:
		return nil, roberrors.NewBackendError(roberrors.BackendKindInvalidArgument, nil)
	}
}

// drive performs step 2+3 for MoveRobot: the backend call, then forwarding
// the derived hint to the LocationService if both are present.
func (d *Dispatcher) drive(ctx context.Context, left, right float64) (*protocol.MotionHint, error) {
	if d.backends.Roland == nil {
		return nil, nil
	}
	hint, err := d.backends.Roland.Drive(ctx, left, right)
	if err != nil {
		return nil, wrapBackend(err)
	}
	d.forwardHint(ctx, hint)
	return hint, nil
}

func (d *Dispatcher) driveByAngle(ctx context.Context, angle, speed float64) (*protocol.MotionHint, error) {
	if d.backends.Roland == nil {
		return nil, nil
	}
	hint, err := d.backends.Roland.DriveByAngle(ctx, angle, speed)
	if err != nil {
		return nil, wrapBackend(err)
	}
	d.forwardHint(ctx, hint)
	return hint, nil
}

func (d *Dispatcher) forwardHint(ctx context.Context, hint *protocol.MotionHint) {
	if hint == nil || d.backends.Location == nil {
		return
	}
	if err := d.backends.Location.SetMotionHint(ctx, *hint); err != nil {
		d.logger.Warn("motion hint forward failed", logging.Error(err))
	}
}

func wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	return roberrors.NewBackendError(roberrors.BackendKindIO, err)
}
