package binary

import (
	"fmt"
	"time"

	"github.com/kareszklub/roblibd/internal/protocol"
)

// EncodeCommand writes a command's prefix byte followed by its arguments
// (§6: "Command: prefix byte then arguments"). This is the single switch
// the design notes call for — adding a variant means adding one case here
// and the mirrored one in DecodeCommand, nowhere else.
func EncodeCommand(w *Writer, cmd protocol.Command) error {
	w.WriteByte8(cmd.Prefix())
	switch c := cmd.(type) {
	case *protocol.Nop, protocol.Nop:
	case *protocol.GetUptime, protocol.GetUptime:
	case *protocol.Abort, protocol.Abort:
	case *protocol.StopRobot, protocol.StopRobot:
	case *protocol.TrackSensor, protocol.TrackSensor:
	case *protocol.UltraSensor, protocol.UltraSensor:
	case *protocol.GetPosition, protocol.GetPosition:
	case *protocol.Subscribe:
		return encodeEventKey(w, c.Event)
	case protocol.Subscribe:
		return encodeEventKey(w, c.Event)
	case *protocol.Unsubscribe:
		return encodeEventKey(w, c.Event)
	case protocol.Unsubscribe:
		return encodeEventKey(w, c.Event)
	case *protocol.MoveRobot:
		w.WriteF64(c.Left)
		w.WriteF64(c.Right)
	case protocol.MoveRobot:
		w.WriteF64(c.Left)
		w.WriteF64(c.Right)
	case *protocol.MoveRobotByAngle:
		w.WriteF64(c.Angle)
		w.WriteF64(c.Speed)
	case protocol.MoveRobotByAngle:
		w.WriteF64(c.Angle)
		w.WriteF64(c.Speed)
	case *protocol.Led:
		w.WriteBool(c.Red)
		w.WriteBool(c.Green)
		w.WriteBool(c.Blue)
	case protocol.Led:
		w.WriteBool(c.Red)
		w.WriteBool(c.Green)
		w.WriteBool(c.Blue)
	case *protocol.RolandServo:
		w.WriteF64(c.DegreesAbsolute)
	case protocol.RolandServo:
		w.WriteF64(c.DegreesAbsolute)
	case *protocol.Buzzer:
		w.WriteF64(c.Duty)
	case protocol.Buzzer:
		w.WriteF64(c.Duty)
	case *protocol.ReadPin:
		w.WriteU8(c.Pin)
	case protocol.ReadPin:
		w.WriteU8(c.Pin)
	case *protocol.WritePin:
		w.WriteU8(c.Pin)
		w.WriteBool(c.Value)
	case protocol.WritePin:
		w.WriteU8(c.Pin)
		w.WriteBool(c.Value)
	case *protocol.Pwm:
		w.WriteU8(c.Pin)
		w.WriteF64(c.Hz)
		w.WriteF64(c.Duty)
	case protocol.Pwm:
		w.WriteU8(c.Pin)
		w.WriteF64(c.Hz)
		w.WriteF64(c.Duty)
	case *protocol.Servo:
		w.WriteU8(c.Pin)
		w.WriteF64(c.Degrees)
	case protocol.Servo:
		w.WriteU8(c.Pin)
		w.WriteF64(c.Degrees)
	case *protocol.SetPinMode:
		w.WriteU8(c.Pin)
		w.WriteU32(uint32(c.Mode))
	case protocol.SetPinMode:
		w.WriteU8(c.Pin)
		w.WriteU32(uint32(c.Mode))
	default:
		return fmt.Errorf("binary: unsupported command type %T", cmd)
	}
	return nil
}

// DecodeCommand reads the prefix byte and the appropriate argument shape,
// returning a DecodeError of kind "unknown-prefix" for an unregistered
// prefix.
func DecodeCommand(r *Reader) (protocol.Command, error) {
	prefix, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	cmd, ok := protocol.NewByPrefix(prefix)
	if !ok {
		return nil, decodeErr("unknown-prefix", fmt.Errorf("prefix %q (%#x)", rune(prefix), prefix))
	}
	switch c := cmd.(type) {
	case *protocol.Nop, *protocol.GetUptime, *protocol.Abort, *protocol.StopRobot,
		*protocol.TrackSensor, *protocol.UltraSensor, *protocol.GetPosition:
		// no arguments
	case *protocol.Subscribe:
		key, err := decodeEventKey(r)
		if err != nil {
			return nil, err
		}
		c.Event = key
	case *protocol.Unsubscribe:
		key, err := decodeEventKey(r)
		if err != nil {
			return nil, err
		}
		c.Event = key
	case *protocol.MoveRobot:
		if c.Left, err = r.ReadF64(); err != nil {
			return nil, err
		}
		if c.Right, err = r.ReadF64(); err != nil {
			return nil, err
		}
	case *protocol.MoveRobotByAngle:
		if c.Angle, err = r.ReadF64(); err != nil {
			return nil, err
		}
		if c.Speed, err = r.ReadF64(); err != nil {
			return nil, err
		}
	case *protocol.Led:
		if c.Red, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if c.Green, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if c.Blue, err = r.ReadBool(); err != nil {
			return nil, err
		}
	case *protocol.RolandServo:
		if c.DegreesAbsolute, err = r.ReadF64(); err != nil {
			return nil, err
		}
	case *protocol.Buzzer:
		if c.Duty, err = r.ReadF64(); err != nil {
			return nil, err
		}
	case *protocol.ReadPin:
		if c.Pin, err = r.ReadU8(); err != nil {
			return nil, err
		}
	case *protocol.WritePin:
		if c.Pin, err = r.ReadU8(); err != nil {
			return nil, err
		}
		if c.Value, err = r.ReadBool(); err != nil {
			return nil, err
		}
	case *protocol.Pwm:
		if c.Pin, err = r.ReadU8(); err != nil {
			return nil, err
		}
		if c.Hz, err = r.ReadF64(); err != nil {
			return nil, err
		}
		if c.Duty, err = r.ReadF64(); err != nil {
			return nil, err
		}
	case *protocol.Servo:
		if c.Pin, err = r.ReadU8(); err != nil {
			return nil, err
		}
		if c.Degrees, err = r.ReadF64(); err != nil {
			return nil, err
		}
	case *protocol.SetPinMode:
		if c.Pin, err = r.ReadU8(); err != nil {
			return nil, err
		}
		mode, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		c.Mode = protocol.PinMode(mode)
	default:
		return nil, fmt.Errorf("binary: unsupported command type %T", cmd)
	}
	return cmd, nil
}

// encodeEventKey writes the tagged-enum form used by EventKey: a u32
// discriminant followed by its parameters, if any (§4.B "Tagged enum").
func encodeEventKey(w *Writer, key protocol.EventKey) error {
	if key == nil {
		return fmt.Errorf("binary: nil event key")
	}
	w.WriteU32(key.Index())
	switch k := key.(type) {
	case *protocol.GpioPinKey:
		w.WriteU8(k.Pin)
	case protocol.GpioPinKey:
		w.WriteU8(k.Pin)
	case *protocol.UltraSensorKey:
		w.WriteDuration(k.Interval)
	case protocol.UltraSensorKey:
		w.WriteDuration(k.Interval)
	case protocol.TrackSensorKey, protocol.CamlocConnectKey, protocol.CamlocDisconnectKey,
		protocol.CamlocPositionKey, protocol.CamlocInfoUpdateKey:
		// no parameters
	default:
		return fmt.Errorf("binary: unsupported event key type %T", key)
	}
	return nil
}

func decodeEventKey(r *Reader) (protocol.EventKey, error) {
	index, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	key, ok := protocol.NewEventKeyByIndex(index)
	if !ok {
		return nil, decodeErr("unknown-event", fmt.Errorf("index %d", index))
	}
	switch k := key.(type) {
	case *protocol.GpioPinKey:
		if k.Pin, err = r.ReadU8(); err != nil {
			return nil, err
		}
	case *protocol.UltraSensorKey:
		if k.Interval, err = r.ReadDuration(); err != nil {
			return nil, err
		}
	default:
		// no parameters to decode
	}
	return key, nil
}

// EncodeEventValue writes the tagged-enum ConcreteValue form for an emitted
// event payload, keyed by the same discriminant as its EventKey.
func EncodeEventValue(w *Writer, key protocol.EventKey, value any) error {
	w.WriteU32(key.Index())
	switch key.Index() {
	case protocol.EventIndexGpioPin:
		w.WriteBool(value.(bool))
	case protocol.EventIndexTrackSensor:
		arr := value.([4]bool)
		for _, v := range arr {
			w.WriteBool(v)
		}
	case protocol.EventIndexUltraSensor:
		w.WriteF64(value.(float64))
	case protocol.EventIndexCamlocConnect, protocol.EventIndexCamlocDisconnect:
		// unit payload
	case protocol.EventIndexCamlocPosition:
		pos := value.(protocol.Position)
		w.WriteF64(pos.X)
		w.WriteF64(pos.Y)
		w.WriteF64(pos.Rotation)
	case protocol.EventIndexCamlocInfoUpdate:
		return w.WriteString(value.(string))
	default:
		return fmt.Errorf("binary: unsupported event value for index %d", key.Index())
	}
	return nil
}

// DecodeEventValue reads a ConcreteValue; the returned `any` holds the
// concrete Go type documented on each Encode* case above.
func DecodeEventValue(r *Reader) (protocol.EventKey, any, error) {
	index, err := r.ReadU32()
	if err != nil {
		return nil, nil, err
	}
	key, ok := protocol.NewEventKeyByIndex(index)
	if !ok {
		return nil, nil, decodeErr("unknown-event", fmt.Errorf("index %d", index))
	}
	switch index {
	case protocol.EventIndexGpioPin:
		v, err := r.ReadBool()
		return key, v, err
	case protocol.EventIndexTrackSensor:
		var arr [4]bool
		for i := range arr {
			if arr[i], err = r.ReadBool(); err != nil {
				return nil, nil, err
			}
		}
		return key, arr, nil
	case protocol.EventIndexUltraSensor:
		v, err := r.ReadF64()
		return key, v, err
	case protocol.EventIndexCamlocConnect, protocol.EventIndexCamlocDisconnect:
		return key, struct{}{}, nil
	case protocol.EventIndexCamlocPosition:
		x, err := r.ReadF64()
		if err != nil {
			return nil, nil, err
		}
		y, err := r.ReadF64()
		if err != nil {
			return nil, nil, err
		}
		rot, err := r.ReadF64()
		if err != nil {
			return nil, nil, err
		}
		return key, protocol.Position{X: x, Y: y, Rotation: rot}, nil
	case protocol.EventIndexCamlocInfoUpdate:
		v, err := r.ReadString()
		return key, v, err
	default:
		return nil, nil, fmt.Errorf("binary: unsupported event value for index %d", index)
	}
}

// EncodeReturn writes a command's return value given the prefix that
// produced it. The dispatcher hands back a concrete Go value in an `any`;
// this is the one place both ends agree on its shape (§9 design note:
// "derived once and consumed by both codecs and the dispatcher").
func EncodeReturn(w *Writer, prefix byte, value any) error {
	switch prefix {
	case protocol.PrefixNop, protocol.PrefixAbort, protocol.PrefixStopRobot,
		protocol.PrefixLed, protocol.PrefixRolandServo, protocol.PrefixBuzzer,
		protocol.PrefixWritePin, protocol.PrefixPwm, protocol.PrefixServo,
		protocol.PrefixPinMode:
		// unit return
		return nil
	case protocol.PrefixGetUptime, protocol.PrefixSubscribe, protocol.PrefixUnsubscribe:
		w.WriteDuration(value.(time.Duration))
		return nil
	case protocol.PrefixMoveRobot, protocol.PrefixMoveRobotByAngle:
		hint, _ := value.(*protocol.MotionHint)
		return WriteOption(w, hint, func(w *Writer, h protocol.MotionHint) error {
			w.WriteU8(h.WireByte())
			return nil
		})
	case protocol.PrefixTrackSensor:
		arr := value.([4]bool)
		for _, v := range arr {
			w.WriteBool(v)
		}
		return nil
	case protocol.PrefixUltraSensor:
		w.WriteF64(value.(float64))
		return nil
	case protocol.PrefixReadPin:
		w.WriteBool(value.(bool))
		return nil
	case protocol.PrefixGetPosition:
		pos, _ := value.(*protocol.Position)
		return WriteOption(w, pos, func(w *Writer, p protocol.Position) error {
			w.WriteF64(p.X)
			w.WriteF64(p.Y)
			w.WriteF64(p.Rotation)
			return nil
		})
	default:
		return fmt.Errorf("binary: unsupported return for prefix %q", rune(prefix))
	}
}

// DecodeReturn is the client-side counterpart of EncodeReturn: given the
// prefix of the command that was sent, it decodes the matching return
// shape, returning it boxed in an `any` of the concrete Go type documented
// in EncodeReturn's cases.
func DecodeReturn(r *Reader, prefix byte) (any, error) {
	switch prefix {
	case protocol.PrefixNop, protocol.PrefixAbort, protocol.PrefixStopRobot,
		protocol.PrefixLed, protocol.PrefixRolandServo, protocol.PrefixBuzzer,
		protocol.PrefixWritePin, protocol.PrefixPwm, protocol.PrefixServo,
		protocol.PrefixPinMode:
		return struct{}{}, nil
	case protocol.PrefixGetUptime, protocol.PrefixSubscribe, protocol.PrefixUnsubscribe:
		return r.ReadDuration()
	case protocol.PrefixMoveRobot, protocol.PrefixMoveRobotByAngle:
		return ReadOption(r, func(r *Reader) (protocol.MotionHint, error) {
			v, err := r.ReadU8()
			if err != nil {
				return 0, err
			}
			return protocol.ParseMotionHintByte(v)
		})
	case protocol.PrefixTrackSensor:
		var arr [4]bool
		var err error
		for i := range arr {
			if arr[i], err = r.ReadBool(); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case protocol.PrefixUltraSensor:
		return r.ReadF64()
	case protocol.PrefixReadPin:
		return r.ReadBool()
	case protocol.PrefixGetPosition:
		return ReadOption(r, func(r *Reader) (protocol.Position, error) {
			x, err := r.ReadF64()
			if err != nil {
				return protocol.Position{}, err
			}
			y, err := r.ReadF64()
			if err != nil {
				return protocol.Position{}, err
			}
			rot, err := r.ReadF64()
			if err != nil {
				return protocol.Position{}, err
			}
			return protocol.Position{X: x, Y: y, Rotation: rot}, nil
		})
	default:
		return nil, fmt.Errorf("binary: unsupported return for prefix %q", rune(prefix))
	}
}
