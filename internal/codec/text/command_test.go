package text

import (
	"reflect"
	"testing"
	"time"

	"github.com/kareszklub/roblibd/internal/protocol"
)

func roundTripCommand(t *testing.T, cmd protocol.Command) protocol.Command {
	t.Helper()
	w := NewWriter()
	if err := EncodeCommand(w, cmd); err != nil {
		t.Fatalf("EncodeCommand(%#v): %v", cmd, err)
	}
	got, err := DecodeCommand(NewReader(w.String()))
	if err != nil {
		t.Fatalf("DecodeCommand(%q): %v", w.String(), err)
	}
	return got
}

func TestCommandRoundTrip(t *testing.T) {
	cases := []protocol.Command{
		&protocol.Nop{},
		&protocol.GetUptime{},
		&protocol.Abort{},
		&protocol.StopRobot{},
		&protocol.TrackSensor{},
		&protocol.UltraSensor{},
		&protocol.GetPosition{},
		&protocol.MoveRobot{Left: -0.75, Right: 1.0},
		&protocol.MoveRobotByAngle{Angle: 1.5708, Speed: 0.5},
		&protocol.Led{Red: true, Green: false, Blue: true},
		&protocol.RolandServo{DegreesAbsolute: 42.5},
		&protocol.Buzzer{Duty: 0.3},
		&protocol.ReadPin{Pin: 7},
		&protocol.WritePin{Pin: 3, Value: true},
		&protocol.Pwm{Pin: 9, Hz: 490, Duty: 0.8},
		&protocol.Servo{Pin: 12, Degrees: 90},
		&protocol.SetPinMode{Pin: 4, Mode: protocol.PinModeOutput},
		&protocol.Subscribe{Event: &protocol.GpioPinKey{Pin: 6}},
		&protocol.Unsubscribe{Event: protocol.TrackSensorKey{}},
		&protocol.Subscribe{Event: &protocol.UltraSensorKey{Interval: 50 * time.Millisecond}},
	}
	for _, cmd := range cases {
		got := roundTripCommand(t, cmd)
		if !reflect.DeepEqual(got, cmd) {
			t.Fatalf("round trip mismatch: got %#v, want %#v", got, cmd)
		}
	}
}

func TestDecodeCommandUnknownPrefix(t *testing.T) {
	if _, err := DecodeCommand(NewReader("?")); err == nil {
		t.Fatalf("expected error for unknown command prefix")
	}
}

func TestEventValueRoundTrip(t *testing.T) {
	cases := []struct {
		key   protocol.EventKey
		value any
	}{
		{&protocol.GpioPinKey{Pin: 2}, true},
		{protocol.TrackSensorKey{}, [4]bool{true, false, true, false}},
		{protocol.UltraSensorKey{Interval: 100 * time.Millisecond}, 1.234},
		{protocol.CamlocConnectKey{}, struct{}{}},
		{protocol.CamlocDisconnectKey{}, struct{}{}},
		{protocol.CamlocPositionKey{}, protocol.Position{X: 1, Y: 2, Rotation: 3}},
		{protocol.CamlocInfoUpdateKey{}, "locked on, stable"},
	}
	for _, c := range cases {
		w := NewWriter()
		if err := EncodeEventValue(w, c.key, c.value); err != nil {
			t.Fatalf("EncodeEventValue(%v): %v", c.key, err)
		}
		key, value, err := DecodeEventValue(NewReader(w.String()))
		if err != nil {
			t.Fatalf("DecodeEventValue(%v): %v", c.key, err)
		}
		if key.Index() != c.key.Index() {
			t.Fatalf("event index mismatch: got %d, want %d", key.Index(), c.key.Index())
		}
		if !reflect.DeepEqual(value, c.value) {
			t.Fatalf("event value mismatch: got %#v, want %#v", value, c.value)
		}
	}
}

func TestReturnRoundTrip(t *testing.T) {
	hint := protocol.MotionForwards
	pos := protocol.Position{X: 4, Y: 5, Rotation: 6}
	cases := []struct {
		prefix byte
		value  any
	}{
		{protocol.PrefixNop, struct{}{}},
		{protocol.PrefixGetUptime, 5 * time.Second},
		{protocol.PrefixSubscribe, 250 * time.Millisecond},
		{protocol.PrefixMoveRobot, &hint},
		{protocol.PrefixMoveRobotByAngle, (*protocol.MotionHint)(nil)},
		{protocol.PrefixTrackSensor, [4]bool{false, true, false, true}},
		{protocol.PrefixUltraSensor, 0.42},
		{protocol.PrefixReadPin, true},
		{protocol.PrefixGetPosition, &pos},
	}
	for _, c := range cases {
		w := NewWriter()
		if err := EncodeReturn(w, c.prefix, c.value); err != nil {
			t.Fatalf("EncodeReturn(%q): %v", rune(c.prefix), err)
		}
		got, err := DecodeReturn(NewReader(w.String()), c.prefix)
		if err != nil {
			t.Fatalf("DecodeReturn(%q): %v", rune(c.prefix), err)
		}
		switch want := c.value.(type) {
		case *protocol.MotionHint:
			gotPtr, _ := got.(*protocol.MotionHint)
			if (want == nil) != (gotPtr == nil) {
				t.Fatalf("motion hint presence mismatch: got %v, want %v", gotPtr, want)
			}
			if want != nil && *gotPtr != *want {
				t.Fatalf("motion hint mismatch: got %v, want %v", *gotPtr, *want)
			}
		case *protocol.Position:
			gotPtr, _ := got.(*protocol.Position)
			if gotPtr == nil || *gotPtr != *want {
				t.Fatalf("position mismatch: got %v, want %v", gotPtr, want)
			}
		default:
			if !reflect.DeepEqual(got, c.value) {
				t.Fatalf("return value mismatch for prefix %q: got %#v, want %#v", rune(c.prefix), got, c.value)
			}
		}
	}
}
