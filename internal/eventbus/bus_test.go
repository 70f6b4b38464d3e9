package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/kareszklub/roblibd/internal/backend"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/protocol"
)

type recordingOutbox struct {
	deliveries []any
	fail       bool
}

func (o *recordingOutbox) Enqueue(key protocol.EventKey, value any) error {
	if o.fail {
		return context.DeadlineExceeded
	}
	o.deliveries = append(o.deliveries, value)
	return nil
}

type fakeGpio struct {
	handlers map[uint8]func(bool)
}

func newFakeGpio() *fakeGpio { return &fakeGpio{handlers: make(map[uint8]func(bool))} }

func (f *fakeGpio) ReadPin(ctx context.Context, pin uint8) (bool, error)            { return false, nil }
func (f *fakeGpio) WritePin(ctx context.Context, pin uint8, value bool) error       { return nil }
func (f *fakeGpio) Pwm(ctx context.Context, pin uint8, hz, duty float64) error      { return nil }
func (f *fakeGpio) Servo(ctx context.Context, pin uint8, degrees float64) error     { return nil }
func (f *fakeGpio) PinMode(ctx context.Context, pin uint8, mode protocol.PinMode) error {
	return nil
}
func (f *fakeGpio) Subscribe(pin uint8, handler func(level bool)) error {
	f.handlers[pin] = handler
	return nil
}
func (f *fakeGpio) Unsubscribe(pin uint8) error {
	delete(f.handlers, pin)
	return nil
}

func TestSubscribeActivatesGpioOnFirstSubscriber(t *testing.T) {
	gpio := newFakeGpio()
	bus := New(backend.Set{Gpio: gpio}, nil, nil)

	key := &protocol.GpioPinKey{Pin: 7}
	out := &recordingOutbox{}
	id := SubscriptionID{ClientEndpoint: "conn-1", RequestID: 1}

	if err := bus.Subscribe(key, id, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handler, ok := gpio.handlers[7]
	if !ok {
		t.Fatal("expected gpio subscribe to register a handler")
	}

	handler(true)
	if len(out.deliveries) != 1 || out.deliveries[0] != true {
		t.Fatalf("expected one delivery of true, got %#v", out.deliveries)
	}

	if err := bus.Unsubscribe(key, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gpio.handlers[7]; ok {
		t.Fatal("expected gpio handler to be torn down after last unsubscribe")
	}
}

func TestSubscribeRejectsDuplicate(t *testing.T) {
	bus := New(backend.Set{}, nil, nil)
	key := protocol.TrackSensorKey{}
	id := SubscriptionID{ClientEndpoint: "conn-1", RequestID: 1}

	if err := bus.Subscribe(key, id, &recordingOutbox{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := bus.Subscribe(key, id, &recordingOutbox{})
	if as, ok := err.(*roberrors.SubscriptionError); !ok || as.Kind != roberrors.AlreadySubscribed {
		t.Fatalf("expected AlreadySubscribed, got %v (%T)", err, err)
	}
}

func TestUnsubscribeUnknownFails(t *testing.T) {
	bus := New(backend.Set{}, nil, nil)
	err := bus.Unsubscribe(protocol.TrackSensorKey{}, SubscriptionID{ClientEndpoint: "x", RequestID: 1})
	if as, ok := err.(*roberrors.SubscriptionError); !ok || as.Kind != roberrors.NotSubscribed {
		t.Fatalf("expected NotSubscribed, got %v", err)
	}
}

func TestClientDisconnectDropsAllSubscriptions(t *testing.T) {
	gpio := newFakeGpio()
	bus := New(backend.Set{Gpio: gpio}, nil, nil)

	key := &protocol.GpioPinKey{Pin: 2}
	id := SubscriptionID{ClientEndpoint: "conn-1", RequestID: 1}
	if err := bus.Subscribe(key, id, &recordingOutbox{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bus.ClientDisconnect("conn-1")

	if _, ok := gpio.handlers[2]; ok {
		t.Fatal("expected gpio handler torn down after ClientDisconnect")
	}
	// Resubscribing should succeed as a fresh first-subscriber.
	if err := bus.Subscribe(key, id, &recordingOutbox{}); err != nil {
		t.Fatalf("expected fresh subscribe to succeed, got %v", err)
	}
}

func TestEmitDeliveryFailureIsNonFatal(t *testing.T) {
	bus := New(backend.Set{}, nil, nil)
	key := protocol.TrackSensorKey{}
	id := SubscriptionID{ClientEndpoint: "conn-1", RequestID: 1}
	out := &recordingOutbox{fail: true}

	if err := bus.Subscribe(key, id, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bus.Emit(key, [4]bool{true, false, false, true})

	// The subscription must still be present after a failed delivery.
	if err := bus.Unsubscribe(key, id); err != nil {
		t.Fatalf("expected subscription to survive a failed delivery, got %v", err)
	}
}

func TestEDFWorkerServicesUltraSensor(t *testing.T) {
	roland := &fakeRolandWorker{
		trackCh: make(chan *backend.TrackReading, 1),
		ultra:   1.5,
	}
	bus := New(backend.Set{Roland: roland}, nil, nil)

	out := &recordingOutbox{}
	ultraKey := protocol.UltraSensorKey{Interval: 10 * time.Millisecond}
	if err := bus.Subscribe(ultraKey, SubscriptionID{ClientEndpoint: "c", RequestID: 1}, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(out.deliveries) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(out.deliveries) == 0 {
		t.Fatal("expected at least one ultrasonic reading to be delivered")
	}
	if v, ok := out.deliveries[0].(float64); !ok || v != 1.5 {
		t.Fatalf("expected delivered reading 1.5, got %#v", out.deliveries[0])
	}

	bus.Stop()
}

type fakeRolandWorker struct {
	trackCh chan *backend.TrackReading
	ultra   float64
}

func (f *fakeRolandWorker) Drive(ctx context.Context, left, right float64) (*protocol.MotionHint, error) {
	return nil, nil
}
func (f *fakeRolandWorker) DriveByAngle(ctx context.Context, angle, speed float64) (*protocol.MotionHint, error) {
	return nil, nil
}
func (f *fakeRolandWorker) Led(ctx context.Context, r, g, b bool) error       { return nil }
func (f *fakeRolandWorker) Servo(ctx context.Context, degrees float64) error  { return nil }
func (f *fakeRolandWorker) Buzzer(ctx context.Context, duty float64) error   { return nil }
func (f *fakeRolandWorker) TrackSensor(ctx context.Context) ([4]bool, error) { return [4]bool{}, nil }
func (f *fakeRolandWorker) UltraSensor(ctx context.Context) (float64, error) { return f.ultra, nil }
func (f *fakeRolandWorker) SetupTrackSensorInterrupts(ctx context.Context) error {
	return nil
}
func (f *fakeRolandWorker) PollTrackSensor(ctx context.Context, timeout time.Duration) (*backend.TrackReading, error) {
	select {
	case r := <-f.trackCh:
		return r, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
