// Package eventbus implements the event bus (§4.F): it tracks, per
// event key, the set of subscribers interested in it; activates the
// corresponding upstream source (a GPIO pin-change handler, the shared
// track/ultrasonic worker, or the LocationService's own subscriber
// interface) the moment the first subscriber appears, and deactivates
// it once the last one leaves; and fans out emitted values to each
// subscriber's transport-owned outbox.
package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kareszklub/roblibd/internal/backend"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/networking"
	"github.com/kareszklub/roblibd/internal/protocol"
)

// SubscriptionID identifies one subscribe call. It is transport-
// dependent but always includes the client endpoint and the request
// id that created it, per spec.md §4.F.
type SubscriptionID struct {
	ClientEndpoint string
	RequestID      uint32
}

// Outbox is the transport-owned delivery sink for one subscription.
// Enqueue must not block; a full or dead outbox is reported as an
// error but never terminates the subscription (§4.F "Emit").
type Outbox interface {
	Enqueue(key protocol.EventKey, value any) error
}

type subscriberSet map[SubscriptionID]Outbox

// Bus is the event bus. One Bus is shared by every transport
// connection; Subscribe/Unsubscribe/ClientDisconnect/Emit are safe for
// concurrent use.
type Bus struct {
	backends backend.Set
	logger   *logging.Logger
	metrics  *networking.DeliveryMetrics

	state  *state
	worker *edfWorker
	camloc *camlocSource

	tapMu  sync.Mutex
	tapSeq int
	taps   map[int]chan []byte
}

// Stats summarises the bus's current load for the ops surface's
// /api/stats snapshot (§4.K).
type Stats struct {
	ActiveSubscriptions int
	EDFLoopAverage      time.Duration
	EDFLoopMax          time.Duration
}

// New constructs a Bus over the given backend handles. An optional
// maxWait overrides the EDF worker's blocking-poll cap (config.
// DefaultEDFMaxWait if omitted); at most one value is read.
func New(backends backend.Set, logger *logging.Logger, metrics *networking.DeliveryMetrics, maxWait ...time.Duration) *Bus {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	if metrics == nil {
		metrics = networking.NewDeliveryMetrics()
	}
	wait := defaultMaxWait
	if len(maxWait) > 0 && maxWait[0] > 0 {
		wait = maxWait[0]
	}
	b := &Bus{
		backends: backends,
		logger:   logger,
		metrics:  metrics,
		state:    newState(),
		taps:     make(map[int]chan []byte),
	}
	b.worker = newEDFWorker(backends.Roland, b.emitLocked, logger, wait)
	b.camloc = newCamlocSource(backends.Location, b.emitLocked)
	return b
}

// Stop tears down the EDF worker and any live camloc subscription,
// for use during server shutdown. The worker and camloc source
// otherwise start themselves lazily on each one's first subscriber.
func (b *Bus) Stop() {
	b.worker.stop()
	b.camloc.deactivate()
}

// Subscribe registers id as interested in key, activating the
// upstream source on the key's first subscriber.
func (b *Bus) Subscribe(key protocol.EventKey, id SubscriptionID, outbox Outbox) error {
	wireKey := key.WireKey()

	first, added := b.state.add(wireKey, key, id, outbox)
	if !added {
		return roberrors.NewSubscriptionError(roberrors.AlreadySubscribed)
	}
	if !first {
		return nil
	}
	if err := b.activate(key); err != nil {
		b.state.remove(wireKey, id)
		return roberrors.NewBackendError(roberrors.BackendKindIO, err)
	}
	return nil
}

// Unsubscribe removes id from key's subscriber set, deactivating the
// upstream source once the set empties.
func (b *Bus) Unsubscribe(key protocol.EventKey, id SubscriptionID) error {
	wireKey := key.WireKey()
	last, removed := b.state.remove(wireKey, id)
	if !removed {
		return roberrors.NewSubscriptionError(roberrors.NotSubscribed)
	}
	if last {
		b.deactivate(key)
	}
	return nil
}

// ClientDisconnect drops every subscription belonging to endpoint
// across every event key, deactivating sources that emptied as a
// result. It is atomic with respect to concurrent Subscribe/Unsubscribe
// calls (§4.F requirement 3).
func (b *Bus) ClientDisconnect(endpoint string) {
	emptied := b.state.removeClient(endpoint)
	for _, key := range emptied {
		b.deactivate(key)
	}
	b.metrics.ForgetClient(endpoint)
}

// Stats reports the bus's current subscriber count and EDF loop timing,
// for the ops surface's /api/stats and the telemetry gRPC channel's
// MetricsSnapshot.
func (b *Bus) Stats() Stats {
	tick := b.worker.TickStats()
	return Stats{
		ActiveSubscriptions: b.state.count(),
		EDFLoopAverage:      tick.Average,
		EDFLoopMax:          tick.Max,
	}
}

// tapFrame is the JSON shape relayed to telemetry gRPC event-tap
// consumers: just enough to identify the event without re-deriving the
// wire codec on the consumer side.
type tapFrame struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// AddTap registers a best-effort consumer of every value the bus emits,
// for the telemetry gRPC channel's TapEvents RPC (§4.L). A slow consumer
// sees drops rather than an unbounded buffer, the same non-blocking rule
// Emit already applies to subscriber outboxes. The returned cancel func
// is idempotent.
func (b *Bus) AddTap() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	b.tapMu.Lock()
	id := b.tapSeq
	b.tapSeq++
	b.taps[id] = ch
	b.tapMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.tapMu.Lock()
			delete(b.taps, id)
			b.tapMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Bus) emitTaps(key protocol.EventKey, value any) {
	b.tapMu.Lock()
	if len(b.taps) == 0 {
		b.tapMu.Unlock()
		return
	}
	taps := make([]chan []byte, 0, len(b.taps))
	for _, ch := range b.taps {
		taps = append(taps, ch)
	}
	b.tapMu.Unlock()

	frame, err := json.Marshal(tapFrame{Key: key.WireKey(), Value: value})
	if err != nil {
		return
	}
	for _, ch := range taps {
		select {
		case ch <- frame:
		default:
			//1.- A full tap channel means a slow consumer; drop the frame
			// rather than block the emit path every other subscriber shares.
		}
	}
}

// Emit fans value out to every current subscriber of key. A delivery
// failure is logged and counted but never drops the subscription.
func (b *Bus) Emit(key protocol.EventKey, value any) {
	b.emitLocked(key, value)
}

// emitLocked is the shared emit path used both by Bus.Emit (called by
// the dispatcher or a direct caller) and by the upstream sources
// (gpio.go, worker.go, camloc.go) feeding events back into the bus.
func (b *Bus) emitLocked(key protocol.EventKey, value any) {
	b.emitTaps(key, value)

	wireKey := key.WireKey()
	subs := b.state.snapshot(wireKey)
	if len(subs) == 0 {
		return
	}
	dropped := map[string]int{}
	for id, outbox := range subs {
		if err := outbox.Enqueue(key, value); err != nil {
			b.logger.Warn("event delivery failed",
				logging.String("event", wireKey),
				logging.String("client", id.ClientEndpoint),
				logging.Error(err))
			dropped[wireKey]++
		}
	}
	if len(dropped) > 0 {
		b.metrics.Observe("", 0, dropped)
	}
}

// activate wires up the upstream source for key's first subscriber.
func (b *Bus) activate(key protocol.EventKey) error {
	switch k := key.(type) {
	case *protocol.GpioPinKey:
		return b.activateGpio(*k)
	case protocol.GpioPinKey:
		return b.activateGpio(k)
	case protocol.TrackSensorKey:
		b.worker.activateTrack()
		return nil
	case *protocol.UltraSensorKey:
		b.worker.activateUltra(*k)
		return nil
	case protocol.UltraSensorKey:
		b.worker.activateUltra(k)
		return nil
	case protocol.CamlocConnectKey, protocol.CamlocDisconnectKey,
		protocol.CamlocPositionKey, protocol.CamlocInfoUpdateKey:
		return b.camloc.activate()
	default:
		return fmt.Errorf("eventbus: no upstream source known for %s", key.WireKey())
	}
}

// deactivate tears down the upstream source after key's last subscriber leaves.
func (b *Bus) deactivate(key protocol.EventKey) {
	switch k := key.(type) {
	case *protocol.GpioPinKey:
		b.deactivateGpio(*k)
	case protocol.GpioPinKey:
		b.deactivateGpio(k)
	case protocol.TrackSensorKey:
		b.worker.deactivateTrack()
	case *protocol.UltraSensorKey:
		b.worker.deactivateUltra(*k)
	case protocol.UltraSensorKey:
		b.worker.deactivateUltra(k)
	case protocol.CamlocConnectKey, protocol.CamlocDisconnectKey,
		protocol.CamlocPositionKey, protocol.CamlocInfoUpdateKey:
		b.camloc.deactivateOne()
	}
}
