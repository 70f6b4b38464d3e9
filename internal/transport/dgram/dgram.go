// Package dgram implements the DGRAM transport (§4.G): an unreliable,
// unordered, bounded-message transport over UDP. A single datagram is a
// single (id, Concrete) request or a single (id, Value) response or
// event — there is no outer length header (the datagram boundary itself
// supplies the length) and no sequence gate (DGRAM is stateless; the
// client de-duplicates by id on its own).
package dgram

import (
	"context"
	"errors"
	"net"
	"sync"

	wirebin "github.com/kareszklub/roblibd/internal/codec/binary"
	"github.com/kareszklub/roblibd/internal/dispatch"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/eventbus"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/networking"
	"github.com/kareszklub/roblibd/internal/protocol"
)

// MaxDatagramBytes is the buffer cap named in §4.G ("Buffer cap 1024
// bytes; larger messages fail with MessageTooLarge").
const MaxDatagramBytes = 1024

// Option customises a Listener at construction time.
type Option func(*Listener)

// WithBandwidth attaches a per-client bandwidth budget to event
// deliveries (§4.M): a subscriber that exceeds its share is throttled
// rather than the datagram socket backing up.
func WithBandwidth(regulator *networking.BandwidthRegulator, metrics *networking.DeliveryMetrics) Option {
	return func(l *Listener) {
		l.bandwidth = regulator
		l.metrics = metrics
	}
}

// Listener serves DGRAM requests on a UDP socket. Unlike stream.Listener
// it has no per-connection state at all: every datagram is handled
// independently, keyed only by the sender's address for the lifetime of
// that one request/response or event delivery.
type Listener struct {
	dispatcher *dispatch.Dispatcher
	bus        *eventbus.Bus
	logger     *logging.Logger
	bandwidth  *networking.BandwidthRegulator
	metrics    *networking.DeliveryMetrics
}

// New constructs a DGRAM listener.
func New(dispatcher *dispatch.Dispatcher, bus *eventbus.Bus, logger *logging.Logger, opts ...Option) *Listener {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	l := &Listener{dispatcher: dispatcher, bus: bus, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Serve reads datagrams from conn until ctx is cancelled. Each datagram
// is handled inline on the read goroutine: DGRAM has no per-peer
// ordering guarantee to preserve, so there is nothing to gain from
// fanning requests out to their own goroutines the way STREAM does, and
// every bit of bookkeeping after this function matches §4.G's "no
// per-peer timeout (stateless)".
func (l *Listener) Serve(ctx context.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, MaxDatagramBytes)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		body := append([]byte(nil), buf[:n]...)
		l.handle(ctx, conn, addr, body)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.PacketConn, addr net.Addr, body []byte) {
	log := l.logger.With(logging.String("remote_addr", addr.String()))

	id, cmd, err := wirebin.DecodeRequestBody(body)
	if err != nil {
		log.Warn("dgram request decode failed; dropping", logging.Error(err))
		return
	}

	outbox := &datagramOutbox{conn: conn, addr: addr, id: id, bandwidth: l.bandwidth, metrics: l.metrics}

	var value any
	switch c := cmd.(type) {
	case *protocol.Subscribe:
		subErr := l.bus.Subscribe(c.Event, eventbus.SubscriptionID{ClientEndpoint: addr.String(), RequestID: id}, outbox)
		if subErr != nil {
			log.Warn("dgram subscribe failed; dropping", logging.Error(subErr))
			return
		}
		value = l.dispatcher.Uptime()
	case *protocol.Unsubscribe:
		subErr := l.bus.Unsubscribe(c.Event, eventbus.SubscriptionID{ClientEndpoint: addr.String(), RequestID: id})
		if subErr != nil {
			log.Warn("dgram unsubscribe failed; dropping", logging.Error(subErr))
			return
		}
		value = l.dispatcher.Uptime()
	default:
		var dispatchErr error
		value, dispatchErr = l.dispatcher.Dispatch(ctx, cmd)
		if dispatchErr != nil {
			log.Warn("dgram command dispatch failed; dropping", logging.Error(dispatchErr))
			return
		}
	}

	resp, err := wirebin.EncodeResponse(id, cmd.Prefix(), value)
	if err != nil {
		log.Warn("dgram response encode failed; dropping", logging.Error(err))
		return
	}
	if err := outbox.write(resp); err != nil {
		log.Warn("dgram response send failed; dropping", logging.Error(err))
	}
}

// datagramOutbox implements eventbus.Outbox for one DGRAM subscriber,
// identified by the UDP address its Subscribe request arrived from.
type datagramOutbox struct {
	mu        sync.Mutex
	conn      net.PacketConn
	addr      net.Addr
	id        uint32
	bandwidth *networking.BandwidthRegulator
	metrics   *networking.DeliveryMetrics
}

func (o *datagramOutbox) Enqueue(key protocol.EventKey, value any) error {
	body, err := wirebin.EncodeEvent(o.id, key, value)
	if err != nil {
		return err
	}
	if o.bandwidth != nil && !o.bandwidth.Allow(o.addr.String(), len(body)) {
		if o.metrics != nil {
			o.metrics.Observe(o.addr.String(), len(body), map[string]int{key.WireKey(): 1})
		}
		return errors.New("dgram: bandwidth budget exceeded")
	}
	if o.metrics != nil {
		o.metrics.Observe(o.addr.String(), len(body), nil)
	}
	return o.write(body)
}

func (o *datagramOutbox) write(body []byte) error {
	if len(body) > MaxDatagramBytes {
		return roberrors.NewTransportError(roberrors.MessageTooLarge, wirebin.ErrMessageTooLarge)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.conn.WriteTo(body, o.addr)
	return err
}
