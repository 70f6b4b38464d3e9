// Package stream implements the STREAM transport (§4.G): a
// connection-oriented, reliable, ordered TCP transport using the
// binary codec's length-prefixed framing. Each connection is served by
// a reader goroutine (one decode-dispatch-respond cycle per frame) and
// a writer goroutine draining a single outbound channel shared by
// responses and event deliveries — the same split the teacher uses for
// its websocket handler (main.go's serveWS: a buffered send channel
// drained by a dedicated writer goroutine), adapted from
// message-framed-over-websocket to length-prefixed-over-TCP.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	wirebin "github.com/kareszklub/roblibd/internal/codec/binary"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/protocol"
	"github.com/kareszklub/roblibd/internal/transport/common"
)

// livenessTimeout is the per-connection read deadline described in §4.G
// ("Per-connection timeout on read of 5 s triggers a liveness probe").
const livenessTimeout = 5 * time.Second

// outboundSendBuffer caps the per-connection outbound channel; a full
// channel is treated as a dead outbox per §4.F ("a full/dead outbox is
// a non-fatal logged error; the subscription stays").
const outboundSendBuffer = 256

// Listener serves STREAM connections on a TCP address.
type Listener struct {
	handler *common.Handler
	logger  *logging.Logger
}

// New constructs a STREAM listener over the given request handler.
func New(handler *common.Handler, logger *logging.Logger) *Listener {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Listener{handler: handler, logger: logger}
}

// Serve accepts connections on ln until ctx is cancelled, per §5's
// abort-token semantics: new work is refused (Accept stops), in-flight
// connections finish their current frame, and sockets close.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go l.serveConn(ctx, conn)
	}
}

type connOutbox struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (o *connOutbox) Enqueue(key protocol.EventKey, value any) error {
	body, err := wirebin.EncodeEvent(0, key, value)
	if err != nil {
		return err
	}
	return o.send(body)
}

func (o *connOutbox) send(body []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	frame := append(header, body...)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("stream: connection closed")
	}
	select {
	case o.ch <- frame:
		return nil
	default:
		return errors.New("stream: outbound buffer full")
	}
}

func (o *connOutbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// subscriptionOutbox tags event deliveries with the id of the request
// that established the subscription, sharing the connection's outbox.
type subscriptionOutbox struct {
	*connOutbox
	id uint32
}

func (o subscriptionOutbox) Enqueue(key protocol.EventKey, value any) error {
	body, err := wirebin.EncodeEvent(o.id, key, value)
	if err != nil {
		return err
	}
	return o.send(body)
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	connID := conn.RemoteAddr().String()
	log := l.logger.With(logging.String("remote_addr", connID))
	outbox := &connOutbox{ch: make(chan []byte, outboundSendBuffer)}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		l.handler.Disconnect(connID)
		outbox.close()
		_ = conn.Close()
	}()

	go l.writeLoop(connCtx, conn, outbox, log)
	l.readLoop(connCtx, conn, connID, outbox, log)
}

func (l *Listener) readLoop(ctx context.Context, conn net.Conn, connID string, outbox *connOutbox, log *logging.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(livenessTimeout))

		id, cmd, err := wirebin.DecodeRequestFrame(conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				//1.- A read timeout is the liveness probe: if the peer is
				// truly gone the next read attempt will fail outright.
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Debug("stream connection closed by peer")
			} else {
				log.Warn("stream frame decode failed", logging.Error(err))
			}
			return
		}

		value, dispatchErr := l.handler.HandleRequest(ctx, connID, id, cmd, subscriptionOutbox{connOutbox: outbox, id: id})
		if dispatchErr != nil {
			log.Warn("command dispatch failed", logging.Error(dispatchErr))
			var transportErr *roberrors.TransportError
			if errors.As(dispatchErr, &transportErr) {
				return
			}
			continue
		}

		body, encErr := wirebin.EncodeResponse(id, cmd.Prefix(), value)
		if encErr != nil {
			log.Warn("response encode failed", logging.Error(encErr))
			continue
		}
		if err := outbox.send(body); err != nil {
			log.Warn("response send failed", logging.Error(err))
			return
		}
	}
}

func (l *Listener) writeLoop(ctx context.Context, conn net.Conn, outbox *connOutbox, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-outbox.ch:
			if !ok {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				log.Warn("stream write failed", logging.Error(err))
				return
			}
		}
	}
}
