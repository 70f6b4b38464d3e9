// Package duplexmsg implements the DUPLEX-MSG transport (§4.G): a
// message-framed full-duplex channel served over a websocket at /ws.
// Each application message is either text-encoded or binary-encoded
// (the codec is chosen per message by its websocket message type), and
// multiplexes (id, Command)/(id, value) pairs the same way STREAM does,
// just without an outer length header — the websocket message boundary
// already supplies one.
package duplexmsg

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	wirebin "github.com/kareszklub/roblibd/internal/codec/binary"
	wiretext "github.com/kareszklub/roblibd/internal/codec/text"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/protocol"
	"github.com/kareszklub/roblibd/internal/transport/common"
)

// Heartbeat timings per §5: "DUPLEX-MSG uses a 5-second/10-second
// heartbeat (ping every 5 s, close if no activity for 10 s)". These are
// the defaults; WithHeartbeat overrides them, mainly so tests can drive
// a dead-peer disconnect without waiting out the real interval.
const (
	pingInterval = 5 * time.Second
	pongWait     = 10 * time.Second
	writeWait    = 10 * time.Second
)

const outboundSendBuffer = 256

// Option customises a Handler at construction time.
type Option func(*Handler)

// WithCheckOrigin overrides the websocket upgrade's origin policy, which
// otherwise permits any origin (matching the teacher's default posture
// before an allowlist is configured).
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Handler) {
		if check != nil {
			h.upgrader.CheckOrigin = check
		}
	}
}

// WithHeartbeat overrides the ping interval and pong-wait deadline used
// to detect an unresponsive peer (§5's 5-second/10-second default).
func WithHeartbeat(ping, pongTimeout time.Duration) Option {
	return func(h *Handler) {
		if ping > 0 {
			h.pingInterval = ping
		}
		if pongTimeout > 0 {
			h.pongWait = pongTimeout
		}
	}
}

// Handler serves the /ws endpoint.
type Handler struct {
	handler      *common.Handler
	logger       *logging.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongWait     time.Duration
}

// New constructs a DUPLEX-MSG handler over the given request handler.
func New(h *common.Handler, logger *logging.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	handler := &Handler{
		handler:      h,
		logger:       logger,
		pingInterval: pingInterval,
		pongWait:     pongWait,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// client disconnects or the passed context (via r.Context()) is done.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connID := r.RemoteAddr
	log := h.logger.With(logging.String("remote_addr", connID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", logging.Error(err))
		return
	}

	outbox := &wsOutbox{conn: conn, ch: make(chan wsFrame, outboundSendBuffer)}

	if err := conn.SetReadDeadline(time.Now().Add(h.pongWait)); err != nil {
		log.Error("failed to set initial read deadline", logging.Error(err))
		_ = conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer func() {
		h.handler.Disconnect(connID)
		outbox.close()
		_ = conn.Close()
	}()

	go h.writeLoop(connCtx, conn, outbox, log)
	h.readLoop(connCtx, conn, connID, outbox, log)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, connID string, outbox *wsOutbox, log *logging.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		messageType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("duplexmsg connection closed by peer")
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Warn("duplexmsg read deadline exceeded", logging.Error(err))
			} else {
				log.Warn("duplexmsg read error", logging.Error(err))
			}
			return
		}

		id, cmd, decErr := decodeRequest(messageType, msg)
		if decErr != nil {
			log.Warn("duplexmsg request decode failed", logging.Error(decErr))
			continue
		}

		value, dispatchErr := h.handler.HandleRequest(ctx, connID, id, cmd, subscriptionOutbox{wsOutbox: outbox, id: id})
		if dispatchErr != nil {
			log.Warn("command dispatch failed", logging.Error(dispatchErr))
			var transportErr *roberrors.TransportError
			if errors.As(dispatchErr, &transportErr) {
				return
			}
			continue
		}

		frame, encErr := encodeResponse(messageType, id, cmd.Prefix(), value)
		if encErr != nil {
			log.Warn("duplexmsg response encode failed", logging.Error(encErr))
			continue
		}
		if err := outbox.send(frame); err != nil {
			log.Warn("duplexmsg response send failed", logging.Error(err))
			return
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, outbox *wsOutbox, log *logging.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-outbox.ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error("failed to set write deadline", logging.Error(err))
				return
			}
			if err := conn.WriteMessage(frame.messageType, frame.payload); err != nil {
				log.Warn("duplexmsg write failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				log.Warn("duplexmsg ping failure", logging.Error(err))
				return
			}
		}
	}
}

// decodeRequest picks the codec by websocket message type, per §4.G's
// "each application message is either text-encoded or binary-encoded".
func decodeRequest(messageType int, msg []byte) (uint32, protocol.Command, error) {
	if messageType == websocket.TextMessage {
		return wiretext.DecodeRequest(string(msg))
	}
	return wirebin.DecodeRequestBody(msg)
}

func encodeResponse(messageType int, id uint32, prefix byte, value any) (wsFrame, error) {
	if messageType == websocket.TextMessage {
		s, err := wiretext.EncodeResponse(id, prefix, value)
		if err != nil {
			return wsFrame{}, err
		}
		return wsFrame{messageType: websocket.TextMessage, payload: []byte(s)}, nil
	}
	body, err := wirebin.EncodeResponse(id, prefix, value)
	if err != nil {
		return wsFrame{}, err
	}
	return wsFrame{messageType: websocket.BinaryMessage, payload: body}, nil
}

type wsFrame struct {
	messageType int
	payload     []byte
}

// wsOutbox implements eventbus.Outbox for one websocket connection. Event
// deliveries are always binary-encoded: there is no request message to
// take a codec choice from, and the binary codec is the cheaper of the
// two to produce on every emit.
type wsOutbox struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	ch     chan wsFrame
	closed bool
}

func (o *wsOutbox) Enqueue(key protocol.EventKey, value any) error {
	body, err := wirebin.EncodeEvent(0, key, value)
	if err != nil {
		return err
	}
	return o.send(wsFrame{messageType: websocket.BinaryMessage, payload: body})
}

func (o *wsOutbox) send(frame wsFrame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("duplexmsg: connection closed")
	}
	select {
	case o.ch <- frame:
		return nil
	default:
		return errors.New("duplexmsg: outbound buffer full")
	}
}

func (o *wsOutbox) close() {
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
	*wsOutbox
	id uint32
}

func (o subscriptionOutbox) Enqueue(key protocol.EventKey, value any) error {
	body, err := wirebin.EncodeEvent(o.id, key, value)
	if err != nil {
		return err
	}
	return o.send(wsFrame{messageType: websocket.BinaryMessage, payload: body})
}
