// Package client implements the Client Runtime (§4.H): the caller-side
// mirror of the STREAM transport. For each request it assigns the next
// id from a per-connection monotonic counter (matching §8.7's
// strictly-increasing requirement from the other end), correlates the
// eventual response by that id, and exposes subscriptions as a channel
// of decoded payload values that closes on Unsubscribe or disconnect.
package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	wirebin "github.com/kareszklub/roblibd/internal/codec/binary"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/protocol"
)

// ErrClosed is returned by Send/Subscribe once the client has
// disconnected. A call still outstanding at that moment fails with the
// read error that ended the connection instead.
var ErrClosed = errors.New("client: connection closed")

type pendingCall struct {
	prefix byte
	result chan callResult
}

type callResult struct {
	value any
	err   error
}

// Client is a STREAM-transport client runtime: one TCP connection, one
// reader goroutine demultiplexing responses and event deliveries by id.
type Client struct {
	conn   net.Conn
	logger *logging.Logger

	mu          sync.Mutex
	nextID      uint32
	pending     map[uint32]*pendingCall
	subscribers map[uint32]chan any
	closed      bool
	closeErr    error
}

// Dial connects to a STREAM listener at addr and starts its reader loop.
func Dial(addr string, logger *logging.Logger) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newClient(conn, logger), nil
}

func newClient(conn net.Conn, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	c := &Client{
		conn:        conn,
		logger:      logger,
		nextID:      1,
		pending:     make(map[uint32]*pendingCall),
		subscribers: make(map[uint32]chan any),
	}
	go c.readLoop()
	return c
}

// Close tears down the connection; every pending call fails with the
// reader loop's terminating error, every subscription channel is closed,
// and later calls return ErrClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send submits cmd and blocks until its correlated response arrives, ctx
// is done, or the connection closes.
func (c *Client) Send(ctx context.Context, cmd protocol.Command) (any, error) {
	id, call, err := c.register(cmd.Prefix())
	if err != nil {
		return nil, err
	}

	frame, err := wirebin.EncodeRequestFrame(id, cmd)
	if err != nil {
		c.forget(id)
		return nil, err
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case res := <-call.result:
		return res.value, res.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Subscribe sends a Subscribe command for key and returns a channel of
// decoded payload values, delivered in emission order (§5 "Within a
// single subscription, event values are delivered in emission order").
// The channel closes when Unsubscribe succeeds or the connection closes.
func (c *Client) Subscribe(ctx context.Context, key protocol.EventKey) (uint32, <-chan any, error) {
	id, call, err := c.register(protocol.PrefixSubscribe)
	if err != nil {
		return 0, nil, err
	}

	frame, err := wirebin.EncodeRequestFrame(id, &protocol.Subscribe{Event: key})
	if err != nil {
		c.forget(id)
		return 0, nil, err
	}

	ch := make(chan any, 16)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.forget(id)
		return 0, nil, ErrClosed
	}
	c.subscribers[id] = ch
	c.mu.Unlock()

	if _, err := c.conn.Write(frame); err != nil {
		c.dropSubscriber(id)
		c.forget(id)
		return 0, nil, err
	}

	select {
	case res := <-call.result:
		if res.err != nil {
			c.dropSubscriber(id)
			return 0, nil, res.err
		}
		return id, ch, nil
	case <-ctx.Done():
		c.forget(id)
		c.dropSubscriber(id)
		return 0, nil, ctx.Err()
	}
}

// Unsubscribe cancels the subscription established under id.
func (c *Client) Unsubscribe(ctx context.Context, id uint32, key protocol.EventKey) error {
	_, err := c.Send(ctx, &protocol.Unsubscribe{Event: key})
	c.dropSubscriber(id)
	return err
}

// MeasureLatency sends GetUptime and returns the round-trip duration
// (§4.H "measure_latency() ... sends GetUptime, measures round-trip").
func (c *Client) MeasureLatency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.Send(ctx, &protocol.GetUptime{}); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *Client) register(prefix byte) (uint32, *pendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrClosed
	}
	id := c.nextID
	c.nextID++
	call := &pendingCall{prefix: prefix, result: make(chan callResult, 1)}
	c.pending[id] = call
	return id, call, nil
}

func (c *Client) forget(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) dropSubscriber(id uint32) {
	c.mu.Lock()
	ch, ok := c.subscribers[id]
	delete(c.subscribers, id)
	c.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (c *Client) readLoop() {
	defer c.teardown()
	for {
		id, rest, err := readFrame(c.conn)
		if err != nil {
			c.closeErr = err
			return
		}
		c.dispatch(id, rest)
	}
}

// readFrame reads one length-prefixed frame off conn and splits off its
// leading id, handing the remaining body back undecoded — the caller
// needs to know which of its two tables (pending calls keyed by request
// id, each remembering its prefix, or live subscriptions) the id belongs
// to before it can pick a decoder.
func readFrame(conn net.Conn) (uint32, []byte, error) {
	header := wirebin.NewReader(conn)
	bodyLen, err := header.ReadU32()
	if err != nil {
		return 0, nil, err
	}
	full := make([]byte, bodyLen)
	if err := readFull(conn, full); err != nil {
		return 0, nil, err
	}
	id, err := wirebin.NewReaderBytes(full[:4]).ReadU32()
	if err != nil {
		return 0, nil, err
	}
	return id, full[4:], nil
}

func readFull(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) dispatch(id uint32, rest []byte) {
	c.mu.Lock()
	call, isResponse := c.pending[id]
	sub, isSubscription := c.subscribers[id]
	if isResponse {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	switch {
	case isResponse:
		value, err := wirebin.DecodeReturn(wirebin.NewReaderBytes(rest), call.prefix)
		call.result <- callResult{value: value, err: err}
	case isSubscription:
		_, value, err := wirebin.DecodeEventValue(wirebin.NewReaderBytes(rest))
		if err != nil {
			c.logger.Warn("event decode failed", logging.Error(err))
			return
		}
		select {
		case sub <- value:
		default:
			c.logger.Warn("subscriber channel full; dropping event", logging.Int("id", int(id)))
		}
	default:
		c.logger.Debug("frame for unknown id; ignoring", logging.Int("id", int(id)))
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	c.closed = true
	err := c.closeErr
	if err == nil {
		err = ErrClosed
	}
	for id, call := range c.pending {
		call.result <- callResult{err: err}
		delete(c.pending, id)
	}
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.mu.Unlock()
}
