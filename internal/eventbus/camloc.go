package eventbus

import (
	"sync"

	"github.com/kareszklub/roblibd/internal/backend"
	"github.com/kareszklub/roblibd/internal/protocol"
)

// camlocSource fronts the LocationService's own subscriber interface
// (§4.F "Camloc*: the LocationService's own subscriber interface is
// used directly"). The four Camloc* event keys share exactly one
// underlying subscription, so activation is reference-counted: the
// first of the four subscribers to appear opens it, the last of the
// four to leave closes it.
type camlocSource struct {
	mu       sync.Mutex
	location backend.LocationService
	emit     func(key protocol.EventKey, value any)
	refs     int
	cancel   func()
}

func newCamlocSource(location backend.LocationService, emit func(protocol.EventKey, any)) *camlocSource {
	return &camlocSource{location: location, emit: emit}
}

func (c *camlocSource) activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs++
	if c.refs > 1 || c.location == nil {
		return nil
	}
	cancel, err := c.location.Subscribe(backend.LocationEventHandler{
		OnConnect:    func() { c.emit(protocol.CamlocConnectKey{}, struct{}{}) },
		OnDisconnect: func() { c.emit(protocol.CamlocDisconnectKey{}, struct{}{}) },
		OnPosition:   func(pos protocol.Position) { c.emit(protocol.CamlocPositionKey{}, pos) },
		OnInfo:       func(message string) { c.emit(protocol.CamlocInfoUpdateKey{}, message) },
	})
	if err != nil {
		c.refs--
		return err
	}
	c.cancel = cancel
	return nil
}

// deactivateOne drops one reference, closing the subscription once the
// last of the four Camloc* event keys has no subscribers left.
func (c *camlocSource) deactivateOne() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		return
	}
	c.refs--
	if c.refs == 0 {
		c.closeLocked()
	}
}

// deactivate force-closes the subscription regardless of refcount,
// used during Bus.Stop.
func (c *camlocSource) deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs = 0
	c.closeLocked()
}

func (c *camlocSource) closeLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
