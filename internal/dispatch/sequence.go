package dispatch

import (
	"fmt"
	"sync"

	roberrors "github.com/kareszklub/roblibd/internal/errors"
)

// SequenceGate enforces the strictly-increasing per-connection sequence
// id required by spec.md §8.7: a STREAM or DUPLEX-MSG connection that
// ever sends a non-increasing id has desynchronised its own framing and
// the connection is no longer trustworthy, so a violation ends the
// session: it is reported as a TransportError rather than a value the
// caller might silently ignore.
type SequenceGate struct {
	mu      sync.Mutex
	clients map[string]uint64
}

// NewSequenceGate constructs an empty gate, one per listener.
func NewSequenceGate() *SequenceGate {
	return &SequenceGate{clients: make(map[string]uint64)}
}

// Check validates that id is strictly greater than the last id seen for
// connID. The first id observed for a connection always passes.
func (g *SequenceGate) Check(connID string, id uint64) error {
	if g == nil || connID == "" {
		return nil
	}
	//1.- Lock for the whole read-modify-write so concurrent frames on the
	// same connection cannot race past each other.
	g.mu.Lock()
	defer g.mu.Unlock()

	last, seen := g.clients[connID]
	if !seen {
		//2.- First frame for this connection always passes.
		g.clients[connID] = id
		return nil
	}
	if id <= last {
		return roberrors.NewTransportError(
			roberrors.FramingError,
			fmt.Errorf("sequence id %d did not increase past %d", id, last),
		)
	}
	//3.- Promote the frame as the latest accepted id.
	g.clients[connID] = id
	return nil
}

// Forget clears sequencing state for a closed connection.
func (g *SequenceGate) Forget(connID string) {
	if g == nil || connID == "" {
		return
	}
	g.mu.Lock()
	delete(g.clients, connID)
	g.mu.Unlock()
}
