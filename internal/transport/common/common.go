// Package common holds the request-handling glue shared by the
// multiplexing transports (STREAM, DUPLEX-MSG): id-monotonicity
// enforcement, Subscribe/Unsubscribe routing to the event bus, and
// falling through to the dispatcher for every other command. DGRAM has
// no ids to enforce monotonicity on and REQ-RESP has no subscriptions
// at all, so neither shares this path — see their own packages.
package common

import (
	"context"

	"github.com/kareszklub/roblibd/internal/dispatch"
	"github.com/kareszklub/roblibd/internal/eventbus"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/protocol"
)

// Handler bundles the collaborators every multiplexed connection needs:
// the command dispatcher, the event bus, and a per-listener sequence
// gate enforcing spec.md §8.7 ("a client's consecutive command ids
// strictly increase").
type Handler struct {
	Dispatcher *dispatch.Dispatcher
	Bus        *eventbus.Bus
	Sequence   *dispatch.SequenceGate
}

// HandleRequest processes one decoded (id, Command) pair for connID,
// returning the value to serialize as the response (or an error). It
// subsumes §4.E's Subscribe/Unsubscribe special case: those two are not
// given to the dispatcher (they have no backend call of their own) but
// routed straight to the bus, acked with the server uptime like any
// other command.
func (h *Handler) HandleRequest(ctx context.Context, connID string, id uint32, cmd protocol.Command, outbox eventbus.Outbox) (any, error) {
	if err := h.Sequence.Check(connID, uint64(id)); err != nil {
		return nil, err
	}

	switch c := cmd.(type) {
	case *protocol.Subscribe:
		if err := h.Bus.Subscribe(c.Event, eventbus.SubscriptionID{ClientEndpoint: connID, RequestID: id}, outbox); err != nil {
			return nil, err
		}
		return h.Dispatcher.Uptime(), nil
	case *protocol.Unsubscribe:
		if err := h.Bus.Unsubscribe(c.Event, eventbus.SubscriptionID{ClientEndpoint: connID, RequestID: id}); err != nil {
			return nil, err
		}
		return h.Dispatcher.Uptime(), nil
	default:
		return h.Dispatcher.Dispatch(ctx, cmd)
	}
}

// Disconnect releases every subscription and sequencing state owned by
// connID, per §4.F requirement 3 and §9's "explicit message on the bus
// command channel, not a timer-driven reaper".
func (h *Handler) Disconnect(connID string) {
	h.Bus.ClientDisconnect(connID)
	h.Sequence.Forget(connID)
}

// RejectSubscription is used by REQ-RESP, which has no subscriber
// concept at all (§4.G "Subscriptions are not supported on this
// transport").
func RejectSubscription() error {
	return roberrors.NewSubscriptionError(roberrors.UnsupportedOnTransport)
}
