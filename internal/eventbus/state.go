package eventbus

import (
	"sync"

	"github.com/kareszklub/roblibd/internal/protocol"
)

// state is the bus's subscriber bookkeeping: `Map<event_key -> List<subscription_id>>`
// from §4.F, keyed by the event key's wire identity since two distinct
// UltraSensor intervals are two distinct subscription buckets.
//
// Grounded on the per-subscriber map-of-maps idiom the teacher used for
// ordered event delivery (internal/events/stream.go's subscribers map,
// since deleted — see DESIGN.md), stripped of its ack/replay bookkeeping
// since the bus is live-push only.
type state struct {
	mu   sync.Mutex
	subs map[string]subscriberSet
	keys map[string]protocol.EventKey
}

func newState() *state {
	return &state{
		subs: make(map[string]subscriberSet),
		keys: make(map[string]protocol.EventKey),
	}
}

func (s *state) lock()   { s.mu.Lock() }
func (s *state) unlock() { s.mu.Unlock() }

// add registers id under wireKey. Returns (first, added): first is true
// if this was the key's first subscriber (upstream must activate);
// added is false if id was already present (AlreadySubscribed).
func (s *state) add(wireKey string, key protocol.EventKey, id SubscriptionID, outbox Outbox) (first, added bool) {
	s.lock()
	defer s.unlock()

	set, ok := s.subs[wireKey]
	if !ok {
		set = make(subscriberSet)
		s.subs[wireKey] = set
		s.keys[wireKey] = key
	}
	if _, exists := set[id]; exists {
		return false, false
	}
	first = len(set) == 0
	set[id] = outbox
	return first, true
}

// remove drops the subscription that id's client endpoint holds on
// wireKey; the request id is not compared, since an Unsubscribe arrives
// under its own id. Returns (last, removed): last is true if the set
// emptied as a result (upstream must deactivate).
func (s *state) remove(wireKey string, id SubscriptionID) (last, removed bool) {
	s.lock()
	defer s.unlock()

	set, ok := s.subs[wireKey]
	if !ok {
		return false, false
	}
	for existing := range set {
		if existing.ClientEndpoint != id.ClientEndpoint {
			continue
		}
		delete(set, existing)
		if len(set) == 0 {
			delete(s.subs, wireKey)
			delete(s.keys, wireKey)
			return true, true
		}
		return false, true
	}
	return false, false
}

// removeClient drops every subscription belonging to endpoint across
// all event keys, returning the keys whose set emptied as a result.
func (s *state) removeClient(endpoint string) []protocol.EventKey {
	s.lock()
	defer s.unlock()

	var emptied []protocol.EventKey
	for wireKey, set := range s.subs {
		for id := range set {
			if id.ClientEndpoint == endpoint {
				delete(set, id)
			}
		}
		if len(set) == 0 {
			emptied = append(emptied, s.keys[wireKey])
			delete(s.subs, wireKey)
			delete(s.keys, wireKey)
		}
	}
	return emptied
}

// count returns the total number of live subscriptions across every
// event key, for Bus.Stats.
func (s *state) count() int {
	s.lock()
	defer s.unlock()

	total := 0
	for _, set := range s.subs {
		total += len(set)
	}
	return total
}

// snapshot returns a shallow copy of wireKey's current subscriber set,
// so Emit can deliver without holding the bus lock across Outbox calls.
func (s *state) snapshot(wireKey string) subscriberSet {
	s.lock()
	defer s.unlock()

	set, ok := s.subs[wireKey]
	if !ok || len(set) == 0 {
		return nil
	}
	out := make(subscriberSet, len(set))
	for id, outbox := range set {
		out[id] = outbox
	}
	return out
}
