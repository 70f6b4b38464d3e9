package networking

import "sync"

// DeliveryMetrics tracks per-client payload size and per-event-key drop
// counters for the event bus's subscriber fan-out. It mirrors the
// teacher's world-snapshot publication metrics, with the tier key
// (`pb.InterestTier`, one per spatial-interest bucket in a tiered
// multiplayer world) replaced by an event's `protocol.EventKey.WireKey()`
// — the closest analog in a single-robot protocol, since each event type
// plays the role a tier used to: a bucket of deliveries that can be
// individually throttled and independently observed.
type DeliveryMetrics struct {
	mu    sync.RWMutex
	bytes map[string]int64
	drops map[string]int64
}

// NewDeliveryMetrics constructs an empty metrics tracker.
func NewDeliveryMetrics() *DeliveryMetrics {
	return &DeliveryMetrics{
		bytes: make(map[string]int64),
		drops: make(map[string]int64),
	}
}

// Observe records the encoded payload size for a client and accumulates
// per-event-key drop counts (keys that exceeded the bandwidth regulator's
// budget, see BandwidthRegulator in bandwidth.go).
func (m *DeliveryMetrics) Observe(clientID string, payloadBytes int, dropped map[string]int) {
	if m == nil {
		return
	}
	//1.- Promote the payload size to int64 for consistent accumulation.
	size := int64(payloadBytes)
	if size < 0 {
		size = 0
	}
	//2.- Update the gauges and counters while holding the mutex.
	m.mu.Lock()
	if clientID != "" {
		m.bytes[clientID] = size
	}
	for wireKey, count := range dropped {
		if count <= 0 {
			continue
		}
		m.drops[wireKey] += int64(count)
	}
	m.mu.Unlock()
}

// ForgetClient removes the tracked gauges for a disconnected client.
func (m *DeliveryMetrics) ForgetClient(clientID string) {
	if m == nil || clientID == "" {
		return
	}
	//1.- Delete the client entry to avoid exporting stale gauges.
	m.mu.Lock()
	delete(m.bytes, clientID)
	m.mu.Unlock()
}

// BytesPerClient returns a copy of the latest encoded payload size per client.
func (m *DeliveryMetrics) BytesPerClient() map[string]int64 {
	if m == nil {
		return nil
	}
	//1.- Copy the gauge map to shield callers from concurrent mutation.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.bytes) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m.bytes))
	for clientID, size := range m.bytes {
		out[clientID] = size
	}
	return out
}

// DropCounts returns the cumulative number of dropped deliveries per event key.
func (m *DeliveryMetrics) DropCounts() map[string]int64 {
	if m == nil {
		return nil
	}
	//1.- Snapshot the drop counters so metrics handlers can iterate safely.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.drops) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m.drops))
	for wireKey, count := range m.drops {
		out[wireKey] = count
	}
	return out
}
