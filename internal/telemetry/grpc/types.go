package grpc

import "context"

// MetricsSnapshot is one point-in-time readout of server-side counters,
// JSON-encoded before compression for transport (§4.L: "exposing
// dispatch/bus metrics to operators").
type MetricsSnapshot struct {
	UptimeSeconds    float64          `json:"uptime_seconds"`
	BytesPerClient   map[string]int64 `json:"bytes_per_client,omitempty"`
	DropCounts       map[string]int64 `json:"drop_counts,omitempty"`
	EDFLoopAverageMs float64          `json:"edf_loop_average_ms"`
	EDFLoopMaxMs     float64          `json:"edf_loop_max_ms"`
}

// MetricsSource exposes the counters StreamMetrics periodically polls.
type MetricsSource interface {
	Snapshot() MetricsSnapshot
}

// EventTap exposes the event bus's emitted values as an external,
// best-effort tap: frames arriving faster than a subscriber drains are
// dropped rather than buffered without bound (§4.L: "best-effort
// compressed tap of emitted events").
type EventTap interface {
	TapEvents(ctx context.Context) (<-chan []byte, func(), error)
}
