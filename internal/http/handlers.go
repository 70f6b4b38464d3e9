package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/networking"
)

// ReadinessProvider exposes server state required for readiness checks.
// dispatch.Dispatcher satisfies this directly (its Uptime method is the
// same one GetUptime/Subscribe/Unsubscribe use, §4.E/§4.F).
type ReadinessProvider interface {
	Uptime() time.Duration
}

// StatsFunc returns cumulative dispatch and subscription counters for
// the /api/stats JSON snapshot.
type StatsFunc func() Stats

// Stats is the JSON body served by /api/stats.
type Stats struct {
	CommandsDispatched  int64   `json:"commands_dispatched"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	EDFLoopAverageMs    float64 `json:"edf_loop_average_ms"`
	EDFLoopMaxMs        float64 `json:"edf_loop_max_ms"`
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	// BackendsPresent reports, per named backend ("gpio", "roland",
	// "location"), whether a concrete implementation is attached; absent
	// backends don't fail readiness (§4.D: "absent backends cause
	// relevant commands to return benign defaults") but are surfaced for
	// operator visibility.
	BackendsPresent map[string]bool
	Stats           StatsFunc
	Metrics         *networking.DeliveryMetrics
	Bandwidth       *networking.BandwidthRegulator
	AdminToken      string
	RateLimiter     RateLimiter
	TimeSource      func() time.Time
}

// HandlerSet bundles the server's HTTP ops handlers: liveness,
// readiness, Prometheus-text metrics, and a JSON stats snapshot,
// grounded on the teacher's internal/http.HandlerSet (§4.K).
type HandlerSet struct {
	logger          *logging.Logger
	readiness       ReadinessProvider
	backendsPresent map[string]bool
	stats           StatsFunc
	metrics         *networking.DeliveryMetrics
	bandwidth       *networking.BandwidthRegulator
	adminToken      string
	rateLimiter     RateLimiter
	now             func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:          logger,
		readiness:       opts.Readiness,
		backendsPresent: opts.BackendsPresent,
		stats:           opts.Stats,
		metrics:         opts.Metrics,
		bandwidth:       opts.Bandwidth,
		adminToken:      strings.TrimSpace(opts.AdminToken),
		rateLimiter:     opts.RateLimiter,
		now:             now,
	}
}

// Register attaches all ops handlers to the provided mux. REQ-RESP's
// POST /cmd handler (internal/transport/reqresp) and DUPLEX-MSG's /ws
// handler (internal/transport/duplexmsg) are registered separately by
// the composition root onto the same mux (§4.K).
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/api/stats", h.StatsHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports server readiness: uptime and which backends
// are attached. A server with every backend absent is still "ok" — §4.D
// makes absent backends a benign-default condition, not a failure one.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string          `json:"status"`
		UptimeSeconds float64         `json:"uptime_seconds"`
		Backends      map[string]bool `json:"backends,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "ok", Backends: h.backendsPresent}
		if h.readiness != nil {
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus-compatible text metrics, hand-rolled
// without a client library, matching the teacher's own MetricsHandler.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := 0.0
		if h.readiness != nil {
			uptime = h.readiness.Uptime().Seconds()
		}
		fmt.Fprintf(w, "# HELP roblibd_uptime_seconds Server uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE roblibd_uptime_seconds gauge\n")
		fmt.Fprintf(w, "roblibd_uptime_seconds %.0f\n", uptime)

		if h.stats != nil {
			stats := h.stats()
			fmt.Fprintf(w, "# HELP roblibd_commands_dispatched_total Total commands dispatched.\n")
			fmt.Fprintf(w, "# TYPE roblibd_commands_dispatched_total counter\n")
			fmt.Fprintf(w, "roblibd_commands_dispatched_total %d\n", stats.CommandsDispatched)

			fmt.Fprintf(w, "# HELP roblibd_active_subscriptions Current active event subscriptions.\n")
			fmt.Fprintf(w, "# TYPE roblibd_active_subscriptions gauge\n")
			fmt.Fprintf(w, "roblibd_active_subscriptions %d\n", stats.ActiveSubscriptions)
		}

		if h.metrics != nil {
			bytes := h.metrics.BytesPerClient()
			fmt.Fprintf(w, "# HELP roblibd_delivery_bytes_per_client Last delivered event payload size per client in bytes.\n")
			fmt.Fprintf(w, "# TYPE roblibd_delivery_bytes_per_client gauge\n")
			for clientID, size := range bytes {
				fmt.Fprintf(w, "roblibd_delivery_bytes_per_client{client=%q} %d\n", clientID, size)
			}
			drops := h.metrics.DropCounts()
			fmt.Fprintf(w, "# HELP roblibd_delivery_dropped_total Total dropped event deliveries per event key.\n")
			fmt.Fprintf(w, "# TYPE roblibd_delivery_dropped_total counter\n")
			for eventKey, count := range drops {
				fmt.Fprintf(w, "roblibd_delivery_dropped_total{event=%q} %d\n", eventKey, count)
			}
		}

		if h.bandwidth != nil {
			usage := h.bandwidth.SnapshotUsage()
			if len(usage) > 0 {
				fmt.Fprintf(w, "# HELP roblibd_bandwidth_bytes_per_second Observed outbound bandwidth per client in bytes per second.\n")
				fmt.Fprintf(w, "# TYPE roblibd_bandwidth_bytes_per_second gauge\n")
				for clientID, sample := range usage {
					fmt.Fprintf(w, "roblibd_bandwidth_bytes_per_second{client=%q} %.2f\n", clientID, sample.BytesPerSecond)
				}
				fmt.Fprintf(w, "# HELP roblibd_bandwidth_denied_total Total throttled deliveries per client.\n")
				fmt.Fprintf(w, "# TYPE roblibd_bandwidth_denied_total counter\n")
				for clientID, sample := range usage {
					fmt.Fprintf(w, "roblibd_bandwidth_denied_total{client=%q} %d\n", clientID, sample.DeniedDeliveries)
				}
			}
		}
	}
}

// StatsHandler serves a JSON snapshot of dispatch/bus counters (§4.K
// "/api/stats (JSON snapshot of bus/dispatch counters)"), admin-token-gated
// the same way the teacher gates its own administrative routes.
func (h *HandlerSet) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken != "" && !h.authorise(r) {
			h.logger.Warn("stats request denied: unauthorized", logging.String("remote_addr", r.RemoteAddr))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var stats Stats
		if h.stats != nil {
			stats = h.stats()
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
