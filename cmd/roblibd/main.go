// Command roblibd is the server's composition root: it loads
// configuration, builds the shared backend/dispatcher/event-bus
// collaborators, and starts the four command/event transports (§4.G)
// alongside the ops HTTP surface (§4.K) and the telemetry gRPC channel
// (§4.L) described by the shared runtime those transports sit on top
// of. No concrete hardware backend is wired in here — see
// internal/backend's doc comment — so the server always starts in a
// "benign defaults" posture (§4.D) until a deployment supplies its own
// main that fills in backend.Set.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/kareszklub/roblibd/internal/backend"
	configpkg "github.com/kareszklub/roblibd/internal/config"
	"github.com/kareszklub/roblibd/internal/dispatch"
	"github.com/kareszklub/roblibd/internal/eventbus"
	httpapi "github.com/kareszklub/roblibd/internal/http"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/networking"
	tgrpc "github.com/kareszklub/roblibd/internal/telemetry/grpc"
	"github.com/kareszklub/roblibd/internal/transport/common"
	"github.com/kareszklub/roblibd/internal/transport/dgram"
	"github.com/kareszklub/roblibd/internal/transport/duplexmsg"
	"github.com/kareszklub/roblibd/internal/transport/reqresp"
	"github.com/kareszklub/roblibd/internal/transport/stream"
)

// localHosts is always treated as an allowed websocket origin for dev
// workflows, regardless of the configured allowlist.
var localHosts = map[string]struct{}{
	"127.0.0.1": {},
	"localhost": {},
	"::1":       {},
}

func main() {
	startedAt := time.Now()

	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No concrete hardware driver is compiled into this binary (§1 "out
	// of scope"); every backend field is left nil, so the dispatcher and
	// event bus fall back to the benign defaults mandated by §4.D.
	backends := backend.Set{}
	backendsPresent := map[string]bool{
		"gpio":     backends.Gpio != nil,
		"roland":   backends.Roland != nil,
		"location": backends.Location != nil,
	}

	dispatcher := dispatch.New(startedAt, backends, logger, stop)

	metrics := networking.NewDeliveryMetrics()
	bandwidth := networking.NewBandwidthRegulator(networking.DefaultBandwidthLimitBytesPerSecond, nil)

	bus := eventbus.New(backends, logger, metrics, cfg.EDFMaxWait)
	defer bus.Stop()

	sequence := dispatch.NewSequenceGate()
	handler := &common.Handler{Dispatcher: dispatcher, Bus: bus, Sequence: sequence}

	if len(cfg.AllowedOrigins) > 0 {
		logger.Info("allowing websocket origins", logging.Strings("origins", cfg.AllowedOrigins))
	} else {
		logger.Info("no allowed origins configured; permitting only local development origins")
	}

	var wg errgroup
	wg.goCtx(ctx, func(ctx context.Context) error {
		return serveStream(ctx, cfg, handler, logger)
	})
	wg.goCtx(ctx, func(ctx context.Context) error {
		return serveDgram(ctx, cfg, dispatcher, bus, bandwidth, metrics, logger)
	})
	wg.goCtx(ctx, func(ctx context.Context) error {
		return serveHTTP(ctx, cfg, dispatcher, bus, handler, metrics, bandwidth, backendsPresent, logger)
	})
	wg.goCtx(ctx, func(ctx context.Context) error {
		return serveTelemetry(ctx, cfg, dispatcher, bus, metrics, logger)
	})

	if err := wg.wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server terminated", logging.Error(err))
	}
	logger.Info("shutdown complete")
}

// errgroup is a minimal stand-in for golang.org/x/sync/errgroup: run a
// fixed, known set of long-lived servers and report the first error any
// of them returns once the shared context is cancelled. The teacher's
// own main wired each long-running server with its own bespoke
// goroutine + defer cleanup; this collects the same shape for four
// servers instead of one so shutdown logging has a single join point.
type errgroup struct {
	errCh   chan error
	started int
}

func (g *errgroup) goCtx(ctx context.Context, fn func(context.Context) error) {
	if g.errCh == nil {
		g.errCh = make(chan error, 8)
	}
	g.started++
	go func() {
		g.errCh <- fn(ctx)
	}()
}

func (g *errgroup) wait() error {
	var first error
	for i := 0; i < g.started; i++ {
		if err := <-g.errCh; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func serveStream(ctx context.Context, cfg *configpkg.Config, handler *common.Handler, logger *logging.Logger) error {
	log := logger.With(logging.String("component", "stream"))
	ln, err := net.Listen("tcp", cfg.StreamAddr)
	if err != nil {
		return fmt.Errorf("stream listen: %w", err)
	}
	log.Info("STREAM transport listening", logging.String("address", listenerURL(cfg.StreamAddr, false)))
	listener := stream.New(handler, log)
	if err := listener.Serve(ctx, ln); err != nil {
		return fmt.Errorf("stream serve: %w", err)
	}
	return nil
}

func serveDgram(ctx context.Context, cfg *configpkg.Config, dispatcher *dispatch.Dispatcher, bus *eventbus.Bus, bandwidth *networking.BandwidthRegulator, metrics *networking.DeliveryMetrics, logger *logging.Logger) error {
	log := logger.With(logging.String("component", "dgram"))
	conn, err := net.ListenPacket("udp", cfg.DgramAddr)
	if err != nil {
		return fmt.Errorf("dgram listen: %w", err)
	}
	log.Info("DGRAM transport listening", logging.String("address", listenerURL(cfg.DgramAddr, false)))
	listener := dgram.New(dispatcher, bus, log, dgram.WithBandwidth(bandwidth, metrics))
	if err := listener.Serve(ctx, conn); err != nil {
		return fmt.Errorf("dgram serve: %w", err)
	}
	return nil
}

func serveHTTP(
	ctx context.Context,
	cfg *configpkg.Config,
	dispatcher *dispatch.Dispatcher,
	bus *eventbus.Bus,
	handler *common.Handler,
	metrics *networking.DeliveryMetrics,
	bandwidth *networking.BandwidthRegulator,
	backendsPresent map[string]bool,
	logger *logging.Logger,
) error {
	log := logger.With(logging.String("component", "http"))

	originLogger := logger.With(logging.String("component", "origin-check"))
	checkOrigin := buildOriginChecker(originLogger, cfg.AllowedOrigins)

	mux := http.NewServeMux()
	mux.Handle("/ws", duplexmsg.New(handler, log, duplexmsg.WithCheckOrigin(checkOrigin)))
	mux.Handle("/cmd", reqresp.New(dispatcher, log))

	var limiter httpapi.RateLimiter
	if cfg.MaxClients > 0 {
		limiter = httpapi.NewSlidingWindowLimiter(time.Second, cfg.MaxClients, nil)
	}

	ops := httpapi.NewHandlerSet(httpapi.Options{
		Logger:          log,
		Readiness:       dispatcher,
		BackendsPresent: backendsPresent,
		Stats: func() httpapi.Stats {
			busStats := bus.Stats()
			return httpapi.Stats{
				CommandsDispatched:  dispatcher.CommandsDispatched(),
				ActiveSubscriptions: busStats.ActiveSubscriptions,
				EDFLoopAverageMs:    float64(busStats.EDFLoopAverage.Microseconds()) / 1000,
				EDFLoopMaxMs:        float64(busStats.EDFLoopMax.Microseconds()) / 1000,
			}
		},
		Metrics:     metrics,
		Bandwidth:   bandwidth,
		AdminToken:  cfg.AdminToken,
		RateLimiter: limiter,
	})
	ops.Register(mux)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: logging.HTTPTraceMiddleware(log)(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	tlsEnabled := cfg.TLSCertPath != ""
	log.Info("HTTP ops/transport surface listening", logging.String("address", listenerURL(cfg.HTTPAddr, tlsEnabled)), logging.Bool("tls", tlsEnabled))

	var serveErr error
	if tlsEnabled {
		serveErr = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		serveErr = server.ListenAndServe()
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", serveErr)
	}
	return nil
}

// serveTelemetry starts the telemetry/ops gRPC channel (§4.L), a
// secondary surface independent of the four core transports. Its
// MetricsSource and EventTap are small adapters over the dispatcher,
// bus, and delivery metrics this binary already built.
func serveTelemetry(ctx context.Context, cfg *configpkg.Config, dispatcher *dispatch.Dispatcher, bus *eventbus.Bus, metrics *networking.DeliveryMetrics, logger *logging.Logger) error {
	log := logger.With(logging.String("component", "telemetry-grpc"))

	var opts []grpc.ServerOption
	tlsEnabled := cfg.TLSCertPath != ""
	if tlsEnabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return fmt.Errorf("load telemetry tls keypair: %w", err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})))
	}

	zstdComp, err := tgrpc.NewZstdCompressor()
	if err != nil {
		log.Warn("zstd compressor unavailable; event tap falls back to gzip", logging.Error(err))
		zstdComp = nil
	}

	service := tgrpc.NewService(&metricsSource{dispatcher: dispatcher, bus: bus, metrics: metrics}, &eventTap{bus: bus}, zstdComp)

	server := grpc.NewServer(opts...)
	tgrpc.Register(server, service)

	ln, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("telemetry grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	log.Info("telemetry gRPC channel listening", logging.String("address", listenerURL(cfg.GRPCAddr, tlsEnabled)))
	if err := server.Serve(ln); err != nil {
		return fmt.Errorf("telemetry grpc serve: %w", err)
	}
	return nil
}

// metricsSource adapts the dispatcher and delivery metrics to
// tgrpc.MetricsSource.
type metricsSource struct {
	dispatcher *dispatch.Dispatcher
	bus        *eventbus.Bus
	metrics    *networking.DeliveryMetrics
}

func (m *metricsSource) Snapshot() tgrpc.MetricsSnapshot {
	busStats := m.bus.Stats()
	return tgrpc.MetricsSnapshot{
		UptimeSeconds:    m.dispatcher.Uptime().Seconds(),
		BytesPerClient:   m.metrics.BytesPerClient(),
		DropCounts:       m.metrics.DropCounts(),
		EDFLoopAverageMs: float64(busStats.EDFLoopAverage.Microseconds()) / 1000,
		EDFLoopMaxMs:     float64(busStats.EDFLoopMax.Microseconds()) / 1000,
	}
}

// eventTap adapts the event bus's best-effort tap channel to
// tgrpc.EventTap.
type eventTap struct {
	bus *eventbus.Bus
}

func (t *eventTap) TapEvents(ctx context.Context) (<-chan []byte, func(), error) {
	frames, cancel := t.bus.AddTap()
	return frames, cancel, nil
}

// listenerURL returns a human-friendly URL for a listener address,
// matching the scheme to whether TLS is enabled and normalising the
// host so an unspecified bind address still prints something reachable.
func listenerURL(address string, tlsEnabled bool) string {
	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, normaliseHostPort(address))
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// buildOriginChecker returns a websocket CheckOrigin func permitting
// only the configured allowlist (plus localhost, always, for dev
// workflows), grounded on the teacher's own origin-allowlist gate.
func buildOriginChecker(logger *logging.Logger, allowlist []string) func(*http.Request) bool {
	if logger == nil {
		logger = logging.L()
	}
	allowed := make(map[string]struct{}, len(allowlist))
	for _, origin := range allowlist {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			logger.Warn("ignoring invalid allowed origin", logging.String("origin", origin), logging.Error(err))
			continue
		}
		key := strings.ToLower(u.Scheme + "://" + u.Host)
		allowed[key] = struct{}{}
	}

	return func(r *http.Request) bool {
		originHeader := r.Header.Get("Origin")
		if originHeader == "" {
			// No Origin usually means non-browser client; reject by default.
			return false
		}

		originURL, err := url.Parse(originHeader)
		if err != nil || originURL.Host == "" {
			logger.Warn("rejecting request with invalid origin", logging.String("origin", originHeader), logging.Error(err))
			return false
		}

		if _, ok := localHosts[originURL.Hostname()]; ok {
			return true
		}

		key := strings.ToLower(originURL.Scheme + "://" + originURL.Host)
		if _, ok := allowed[key]; ok {
			return true
		}

		logger.Warn("rejecting request from disallowed origin", logging.String("origin", originHeader))
		return false
	}
}
