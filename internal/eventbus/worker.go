package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/kareszklub/roblibd/internal/backend"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/protocol"
	"github.com/kareszklub/roblibd/internal/simulation"
)

// defaultMaxWait bounds the EDF worker's blocking poll, per §4.F: "it
// blocks on interrupt poll for min(interval to next ultra event,
// MAX_WAIT)". Configurable via internal/config's ROBLIBD_EDF_MAX_WAIT.
const defaultMaxWait = 200 * time.Millisecond

// edfWorker shares one goroutine between the track-sensor interrupt
// source and however many distinct UltraSensor(interval) subscriptions
// are live, picking whichever is due soonest on every iteration — the
// earliest-deadline-first loop described in §4.F.
//
// Grounded on internal/simulation.Loop's fixed-timestep accumulator
// (internal/simulation/loop.go): the same "block, then catch up on
// whatever is due" shape, but blocking on a hardware poll with a
// variable deadline instead of a ticker with a fixed one, since EDF
// scheduling has no single period to tick at.
type edfWorker struct {
	mu      sync.Mutex
	roland  backend.Roland
	emit    func(key protocol.EventKey, value any)
	logger  *logging.Logger
	maxWait time.Duration
	track   bool
	ultra   map[string]*ultraTask
	cancel  context.CancelFunc
	running bool
	tick    *simulation.TickMonitor
}

type ultraTask struct {
	key  protocol.UltraSensorKey
	next time.Time
}

func newEDFWorker(roland backend.Roland, emit func(protocol.EventKey, any), logger *logging.Logger, maxWait time.Duration) *edfWorker {
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &edfWorker{
		roland:  roland,
		emit:    emit,
		logger:  logger,
		maxWait: maxWait,
		ultra:   make(map[string]*ultraTask),
		tick:    simulation.NewTickMonitor(),
	}
}

// TickStats reports the EDF loop's observed iteration latency, for the
// ops surface's /api/stats and the telemetry gRPC channel's
// MetricsSnapshot. Each iteration is one PollTrackSensor call plus
// whatever ultrasonic tasks it serviced, so this doubles as a rough
// gauge of how promptly due ultrasonic subscriptions are actually
// being serviced relative to their configured interval.
func (w *edfWorker) TickStats() simulation.TickMetricsSnapshot {
	return w.tick.Snapshot()
}

func (w *edfWorker) activateTrack() {
	w.mu.Lock()
	w.track = true
	w.mu.Unlock()
	if w.roland != nil {
		if err := w.roland.SetupTrackSensorInterrupts(context.Background()); err != nil {
			w.logger.Warn("track sensor interrupt setup failed", logging.Error(err))
		}
	}
	w.start(context.Background())
}

func (w *edfWorker) deactivateTrack() {
	w.mu.Lock()
	w.track = false
	empty := !w.track && len(w.ultra) == 0
	w.mu.Unlock()
	if empty {
		w.stop()
	}
}

func (w *edfWorker) activateUltra(key protocol.UltraSensorKey) {
	w.mu.Lock()
	w.ultra[key.WireKey()] = &ultraTask{key: key, next: time.Now().Add(key.Interval)}
	w.mu.Unlock()
	w.start(context.Background())
}

func (w *edfWorker) deactivateUltra(key protocol.UltraSensorKey) {
	w.mu.Lock()
	delete(w.ultra, key.WireKey())
	empty := !w.track && len(w.ultra) == 0
	w.mu.Unlock()
	if empty {
		w.stop()
	}
}

// start arms the worker's background goroutine if a Roland backend is
// attached; it is safe to call repeatedly.
func (w *edfWorker) start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.roland == nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	go w.run(runCtx)
}

func (w *edfWorker) stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.running = false
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *edfWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wait, tasks := w.nextWait()
		iterStart := time.Now()
		reading, err := w.roland.PollTrackSensor(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("track sensor poll failed", logging.Error(err))
			continue
		}
		if reading != nil {
			//1.- An interrupt fired: re-read the full 4-element state and
			// emit it, then loop immediately without touching ultra tasks.
			w.emitTrackChange(ctx)
			w.tick.Observe(time.Since(iterStart))
			continue
		}

		//2.- The poll timed out: service every ultrasonic task whose
		// deadline has passed, then reschedule it relative to now.
		now := time.Now()
		for _, task := range tasks {
			if now.Before(task.next) {
				continue
			}
			w.serviceUltra(ctx, task)
			task.next = now.Add(task.key.Interval)
		}
		w.tick.Observe(time.Since(iterStart))
	}
}

func (w *edfWorker) nextWait() (time.Duration, []*ultraTask) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wait := w.maxWait
	now := time.Now()
	tasks := make([]*ultraTask, 0, len(w.ultra))
	for _, task := range w.ultra {
		tasks = append(tasks, task)
		if until := task.next.Sub(now); until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait, tasks
}

func (w *edfWorker) emitTrackChange(ctx context.Context) {
	arr, err := w.roland.TrackSensor(ctx)
	if err != nil {
		w.logger.Warn("track sensor read failed", logging.Error(err))
		return
	}
	w.emit(protocol.TrackSensorKey{}, arr)
}

func (w *edfWorker) serviceUltra(ctx context.Context, task *ultraTask) {
	reading, err := w.roland.UltraSensor(ctx)
	if err != nil {
		w.logger.Warn("ultra sensor read failed", logging.Error(err))
		return
	}
	w.emit(task.key, reading)
}
