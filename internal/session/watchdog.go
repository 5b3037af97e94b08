package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/careops/carepipe/internal/scheduler"
)

// Watchdog configuration constants
const (
	// DefaultPollInterval is how often the watchdog re-evaluates idle time.
	// Polling tolerates clock drift and repeated activity resets without
	// per-reset timer cancellation bookkeeping.
	DefaultPollInterval = 30 * time.Second
	// DefaultIdleThreshold is the idle time after which the advisory fires.
	DefaultIdleThreshold = time.Minute
)

// Watchdog periodically evaluates operator idle time for an active session
// and asks the controller to raise the one-shot inactivity advisory. It is
// owned by the controller: started on session activation, stopped on
// termination.
type Watchdog struct {
	ctrl          *Controller
	sched         *scheduler.Scheduler
	pollInterval  time.Duration
	idleThreshold time.Duration

	mu      sync.Mutex
	jobID   cron.EntryID
	running bool
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

// WithPollInterval overrides the evaluation period.
func WithPollInterval(d time.Duration) WatchdogOption {
	return func(w *Watchdog) { w.pollInterval = d }
}

// WithIdleThreshold overrides the idle time that triggers the advisory.
func WithIdleThreshold(d time.Duration) WatchdogOption {
	return func(w *Watchdog) { w.idleThreshold = d }
}

// NewWatchdog creates an inactivity watchdog bound to a controller.
func NewWatchdog(ctrl *Controller, sched *scheduler.Scheduler, opts ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		ctrl:          ctrl,
		sched:         sched,
		pollInterval:  DefaultPollInterval,
		idleThreshold: DefaultIdleThreshold,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the periodic evaluation job. Starting a running watchdog
// is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	id, err := w.sched.AddEvery(w.pollInterval, w.Evaluate)
	if err != nil {
		slog.Error("Watchdog.Start: failed to schedule evaluation job", "error", err)
		return
	}
	w.jobID = id
	w.running = true
	slog.Debug("Watchdog.Start: watchdog started", "pollInterval", w.pollInterval, "idleThreshold", w.idleThreshold)
}

// Stop removes the periodic evaluation job.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.sched.Remove(w.jobID)
	w.running = false
	slog.Debug("Watchdog.Stop: watchdog stopped")
}

// Evaluate performs one idle check. It is called by the scheduler on each
// poll and is exported so tests can drive it deterministically.
func (w *Watchdog) Evaluate() {
	w.ctrl.EvaluateIdle(w.idleThreshold)
}

// Running reports whether the evaluation job is registered.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
