package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"pagefeed/internal/domain/entity"
)

// PassFunc runs one scheduler pass and returns the number of jobs it
// refreshed.
type PassFunc func(ctx context.Context) (refreshed int, err error)

// Runner triggers scheduler passes from cron ticks. A tick that arrives
// while the previous pass still runs is skipped; the run lock taken by the
// pass itself still guards against other processes.
type Runner struct {
	pass    PassFunc
	timeout time.Duration
	metrics *WorkerMetrics
	logger  *slog.Logger

	running atomic.Bool
	// inPass is held for the duration of a pass so Wait can block on it.
	inPass sync.Mutex
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(pass PassFunc, timeout time.Duration, metrics *WorkerMetrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pass: pass, timeout: timeout, metrics: metrics, logger: logger}
}

// Schedule registers Tick on c for the cron schedule. Passes inherit ctx.
func (r *Runner) Schedule(ctx context.Context, c *cron.Cron, schedule string) (cron.EntryID, error) {
	return c.AddFunc(schedule, func() { r.Tick(ctx) })
}

// Tick runs one pass unless one is already running. It reports whether a
// pass was started.
func (r *Runner) Tick(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("previous pass still running, skipping tick")
		r.record("skipped")
		return false
	}
	defer r.running.Store(false)
	r.inPass.Lock()
	defer r.inPass.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	r.logger.Info("pass started")
	refreshed, err := r.pass(ctx)
	duration := time.Since(start)

	switch {
	case errors.Is(err, entity.ErrLockHeld):
		r.logger.Warn("run lock held by another process, pass skipped")
		r.record("skipped")
		return true
	case err != nil:
		r.logger.Error("pass failed", slog.Any("error", err), slog.Duration("duration", duration))
		r.record("failure")
		if r.metrics != nil {
			r.metrics.RecordPassDuration(duration.Seconds())
		}
		return true
	}

	r.logger.Info("pass completed",
		slog.Int("refreshed", refreshed),
		slog.Duration("duration", duration))
	r.record("success")
	if r.metrics != nil {
		r.metrics.RecordPassDuration(duration.Seconds())
		r.metrics.RecordJobsRefreshed(refreshed)
		r.metrics.RecordLastSuccess()
	}
	return true
}

// Running reports whether a pass is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// Wait blocks until the pass in progress, if any, returns.
func (r *Runner) Wait() {
	r.inPass.Lock()
	defer r.inPass.Unlock()
}

func (r *Runner) record(status string) {
	if r.metrics != nil {
		r.metrics.RecordPassRun(status)
	}
}
