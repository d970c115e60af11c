// Package scheduler runs one refresh pass over all jobs.
//
// A pass holds the run lock for its whole duration, purges abandoned jobs,
// refreshes due jobs sequentially, records every outcome in the monitor and
// finally hands the monitor's alerts to the notifier. Job failures never
// fail the pass; only the inability to take the lock or read the job store
// does.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/jobstore"
	"pagefeed/internal/observability/metrics"
	"pagefeed/internal/usecase/monitor"
	"pagefeed/internal/usecase/notify"
	"pagefeed/internal/usecase/refresh"
	"pagefeed/pkg/config"
)

// JobStore persists jobs.
type JobStore interface {
	List(ctx context.Context) ([]*entity.Job, error)
	Save(ctx context.Context, job *entity.Job) error
	Delete(ctx context.Context, id string) error
}

// FeedStore exposes published feed files for purging.
type FeedStore interface {
	LastAccess(filename string) (t time.Time, ok bool, err error)
	Remove(filename string) error
}

// Refresher refreshes one job in place.
type Refresher interface {
	Refresh(ctx context.Context, job *entity.Job) refresh.Result
}

// AlertDeliverer delivers a batch of monitor alerts.
type AlertDeliverer interface {
	DeliverAll(ctx context.Context, alerts []monitor.Alert) ([]notify.Result, error)
}

// Config tunes a pass.
type Config struct {
	// LockPath is the run lock file. Empty disables locking.
	LockPath string
	// MinInterval is the floor applied to every job's refresh interval.
	MinInterval time.Duration
	// Retention purges jobs whose feed has not been read for this long.
	// Zero disables purging.
	Retention time.Duration
	// MaxJobs caps the refreshes of one pass. Zero means no cap.
	MaxJobs int
	// DryRun plans the pass without refreshing, purging or alerting.
	DryRun bool
}

// DefaultConfig returns the default pass configuration.
func DefaultConfig() Config {
	return Config{
		LockPath:    "data/pagefeed.lock",
		MinInterval: 15 * time.Minute,
		Retention:   30 * 24 * time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := config.ValidateNonNegativeDuration(c.MinInterval); err != nil {
		return fmt.Errorf("min interval: %w", err)
	}
	if err := config.ValidateNonNegativeDuration(c.Retention); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	if c.MaxJobs < 0 {
		return fmt.Errorf("max jobs must not be negative, got %d", c.MaxJobs)
	}
	return nil
}

// Report summarises a pass.
type Report struct {
	Jobs      int
	Due       int
	Refreshed int
	Succeeded int
	Failed    int
	// Deferred counts due jobs left for the next pass by MaxJobs.
	Deferred int
	Purged   []string
	Alerts   []monitor.Alert
	// DeliveryErr is set when alerts could not be delivered. It does not
	// fail the pass.
	DeliveryErr error
	Duration    time.Duration
}

// Scheduler runs passes.
type Scheduler struct {
	Jobs      JobStore
	Feeds     FeedStore
	Refresher Refresher
	// Notifier may be nil; alerts are then only logged.
	Notifier      AlertDeliverer
	MonitorState  monitor.StateStore
	MonitorConfig monitor.Config
	Config        Config

	Logger *slog.Logger
	Now    func() time.Time
}

// RunPass runs one pass. It returns entity.ErrLockHeld when another pass
// holds the run lock.
func (s *Scheduler) RunPass(ctx context.Context) (*Report, error) {
	start := s.now()
	logger := s.logger()

	if s.Config.LockPath != "" {
		lock, err := jobstore.AcquireLock(s.Config.LockPath)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("failed to release run lock", slog.Any("error", err))
			}
		}()
	}

	mon, err := monitor.Load(s.MonitorConfig, s.MonitorState, s.Now)
	if err != nil {
		return nil, err
	}

	jobs, err := s.Jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	report := &Report{}
	active := make([]string, 0, len(jobs))
	var due []*entity.Job
	for _, job := range jobs {
		if s.shouldPurge(job, start) {
			if s.purge(ctx, job, report) {
				continue
			}
		}
		active = append(active, job.ID)
		if job.IsDue(start, s.Config.MinInterval) {
			due = append(due, job)
		}
	}
	report.Jobs = len(active)
	report.Due = len(due)
	metrics.RecordPurge(len(report.Purged))

	// Never-refreshed jobs first, then the stalest.
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].LastRefreshAt, due[j].LastRefreshAt
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
	if s.Config.MaxJobs > 0 && len(due) > s.Config.MaxJobs {
		report.Deferred = len(due) - s.Config.MaxJobs
		due = due[:s.Config.MaxJobs]
	}

	if s.Config.DryRun {
		for _, job := range due {
			logger.Info("would refresh", slog.String("job_id", job.ID), slog.String("mode", string(job.Mode)))
		}
		report.Duration = s.now().Sub(start)
		return report, nil
	}

	for _, job := range due {
		if ctx.Err() != nil {
			logger.Warn("pass interrupted", slog.Int("remaining", len(due)-report.Refreshed))
			break
		}
		res := s.refreshOne(ctx, job)
		report.Refreshed++
		if res.Err == nil {
			report.Succeeded++
		} else {
			report.Failed++
		}

		if err := s.Jobs.Save(ctx, job); err != nil {
			logger.Error("failed to save job", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		mon.RecordRefresh(job, res.Err)
		if res.OverrideKey != "" {
			mon.RecordOverride(job, res.OverrideKey)
		}
	}

	alerts, err := mon.Finalize(active)
	if err != nil {
		logger.Error("failed to persist monitor state", slog.Any("error", err))
	}
	report.Alerts = alerts
	s.deliver(ctx, report)

	report.Duration = s.now().Sub(start)
	metrics.RecordPass(s.now(), report.Duration, report.Jobs)
	logger.Info("pass complete",
		slog.Int("jobs", report.Jobs),
		slog.Int("due", report.Due),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("failed", report.Failed),
		slog.Int("purged", len(report.Purged)),
		slog.Int("alerts", len(report.Alerts)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// refreshOne refreshes job, converting a panic into a recorded failure.
func (s *Scheduler) refreshOne(ctx context.Context, job *entity.Job) (res refresh.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("panic during refresh",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err := fmt.Errorf("%w: %v", entity.ErrInternal, r)
			now := s.now()
			job.LastRefreshAt = &now
			job.FailureStreak++
			job.LastRefreshStatus = entity.StatusError
			job.LastRefreshError = err.Error()
			res = refresh.Result{JobID: job.ID, Err: err}
		}
	}()
	return s.Refresher.Refresh(ctx, job)
}

func (s *Scheduler) shouldPurge(job *entity.Job, now time.Time) bool {
	if s.Config.Retention <= 0 || s.Feeds == nil {
		return false
	}
	last, ok, err := s.Feeds.LastAccess(job.FeedFilename)
	if err != nil {
		s.logger().Warn("cannot read feed access time",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
		return false
	}
	if !ok {
		last = job.UpdatedAt
		if last.IsZero() {
			last = job.CreatedAt
		}
	}
	return now.Sub(last) > s.Config.Retention
}

// purge deletes job and its feed. It reports false when the job must stay
// active because it could not be deleted.
func (s *Scheduler) purge(ctx context.Context, job *entity.Job, report *Report) bool {
	logger := s.logger().With(slog.String("job_id", job.ID), slog.String("feed", job.FeedFilename))
	if s.Config.DryRun {
		logger.Info("would purge job")
		report.Purged = append(report.Purged, job.ID)
		return true
	}
	if err := s.Feeds.Remove(job.FeedFilename); err != nil {
		logger.Error("failed to remove feed of purged job", slog.Any("error", err))
		return false
	}
	if err := s.Jobs.Delete(ctx, job.ID); err != nil && !errors.Is(err, entity.ErrNotFound) {
		logger.Error("failed to delete purged job", slog.Any("error", err))
		return false
	}
	logger.Info("purged unused job")
	report.Purged = append(report.Purged, job.ID)
	return true
}

func (s *Scheduler) deliver(ctx context.Context, report *Report) {
	if len(report.Alerts) == 0 {
		return
	}
	logger := s.logger()
	for _, a := range report.Alerts {
		logger.Warn("alert", slog.String("kind", string(a.Kind)), slog.String("job_id", a.JobID), slog.String("subject", a.Subject()))
	}
	if s.Notifier == nil {
		return
	}
	if _, err := s.Notifier.DeliverAll(ctx, report.Alerts); err != nil {
		report.DeliveryErr = err
		logger.Error("alert delivery failed", slog.Any("error", err))
	}
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
