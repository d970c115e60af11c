// Package refresh implements the per-job refresh state machine.
//
// A refresh starts in native-refresh (mode=native) or custom-refresh
// (mode=custom). Custom refresh first consults the override table and, on a
// match, continues in override-refresh. Every path ends in a recorded
// success or a recorded failure; errors never escape as panics.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/extractor"
	"pagefeed/internal/infra/feed"
	"pagefeed/internal/infra/override"
	"pagefeed/internal/infra/scraper"
	"pagefeed/internal/observability/metrics"
	"pagefeed/internal/usecase/fetch"
)

// DefaultAlertThreshold is the failure streak at which a diagnostics
// snapshot is attached to a job.
const DefaultAlertThreshold = 3

// Path names the refresh path that produced an outcome.
type Path string

const (
	PathNative   Path = "native"
	PathCustom   Path = "custom"
	PathOverride Path = "override"
)

// ItemExtractor extracts feed items from an HTML page.
type ItemExtractor interface {
	Extract(ctx context.Context, body []byte, baseURL string, limit int, opts extractor.Options) ([]entity.Item, error)
}

// FeedPublisher stores published feed files.
type FeedPublisher interface {
	Publish(filename string, data []byte) error
	Exists(filename string) bool
}

// OverrideTable looks up site overrides by source URL.
type OverrideTable interface {
	Lookup(rawURL string) (override.Match, bool)
}

// Result describes one refresh attempt.
type Result struct {
	JobID string
	Path  Path
	// Demoted is set when a native job was switched to custom mode.
	Demoted bool
	// OverrideKey is the key of the matched override, if any.
	OverrideKey string
	// Published is false when the previous feed was kept.
	Published  bool
	Items      int
	Bytes      int
	HTTPStatus int
	Note       string
	Warnings   []string
	Err        error
	Duration   time.Duration
}

// OK reports whether the refresh succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Service runs refreshes. The job passed to Refresh is updated in place;
// persisting it is the caller's concern.
type Service struct {
	Fetcher   fetch.Fetcher
	Extractor ItemExtractor
	Builder   *feed.Builder
	Validator *feed.Validator
	Publisher FeedPublisher
	Overrides OverrideTable
	// Scrapers maps override kinds to scrape routines.
	Scrapers map[string]scraper.Scraper

	AlertThreshold int
	// EnrichBudget bounds item page fetches per custom refresh. Negative
	// disables enrichment.
	EnrichBudget int

	Logger *slog.Logger
	Now    func() time.Time
}

// Refresh refreshes job and records the outcome on it.
func (s *Service) Refresh(ctx context.Context, job *entity.Job) Result {
	start := s.now()
	res := Result{JobID: job.ID}

	err := s.run(ctx, job, &res)
	res.Err = err
	res.Duration = s.now().Sub(start)
	s.record(job, &res)
	return res
}

func (s *Service) run(ctx context.Context, job *entity.Job, res *Result) error {
	if job.Mode == entity.ModeNative {
		res.Path = PathNative
		done, err := s.refreshNative(ctx, job, res)
		if done || err != nil {
			return err
		}
	}
	return s.refreshCustom(ctx, job, res)
}

// record applies the success or failure bookkeeping to job.
// record writes the outcome of one refresh into job. UpdatedAt is not
// touched.
func (s *Service) record(job *entity.Job, res *Result) {
	now := s.now()
	job.LastRefreshAt = &now
	job.RefreshCount++
	job.LastRefreshCode = res.HTTPStatus

	logger := s.logger().With(
		slog.String("job_id", job.ID),
		slog.String("path", string(res.Path)),
		slog.Duration("duration", res.Duration))

	if res.Demoted {
		metrics.RecordDemotion()
	}

	if res.Err == nil {
		job.FailureStreak = 0
		job.Diagnostics = nil
		job.LastRefreshStatus = entity.StatusOK
		job.LastRefreshError = ""
		if res.Published {
			job.LastValidation = res.Warnings
			job.ItemsCount = res.Items
			job.LastBytes = res.Bytes
		}
		job.LastRefreshNote = joinNotes(demotionNote(job, res), res.Note)

		metrics.RecordRefresh("success", string(res.Path), res.Duration)
		if res.Published {
			metrics.RecordItemsPublished(res.Items)
		}
		logger.Info("refresh succeeded",
			slog.Int("items", res.Items),
			slog.Bool("published", res.Published),
			slog.String("override", res.OverrideKey))
		return
	}

	job.FailureStreak++
	job.LastRefreshStatus = entity.StatusError
	job.LastRefreshError = res.Err.Error()
	job.LastRefreshNote = demotionNote(job, res)
	if status := entity.HTTPStatusOf(res.Err); status != 0 {
		job.LastRefreshCode = status
	}
	if job.FailureStreak >= s.alertThreshold() {
		job.Diagnostics = &entity.Diagnostics{
			Error:      res.Err.Error(),
			Code:       entity.ErrorCode(res.Err),
			HTTPStatus: job.LastRefreshCode,
			Mode:       job.Mode,
			Streak:     job.FailureStreak,
			At:         now,
		}
	}

	metrics.RecordRefresh("failure", string(res.Path), res.Duration)
	logger.Warn("refresh failed",
		slog.String("code", entity.ErrorCode(res.Err)),
		slog.Int("streak", job.FailureStreak),
		slog.Any("error", res.Err))
}

func demotionNote(job *entity.Job, res *Result) string {
	if res.Demoted {
		return job.LastRefreshNote
	}
	return ""
}

func joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}

func (s *Service) alertThreshold() int {
	if s.AlertThreshold > 0 {
		return s.AlertThreshold
	}
	return DefaultAlertThreshold
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
