package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/extractor"
	"pagefeed/internal/usecase/fetch"
)

// Store persists jobs.
type Store interface {
	List(ctx context.Context) ([]*entity.Job, error)
	Save(ctx context.Context, job *entity.Job) error
}

// FeedLocator maps a feed file name to its public URL.
type FeedLocator interface {
	URL(filename string) string
}

// RegisterRequest is the input of Register.
type RegisterRequest struct {
	SourceURL    string
	Format       string
	Limit        int
	PreferNative bool
	// IP is the address of the registering client, kept for auditing.
	IP string

	IncludeKeywords []string
	ExcludeKeywords []string
	AllowEmpty      string
	Selectors       *entity.Selectors
	// RefreshInterval of zero selects Service.DefaultInterval.
	RefreshInterval time.Duration
}

// Service registers jobs.
type Service struct {
	Jobs    Store
	Feeds   FeedLocator
	Fetcher fetch.Fetcher

	DefaultInterval time.Duration

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Register validates req, probes the source once to discover an advertised
// feed and persists the new job. Native mode is chosen only when
// req.PreferNative is set and the discovered feed shares the extension of
// the requested format.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*entity.Job, error) {
	job, err := s.buildJob(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.Jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}
	for _, j := range existing {
		if j.SourceURL == job.SourceURL && j.Format == job.Format {
			return nil, &DuplicateError{Job: j}
		}
	}

	d, err := s.discover(ctx, job.SourceURL, job.Format)
	if err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}
	if d.ProbeErr != nil {
		s.logger().Warn("source probe failed, registering in custom mode",
			slog.String("source_url", job.SourceURL),
			slog.String("code", entity.ErrorCode(d.ProbeErr)),
			slog.Any("error", d.ProbeErr))
	}
	if req.PreferNative && d.FeedURL != "" && d.Format == job.Format {
		job.Mode = entity.ModeNative
		job.NativeSource = d.FeedURL
	}

	if err := s.Jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}

	s.logger().Info("job registered",
		slog.String("job_id", job.ID),
		slog.String("source_url", job.SourceURL),
		slog.String("mode", string(job.Mode)),
		slog.String("format", string(job.Format)),
		slog.String("native_source", job.NativeSource),
		slog.Bool("source_is_feed", d.SourceIsFeed))
	return job, nil
}

// buildJob validates req and returns a custom-mode job with every
// derived field set.
func (s *Service) buildJob(req RegisterRequest) (*entity.Job, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if err := entity.ValidateURL(sourceURL); err != nil {
		return nil, err
	}
	format, err := entity.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	policy, err := parseEmptyPolicy(req.AllowEmpty)
	if err != nil {
		return nil, err
	}
	if req.Selectors != nil && *req.Selectors != (entity.Selectors{}) {
		if err := extractor.ValidateSelectors(*req.Selectors); err != nil {
			return nil, err
		}
	} else {
		req.Selectors = nil
	}
	if req.RefreshInterval < 0 {
		return nil, &entity.InputError{Field: "refresh_interval", Message: "refresh interval must not be negative"}
	}
	interval := req.RefreshInterval
	if interval == 0 {
		interval = s.DefaultInterval
	}

	id := s.newID()
	now := s.now()
	filename := id + format.Extension()
	return &entity.Job{
		ID:              id,
		SourceURL:       sourceURL,
		Mode:            entity.ModeCustom,
		Format:          format,
		Limit:           entity.ClampLimit(req.Limit),
		FeedFilename:    filename,
		FeedURL:         s.Feeds.URL(filename),
		PreferNative:    req.PreferNative,
		RefreshInterval: int(interval / time.Second),
		IncludeKeywords: entity.NormalizeKeywords(req.IncludeKeywords),
		ExcludeKeywords: entity.NormalizeKeywords(req.ExcludeKeywords),
		AllowEmpty:      policy,
		Selectors:       req.Selectors,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedIP:       strings.TrimSpace(req.IP),
	}, nil
}

func parseEmptyPolicy(s string) (entity.EmptyPolicy, error) {
	switch p := entity.EmptyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return entity.EmptyKeep, nil
	case entity.EmptyKeep, entity.EmptyPublish, entity.EmptyFail:
		return p, nil
	}
	return "", &entity.InputError{Field: "allow_empty", Message: fmt.Sprintf("unknown policy %q", s)}
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New().String()
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
