// Package diagnose checks registered jobs against their live sources
// without publishing anything, so operators can see why a feed is stale.
package diagnose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/infra/encoding"
	"pagefeed/internal/infra/extractor"
	"pagefeed/internal/infra/feed"
	"pagefeed/internal/usecase/fetch"
	"pagefeed/internal/usecase/refresh"
)

// Status values of a Diagnostic.
const (
	StatusOK           = "OK"
	StatusRedirect     = "REDIRECT"
	StatusHTTPError    = "HTTP_ERROR"
	StatusTimeout      = "TIMEOUT"
	StatusBlocked      = "BLOCKED"
	StatusFetchError   = "FETCH_ERROR"
	StatusParseError   = "PARSE_ERROR"
	StatusEmpty        = "EMPTY"
	statusUnrecognized = "UNRECOGNIZED"
)

const accept = "application/rss+xml, application/atom+xml, application/feed+json, text/html;q=0.9, */*;q=0.5"

// Diagnostic is the result for a single job.
type Diagnostic struct {
	JobID         string `json:"job_id"`
	URL           string `json:"url"`
	Mode          string `json:"mode"`
	Status        string `json:"status"`
	HTTPCode      int    `json:"http_code"`
	ItemCount     int    `json:"item_count"`
	LatestDate    string `json:"latest_date,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Code          string `json:"code,omitempty"`
	SourceType    string `json:"source_type"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	ResponseTime  int64  `json:"response_time_ms"`
	ContentLength int    `json:"content_length"`
	FailureStreak int    `json:"failure_streak"`
}

// Healthy reports whether the source would refresh.
func (d Diagnostic) Healthy() bool {
	return d.Status == StatusOK || d.Status == StatusRedirect
}

// ItemExtractor extracts feed items from an HTML page.
type ItemExtractor interface {
	Extract(ctx context.Context, body []byte, baseURL string, limit int, opts extractor.Options) ([]entity.Item, error)
}

// Diagnoser runs diagnostics. Item pages are never fetched.
type Diagnoser struct {
	Fetcher   fetch.Fetcher
	Extractor ItemExtractor
	Timeout   time.Duration
	Now       func() time.Time
}

// Diagnose checks the source of job: the native feed for native jobs, the
// page otherwise.
func (d *Diagnoser) Diagnose(ctx context.Context, job *entity.Job) Diagnostic {
	target := job.SourceURL
	if job.Mode == entity.ModeNative && job.NativeSource != "" {
		target = job.NativeSource
	}
	diag := Diagnostic{
		JobID:         job.ID,
		URL:           target,
		Mode:          string(job.Mode),
		SourceType:    "UNKNOWN",
		FailureStreak: job.FailureStreak,
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	start := d.now()
	resp, err := d.Fetcher.Get(ctx, target, fetch.Options{Accept: accept})
	diag.ResponseTime = d.now().Sub(start).Milliseconds()
	if err != nil {
		diag.ErrorMessage = err.Error()
		diag.Code = entity.ErrorCode(err)
		var blocked *entity.BlockedTargetError
		switch {
		case errors.As(err, &blocked):
			diag.Status = StatusBlocked
		case diag.Code == entity.CodeTimeout:
			diag.Status = StatusTimeout
		default:
			diag.Status = StatusFetchError
		}
		return diag
	}

	diag.HTTPCode = resp.Status
	diag.ContentLength = len(resp.Body)
	if resp.FinalURL != "" && resp.FinalURL != target {
		diag.RedirectURL = resp.FinalURL
	}
	if !resp.OK {
		diag.Status = StatusHTTPError
		diag.ErrorMessage = fmt.Sprintf("HTTP %d", resp.Status)
		return diag
	}

	items, err := d.items(ctx, job, resp, &diag)
	if err != nil {
		diag.Status = StatusParseError
		diag.ErrorMessage = err.Error()
		diag.Code = entity.ErrorCode(err)
		return diag
	}
	diag.ItemCount = len(items)
	diag.LatestDate = latest(items)
	switch {
	case len(items) == 0:
		diag.Status = StatusEmpty
		diag.ErrorMessage = "source has no items"
	case diag.RedirectURL != "":
		diag.Status = StatusRedirect
	default:
		diag.Status = StatusOK
	}
	return diag
}

// DiagnoseAll diagnoses jobs sequentially, in order. It stops early only
// when ctx is done.
func (d *Diagnoser) DiagnoseAll(ctx context.Context, jobs []*entity.Job) []Diagnostic {
	out := make([]Diagnostic, 0, len(jobs))
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		out = append(out, d.Diagnose(ctx, job))
	}
	return out
}

func (d *Diagnoser) items(ctx context.Context, job *entity.Job, resp *fetch.Response, diag *Diagnostic) ([]entity.Item, error) {
	baseURL := resp.FinalURL
	if baseURL == "" {
		baseURL = diag.URL
	}

	if format, body := refresh.SniffFeed(resp.Body, resp.ContentType()); format != "" {
		diag.SourceType = string(format)
		items, _, err := feed.ParseItems(body)
		return items, err
	}
	if job.Mode == entity.ModeNative {
		diag.SourceType = statusUnrecognized
		return nil, fmt.Errorf("native source is not a feed: %w", entity.ErrUnrecognizedPage)
	}

	diag.SourceType = "HTML"
	body, _ := encoding.NormalizeHTML(resp.Body, resp.ContentType())
	return d.Extractor.Extract(ctx, body, baseURL, job.Limit, extractor.Options{Selectors: job.Selectors})
}

// latest returns the newest parseable item date, as found in the source.
func latest(items []entity.Item) string {
	type dated struct {
		raw string
		at  time.Time
	}
	var ds []dated
	for _, it := range items {
		if at, ok := feed.ParseDate(it.Date); ok {
			ds = append(ds, dated{it.Date, at})
		}
	}
	if len(ds) == 0 {
		return ""
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].at.After(ds[j].at) })
	return ds[0].raw
}

// Summary counts diagnostics per status.
func Summary(diags []Diagnostic) map[string]int {
	counts := make(map[string]int)
	for _, d := range diags {
		counts[d.Status]++
	}
	return counts
}

func (d *Diagnoser) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
