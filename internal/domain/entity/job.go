package entity

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a job's feed is produced.
type Mode string

const (
	// ModeNative republishes a feed the source site already publishes.
	ModeNative Mode = "native"
	// ModeCustom synthesizes a feed from a non-feed page.
	ModeCustom Mode = "custom"
)

// Format is the output feed format of a job.
type Format string

const (
	FormatRSS      Format = "rss"
	FormatAtom     Format = "atom"
	FormatJSONFeed Format = "jsonfeed"
)

// ParseFormat maps user input to a Format. Empty input selects RSS.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rss", "rss2", "xml":
		return FormatRSS, nil
	case "atom":
		return FormatAtom, nil
	case "json", "jsonfeed", "json-feed":
		return FormatJSONFeed, nil
	default:
		return "", &InputError{Field: "format", Message: fmt.Sprintf("unsupported format %q", s)}
	}
}

// Extension returns the file extension (with dot) used for the format.
func (f Format) Extension() string {
	if f == FormatJSONFeed {
		return ".json"
	}
	return ".xml"
}

// ContentType returns the media type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatAtom:
		return "application/atom+xml"
	case FormatJSONFeed:
		return "application/feed+json"
	default:
		return "application/rss+xml"
	}
}

// EmptyPolicy decides what a refresh does when no items survive extraction and filtering.
type EmptyPolicy string

const (
	// EmptyKeep leaves the previously published feed untouched.
	EmptyKeep EmptyPolicy = "keep"
	// EmptyPublish publishes a structurally valid feed without items.
	EmptyPublish EmptyPolicy = "publish"
	// EmptyFail records the refresh as failed.
	EmptyFail EmptyPolicy = "fail"
)

// Effective returns the policy with the default applied.
func (p EmptyPolicy) Effective() EmptyPolicy {
	switch p {
	case EmptyPublish, EmptyFail:
		return p
	default:
		return EmptyKeep
	}
}

// Refresh status values recorded in Job.LastRefreshStatus.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Limit bounds for Job.Limit.
const (
	MinLimit     = 1
	MaxLimit     = 50
	DefaultLimit = 20
)

// Diagnostics is the snapshot attached to a job once its failure streak crosses
// the alert threshold. A newer snapshot replaces the previous one.
type Diagnostics struct {
	Error      string    `json:"error"`
	Code       string    `json:"code,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Mode       Mode      `json:"mode"`
	Streak     int       `json:"streak"`
	At         time.Time `json:"at"`
}

// Job is the persisted record for one monitored source.
type Job struct {
	ID           string `json:"job_id"`
	SourceURL    string `json:"source_url"`
	NativeSource string `json:"native_source,omitempty"`
	Mode         Mode   `json:"mode"`
	Format       Format `json:"format"`
	Limit        int    `json:"limit"`
	FeedFilename string `json:"feed_filename"`
	FeedURL      string `json:"feed_url"`
	PreferNative bool   `json:"prefer_native"`

	// RefreshInterval is in seconds; the effective interval never drops below
	// the configured minimum.
	RefreshInterval int `json:"refresh_interval"`
	RefreshCount    int `json:"refresh_count"`

	LastRefreshAt     *time.Time `json:"last_refresh_at,omitempty"`
	LastRefreshStatus string     `json:"last_refresh_status,omitempty"`
	LastRefreshNote   string     `json:"last_refresh_note,omitempty"`
	LastRefreshCode   int        `json:"last_refresh_code,omitempty"`
	LastRefreshError  string     `json:"last_refresh_error,omitempty"`
	LastBytes         int        `json:"last_bytes,omitempty"`

	FailureStreak  int          `json:"failure_streak"`
	Diagnostics    *Diagnostics `json:"diagnostics,omitempty"`
	ItemsCount     int          `json:"items_count"`
	LastValidation []string     `json:"last_validation,omitempty"`

	IncludeKeywords []string    `json:"include_keywords,omitempty"`
	ExcludeKeywords []string    `json:"exclude_keywords,omitempty"`
	AllowEmpty      EmptyPolicy `json:"allow_empty,omitempty"`

	// Selectors optionally drives the custom selector extraction pass.
	Selectors *Selectors `json:"selectors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt moves when the job's configuration changes: registration
	// and demotion to custom mode. Refreshes leave it alone, so a job that
	// never publishes a feed still ages out of the retention window.
	UpdatedAt time.Time `json:"updated_at"`
	CreatedIP string    `json:"created_ip,omitempty"`
}

// Selectors holds the optional CSS selectors of the custom selector pass.
// Only tag, #id, .class, descendant and child combinators are accepted.
type Selectors struct {
	Item    string `json:"item"`
	Title   string `json:"title,omitempty"`
	Link    string `json:"link,omitempty"`
	Summary string `json:"summary,omitempty"`
	Date    string `json:"date,omitempty"`
}

// IsDue reports whether the job should be refreshed at now.
// A job that never ran is always due.
func (j *Job) IsDue(now time.Time, minInterval time.Duration) bool {
	if j.LastRefreshAt == nil {
		return true
	}
	interval := time.Duration(j.RefreshInterval) * time.Second
	if interval < minInterval {
		interval = minInterval
	}
	return now.Sub(*j.LastRefreshAt) >= interval
}

// DemoteToCustom switches a native job to custom mode. The switch is one-way;
// calling it on a custom job is a no-op and returns false.
func (j *Job) DemoteToCustom(reason string) bool {
	if j.Mode != ModeNative {
		return false
	}
	j.Mode = ModeCustom
	j.LastRefreshNote = "switched to custom mode: " + reason
	return true
}

// Validate checks the invariants of a persisted job.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return &InputError{Field: "job_id", Message: "job id is required"}
	}
	if err := ValidateURL(j.SourceURL); err != nil {
		return err
	}
	if j.Mode != ModeNative && j.Mode != ModeCustom {
		return &InputError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", j.Mode)}
	}
	if j.Mode == ModeNative && j.NativeSource == "" {
		return &InputError{Field: "native_source", Message: "native mode requires a native source"}
	}
	if _, err := ParseFormat(string(j.Format)); err != nil {
		return err
	}
	if j.Limit < MinLimit || j.Limit > MaxLimit {
		return &InputError{Field: "limit", Message: fmt.Sprintf("limit must be between %d and %d", MinLimit, MaxLimit)}
	}
	if j.FeedFilename == "" || strings.ContainsAny(j.FeedFilename, `/\`) {
		return &InputError{Field: "feed_filename", Message: "feed filename must be a bare file name"}
	}
	return nil
}

// ClampLimit forces n into [MinLimit, MaxLimit]; zero selects DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLimit
	case n < MinLimit:
		return MinLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}
