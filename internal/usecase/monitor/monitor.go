// Package monitor tracks job health across scheduler passes and decides
// when operators must be alerted.
//
// Two signals are tracked per job: the failure streak, alerted only when it
// grows past the previously alerted value (never once per failure), and
// override usage, counted in a sliding window per override key. State lives
// in a RunState that the scheduler threads through one pass and persists
// once, at Finalize.
package monitor

import (
	"fmt"
	"sort"
	"time"

	"pagefeed/internal/domain/entity"
	"pagefeed/internal/observability/metrics"
)

// AlertKind classifies an alert.
type AlertKind string

const (
	KindFailureStreak AlertKind = "failure_streak"
	KindOverrideUsage AlertKind = "override_usage"
)

// Alert is one pending operator notification.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	JobID     string    `json:"job_id"`
	SourceURL string    `json:"source_url,omitempty"`
	At        time.Time `json:"at"`

	// Failure streak alerts.
	Streak     int        `json:"streak,omitempty"`
	Error      string     `json:"error,omitempty"`
	Code       string     `json:"code,omitempty"`
	LastGoodAt *time.Time `json:"last_good_at,omitempty"`

	// Override usage alerts.
	OverrideKey string        `json:"override_key,omitempty"`
	Count       int           `json:"count,omitempty"`
	Window      time.Duration `json:"window,omitempty"`
}

// Subject returns a one-line summary of the alert.
func (a Alert) Subject() string {
	switch a.Kind {
	case KindFailureStreak:
		return fmt.Sprintf("job %s failed %d times in a row", a.JobID, a.Streak)
	case KindOverrideUsage:
		return fmt.Sprintf("override %s used %d times by job %s", a.OverrideKey, a.Count, a.JobID)
	default:
		return fmt.Sprintf("%s alert for job %s", a.Kind, a.JobID)
	}
}

// Config holds the alert thresholds.
type Config struct {
	// StreakThreshold is the minimum failure streak that alerts.
	StreakThreshold int
	// OverrideThreshold is the number of override hits within
	// OverrideWindow that alerts.
	OverrideThreshold int
	OverrideWindow    time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		StreakThreshold:   3,
		OverrideThreshold: 10,
		OverrideWindow:    24 * time.Hour,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.StreakThreshold < 1 {
		return fmt.Errorf("streak threshold must be positive, got %d", c.StreakThreshold)
	}
	if c.OverrideThreshold < 1 {
		return fmt.Errorf("override threshold must be positive, got %d", c.OverrideThreshold)
	}
	if c.OverrideWindow <= 0 {
		return fmt.Errorf("override window must be positive, got %s", c.OverrideWindow)
	}
	return nil
}

// StateStore loads and saves the persisted monitor state.
type StateStore interface {
	Load(v any) (found bool, err error)
	Save(v any) error
}

type overrideState struct {
	Hits      []time.Time `json:"hits"`
	AlertedAt *time.Time  `json:"alerted_at,omitempty"`
	Alerted   int         `json:"alerted_count,omitempty"`
}

type jobState struct {
	FailureStreak     int                       `json:"failure_streak"`
	LastAlertedStreak int                       `json:"last_alerted_streak"`
	LastSuccessAt     *time.Time                `json:"last_success_at,omitempty"`
	Overrides         map[string]*overrideState `json:"overrides,omitempty"`
}

type state struct {
	Jobs      map[string]*jobState `json:"jobs"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// RunState is the monitor state of one scheduler pass. It is not safe for
// concurrent use; the scheduler refreshes jobs sequentially.
type RunState struct {
	cfg     Config
	store   StateStore
	now     func() time.Time
	st      state
	pending []Alert
}

// Load reads the persisted state from store and starts a pass. A missing
// state file starts from scratch.
func Load(cfg Config, store StateStore, now func() time.Time) (*RunState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	r := &RunState{cfg: cfg, store: store, now: now}
	if store != nil {
		if _, err := store.Load(&r.st); err != nil {
			return nil, fmt.Errorf("load monitor state: %w", err)
		}
	}
	if r.st.Jobs == nil {
		r.st.Jobs = make(map[string]*jobState)
	}
	return r, nil
}

func (r *RunState) job(id string) *jobState {
	js, ok := r.st.Jobs[id]
	if !ok {
		js = &jobState{}
		r.st.Jobs[id] = js
	}
	return js
}

// RecordRefresh records the refresh outcome of job, whose bookkeeping has
// already been applied. A failure streak alert is queued when the streak
// meets the threshold and has at least doubled since the last alert.
func (r *RunState) RecordRefresh(job *entity.Job, refreshErr error) {
	js := r.job(job.ID)
	now := r.now()

	if refreshErr == nil {
		js.FailureStreak = 0
		js.LastAlertedStreak = 0
		js.LastSuccessAt = &now
		return
	}

	js.FailureStreak = job.FailureStreak
	if js.FailureStreak < r.cfg.StreakThreshold || js.FailureStreak <= js.LastAlertedStreak {
		return
	}
	if js.LastAlertedStreak > 0 && js.FailureStreak < 2*js.LastAlertedStreak {
		return
	}

	js.LastAlertedStreak = js.FailureStreak
	r.queue(Alert{
		Kind:       KindFailureStreak,
		JobID:      job.ID,
		SourceURL:  job.SourceURL,
		At:         now,
		Streak:     js.FailureStreak,
		Error:      refreshErr.Error(),
		Code:       entity.ErrorCode(refreshErr),
		LastGoodAt: js.LastSuccessAt,
	})
}

// RecordOverride records one use of override key by job. An alert is
// queued when the hits within the window reach the threshold, at most once
// per window per job and key.
func (r *RunState) RecordOverride(job *entity.Job, key string) {
	js := r.job(job.ID)
	if js.Overrides == nil {
		js.Overrides = make(map[string]*overrideState)
	}
	os, ok := js.Overrides[key]
	if !ok {
		os = &overrideState{}
		js.Overrides[key] = os
	}

	now := r.now()
	cutoff := now.Add(-r.cfg.OverrideWindow)
	hits := os.Hits[:0]
	for _, h := range os.Hits {
		if h.After(cutoff) {
			hits = append(hits, h)
		}
	}
	os.Hits = append(hits, now)

	count := len(os.Hits)
	if count < r.cfg.OverrideThreshold {
		return
	}
	if os.AlertedAt != nil && os.AlertedAt.After(cutoff) {
		return
	}

	os.AlertedAt = &now
	os.Alerted = count
	r.queue(Alert{
		Kind:        KindOverrideUsage,
		JobID:       job.ID,
		SourceURL:   job.SourceURL,
		At:          now,
		OverrideKey: key,
		Count:       count,
		Window:      r.cfg.OverrideWindow,
	})
}

func (r *RunState) queue(a Alert) {
	r.pending = append(r.pending, a)
	metrics.RecordAlert(string(a.Kind))
}

// Pending returns the alerts queued so far.
func (r *RunState) Pending() []Alert {
	return append([]Alert(nil), r.pending...)
}

// Finalize drops the state of jobs not in activeJobIDs, persists the state
// and returns the pending alerts, which are cleared.
func (r *RunState) Finalize(activeJobIDs []string) ([]Alert, error) {
	active := make(map[string]struct{}, len(activeJobIDs))
	for _, id := range activeJobIDs {
		active[id] = struct{}{}
	}
	for id := range r.st.Jobs {
		if _, ok := active[id]; !ok {
			delete(r.st.Jobs, id)
		}
	}

	alerts := r.pending
	r.pending = nil
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].At.Before(alerts[j].At) })

	r.st.UpdatedAt = r.now()
	if r.store != nil {
		if err := r.store.Save(&r.st); err != nil {
			return alerts, fmt.Errorf("save monitor state: %w", err)
		}
	}
	return alerts, nil
}

// Streak returns the tracked failure streak and last alerted streak of a job.
func (r *RunState) Streak(jobID string) (streak, lastAlerted int) {
	if js, ok := r.st.Jobs[jobID]; ok {
		return js.FailureStreak, js.LastAlertedStreak
	}
	return 0, 0
}
