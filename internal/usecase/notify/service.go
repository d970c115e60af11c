package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pagefeed/internal/infra/notifier"
	"pagefeed/internal/usecase/monitor"
)

const (
	defaultSubjectPrefix = "[pagefeed]"
	defaultTimeout       = 2 * time.Minute
)

// Config configures alert rendering and delivery.
type Config struct {
	// Recipients overrides the email channel's default recipients.
	Recipients []string
	// SubjectPrefix starts every subject line.
	SubjectPrefix string
	// Timeout bounds one channel's delivery, retries included.
	Timeout time.Duration
}

// Result is the outcome of delivering to one channel.
type Result struct {
	Channel  string
	Err      error
	Duration time.Duration
}

// Service fans rendered alerts out to every channel.
type Service struct {
	deliverers []Deliverer
	cfg        Config
	logger     *slog.Logger
}

// NewService creates a Service delivering to deliverers.
func NewService(deliverers []Deliverer, cfg Config, logger *slog.Logger) *Service {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaultSubjectPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deliverers: deliverers, cfg: cfg, logger: logger}
}

// Channels returns the names of the configured channels.
func (s *Service) Channels() []string {
	names := make([]string, 0, len(s.deliverers))
	for _, d := range s.deliverers {
		names = append(names, d.Name())
	}
	return names
}

// ChannelStatus is the health of one channel.
type ChannelStatus struct {
	Name        string `json:"name"`
	CircuitOpen bool   `json:"circuit_breaker_open"`
}

// Status reports every channel. Channels without a circuit breaker are
// never open.
func (s *Service) Status() []ChannelStatus {
	out := make([]ChannelStatus, 0, len(s.deliverers))
	for _, d := range s.deliverers {
		st := ChannelStatus{Name: d.Name()}
		if cb, ok := d.(interface{ CircuitOpen() bool }); ok {
			st.CircuitOpen = cb.CircuitOpen()
		}
		out = append(out, st)
	}
	return out
}

// Without returns a copy of s that skips the named channel.
func (s *Service) Without(name string) *Service {
	kept := make([]Deliverer, 0, len(s.deliverers))
	for _, d := range s.deliverers {
		if d.Name() != name {
			kept = append(kept, d)
		}
	}
	return &Service{deliverers: kept, cfg: s.cfg, logger: s.logger}
}

// DeliverAll renders alerts into one digest message and delivers it to
// every channel concurrently. It waits for all channels and returns the
// joined channel errors. No alerts means no delivery.
func (s *Service) DeliverAll(ctx context.Context, alerts []monitor.Alert) ([]Result, error) {
	if len(alerts) == 0 {
		return nil, nil
	}
	if len(s.deliverers) == 0 {
		s.logger.Warn("alerts pending but no notification channel configured",
			slog.Int("alerts", len(alerts)))
		return nil, ErrNoChannels
	}

	msg := Render(alerts, s.cfg.SubjectPrefix)
	msg.Recipients = s.cfg.Recipients
	requestID := uuid.New().String()

	s.logger.Info("dispatching alerts",
		slog.String("request_id", requestID),
		slog.Int("alerts", len(alerts)),
		slog.Int("channels", len(s.deliverers)))

	results := make([]Result, len(s.deliverers))
	var wg sync.WaitGroup
	for i, d := range s.deliverers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.deliver(ctx, requestID, d, msg, len(alerts))
		}()
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Channel, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (s *Service) deliver(ctx context.Context, requestID string, d Deliverer, msg notifier.Message, alerts int) (res Result) {
	res.Channel = d.Name()
	start := time.Now()
	logger := s.logger.With(
		slog.String("request_id", requestID),
		slog.String("channel", d.Name()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in notification channel",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Duration = time.Since(start)
		recordDelivery(res.Channel, alerts, res.Duration, res.Err)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := d.Deliver(ctx, msg); err != nil {
		logger.Warn("alert delivery failed", slog.Any("error", err))
		res.Err = err
		return res
	}
	logger.Info("alerts delivered", slog.Int("alerts", alerts))
	return res
}

// Render builds the digest message for alerts.
func Render(alerts []monitor.Alert, prefix string) notifier.Message {
	var subject string
	if len(alerts) == 1 {
		subject = alerts[0].Subject()
	} else {
		streaks, overrides := 0, 0
		for _, a := range alerts {
			switch a.Kind {
			case monitor.KindFailureStreak:
				streaks++
			case monitor.KindOverrideUsage:
				overrides++
			}
		}
		subject = fmt.Sprintf("%d alerts (%d failing jobs, %d override warnings)", len(alerts), streaks, overrides)
	}
	if prefix != "" {
		subject = prefix + " " + subject
	}

	var b strings.Builder
	for i, a := range alerts {
		if i > 0 {
			b.WriteString("\n")
		}
		writeAlert(&b, a)
	}
	return notifier.Message{Subject: subject, Body: b.String()}
}

func writeAlert(b *strings.Builder, a monitor.Alert) {
	field := func(k, v string) { fmt.Fprintf(b, "  %-10s %s\n", k+":", v) }

	fmt.Fprintf(b, "%s  job %s\n", a.Kind, a.JobID)
	if a.SourceURL != "" {
		field("source", a.SourceURL)
	}
	switch a.Kind {
	case monitor.KindFailureStreak:
		field("streak", fmt.Sprintf("%d consecutive failures", a.Streak))
		if a.Code != "" {
			field("code", a.Code)
		}
		field("error", a.Error)
		if a.LastGoodAt != nil {
			field("last ok", a.LastGoodAt.UTC().Format(time.RFC3339))
		} else {
			field("last ok", "never")
		}
	case monitor.KindOverrideUsage:
		field("override", a.OverrideKey)
		field("uses", fmt.Sprintf("%d in the last %s", a.Count, a.Window))
	}
	field("at", a.At.UTC().Format(time.RFC3339))
}
