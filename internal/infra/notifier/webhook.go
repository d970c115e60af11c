package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pagefeed/internal/resilience/circuitbreaker"
	"pagefeed/internal/resilience/retry"
)

// webhook posts JSON payloads to a chat webhook with rate limiting, retry
// and a circuit breaker.
type webhook struct {
	service    string
	url        string
	httpClient *http.Client
	limiter    *RateLimiter
	breaker    *circuitbreaker.Breaker
	retry      retry.Policy
}

func newWebhook(service, url string, timeout time.Duration, limiter *RateLimiter, opts []Option) *webhook {
	o := applyOptions(opts)
	w := &webhook{
		service:    service,
		url:        url,
		httpClient: o.httpClient,
		limiter:    limiter,
		breaker:    circuitbreaker.New(circuitbreaker.WebhookPolicy(service)),
		retry:      retry.WebhookPolicy(),
	}
	if w.httpClient == nil {
		w.httpClient = &http.Client{Timeout: timeout}
	}
	if o.limiter != nil {
		w.limiter = o.limiter
	}
	if o.retry != nil {
		w.retry = *o.retry
	}
	return w
}

// send delivers payload. Each attempt waits for the rate limiter first.
func (w *webhook) send(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	requestID := uuid.New().String()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("channel", w.service))

	attempt := 0
	err = w.breaker.Do(func() error {
		return retry.Do(ctx, w.retry, func() error {
			attempt++
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
			return w.post(ctx, data)
		})
	})
	if err != nil {
		logger.Warn("webhook delivery failed",
			slog.Int("attempts", attempt),
			slog.Any("error", err))
		return fmt.Errorf("%s webhook: %w", w.service, err)
	}
	logger.Info("webhook delivery succeeded", slog.Int("attempts", attempt))
	return nil
}

func (w *webhook) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError(w.service, resp, body)
}
