// Package notifier delivers operator alerts over chat webhooks (Slack,
// Discord) and email (SMTP).
//
// Every deliverer applies its own rate limiting, retries transient failures
// with backoff and sits behind a circuit breaker, so one dead endpoint
// neither blocks nor slows the others.
package notifier

import (
	"net/http"

	"pagefeed/internal/resilience/retry"
)

// Message is one rendered alert notification.
type Message struct {
	Subject string
	Body    string
	// Recipients overrides the configured email recipients. Webhook
	// deliverers ignore it.
	Recipients []string
}

type options struct {
	httpClient *http.Client
	retry      *retry.Policy
	limiter    *RateLimiter
}

// Option customizes a deliverer.
type Option func(*options)

// WithHTTPClient sets the HTTP client used by webhook deliverers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRetry replaces the retry policy.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.retry = &p }
}

// WithRateLimiter replaces the default rate limiter.
func WithRateLimiter(l *RateLimiter) Option {
	return func(o *options) { o.limiter = l }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
