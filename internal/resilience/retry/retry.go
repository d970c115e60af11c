// Package retry re-attempts alert deliveries with exponential backoff.
// Feed refreshes never go through it: a failed refresh waits for the next
// scheduled pass.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/textproto"
	"syscall"
	"time"
)

// Policy bounds the attempts made for one delivery.
type Policy struct {
	// Attempts is the total number of tries, the first included.
	Attempts int
	// Base is the wait after the first failure.
	Base time.Duration
	// Cap bounds every wait.
	Cap time.Duration
	// Factor multiplies the wait after each failure.
	Factor float64
	// Jitter adds up to this fraction of the wait at random.
	Jitter float64
}

// WebhookPolicy returns the policy for chat webhooks. Providers rate limit
// aggressively, so attempts are few and slow.
func WebhookPolicy() Policy {
	return Policy{Attempts: 2, Base: 5 * time.Second, Cap: 30 * time.Second, Factor: 2, Jitter: 0.1}
}

// EmailPolicy returns the policy for SMTP delivery.
func EmailPolicy() Policy {
	return Policy{Attempts: 3, Base: 2 * time.Second, Cap: 20 * time.Second, Factor: 2, Jitter: 0.1}
}

// Backoff returns the wait after failed attempt n (1-based), before jitter.
func (p Policy) Backoff(n int) time.Duration {
	d := p.Base
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// StatusError is a non-2xx response from an alert endpoint.
type StatusError struct {
	Code   int
	Detail string
	// RetryAfter is the delay the endpoint asked for, if any.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Detail)
}

// Do calls deliver until it succeeds, fails permanently, or the attempts
// run out. A StatusError's RetryAfter stretches the wait when it is longer
// than the backoff.
func Do(ctx context.Context, p Policy, deliver func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 1; ; n++ {
		if err = deliver(); err == nil {
			if n > 1 {
				slog.Info("alert delivered after retry", slog.Int("attempt", n))
			}
			return nil
		}
		if !Transient(err) {
			return err
		}
		if n == attempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
		}

		wait := withJitter(p.Backoff(n), p.Jitter)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			wait = se.RetryAfter
		}
		slog.Warn("alert delivery failed, retrying",
			slog.Int("attempt", n),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", wait),
			slog.Any("error", err))

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
}

// Transient reports whether a failed delivery may succeed if repeated:
// network timeouts and resets, 408/429/5xx responses and SMTP 4xx replies.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}

	var smtpErr *textproto.Error
	if errors.As(err, &smtpErr) {
		return smtpErr.Code >= 400 && smtpErr.Code < 500
	}
	return false
}

func withJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	if fraction > 1 {
		fraction = 1
	}
	// #nosec G404 -- backoff jitter needs no cryptographic randomness.
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
