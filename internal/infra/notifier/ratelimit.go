package notifier

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces the requests sent to one alert endpoint. Deliveries
// wait for a slot instead of failing, so a burst of alerts at the end of a
// pass drains at the endpoint's pace.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows burst requests at once, then one request per every.
func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

// Wait blocks until a request may be sent. It fails when ctx ends first or
// its deadline is too close for the next slot.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
