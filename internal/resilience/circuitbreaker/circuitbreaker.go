// Package circuitbreaker guards alert delivery channels with
// github.com/sony/gobreaker. A channel whose deliveries keep failing is
// skipped for a cool-down period instead of being retried on every
// scheduler pass.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"pagefeed/internal/observability/metrics"
)

// ErrOpen is returned by Do while the channel's circuit rejects deliveries.
var ErrOpen = errors.New("alert channel circuit is open")

// Policy configures the breaker of one alert channel.
type Policy struct {
	// Channel names the guarded channel in logs and metrics.
	Channel string
	// TripAfter is the number of consecutive failed deliveries that opens
	// the circuit.
	TripAfter uint32
	// Cooldown is how long an open circuit rejects deliveries before a
	// single probe is let through.
	Cooldown time.Duration
	// Window clears the failure counts while the circuit is closed. Zero
	// keeps them until the next success.
	Window time.Duration
}

// WebhookPolicy returns the policy for a chat webhook channel.
func WebhookPolicy(channel string) Policy {
	return Policy{
		Channel:   channel,
		TripAfter: 3,
		Cooldown:  5 * time.Minute,
		Window:    10 * time.Minute,
	}
}

// EmailPolicy returns the policy for the SMTP relay. Relays recover slowly,
// so the cool-down is longer.
func EmailPolicy() Policy {
	return Policy{
		Channel:   "email",
		TripAfter: 3,
		Cooldown:  10 * time.Minute,
		Window:    30 * time.Minute,
	}
}

// Breaker is the circuit breaker of one alert channel.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	channel string
}

// New creates a closed Breaker for p.
func New(p Policy) *Breaker {
	if p.TripAfter == 0 {
		p.TripAfter = 1
	}
	settings := gobreaker.Settings{
		Name:        p.Channel,
		MaxRequests: 1,
		Interval:    p.Window,
		Timeout:     p.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= p.TripAfter
		},
		// A delivery abandoned because the pass ended says nothing about
		// the channel.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("alert channel circuit changed",
				slog.String("channel", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.RecordCircuitState(name, int(to))
		},
	}
	metrics.RecordCircuitState(p.Channel, int(gobreaker.StateClosed))
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), channel: p.Channel}
}

// Do runs one delivery through the breaker. Rejections, including extra
// calls while a half-open probe is in flight, are reported as ErrOpen.
func (b *Breaker) Do(deliver func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, deliver()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// Open reports whether deliveries are currently rejected.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Channel returns the guarded channel name.
func (b *Breaker) Channel() string {
	return b.channel
}
