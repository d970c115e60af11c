package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pagefeed/internal/observability/metrics"
)

var errRelayDown = errors.New("relay down")

func TestNew_StartsClosed(t *testing.T) {
	b := New(WebhookPolicy("slack"))

	if b.Channel() != "slack" {
		t.Errorf("expected channel=slack, got %q", b.Channel())
	}
	if b.State() != "closed" {
		t.Errorf("expected initial state=closed, got %q", b.State())
	}
	if b.Open() {
		t.Error("new breaker should not be open")
	}
}

func TestDo_PassesThroughResult(t *testing.T) {
	b := New(WebhookPolicy("slack"))

	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	err := b.Do(func() error { return errRelayDown })
	if !errors.Is(err, errRelayDown) {
		t.Errorf("expected the delivery error, got %v", err)
	}
}

func TestDo_TripsAfterConsecutiveFailures(t *testing.T) {
	p := Policy{Channel: "test-trip", TripAfter: 3, Cooldown: time.Hour}
	b := New(p)

	calls := 0
	fail := func() error { calls++; return errRelayDown }
	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}

	if !b.Open() {
		t.Fatalf("expected open after %d failures, state=%s", p.TripAfter, b.State())
	}
	if err := b.Do(fail); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if calls != 3 {
		t.Errorf("open circuit must not call the channel, got %d calls", calls)
	}
	if got := testutil.ToFloat64(metrics.ChannelCircuitState.WithLabelValues("test-trip")); got != 2 {
		t.Errorf("expected circuit state metric 2, got %v", got)
	}
}

func TestDo_SuccessResetsStreak(t *testing.T) {
	b := New(Policy{Channel: "test-reset", TripAfter: 2, Cooldown: time.Hour})

	_ = b.Do(func() error { return errRelayDown })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errRelayDown })

	if b.Open() {
		t.Error("interleaved success should keep the circuit closed")
	}
}

func TestDo_CanceledDeliveryDoesNotCount(t *testing.T) {
	b := New(Policy{Channel: "test-cancel", TripAfter: 1, Cooldown: time.Hour})

	err := b.Do(func() error { return fmt.Errorf("send: %w", context.Canceled) })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancellation to be returned, got %v", err)
	}
	if b.Open() {
		t.Error("a canceled delivery must not trip the circuit")
	}
}

func TestDo_HalfOpenProbeCloses(t *testing.T) {
	b := New(Policy{Channel: "test-probe", TripAfter: 1, Cooldown: 20 * time.Millisecond})

	_ = b.Do(func() error { return errRelayDown })
	if !b.Open() {
		t.Fatal("expected open circuit")
	}

	time.Sleep(40 * time.Millisecond)
	if b.State() != "half-open" {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("probe should pass, got %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("successful probe should close the circuit, got %s", b.State())
	}
}

func TestPolicies(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
	}{
		{name: "webhook", p: WebhookPolicy("discord")},
		{name: "email", p: EmailPolicy()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.p.TripAfter == 0 {
				t.Error("TripAfter must be positive")
			}
			if tt.p.Cooldown <= 0 {
				t.Error("Cooldown must be positive")
			}
			if tt.p.Channel == "" {
				t.Error("Channel must be set")
			}
		})
	}
}
