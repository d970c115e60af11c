package retry

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"syscall"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Base: time.Millisecond, Cap: 5 * time.Millisecond, Factor: 2}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 503, Detail: "relay busy"}
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	cause := &StatusError{Code: 502, Detail: "bad gateway"}
	err := Do(context.Background(), fastPolicy(2), func() error {
		calls++
		return cause
	})
	if !errors.Is(err, cause) {
		t.Errorf("expected the last failure to be wrapped, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_PermanentFailureStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return &StatusError{Code: 404, Detail: "unknown webhook"}
	})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 404 {
		t.Errorf("expected the 404 to be returned, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_HonoursRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Do(context.Background(), fastPolicy(2), func() error {
		calls++
		if calls == 1 {
			return &StatusError{Code: 429, Detail: "slow down", RetryAfter: 40 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected to wait at least RetryAfter, waited %v", elapsed)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 3, Base: time.Hour, Cap: time.Hour, Factor: 2}

	err := Do(ctx, p, func() error {
		cancel()
		return &StatusError{Code: 500, Detail: "oops"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDo_ZeroAttemptsStillTriesOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func() error {
		calls++
		return errors.New("permanent")
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{Base: time.Second, Cap: 5 * time.Second, Factor: 2}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{n: 1, want: time.Second},
		{n: 2, want: 2 * time.Second},
		{n: 3, want: 4 * time.Second},
		{n: 4, want: 5 * time.Second},
		{n: 10, want: 5 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.n); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: false},
		{name: "connection refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: true},
		{name: "connection reset", err: syscall.ECONNRESET, want: true},
		{name: "server error", err: &StatusError{Code: 500}, want: true},
		{name: "rate limited", err: &StatusError{Code: 429}, want: true},
		{name: "request timeout", err: &StatusError{Code: 408}, want: true},
		{name: "forbidden", err: &StatusError{Code: 403}, want: false},
		{name: "smtp mailbox busy", err: &textproto.Error{Code: 450, Msg: "mailbox busy"}, want: true},
		{name: "smtp no such user", err: &textproto.Error{Code: 550, Msg: "no such user"}, want: false},
		{name: "plain error", err: errors.New("marshal failed"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	err := &StatusError{Code: 503, Detail: "slack API error: unavailable"}
	if got := err.Error(); got != "HTTP 503: slack API error: unavailable" {
		t.Errorf("unexpected message %q", got)
	}
}
