package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstPassesImmediately(t *testing.T) {
	l := NewRateLimiter(time.Hour, 3)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_PacesAfterBurst(t *testing.T) {
	l := NewRateLimiter(30*time.Millisecond, 1)

	require.NoError(t, l.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiter_DeadlineTooClose(t *testing.T) {
	l := NewRateLimiter(time.Hour, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestRateLimiter_CanceledContext(t *testing.T) {
	l := NewRateLimiter(time.Hour, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestNewRateLimiter_ClampsBurst(t *testing.T) {
	l := NewRateLimiter(time.Hour, 0)
	assert.NoError(t, l.Wait(context.Background()), "a zero burst still admits one request")
}
