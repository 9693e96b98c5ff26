package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterDailyCap(t *testing.T) {
	t.Parallel()

	l := New(Config{QueriesPerDay: 3})
	ctx := context.Background()

	admitted := 0
	for i := 0; i < 5; i++ {
		err := l.Acquire(ctx)
		if err == nil {
			admitted++
			continue
		}
		require.ErrorIs(t, err, ErrQuotaExhausted)
	}
	assert.Equal(t, 3, admitted)
	assert.Equal(t, 3, l.Issued())
	assert.True(t, l.Exhausted())
}

func TestLimiterDefaultCap(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	assert.Equal(t, DefaultQueriesPerDay, l.maxPerDay)
	assert.Zero(t, l.Interval())
}

func TestLimiterPausesBeforeEveryQuery(t *testing.T) {
	t.Parallel()

	l := New(Config{QueriesPerMinute: 30, QueriesPerDay: 10})
	require.Equal(t, 2*time.Second, l.Interval())

	var waits []time.Duration
	l.pause = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, waits)
}

func TestLimiterNoPauseWhenExhausted(t *testing.T) {
	t.Parallel()

	l := New(Config{QueriesPerMinute: 60, QueriesPerDay: 1})
	calls := 0
	l.pause = func(_ context.Context, _ time.Duration) error {
		calls++
		return nil
	}
	require.NoError(t, l.Acquire(context.Background()))
	require.ErrorIs(t, l.Acquire(context.Background()), ErrQuotaExhausted)
	assert.Equal(t, 1, calls)
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{QueriesPerMinute: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, l.Issued())
}

func TestLimiterRealSleep(t *testing.T) {
	t.Parallel()

	l := New(Config{QueriesPerMinute: 1200})
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
