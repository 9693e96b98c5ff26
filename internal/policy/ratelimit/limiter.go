// Package ratelimit enforces the per-minute and per-day search query budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

// DefaultQueriesPerDay applies when no daily cap is configured.
const DefaultQueriesPerDay = 10000

// ErrQuotaExhausted is returned once the daily query cap has been reached.
var ErrQuotaExhausted = errors.New("daily query quota exhausted")

// Config holds query limiter configuration.
type Config struct {
	QueriesPerMinute int
	QueriesPerDay    int
}

// Limiter throttles search calls and counts them against a daily cap. The
// counter is process-local and starts at zero on every run.
type Limiter struct {
	mu        sync.Mutex
	interval  time.Duration
	maxPerDay int
	issued    int
	pause     func(ctx context.Context, d time.Duration) error
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	var interval time.Duration
	if cfg.QueriesPerMinute > 0 {
		interval = time.Minute / time.Duration(cfg.QueriesPerMinute)
	}
	maxPerDay := cfg.QueriesPerDay
	if maxPerDay <= 0 {
		maxPerDay = DefaultQueriesPerDay
	}
	metrics.SetQuotaRemaining(maxPerDay)
	return &Limiter{
		interval:  interval,
		maxPerDay: maxPerDay,
		pause:     sleep,
	}
}

// Acquire blocks for the per-query interval and then consumes one query from
// the daily budget. It returns ErrQuotaExhausted without waiting once the
// budget is spent.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.Exhausted() {
		return ErrQuotaExhausted
	}
	if l.interval > 0 {
		start := time.Now()
		if err := l.pause(ctx, l.interval); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		metrics.ObserveRateLimitDelay("search", time.Since(start))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.issued >= l.maxPerDay {
		return ErrQuotaExhausted
	}
	l.issued++
	metrics.SetQuotaRemaining(l.maxPerDay - l.issued)
	return nil
}

// Exhausted reports whether the daily budget has been spent.
func (l *Limiter) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issued >= l.maxPerDay
}

// Issued returns the number of queries admitted so far.
func (l *Limiter) Issued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issued
}

// Interval returns the enforced pause before each query.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
