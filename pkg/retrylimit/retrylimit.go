// Package retrylimit provides an adaptive rate limiter with retry,
// used around flaky upstream lookups. The limit grows on success and
// backs off on errors.
package retrylimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxAttempts = 3

// AdaptiveLimiter manages a rate limit that adjusts automatically based
// on the outcome of requests. Thread-safe.
type AdaptiveLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	minLimit rate.Limit
	maxLimit rate.Limit
	stepUp   rate.Limit
	backoff  float64
}

// NewAdaptiveLimiter builds a limiter starting at initial req/s,
// clamped to [min, max], raised by stepUp per success and multiplied by
// backoff (0 < backoff < 1) per failure.
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, backoff float64) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, 1),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		backoff:  backoff,
	}
}

func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Limit returns the current rate.
func (l *AdaptiveLimiter) Limit() rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter.Limit()
}

// OnSuccess nudges the limit up.
func (l *AdaptiveLimiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.limiter.Limit() + l.stepUp
	if next > l.maxLimit {
		next = l.maxLimit
	}
	l.limiter.SetLimit(next)
}

// OnError backs the limit off.
func (l *AdaptiveLimiter) OnError() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := rate.Limit(float64(l.limiter.Limit()) * l.backoff)
	if next < l.minLimit {
		next = l.minLimit
	}
	l.limiter.SetLimit(next)
}

// WithRetry runs fn up to defaultMaxAttempts times, waiting on the
// limiter before each attempt and adding a small jitter between
// attempts. The last error is returned when all attempts fail.
func WithRetry(ctx context.Context, lim *AdaptiveLimiter, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < defaultMaxAttempts; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Intn(250)) * time.Millisecond
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := lim.Wait(ctx); err != nil {
			return err
		}

		if err := fn(); err != nil {
			lim.OnError()
			lastErr = err
			continue
		}
		lim.OnSuccess()
		return nil
	}
	return fmt.Errorf("all %d attempts failed: %w", defaultMaxAttempts, lastErr)
}
