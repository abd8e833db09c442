// Package retry implements the bounded-retry combinator used by both
// submission paths.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// BackoffFunc returns the delay to wait after the given failed attempt
// (1-based) before starting the next one.
type BackoffFunc func(attempt int) time.Duration

// Policy declares a retry loop once.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff computes the wait between attempts. Nil means no wait.
	Backoff BackoffFunc
	// Retryable decides whether a failed attempt may be retried. Nil retries
	// every error.
	Retryable func(error) bool
	// OnRetry is called before each wait. Optional.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Exponential returns base*2^attempt capped at max, matching the relay
// path's min(base*2^n, cap) schedule.
func Exponential(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		d := base
		for i := 0; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Fixed returns a constant interval.
func Fixed(interval time.Duration) BackoffFunc {
	return func(int) time.Duration { return interval }
}

// WithJitter spreads each delay by +/- fraction.
func WithJitter(fn BackoffFunc, fraction float64) BackoffFunc {
	return func(attempt int) time.Duration {
		d := fn(attempt)
		if fraction <= 0 || d <= 0 {
			return d
		}
		jitter := time.Duration(float64(d) * fraction * (rand.Float64()*2 - 1))
		return d + jitter
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// cap is reached, or ctx is done. The attempt number passed to fn is 1-based.
// The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
