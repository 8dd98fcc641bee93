// Package retry runs upstream calls under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned by upstream clients when the server answers 429.
// RetryAfter is the server-suggested wait, zero when none was given.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// IsRateLimited reports whether err wraps a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds how a call is retried.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int
	// Retryable decides whether err deserves another attempt.
	Retryable func(err error) bool
	// Backoff returns the wait before attempt+1, attempt starting at 1.
	Backoff func(attempt int, err error) time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
	// OnRetry is called before each wait, if set.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// RateLimitPolicy retries a rate-limited call once. The wait is the server
// hint capped at maxWait, or defaultWait when the server gave none.
func RateLimitPolicy(defaultWait, maxWait time.Duration) Policy {
	return Policy{
		MaxAttempts: 2,
		Retryable:   IsRateLimited,
		Backoff: func(_ int, err error) time.Duration {
			var rl *RateLimitError
			if errors.As(err, &rl) && rl.RetryAfter > 0 {
				if rl.RetryAfter > maxWait {
					return maxWait
				}
				return rl.RetryAfter
			}
			return defaultWait
		},
	}
}

// Exponential doubles base per attempt up to max.
func Exponential(base, max time.Duration) func(int, error) time.Duration {
	return func(attempt int, _ error) time.Duration {
		delay := base
		for i := 1; i < attempt; i++ {
			if delay >= max/2 {
				return max
			}
			delay *= 2
		}
		if delay > max {
			return max
		}
		return delay
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || p.Retryable == nil || !p.Retryable(err) {
			return err
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt, err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return fmt.Errorf("retry wait aborted: %w (last error: %v)", serr, err)
		}
	}
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
