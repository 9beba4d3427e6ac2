package backend

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the adapter-level retry loop for transient failures.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts int
	// BaseDelay is scaled by 2^attempt between attempts.
	BaseDelay time.Duration
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy waits 1s then 2s across three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Delay returns the backoff after the given zero-based failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Delay(p.MaxAttempts)
	return b
}

// Retry runs fn until it succeeds, fails permanently, or attempts run out.
// Only transient backend errors are retried; the last error is returned as-is,
// also when ctx ends during a backoff wait.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	op := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			if lastErr != nil {
				return zero, backoff.Permanent(lastErr)
			}
			return zero, backoff.Permanent(err)
		}
		result, err := fn()
		if err != nil {
			lastErr = err
			if !IsTransient(err) {
				return result, backoff.Permanent(err)
			}
		}
		return result, err
	}

	attempt := 0
	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			attempt++
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, err, delay)
			}
		}),
	)
	if err != nil && lastErr != nil && ctx.Err() != nil {
		return result, lastErr
	}
	return result, err
}
