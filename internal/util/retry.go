package util

import (
	"context"
	"time"
)

// RetryPolicy is a bounded retry policy with a fixed delay between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// Retryable reports whether err may be retried. A nil Retryable treats
	// every error as retryable.
	Retryable func(err error) bool

	// OnRetry, if set, is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, or
// MaxAttempts calls have been made. It returns the last error. Context
// cancellation interrupts the delay between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		// Don't sleep after the last failed attempt.
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}
	}

	return err
}

// Retry calls fn up to maxAttempts times, waiting delay between attempts.
// It returns nil on the first successful call, or the last error if all
// attempts fail.
func Retry(ctx context.Context, maxAttempts int, delay time.Duration, fn func() error) error {
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: delay}.Do(ctx, fn)
}
