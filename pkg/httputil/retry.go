package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks a transient failure (timeout, connection reset, 5xx,
// 429) that [Retry] should attempt again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a *RetryableError. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Retry runs fn until it succeeds or attempts are exhausted.
//
// Only errors marked with [Retryable] are attempted again; any other error
// is returned at once. The wait between attempts starts at delay and
// doubles each time.
//
// Parameters:
//   - attempts: total number of calls to fn. Values below 1 mean 1.
//   - delay: wait before the second attempt.
//
// Returns nil on the first success, ctx.Err() if the context ends while
// waiting, and otherwise the error of the last attempt.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

// RetryWithBackoff is [Retry] with 3 attempts starting at one second.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, 3, time.Second, fn)
}
