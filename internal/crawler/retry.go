package crawler

import (
	"context"
	"errors"
	"time"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Fetcher implementations wrap transient failures (timeouts, connection
// resets, 5xx responses) with this type; storage and archive-structural
// failures are never wrapped and therefore never retried.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as retryable. Returns nil for a nil err.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Retry executes fn up to attempts times with exponential backoff. Only
// errors wrapped with RetryableError are retried; other errors are returned
// immediately. Returns the last error if all attempts fail, or ctx.Err() if
// the context finishes while waiting to retry.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error

	for i := 0; i < attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.As(err, new(*RetryableError)) {
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
