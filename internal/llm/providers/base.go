// Package providers implements llm.Client for each supported provider.
package providers

import (
	"context"
	"math"
	"time"
)

// retrier holds the common retry-with-backoff policy shared by every
// provider adapter: a bounded number of attempts with exponential backoff,
// aborted immediately on a non-retryable error or context cancellation.
type retrier struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

func newRetrier(name string, maxRetries int, retryDelay time.Duration) retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return retrier{name: name, maxRetries: maxRetries, retryDelay: retryDelay}
}

// run invokes op until it succeeds, isRetryable(err) returns false, or the
// retry budget is exhausted. It returns the last error seen.
func (r retrier) run(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.retryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
