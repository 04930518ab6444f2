package agents

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultRetryAttempts is the number of retries after the first try.
	DefaultRetryAttempts = 2

	retryBaseDelay = 200 * time.Millisecond
)

// WithRetry runs fn, retrying transient failures up to retries extra
// attempts with exponential backoff (200ms, 800ms). Permanent errors
// and context cancellation return immediately.
func WithRetry[T any](ctx context.Context, agent string, retries int, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if retries < 0 {
		retries = DefaultRetryAttempts
	}

	delay := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying external call",
				"agent", agent,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				// Deadline expiry is a timeout; caller cancellation is not.
				return zero, NewError(agent, ErrorKindInternal, ctx.Err())
			}
			delay *= 4
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		ae := AsAgentError(agent, err)
		if !ae.Retryable() || ctx.Err() != nil {
			return zero, ae
		}
	}
	return zero, AsAgentError(agent, lastErr)
}
