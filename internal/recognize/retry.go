package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retrier runs a call up to MaxRetries+1 times, sleeping Delay between
// attempts. Only RetryableError failures are retried.
type Retrier struct {
	MaxRetries int
	Delay      time.Duration
	Log        *slog.Logger
}

// Do calls fn until it succeeds, fails permanently or runs out of attempts.
// Failures are returned wrapped in ErrRecognitionFailed; context
// cancellation is returned as is.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context) (string, error), attrs ...any) (string, error) {
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("retrying recognition",
				append(attrs[:len(attrs):len(attrs)], "attempt", attempt, "max_retries", r.MaxRetries, "error", lastErr)...)
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := fn(ctx)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if !IsRetryable(err) {
			return "", fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrRecognitionFailed, r.MaxRetries+1, lastErr)
}
