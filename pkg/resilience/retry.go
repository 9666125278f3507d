package resilience

import (
	"context"
	"time"
)

// RetryConfig controls RetryWithBackoff. The delay before retry n is
// BaseDelay × 2^n, capped at MaxDelay when MaxDelay > 0.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// RetryWithBackoff runs op up to 1+MaxRetries times. It stops
// immediately when retryable reports false for the returned error, or
// when the context is done. The last error is returned.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error, retryable func(error) bool) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxRetries {
			return lastErr
		}

		wait := cfg.BaseDelay << uint(attempt)
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
