package quill

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures the retry loop around non-streaming backend calls.
type RetryConfig struct {
	// MaxAttempts includes the initial attempt. Values <= 1 disable retries.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// DefaultRetryConfig is 3 attempts, 1 second apart.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	Delay:       time.Second,
}

// sleepFunc pauses for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry runs fn until it succeeds, returns a non-retryable error, or
// the attempt budget is spent. fn receives the 1-based attempt number.
func withRetry(ctx context.Context, cfg RetryConfig, sleep sleepFunc, fn func(attempt int) error) (int, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !retryable(err) {
			return attempt, err
		}
		if attempt < attempts {
			if err := sleep(ctx, cfg.Delay); err != nil {
				return attempt, fmt.Errorf("quill: retry wait: %w", err)
			}
		}
	}
	return attempts, lastErr
}
