package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/aimta/coa-processor/internal/common"
)

// RetryConfig bounds the provider retry loop.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first
	BaseBackoff time.Duration // doubled per attempt
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	return c
}

// withRetry runs fn with exponential backoff. Only transient provider
// errors are retried; non-transient errors (malformed template, invalid
// document, parse failures) surface immediately.
func withRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, fn func() ([]byte, error)) ([]byte, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		raw, err := fn()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !common.IsTransient(err) {
			return nil, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := cfg.BaseBackoff << (attempt - 1)
		logger.Warn("provider call failed, retrying",
			"attempt", attempt, "max_attempts", cfg.MaxAttempts,
			"backoff", backoff, "error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}
