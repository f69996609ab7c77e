package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls WithRetry.
// Zero values fall back to 3 attempts starting at 1s and doubling.
type RetryConfig struct {
	// MaxAttempts counts the first call too.
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// OnRetry runs after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, next time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = time.Second
	}
	if out.Multiplier <= 1 {
		out.Multiplier = 2
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 2 * time.Minute
	}
	return out
}

// WithRetry invokes op up to MaxAttempts times with exponential backoff and no jitter.
// The last error from op is returned unchanged. If ctx ends while waiting, ctx.Err() is returned.
// op must be safe to repeat.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(cfg.Multiplier),
		backoff.WithMaxInterval(cfg.MaxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1)), ctx)

	attempt := 0
	run := func() (T, error) {
		attempt++
		return op(ctx)
	}
	notify := func(err error, next time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, next)
		}
	}
	return backoff.RetryNotifyWithData(run, b, notify)
}
