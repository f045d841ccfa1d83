package provider

import (
	"context"
	"time"
)

// BackoffConfig configures retry backoff for retryable errors.
// One policy covers all external dependency calls (provider APIs, screening
// API); per-dependency overrides are set at construction time.
type BackoffConfig struct {
	InitialDelay time.Duration // Initial delay before first retry (default: 100ms)
	MaxDelay     time.Duration // Maximum delay between retries (default: 2s)
	MaxRetries   int           // Maximum number of retries (default: 3)
	Multiplier   float64       // Multiplier for exponential backoff (default: 2.0)
}

// DefaultBackoff returns the standard retry policy.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxRetries:   3,
		Multiplier:   2.0,
	}
}

// withDefaults fills zero values with the standard policy.
func (b BackoffConfig) withDefaults() BackoffConfig {
	def := DefaultBackoff()
	if b.InitialDelay == 0 {
		b.InitialDelay = def.InitialDelay
	}
	if b.MaxDelay == 0 {
		b.MaxDelay = def.MaxDelay
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = def.MaxRetries
	}
	if b.Multiplier == 0 {
		b.Multiplier = def.Multiplier
	}
	return b
}

// Retry runs fn, retrying with exponential backoff while the returned error
// is retryable (per IsRetryable). The final error is returned unchanged so
// callers can still inspect its category.
func Retry(ctx context.Context, cfg BackoffConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var err error
	delay := cfg.InitialDelay
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt >= cfg.MaxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
