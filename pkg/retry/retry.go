// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, fraction of the delay added or removed at random
}

// DefaultConfig returns 3 retries starting at 1s, doubling, capped at 10m.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Minute,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// RetryableError is implemented by errors that declare their own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err declares itself transient. Errors that do
// not implement RetryableError are never retried.
func IsRetryable(err error) bool {
	var r RetryableError
	return errors.As(err, &r) && r.IsRetryable()
}

// Backoff returns the delay before retry number attempt (0-based), without jitter.
func (c *Config) Backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.Multiplier
		if time.Duration(delay) >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Hook is called before each wait with the failed attempt number and its error.
type Hook func(attempt int, err error, wait time.Duration)

// Do calls fn until it succeeds, returns an error rejected by shouldRetry, or
// runs out of retries. The last error is returned. Waiting honors ctx.
func Do(ctx context.Context, cfg *Config, shouldRetry func(error) bool, onRetry Hook, fn func(attempt int) error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}

		wait := applyJitter(cfg.Backoff(attempt), cfg.JitterFactor)
		if onRetry != nil {
			onRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func(attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, shouldRetry, nil, func(attempt int) error {
		r, err := fn(attempt)
		result = r
		return err
	})
	return result, err
}
