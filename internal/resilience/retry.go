// Package resilience provides retry, circuit-breaker and rate-limiting
// primitives for calls to external services.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls the retry loop.
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the first call, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries   int
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration

	// Retryable decides whether an error is worth retrying. Permanent
	// errors (bad credentials, quota exhaustion) must return false. A nil
	// predicate retries everything.
	Retryable func(error) bool

	// OnAttempt, when set, is invoked after each failed attempt with the
	// 1-based attempt number and the error.
	OnAttempt func(attempt int, err error)
}

// DefaultRetryConfig matches the pipeline's external-call policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		Factor:       2,
		MaxDelay:     10 * time.Second,
	}
}

// Retry runs op with exponential backoff. A non-retryable error
// short-circuits after a single attempt.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.Multiplier = cfg.Factor
	b.MaxInterval = cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()

	attempt := 0
	wrapped := func() (T, error) {
		v, err := op()
		if err != nil {
			attempt++
			if cfg.OnAttempt != nil {
				cfg.OnAttempt(attempt, err)
			}
			if cfg.Retryable != nil && !cfg.Retryable(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		}
		return v, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)
	return backoff.RetryWithData(wrapped, policy)
}
