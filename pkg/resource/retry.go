package resource

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errRetryFalse marks a failed boolean attempt.
var errRetryFalse = errors.New("attempt returned false")

// Retry calls fn up to attempts times, sleeping a random delay in
// [0, maxDelay] between attempts. Intermediate failures are swallowed; the
// last error is returned. Nothing in this module retries on its own; callers
// opt in explicitly.
func Retry(ctx context.Context, attempts int, maxDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = maxDelay / 2
	b.RandomizationFactor = 1
	b.Multiplier = 1
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	return backoff.Retry(fn, policy)
}

// RetryBool is Retry for callbacks that report success as a boolean.
func RetryBool(ctx context.Context, attempts int, maxDelay time.Duration, fn func() bool) bool {
	err := Retry(ctx, attempts, maxDelay, func() error {
		if fn() {
			return nil
		}
		return errRetryFalse
	})
	return err == nil
}
