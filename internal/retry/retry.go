package retry

import (
	"context"
	"time"
)

const (
	// DefaultMaxAttempts bounds a single fallible operation.
	DefaultMaxAttempts = 3
	// DefaultBackoffStep is multiplied by the attempt number, so waits
	// grow linearly: step, 2*step, ...
	DefaultBackoffStep = 500 * time.Millisecond
)

// Policy retries one fallible operation a bounded number of times with
// linear backoff. Only errors the IsRetryable predicate accepts are
// retried; anything else is returned on first failure.
type Policy struct {
	MaxAttempts int
	BackoffStep time.Duration
	IsRetryable func(error) bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy builds a policy with the given bounds. Non-positive values
// fall back to the defaults.
func NewPolicy(maxAttempts int, backoffStep time.Duration, isRetryable func(error) bool) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoffStep <= 0 {
		backoffStep = DefaultBackoffStep
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BackoffStep: backoffStep,
		IsRetryable: isRetryable,
		sleep:       sleepCtx,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or
// the attempt budget is spent. The last error is returned.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, time.Duration(attempt)*p.BackoffStep); err != nil {
			return err
		}
	}
	return lastErr
}

// DoValue is Do for operations producing a value.
func DoValue[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes
// first. The backoff is a scheduled suspension, never a spin.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
