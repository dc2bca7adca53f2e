package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient timeout")

func newTestPolicy(maxAttempts int, step time.Duration, slept *[]time.Duration) *Policy {
	p := NewPolicy(maxAttempts, step, func(err error) bool {
		return errors.Is(err, errTransient)
	})
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(3, 500*time.Millisecond, &slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(3, 500*time.Millisecond, &slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Linear backoff: step, then 2*step.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, slept)
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(3, 100*time.Millisecond, &slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
	// No sleep after the final attempt.
	assert.Len(t, slept, 2)
}

func TestDoDoesNotRetryTerminalErrors(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(3, 100*time.Millisecond, &slept)

	terminal := errors.New("duplicate email")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return terminal
	})

	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	p := NewPolicy(3, time.Hour, func(error) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoValueReturnsResult(t *testing.T) {
	var slept []time.Duration
	p := newTestPolicy(3, 100*time.Millisecond, &slept)

	calls := 0
	id, err := DoValue(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "op-123", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "op-123", id)
	assert.Equal(t, 2, calls)
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(0, 0, nil)
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBackoffStep, p.BackoffStep)
}
