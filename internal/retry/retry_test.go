package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"db-sync/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("connection reset")

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond}, isFlaky, "select",
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errFlaky
			}
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDoExhausted(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}, isFlaky, "insert",
		func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, errFlaky
		})

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestDoPermanentErrorIsNotRetried(t *testing.T) {
	permanent := errors.New("duplicate key")
	calls := 0
	_, err := retry.Do(context.Background(), retry.DefaultPolicy, isFlaky, "insert",
		func(context.Context) (int, error) {
			calls++
			return 0, permanent
		})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry.Do(ctx, retry.Policy{MaxRetries: 5, BaseDelay: time.Hour}, isFlaky, "select",
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errFlaky
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelayIsLinearInAttempt(t *testing.T) {
	p := retry.Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))
}
