package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtAttemptCap(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(context.Context, int) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}, func(context.Context, int) error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{
		MaxAttempts: 5,
		Backoff:     Fixed(time.Hour),
		OnRetry:     func(int, error, time.Duration) { cancel() },
	}, func(context.Context, int) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func(context.Context, int) error {
		calls++
		return errTransient
	})
	assert.Equal(t, 1, calls)
}

func TestExponential(t *testing.T) {
	fn := Exponential(time.Second, 5*time.Second)

	assert.Equal(t, time.Second, fn(0))
	assert.Equal(t, 2*time.Second, fn(1))
	assert.Equal(t, 4*time.Second, fn(2))
	assert.Equal(t, 5*time.Second, fn(3))
	assert.Equal(t, 5*time.Second, fn(10))
}

func TestWithJitter_StaysInRange(t *testing.T) {
	fn := WithJitter(Fixed(100*time.Millisecond), 0.5)
	for i := 0; i < 50; i++ {
		d := fn(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
