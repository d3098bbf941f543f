package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"decryptrecovery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastBackoff(attempts int) *Backoff {
	return NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	})
}

func TestDefaultBackoffConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	assert.Equal(t, 100*time.Millisecond, config.InitialDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.Multiplier)
	assert.Equal(t, 5, config.MaxAttempts)
	assert.True(t, config.Jitter)
}

func TestFromRetryConfig(t *testing.T) {
	config := FromRetryConfig(models.RetryConfig{InitialBackoffMs: 250, MaxBackoffMs: 4000, MaxAttempts: 7})
	assert.Equal(t, 250*time.Millisecond, config.InitialDelay)
	assert.Equal(t, 4*time.Second, config.MaxDelay)
	assert.Equal(t, 7, config.MaxAttempts)
	assert.True(t, config.Jitter)

	assert.Equal(t, DefaultBackoffConfig(), FromRetryConfig(models.RetryConfig{}))
}

func TestBackoff_Retry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{"success first attempt", 0, 3, false, 1},
		{"success after retries", 2, 3, false, 3},
		{"failure after max attempts", 5, 3, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastBackoff(tt.attempts).Retry(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return errTransient
				}
				return nil
			})

			if tt.wantErr {
				assert.ErrorIs(t, err, errTransient)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestBackoff_RetryWithPredicate(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0

	err := fastBackoff(5).RetryWithPredicate(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errTransient
		}
		return permanent
	}, func(err error) bool { return errors.Is(err, errTransient) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, calls, "non-retryable errors stop immediately")
}

func TestDo_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastBackoff(3), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errTransient
		}
		return 42, nil
	}, func(error) bool { return true })

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestBackoff_ContextCancellation(t *testing.T) {
	t.Run("before first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := fastBackoff(3).Retry(ctx, func() error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})

	t.Run("during backoff", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1, MaxAttempts: 3})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		calls := 0
		err := b.Retry(ctx, func() error {
			calls++
			return errTransient
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})
}

func TestBackoff_DelayGrowth(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  10,
	})

	assert.Equal(t, 10*time.Millisecond, b.GetNextDelay(1))
	assert.Equal(t, 20*time.Millisecond, b.GetNextDelay(2))
	assert.Equal(t, 40*time.Millisecond, b.GetNextDelay(3))
	assert.Equal(t, 50*time.Millisecond, b.GetNextDelay(4), "capped at max delay")
	assert.Equal(t, 50*time.Millisecond, b.GetNextDelay(100))
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	})

	for i := 0; i < 200; i++ {
		delay := b.GetNextDelay(2)
		assert.GreaterOrEqual(t, delay, 150*time.Millisecond)
		assert.LessOrEqual(t, delay, 250*time.Millisecond)
	}
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, b.GetNextDelay(10), time.Second)
	}
}

func TestSecureFloat64(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := secureFloat64()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}
