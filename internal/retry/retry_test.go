package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
	}
}

func TestRetryManager(t *testing.T) {
	t.Run("successful on first attempt", func(t *testing.T) {
		manager := NewManager(fastConfig(3))

		var attempts atomic.Int32
		err := manager.Run(context.Background(), func(ctx context.Context) error {
			attempts.Add(1)
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("retries on failure", func(t *testing.T) {
		manager := NewManager(fastConfig(3))

		var attempts atomic.Int32
		expectedErr := errors.New("test error")

		start := time.Now()
		err := manager.Run(context.Background(), func(ctx context.Context) error {
			attempts.Add(1)
			return expectedErr
		})
		elapsed := time.Since(start)

		assert.ErrorIs(t, err, expectedErr)
		assert.Equal(t, int32(3), attempts.Load())
		// 10ms + 20ms of backoff
		assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		manager := NewManager(fastConfig(5))

		var attempts atomic.Int32
		err := manager.Run(context.Background(), func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("temporary error")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		manager := NewManager(fastConfig(5))
		fatal := errors.New("binary not found")

		var attempts atomic.Int32
		err := manager.Run(context.Background(), func(ctx context.Context) error {
			attempts.Add(1)
			return Permanent(fatal)
		})

		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("on retry callback", func(t *testing.T) {
		cfg := fastConfig(3)
		var seen []int
		cfg.OnRetry = func(attempt int, err error) { seen = append(seen, attempt) }

		_ = NewManager(cfg).Run(context.Background(), func(ctx context.Context) error {
			return errors.New("nope")
		})

		assert.GreaterOrEqual(t, len(seen), 2)
		assert.Equal(t, 1, seen[0])
	})

	t.Run("context cancellation", func(t *testing.T) {
		cfg := fastConfig(0)
		cfg.InitialDelay = 100 * time.Millisecond
		cfg.MaxDelay = time.Second
		manager := NewManager(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		var attempts atomic.Int32
		start := time.Now()
		err := manager.Run(ctx, func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("always fails")
		})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(1), attempts.Load())
		assert.Less(t, time.Since(start), 200*time.Millisecond)
	})

	t.Run("already canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := NewManager(fastConfig(3)).Run(ctx, func(ctx context.Context) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("infinite retries with jitter", func(t *testing.T) {
		cfg := fastConfig(0)
		cfg.InitialDelay = 2 * time.Millisecond
		cfg.MaxDelay = 5 * time.Millisecond
		cfg.Jitter = 0.5
		manager := NewManager(cfg)

		var attempts atomic.Int32
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			for attempts.Load() < 5 {
				time.Sleep(2 * time.Millisecond)
			}
			cancel()
		}()

		err := manager.Run(ctx, func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("always fails")
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.GreaterOrEqual(t, attempts.Load(), int32(5))
	})
}
