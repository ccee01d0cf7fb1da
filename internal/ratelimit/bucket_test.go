package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	t.Run("starts full", func(t *testing.T) {
		b := NewTokenBucket(3, 1.0, start)
		assert.Equal(t, 3.0, b.Tokens(start))
	})

	t.Run("take until empty", func(t *testing.T) {
		b := NewTokenBucket(2, 1.0, start)
		assert.True(t, b.Take(start))
		assert.True(t, b.Take(start))
		assert.False(t, b.Take(start))
		assert.Equal(t, time.Second, b.RetryAfter(start))
	})

	t.Run("refills over time", func(t *testing.T) {
		b := NewTokenBucket(2, 2.0, start)
		b.Take(start)
		b.Take(start)

		assert.False(t, b.Take(start.Add(400*time.Millisecond)))
		assert.True(t, b.Take(start.Add(500*time.Millisecond)))
		assert.Equal(t, 2.0, b.Tokens(start.Add(time.Hour)), "capped at capacity")
	})

	t.Run("clock going backwards is ignored", func(t *testing.T) {
		b := NewTokenBucket(1, 1.0, start)
		b.Take(start)
		assert.False(t, b.Take(start.Add(-time.Minute)))
		assert.True(t, b.Take(start.Add(time.Second)))
	})

	t.Run("refund is capped", func(t *testing.T) {
		b := NewTokenBucket(1, 1.0, start)
		b.Refund()
		assert.Equal(t, 1.0, b.Tokens(start))

		b.Take(start)
		b.Refund()
		assert.True(t, b.Take(start))
	})

	t.Run("no refill rate never retries", func(t *testing.T) {
		b := NewTokenBucket(1, 0, start)
		b.Take(start)
		assert.Zero(t, b.RetryAfter(start.Add(time.Hour)))
		assert.False(t, b.Take(start.Add(time.Hour)))
	})

	t.Run("concurrent takes", func(t *testing.T) {
		b := NewTokenBucket(50, 0, start)
		var granted atomic.Int32
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if b.Take(start) {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(50), granted.Load())
	})
}
