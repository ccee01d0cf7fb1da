package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_BasicOperations(t *testing.T) {
	cache := NewLRU[string, string](3, 0)

	cache.Put("key1", "value1", 10, 0)
	val, ok := cache.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)

	val, ok = cache.Get("nonexistent")
	assert.False(t, ok)
	assert.Empty(t, val)

	cache.Put("key2", "value2", 20, 0)
	cache.Put("key3", "value3", 30, 0)
	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, int64(60), cache.Size())
}

func TestLRU_Eviction_ItemLimit(t *testing.T) {
	cache := NewLRU[string, int](3, 0)
	cache.Put("a", 1, 10, 0)
	cache.Put("b", 2, 10, 0)
	cache.Put("c", 3, 10, 0)

	// Touch a so b becomes least recently used.
	_, _ = cache.Get("a")
	cache.Put("d", 4, 10, 0)

	_, ok := cache.Get("b")
	assert.False(t, ok, "b should be evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := cache.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestLRU_Eviction_SizeLimit(t *testing.T) {
	cache := NewLRU[string, int](0, 100)
	cache.Put("a", 1, 40, 0)
	cache.Put("b", 2, 40, 0)
	cache.Put("c", 3, 40, 0)

	assert.Equal(t, 2, cache.Len())
	assert.LessOrEqual(t, cache.Size(), int64(100))
	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestLRU_OversizedSingleEntryKept(t *testing.T) {
	cache := NewLRU[string, int](0, 10)
	cache.Put("big", 1, 500, 0)
	_, ok := cache.Get("big")
	assert.True(t, ok)

	cache.Put("small", 2, 5, 0)
	_, ok = cache.Get("big")
	assert.False(t, ok, "oversized entry goes once something else arrives")
}

func TestLRU_Update(t *testing.T) {
	cache := NewLRU[string, string](3, 0)
	cache.Put("k", "v1", 10, 0)
	cache.Put("k", "v2", 25, 0)

	val, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", val)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, int64(25), cache.Size())
}

func TestLRU_Expiry(t *testing.T) {
	cache := NewLRU[string, int](10, 0)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	cache.Put("short", 1, 1, time.Second)
	cache.Put("forever", 2, 1, 0)

	now = now.Add(500 * time.Millisecond)
	_, ok := cache.Get("short")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = cache.Get("short")
	assert.False(t, ok)
	_, ok = cache.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Len(), "expired entry is dropped on read")
}

func TestLRU_DeleteAndClear(t *testing.T) {
	cache := NewLRU[string, int](10, 0)
	cache.Put("a", 1, 10, 0)
	cache.Put("b", 2, 10, 0)

	assert.True(t, cache.Delete("a"))
	assert.False(t, cache.Delete("a"))
	assert.Equal(t, int64(10), cache.Size())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(0), cache.Size())
}

func TestLRU_Stats(t *testing.T) {
	cache := NewLRU[string, int](10, 0)
	cache.Put("a", 1, 10, 0)
	_, _ = cache.Get("a")
	_, _ = cache.Get("a")
	_, _ = cache.Get("missing")

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	cache := NewLRU[string, string](50, 0)
	numGoroutines := 10
	numOperations := 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				value := fmt.Sprintf("value-%d-%d", id, j)
				cache.Put(key, value, int64(len(value)), time.Minute)
				if val, ok := cache.Get(key); ok {
					assert.Equal(t, value, val)
				}
				if j%10 == 0 {
					cache.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 50)
}

func BenchmarkLRU_Put(b *testing.B) {
	cache := NewLRU[int, int](1000, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Put(i, i, 8, 0)
	}
}
