package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key     K
	value   V
	size    int64
	expires time.Time // zero means never
}

// LRU is a thread-safe least-recently-used cache bounded by item count and
// total byte size, with optional per-entry expiry.
type LRU[K comparable, V any] struct {
	mu           sync.Mutex
	maxItems     int
	maxSizeBytes int64
	currentSize  int64
	items        map[K]*list.Element
	evictionList *list.List
	now          func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates an LRU. A zero maxItems or maxSizeBytes means unlimited.
func NewLRU[K comparable, V any](maxItems int, maxSizeBytes int64) *LRU[K, V] {
	return &LRU[K, V]{
		maxItems:     maxItems,
		maxSizeBytes: maxSizeBytes,
		items:        make(map[K]*list.Element),
		evictionList: list.New(),
		now:          time.Now,
	}
}

// Get returns the value for key and marks it recently used. Expired entries
// are removed and reported as misses.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := elem.Value.(*entry[K, V])
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.removeElement(elem)
		c.misses++
		return zero, false
	}
	c.evictionList.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Put adds or replaces key. size is the approximate byte size of value and
// a positive ttl sets an expiry.
func (c *LRU[K, V]) Put(key K, value V, size int64, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		c.evictionList.MoveToFront(elem)
		c.currentSize += size - e.size
		e.value, e.size, e.expires = value, size, expires
		c.evict()
		return
	}

	elem := c.evictionList.PushFront(&entry[K, V]{key: key, value: value, size: size, expires: expires})
	c.items[key] = elem
	c.currentSize += size
	c.evict()
}

// evict drops least recently used entries until within limits. A single
// oversized entry is kept.
func (c *LRU[K, V]) evict() {
	for c.evictionList.Len() > 1 {
		overItems := c.maxItems > 0 && c.evictionList.Len() > c.maxItems
		overSize := c.maxSizeBytes > 0 && c.currentSize > c.maxSizeBytes
		if !overItems && !overSize {
			return
		}
		c.removeElement(c.evictionList.Back())
		c.evictions++
	}
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.evictionList.Remove(elem)
	e := elem.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.currentSize -= e.size
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.evictionList.Init()
	c.currentSize = 0
}

// Len returns the number of entries, including expired ones not yet touched.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictionList.Len()
}

// Size returns the total recorded size of all entries.
func (c *LRU[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Items     int
	Size      int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Stats returns current cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Items:     c.evictionList.Len(),
		Size:      c.currentSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
