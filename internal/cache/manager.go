package cache

import (
	"encoding/json"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
)

// Key identifies an engine query: the position text plus the search limit.
type Key uint64

// KeyFor hashes a position and a limit description into a cache key.
func KeyFor(position, limit string) Key {
	d := xxhash.New()
	_, _ = d.WriteString(position)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(limit)
	return Key(d.Sum64())
}

// Manager caches engine results in memory. A disabled manager misses on
// every Get and ignores every Put.
type Manager[V any] struct {
	cache   *LRU[Key, V]
	logger  logging.ContextLogger
	metrics *metrics.PrometheusCollector
	ttl     time.Duration
}

// NewManager creates a cache manager from configuration.
func NewManager[V any](cfg *config.CacheConfig, logger logging.ContextLogger, m *metrics.PrometheusCollector) *Manager[V] {
	mgr := &Manager[V]{logger: logger, metrics: m}
	if cfg == nil || !cfg.Enabled {
		return mgr
	}
	mgr.cache = NewLRU[Key, V](cfg.MaxItems, cfg.MaxSizeBytes)
	mgr.ttl = time.Duration(cfg.TTLSeconds) * time.Second
	return mgr
}

// Get retrieves a cached result.
func (m *Manager[V]) Get(key Key) (V, bool) {
	if m == nil || m.cache == nil {
		var zero V
		return zero, false
	}
	v, ok := m.cache.Get(key)
	if ok {
		m.metrics.RecordCacheHit("memory")
	} else {
		m.metrics.RecordCacheMiss()
	}
	return v, ok
}

// Put stores a result.
func (m *Manager[V]) Put(key Key, value V) {
	if m == nil || m.cache == nil {
		return
	}
	size := EstimateSize(value)
	m.cache.Put(key, value, size, m.ttl)
	stats := m.cache.Stats()
	m.metrics.SetCacheStats(float64(stats.Items), float64(stats.Size))
	m.logger.Debug("Cached engine result", "key", uint64(key), "size", size)
}

// Stats returns cache statistics.
func (m *Manager[V]) Stats() Stats {
	if m == nil || m.cache == nil {
		return Stats{}
	}
	return m.cache.Stats()
}

// Clear clears the cache.
func (m *Manager[V]) Clear() {
	if m != nil && m.cache != nil {
		m.cache.Clear()
	}
}

// IsEnabled returns whether caching is enabled.
func (m *Manager[V]) IsEnabled() bool {
	return m != nil && m.cache != nil
}

// EstimateSize estimates the size of a value from its JSON encoding.
func EstimateSize(v interface{}) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 1024
	}
	return int64(len(data))
}
