package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector(t *testing.T) {
	collector := NewPrometheusCollector()
	assert.Same(t, collector, NewPrometheusCollector(), "collector is a singleton")

	collector.RecordToolCall("analyzeGame", "success", 0.5)
	collector.RecordToolCall("analyzeGame", "error", 0.1)

	collector.RecordSessionCreated()
	collector.RecordHandshake(true)
	collector.RecordHandshake(false)
	collector.RecordEngineRequest("depth", "ok", 0.2)
	collector.RecordEngineRequest("movetime", "timeout", 4)
	collector.RecordStaleLines(3)
	collector.RecordStaleLines(0)

	collector.RecordRun("completed")
	collector.RecordPly("engine")
	collector.AddBridgeConnections(1)
	collector.AddBridgeConnections(-1)

	collector.RecordHTTPRequest("GET", "/health", "200", 0.01)
	collector.RecordCacheHit("memory")
	collector.RecordCacheMiss()
	collector.SetCacheStats(10, 2048)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.handshakesTotal.WithLabelValues("failure")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(collector.staleLinesTotal), 3.0)
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheItems))
}

func TestSessionPhaseGauge(t *testing.T) {
	collector := NewPrometheusCollector()

	collector.SetSessionPhase("busy")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionPhase.WithLabelValues("busy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.sessionPhase.WithLabelValues("ready")))

	collector.SetSessionPhase("ready")
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.sessionPhase.WithLabelValues("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sessionPhase.WithLabelValues("ready")))
}

func TestNilCollector(t *testing.T) {
	var collector *PrometheusCollector
	assert.NotPanics(t, func() {
		collector.RecordToolCall("x", "success", 1)
		collector.SetSessionPhase("ready")
		collector.RecordEngineRequest("depth", "ok", 1)
		collector.RecordRun("completed")
		collector.RecordCacheHit("store")
		collector.SetCacheStats(1, 1)
	})
}
