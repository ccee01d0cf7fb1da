package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusOnce     sync.Once
	prometheusInstance *PrometheusCollector
)

// PrometheusCollector provides Prometheus metrics for the chess analysis
// server. All methods are safe to call on a nil collector.
type PrometheusCollector struct {
	// MCP Tool metrics
	toolCallsTotal   *prometheus.CounterVec
	toolDurationSecs *prometheus.HistogramVec

	// Engine session metrics
	sessionPhase          *prometheus.GaugeVec
	sessionsCreatedTotal  prometheus.Counter
	handshakesTotal       *prometheus.CounterVec
	engineRequestsTotal   *prometheus.CounterVec
	engineRequestDuration *prometheus.HistogramVec
	staleLinesTotal       prometheus.Counter

	// Analysis run metrics
	runsTotal        *prometheus.CounterVec
	pliesTotal       *prometheus.CounterVec
	bridgeConnsGauge prometheus.Gauge

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Cache metrics
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal prometheus.Counter
	cacheSize        prometheus.Gauge
	cacheItems       prometheus.Gauge
}

// Session phases reported by the phase gauge.
var phases = []string{"uninitialized", "handshaking", "ready", "busy", "failed"}

// NewPrometheusCollector creates a new Prometheus metrics collector (singleton).
func NewPrometheusCollector() *PrometheusCollector {
	prometheusOnce.Do(func() {
		prometheusInstance = &PrometheusCollector{
			toolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_mcp_tool_calls_total",
					Help: "Total number of MCP tool calls",
				},
				[]string{"tool", "status"},
			),
			toolDurationSecs: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chess_mcp_tool_duration_seconds",
					Help:    "Duration of MCP tool calls in seconds",
					Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
				},
				[]string{"tool"},
			),

			sessionPhase: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "chess_engine_session_phase",
					Help: "Current engine session phase (1 for the active phase)",
				},
				[]string{"phase"},
			),
			sessionsCreatedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chess_engine_sessions_created_total",
					Help: "Total number of engine sessions created",
				},
			),
			handshakesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_engine_handshakes_total",
					Help: "Total number of engine handshakes by outcome",
				},
				[]string{"outcome"},
			),
			engineRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_engine_requests_total",
					Help: "Total number of engine analysis requests by outcome",
				},
				[]string{"outcome"},
			),
			engineRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chess_engine_request_duration_seconds",
					Help:    "Duration of engine analysis requests in seconds",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
				},
				[]string{"limit"},
			),
			staleLinesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chess_engine_stale_lines_total",
					Help: "Reply lines discarded because they belonged to an earlier request",
				},
			),

			runsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_analysis_runs_total",
					Help: "Total number of game analysis runs by outcome",
				},
				[]string{"outcome"},
			),
			pliesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_analysis_plies_total",
					Help: "Total number of plies scored by source",
				},
				[]string{"source"},
			),
			bridgeConnsGauge: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_bridge_active_connections",
					Help: "Number of open engine bridge connections",
				},
			),

			httpRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_mcp_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			httpRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chess_mcp_http_request_duration_seconds",
					Help:    "Duration of HTTP requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),

			cacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chess_mcp_cache_hits_total",
					Help: "Total number of result cache hits by tier",
				},
				[]string{"tier"},
			),
			cacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "chess_mcp_cache_misses_total",
					Help: "Total number of result cache misses",
				},
			),
			cacheSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_mcp_cache_size_bytes",
					Help: "Current cache size in bytes",
				},
			),
			cacheItems: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "chess_mcp_cache_items",
					Help: "Current number of items in cache",
				},
			),
		}
	})
	return prometheusInstance
}

// RecordToolCall records a tool call metric.
func (p *PrometheusCollector) RecordToolCall(tool, status string, durationSecs float64) {
	if p == nil {
		return
	}
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	p.toolDurationSecs.WithLabelValues(tool).Observe(durationSecs)
}

// SetSessionPhase marks phase as the active session phase.
func (p *PrometheusCollector) SetSessionPhase(phase string) {
	if p == nil {
		return
	}
	for _, ph := range phases {
		v := 0.0
		if ph == phase {
			v = 1.0
		}
		p.sessionPhase.WithLabelValues(ph).Set(v)
	}
}

// RecordSessionCreated records a new engine session.
func (p *PrometheusCollector) RecordSessionCreated() {
	if p == nil {
		return
	}
	p.sessionsCreatedTotal.Inc()
}

// RecordHandshake records a handshake outcome.
func (p *PrometheusCollector) RecordHandshake(success bool) {
	if p == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	p.handshakesTotal.WithLabelValues(outcome).Inc()
}

// RecordEngineRequest records an analysis request; outcome is one of
// "ok", "timeout", "transport", "canceled".
func (p *PrometheusCollector) RecordEngineRequest(limit, outcome string, durationSecs float64) {
	if p == nil {
		return
	}
	p.engineRequestsTotal.WithLabelValues(outcome).Inc()
	p.engineRequestDuration.WithLabelValues(limit).Observe(durationSecs)
}

// RecordStaleLines records reply lines discarded before a request.
func (p *PrometheusCollector) RecordStaleLines(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.staleLinesTotal.Add(float64(n))
}

// RecordRun records the outcome of a game analysis run.
func (p *PrometheusCollector) RecordRun(outcome string) {
	if p == nil {
		return
	}
	p.runsTotal.WithLabelValues(outcome).Inc()
}

// RecordPly records one scored ply.
func (p *PrometheusCollector) RecordPly(source string) {
	if p == nil {
		return
	}
	p.pliesTotal.WithLabelValues(source).Inc()
}

// AddBridgeConnections adjusts the open bridge connection gauge.
func (p *PrometheusCollector) AddBridgeConnections(delta float64) {
	if p == nil {
		return
	}
	p.bridgeConnsGauge.Add(delta)
}

// RecordHTTPRequest records an HTTP request.
func (p *PrometheusCollector) RecordHTTPRequest(method, path, status string, durationSecs float64) {
	if p == nil {
		return
	}
	p.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(durationSecs)
}

// RecordCacheHit records a cache hit in the given tier ("memory" or "store").
func (p *PrometheusCollector) RecordCacheHit(tier string) {
	if p == nil {
		return
	}
	p.cacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a cache miss.
func (p *PrometheusCollector) RecordCacheMiss() {
	if p == nil {
		return
	}
	p.cacheMissesTotal.Inc()
}

// SetCacheStats sets the current cache statistics.
func (p *PrometheusCollector) SetCacheStats(items, sizeBytes float64) {
	if p == nil {
		return
	}
	p.cacheItems.Set(items)
	p.cacheSize.Set(sizeBytes)
}
