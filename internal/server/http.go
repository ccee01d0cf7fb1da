package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmmcquay/chess-analysis-mcp/internal/health"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
)

// HTTPServer serves health checks, metrics and, when a bridge is given,
// the engine websocket.
type HTTPServer struct {
	server     *http.Server
	logger     logging.ContextLogger
	checker    *health.Checker
	prometheus *metrics.PrometheusCollector

	mu   sync.Mutex
	addr string
}

// NewHTTPServer creates a new HTTP server. bridge may be nil.
func NewHTTPServer(addr string, logger logging.ContextLogger, checker *health.Checker, prometheus *metrics.PrometheusCollector, bridge *Bridge) *HTTPServer {
	s := &HTTPServer{
		logger:     logger,
		checker:    checker,
		prometheus: prometheus,
		addr:       addr,
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(bridge),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes(bridge *Bridge) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(PrometheusMiddleware(s.prometheus))

	r.Get("/health", s.checker.LivenessHandler())
	r.Get("/ready", s.checker.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if bridge != nil {
		// The bare root keeps clients that connect to ws://host:port working.
		r.Get("/", bridge.ServeHTTP)
		r.Get("/engine", bridge.ServeHTTP)
	}
	return r
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Addr is the address the server listens on. After Start it carries the
// resolved port.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("Starting HTTP server", "addr", s.Addr())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
