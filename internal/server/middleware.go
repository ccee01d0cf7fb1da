package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
)

// PrometheusMiddleware records request counts and durations, labelled by
// the matched route pattern rather than the raw path.
func PrometheusMiddleware(collector *metrics.PrometheusCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			collector.RecordHTTPRequest(
				r.Method,
				routePattern(r),
				strconv.Itoa(statusOf(ww, r)),
				time.Since(start).Seconds(),
			)
		})
	}
}

// RequestLogger tags each request with a request ID and logs its outcome at
// debug level.
func RequestLogger(logger logging.ContextLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.ContextWithRequestID(r.Context(), logging.GenerateRequestID())
			r = r.WithContext(ctx)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.WithContext(ctx).Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", statusOf(ww, r),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusOf reports the written status. Hijacked websocket upgrades never
// write through the wrapper and count as 101.
func statusOf(ww middleware.WrapResponseWriter, r *http.Request) int {
	if st := ww.Status(); st != 0 {
		return st
	}
	if r.Header.Get("Upgrade") != "" {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}
