package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
	"github.com/dmmcquay/chess-analysis-mcp/internal/ratelimit"
)

// Middleware wraps MCP tool handlers with rate limiting, metrics and logging.
type Middleware struct {
	logger      logging.ContextLogger
	metrics     *metrics.PrometheusCollector
	rateLimiter *ratelimit.Limiter
}

// NewMiddleware creates a new middleware instance. metrics and rateLimiter
// may be nil.
func NewMiddleware(logger logging.ContextLogger, metrics *metrics.PrometheusCollector, rateLimiter *ratelimit.Limiter) *Middleware {
	return &Middleware{
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rateLimiter,
	}
}

// ToolHandler is the function signature for MCP tool handlers.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// WrapTool tags the request with correlation and request IDs, applies the
// rate limit and records the outcome.
func (m *Middleware) WrapTool(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
			ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
		}
		ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())

		clientID := extractClientID(ctx, request)
		logger := m.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"tool":   toolName,
			"client": clientID,
		})

		logger.Info("Tool request received")

		if err := m.rateLimiter.Allow(clientID, toolName); err != nil {
			logger.Warn("Rate limit exceeded", "error", err)
			m.metrics.RecordToolCall(toolName, "rate_limited", time.Since(start).Seconds())
			if errors.Is(err, ratelimit.ErrLimited) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, fmt.Errorf("rate limiter failed for tool %s: %w", toolName, err)
		}

		result, err := handler(ctx, request)

		status := "success"
		switch {
		case err != nil:
			status = "error"
			logger.Error("Tool request failed", "error", err, "duration", time.Since(start))
		case result != nil && result.IsError:
			status = "tool_error"
			logger.Warn("Tool request returned an error result", "duration", time.Since(start))
		default:
			logger.Info("Tool request completed", "duration", time.Since(start))
		}
		m.metrics.RecordToolCall(toolName, status, time.Since(start).Seconds())

		return result, err
	}
}

type clientIDKey struct{}

// ContextWithClientID attaches the calling client's identity, used as the
// rate-limit key.
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// extractClientID attempts to extract a client identifier from the context or request.
func extractClientID(ctx context.Context, request mcp.CallToolRequest) string {
	if clientID, ok := ctx.Value(clientIDKey{}).(string); ok && clientID != "" {
		return clientID
	}

	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if clientID, ok := args["clientID"].(string); ok && clientID != "" {
			return clientID
		}
	}

	return "anonymous"
}
