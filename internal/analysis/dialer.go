package analysis

import (
	"context"

	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

// Dialer opens a fresh transport to an engine. Every Session gets its own.
type Dialer func(ctx context.Context) (uci.Transport, error)

// ProcessDialer starts a local engine binary per session.
func ProcessDialer(path string, args []string, logger logging.ContextLogger) Dialer {
	return func(ctx context.Context) (uci.Transport, error) {
		return uci.StartProcess(ctx, path, args, logger)
	}
}

// WebSocketDialer connects to an engine bridge per session.
func WebSocketDialer(url string) Dialer {
	return func(ctx context.Context) (uci.Transport, error) {
		return uci.DialWebSocket(ctx, url)
	}
}

// DialerFromConfig prefers the bridge URL when one is configured.
func DialerFromConfig(cfg *config.EngineConfig, logger logging.ContextLogger) Dialer {
	if cfg.URL != "" {
		return WebSocketDialer(cfg.URL)
	}
	return ProcessDialer(cfg.BinaryPath, cfg.Args, logger)
}
