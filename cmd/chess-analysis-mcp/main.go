package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmmcquay/chess-analysis-mcp/internal/analysis"
	"github.com/dmmcquay/chess-analysis-mcp/internal/cache"
	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/health"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	mcptools "github.com/dmmcquay/chess-analysis-mcp/internal/mcp"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
	"github.com/dmmcquay/chess-analysis-mcp/internal/ratelimit"
	httpserver "github.com/dmmcquay/chess-analysis-mcp/internal/server"
	"github.com/dmmcquay/chess-analysis-mcp/internal/shutdown"
	"github.com/dmmcquay/chess-analysis-mcp/internal/store"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

var (
	// Version information injected at build time.
	GitCommit string = "unknown"
	BuildTime string = "unknown"
)

const supervisorInterval = 30 * time.Second

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("chess-analysis-mcp version 0.1.0\n")
		fmt.Printf("Git commit: %s\n", GitCommit)
		fmt.Printf("Build time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerFromConfig(&logging.Config{
		Level:   cfg.Logging.Level,
		Format:  logging.LogFormat(cfg.Logging.Format),
		Service: cfg.Server.Name,
		Version: cfg.Server.Version,
		Prefix:  cfg.Logging.Prefix,
	})
	logger.Info("Starting chess analysis MCP server version %s (commit: %s, built: %s)",
		cfg.Server.Version, GitCommit, BuildTime)

	// A missing engine is not fatal: analysis falls back to material.
	if cfg.Engine.URL != "" {
		logger.Info("Using engine bridge", "url", cfg.Engine.URL)
	} else {
		detectEngine(cfg, logger)
	}

	promMetrics := metrics.NewPrometheusCollector()
	shutdownMgr := shutdown.NewManager(logger)

	results := cache.NewManager[uci.Result](&cfg.Cache, logger, promMetrics)

	var resultStore *store.Store
	if cfg.Store.Path != "" {
		resultStore, err = store.Open(context.Background(), cfg.Store.Path, logger, promMetrics)
		if err != nil {
			logger.Error("Failed to open result store", "error", err)
			os.Exit(1)
		}
		if cfg.Store.MaxAge > 0 {
			if n, err := resultStore.Prune(context.Background(), cfg.Store.MaxAge); err != nil {
				logger.Warn("Failed to prune result store", "error", err)
			} else if n > 0 {
				logger.Info("Pruned stale results", "removed", n)
			}
		}
		shutdownMgr.Register("store", func(ctx context.Context) error {
			return resultStore.Close()
		})
	}

	analyzer := analysis.NewAnalyzer(
		analysis.DialerFromConfig(&cfg.Engine, logger),
		analysis.OptionsFromConfig(cfg),
		results,
		resultStore,
		logger,
		promMetrics,
	)
	shutdownMgr.Register("analyzer", func(ctx context.Context) error {
		return analyzer.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisor := analysis.NewSupervisor(analyzer, logger, supervisorInterval)
	if err := supervisor.Start(ctx); err != nil {
		logger.Error("Failed to start engine supervisor", "error", err)
		os.Exit(1)
	}
	shutdownMgr.Register("supervisor", func(ctx context.Context) error {
		return supervisor.Stop()
	})

	rateLimiter := ratelimit.NewLimiter(&cfg.RateLimit, logger)

	healthChecker := health.NewChecker(logger, cfg.Server.Version, GitCommit)
	healthChecker.RegisterCheck("engine", health.EngineCheck(analyzer))
	healthChecker.RegisterDetails("engine", health.EngineDetails(analyzer))
	if resultStore != nil {
		healthChecker.RegisterCheck("store", health.StoreCheck(resultStore))
		healthChecker.RegisterDetails("store", health.StoreDetails(resultStore))
	}

	healthAddr := cfg.Server.HealthAddr
	if healthAddr == "" {
		healthAddr = ":9090"
	}
	httpServer := httpserver.NewHTTPServer(healthAddr, logger, healthChecker, promMetrics, nil)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start health check server", "error", err)
		os.Exit(1)
	}
	shutdownMgr.Register("http", httpServer.Stop)

	stopSignals := shutdownMgr.HandleSignals()
	defer stopSignals()

	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	middleware := mcptools.NewMiddleware(logger, promMetrics, rateLimiter)
	toolsHandler := mcptools.NewToolsHandler(analyzer, logger)
	toolsHandler.SetMiddleware(middleware)
	toolsHandler.RegisterTools(mcpServer)

	healthTool := mcp.NewTool("health",
		mcp.WithDescription("Check server and engine health status"),
	)
	mcpServer.AddTool(healthTool, func(checkCtx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(healthReport(checkCtx, healthChecker, rateLimiter)), nil
	})

	logger.Info("Chess analysis MCP server ready")

	done := make(chan error, 1)
	go func() {
		done <- server.ServeStdio(mcpServer)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Server error", "error", err)
		}
	case <-shutdownMgr.Done():
		logger.Info("Server stopped by signal")
	}

	cancel()
	if err := shutdownMgr.Shutdown(shutdown.DefaultTimeout); err != nil {
		os.Exit(1)
	}
}

// detectEngine resolves a bare engine name to an installed binary.
func detectEngine(cfg *config.Config, logger logging.ContextLogger) {
	logger.Info("Detecting engine installation...")
	setup, err := uci.DetectEngine()
	if err != nil {
		logger.Warn("Engine detection failed, analysis will use material evaluation", "error", err)
		logger.Info("\n%s", uci.GetInstallationInstructions())
		return
	}

	logger.Info("Found engine binary: %s", setup.BinaryPath)
	if setup.Name != "" {
		logger.Info("Engine: %s", setup.Name)
	}
	for _, warning := range setup.Errors {
		logger.Warn("  %s", warning)
	}

	if cfg.Engine.BinaryPath == "" || cfg.Engine.BinaryPath == "stockfish" {
		cfg.Engine.BinaryPath = setup.BinaryPath
	}
}

func healthReport(ctx context.Context, checker *health.Checker, limiter *ratelimit.Limiter) string {
	resp := checker.CheckHealth(ctx)

	var b strings.Builder
	b.WriteString("Chess Analysis MCP Server Health Status\n")
	b.WriteString("=======================================\n")
	fmt.Fprintf(&b, "Status: %s\n", resp.Status)
	fmt.Fprintf(&b, "Version: %s\n", resp.Version)
	fmt.Fprintf(&b, "Git Commit: %s\n", GitCommit)
	fmt.Fprintf(&b, "Build Time: %s\n", BuildTime)
	for _, c := range resp.Components {
		fmt.Fprintf(&b, "\n%s: %s\n", c.Name, c.Status)
		if c.Message != "" {
			fmt.Fprintf(&b, "  %s\n", c.Message)
		}
		for k, v := range c.Metadata {
			fmt.Fprintf(&b, "  %s: %v\n", k, v)
		}
	}
	if limiter != nil {
		fmt.Fprintf(&b, "\nRate limiting: %d active clients\n", limiter.Clients())
	}
	return b.String()
}
