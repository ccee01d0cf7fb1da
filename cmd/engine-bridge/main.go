// Command engine-bridge serves a local UCI engine over websockets. Each
// connection gets its own engine process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dmmcquay/chess-analysis-mcp/internal/analysis"
	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/health"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
	"github.com/dmmcquay/chess-analysis-mcp/internal/ratelimit"
	httpserver "github.com/dmmcquay/chess-analysis-mcp/internal/server"
	"github.com/dmmcquay/chess-analysis-mcp/internal/shutdown"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

var (
	// Version information injected at build time.
	GitCommit string = "unknown"
	BuildTime string = "unknown"
)

func main() {
	var (
		showVersion bool
		addr        string
	)
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.bridgeAddr)")
	flag.Parse()

	if showVersion {
		fmt.Printf("engine-bridge version 0.1.0\n")
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
		Service: "engine-bridge",
		Version: cfg.Server.Version,
		Prefix:  cfg.Logging.Prefix,
	})

	binary := cfg.Engine.BinaryPath
	if binary == "" || binary == "stockfish" {
		setup, err := uci.DetectEngine()
		if err != nil {
			logger.Error("Engine detection failed", "error", err)
			logger.Info("\n%s", uci.GetInstallationInstructions())
			os.Exit(1)
		}
		binary = setup.BinaryPath
		logger.Info("Found engine binary: %s", binary)
	}

	promMetrics := metrics.NewPrometheusCollector()
	limiter := ratelimit.NewLimiter(&cfg.RateLimit, logger)
	bridge := httpserver.NewBridge(analysis.ProcessDialer(binary, cfg.Engine.Args, logger), limiter, logger, promMetrics)

	checker := health.NewChecker(logger, cfg.Server.Version, GitCommit)
	checker.RegisterCheck("engine", func(ctx context.Context) error {
		_, err := os.Stat(binary)
		return err
	})

	if addr == "" {
		addr = cfg.Server.BridgeAddr
	}
	srv := httpserver.NewHTTPServer(addr, logger, checker, promMetrics, bridge)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start bridge", "error", err)
		os.Exit(1)
	}
	logger.Info("Engine bridge ready", "addr", srv.Addr(), "engine", binary)

	shutdownMgr := shutdown.NewManager(logger)
	shutdownMgr.Register("http", srv.Stop)
	stop := shutdownMgr.HandleSignals()
	defer stop()

	shutdownMgr.WaitForShutdown()
}
