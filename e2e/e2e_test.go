//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmmcquay/chess-analysis-mcp/internal/analysis"
	"github.com/dmmcquay/chess-analysis-mcp/internal/cache"
	"github.com/dmmcquay/chess-analysis-mcp/internal/chess"
	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	mcptools "github.com/dmmcquay/chess-analysis-mcp/internal/mcp"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

const scholarsMate = `[Event "Casual game"]
[White "white"]
[Black "black"]
[Result "1-0"]

1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0
`

// TestEnvironment holds the test configuration
type TestEnvironment struct {
	BinaryPath string
	Logger     logging.ContextLogger
}

// SetupTestEnvironment finds a local Stockfish or skips the test.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	detected, err := uci.DetectEngine()
	if err != nil {
		t.Skipf("Stockfish not installed: %v", err)
	}
	t.Logf("Using engine %s (%s)", detected.BinaryPath, detected.Name)

	return &TestEnvironment{
		BinaryPath: detected.BinaryPath,
		Logger: logging.NewLoggerFromConfig(&logging.Config{
			Level:  "debug",
			Format: logging.FormatText,
			Prefix: "[e2e-test] ",
		}),
	}
}

// CreateTestAnalyzer creates an Analyzer over a local engine process with a
// shallow default depth.
func (env *TestEnvironment) CreateTestAnalyzer(t *testing.T, results *cache.Manager[uci.Result]) *analysis.Analyzer {
	t.Helper()
	opts := analysis.Options{
		Limit:   uci.DepthLimit(8),
		Session: uci.DefaultSessionOptions(),
	}
	opts.Retry.MaxAttempts = 2
	opts.Retry.InitialDelay = 100 * time.Millisecond

	analyzer := analysis.NewAnalyzer(analysis.ProcessDialer(env.BinaryPath, nil, env.Logger), opts, results, nil, env.Logger, nil)
	t.Cleanup(func() {
		if err := analyzer.Close(); err != nil {
			t.Logf("Warning: failed to close analyzer: %v", err)
		}
	})
	return analyzer
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) string {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := handler(ctx, req)
	if err != nil {
		t.Fatalf("Tool call failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Tool returned an error result: %+v", result.Content)
	}
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("Unexpected content %T", result.Content[0])
	return ""
}

func TestAnalyzeGameE2E(t *testing.T) {
	env := SetupTestEnvironment(t)
	analyzer := env.CreateTestAnalyzer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	run, err := analyzer.AnalyzeGame(ctx, strings.Fields("e4 e5 Qh5 Nc6 Bc4 Nf6 Qxf7#"))
	if err != nil {
		t.Fatalf("Failed to analyze game: %v", err)
	}

	if run.Source != analysis.SourceEngine {
		t.Errorf("Expected engine source, got %s", run.Source)
	}
	if run.Plies != 7 || len(run.Series) != 7 {
		t.Fatalf("Expected 7 scored plies, got %d (%d scores)", run.Plies, len(run.Series))
	}
	if run.Partial {
		t.Errorf("Expected a complete run")
	}
	// Black has just blundered with Nf6; white should be winning.
	if run.Series[5] < 3 {
		t.Errorf("Expected white to be clearly better after Nf6, got %.2f", run.Series[5])
	}
	t.Logf("Series: %v", run.Series)
}

func TestAnalyzePositionE2E(t *testing.T) {
	env := SetupTestEnvironment(t)
	analyzer := env.CreateTestAnalyzer(t, nil)

	tests := []struct {
		name  string
		moves string
		limit uci.Limit
	}{
		{name: "after 1. e4", moves: "e4", limit: uci.DepthLimit(10)},
		{name: "italian", moves: "e4 e5 Nf3 Nc6 Bc4", limit: uci.MoveTimeLimit(200 * time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, _, err := chess.ReplayTo(strings.Fields(tt.moves), -1)
			if err != nil {
				t.Fatalf("Failed to replay: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			res, err := analyzer.AnalyzePositionWith(ctx, pos, tt.limit)
			if err != nil {
				t.Fatalf("Failed to analyze position: %v", err)
			}
			if res.Score == nil {
				t.Fatal("No score returned")
			}
			if math.Abs(*res.Score) > 1.5 {
				t.Errorf("Unexpected score for an opening position: %.2f", *res.Score)
			}
			if !chess.IsLongMove(res.BestMove) {
				t.Errorf("Unexpected best move %q", res.BestMove)
			}
			line := analysis.NewLine(pos, res.PV, analyzer.MaxPVLength())
			line.Step(line.Len())
			if _, err := line.Position(); err != nil {
				t.Errorf("PV does not replay: %v", err)
			}
			t.Logf("Best move %s, score %.2f, pv %v", res.BestMove, *res.Score, res.PV)
		})
	}
}

func TestMCPToolsE2E(t *testing.T) {
	env := SetupTestEnvironment(t)
	analyzer := env.CreateTestAnalyzer(t, nil)
	tools := mcptools.NewToolsHandler(analyzer, env.Logger)

	text := callTool(t, tools.HandleAnalyzeGame, map[string]interface{}{
		"pgn":   scholarsMate,
		"depth": float64(6),
	})
	var report struct {
		White     string    `json:"white"`
		Source    string    `json:"source"`
		Series    []float64 `json:"series"`
		Fractions []float64 `json:"fractions"`
	}
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		t.Fatalf("Bad analyzeGame output: %v", err)
	}
	if report.Source != "engine" || len(report.Series) != 7 || len(report.Fractions) != 7 {
		t.Errorf("Unexpected report: %s", text)
	}

	text = callTool(t, tools.HandleGetEngineStatus, nil)
	if !strings.Contains(text, "Engine: Stockfish") {
		t.Errorf("Expected engine name in status, got:\n%s", text)
	}
}

func TestAnalysisCacheE2E(t *testing.T) {
	env := SetupTestEnvironment(t)
	results := cache.NewManager[uci.Result](&config.CacheConfig{
		Enabled:      true,
		MaxItems:     100,
		MaxSizeBytes: 1024 * 1024,
		TTLSeconds:   60,
	}, env.Logger, nil)
	analyzer := env.CreateTestAnalyzer(t, results)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	tokens := strings.Fields("d4 d5 c4 e6")

	first, err := analyzer.AnalyzeGame(ctx, tokens)
	if err != nil {
		t.Fatalf("First analysis failed: %v", err)
	}
	stats := results.Stats()
	if stats.Items != 4 {
		t.Errorf("Expected 4 cached positions, got %d", stats.Items)
	}

	start := time.Now()
	second, err := analyzer.AnalyzeGame(ctx, tokens)
	if err != nil {
		t.Fatalf("Second analysis failed: %v", err)
	}
	t.Logf("Cached run took %v", time.Since(start))

	if got := results.Stats().Hits - stats.Hits; got != 4 {
		t.Errorf("Expected 4 cache hits, got %d", got)
	}
	for i := range first.Series {
		if first.Series[i] != second.Series[i] {
			t.Errorf("Ply %d: cached score %.2f differs from %.2f", i, second.Series[i], first.Series[i])
		}
	}
}
