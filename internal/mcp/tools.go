package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/dmmcquay/chess-analysis-mcp/internal/analysis"
	"github.com/dmmcquay/chess-analysis-mcp/internal/chess"
	"github.com/dmmcquay/chess-analysis-mcp/internal/eval"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/transcript"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

// Analyzer is the analysis surface the tools drive.
type Analyzer interface {
	AnalyzeGameWith(ctx context.Context, tokens []string, limit uci.Limit) (*analysis.Run, error)
	AnalyzePositionWith(ctx context.Context, pos chess.Position, limit uci.Limit) (uci.Result, error)
	Limit() uci.Limit
	MaxPVLength() int
	Status() analysis.Status
}

var _ Analyzer = (*analysis.Analyzer)(nil)

// ToolsHandler manages the chess analysis MCP tools.
type ToolsHandler struct {
	engine     Analyzer
	logger     logging.ContextLogger
	middleware *Middleware
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(engine Analyzer, logger logging.ContextLogger) *ToolsHandler {
	return &ToolsHandler{
		engine: engine,
		logger: logger,
	}
}

// SetMiddleware sets the middleware for the tools handler.
func (h *ToolsHandler) SetMiddleware(middleware *Middleware) {
	h.middleware = middleware
}

// RegisterTools registers all tools with the MCP server.
func (h *ToolsHandler) RegisterTools(s *server.MCPServer) {
	h.add(s, mcp.NewTool("analyzeGame",
		mcp.WithDescription("Evaluate every move of a chess game. Uses the game's own [%eval] annotations when present, otherwise the engine, otherwise a material count."),
		mcp.WithString("pgn",
			mcp.Description("PGN of the game, or a bare list of SAN moves"),
			mcp.Required(),
		),
		mcp.WithNumber("depth",
			mcp.Description("Search depth per position (overrides default)"),
		),
		mcp.WithNumber("movetime",
			mcp.Description("Search time per position in milliseconds (overrides depth)"),
		),
		mcp.WithBoolean("useAnnotations",
			mcp.Description("Use [%eval] annotations from the PGN when present (default: true)"),
		),
	), h.HandleAnalyzeGame)

	h.add(s, mcp.NewTool("analyzePosition",
		mcp.WithDescription("Analyze a single position of a game with the engine"),
		mcp.WithString("pgn",
			mcp.Description("PGN of the game, or a bare list of SAN moves"),
			mcp.Required(),
		),
		mcp.WithNumber("ply",
			mcp.Description("Number of plies to play before analysing. If not specified, analyzes the final position."),
		),
		mcp.WithNumber("depth",
			mcp.Description("Search depth (overrides default)"),
		),
		mcp.WithNumber("movetime",
			mcp.Description("Search time in milliseconds (overrides depth)"),
		),
	), h.HandleAnalyzePosition)

	h.add(s, mcp.NewTool("replayLine",
		mcp.WithDescription("Step through an engine line from a position of a game and return the resulting FEN"),
		mcp.WithString("pgn",
			mcp.Description("PGN of the game, or a bare list of SAN moves"),
			mcp.Required(),
		),
		mcp.WithNumber("ply",
			mcp.Description("Number of plies to play before the line starts (default: all)"),
		),
		mcp.WithString("pv",
			mcp.Description("Space-separated long-algebraic moves, e.g. 'e2e4 e7e5 g1f3'"),
			mcp.Required(),
		),
		mcp.WithNumber("step",
			mcp.Description("How many moves of the line to apply (default: 1)"),
		),
	), h.HandleReplayLine)

	h.add(s, mcp.NewTool("evaluateMaterial",
		mcp.WithDescription("Static material and piece-square evaluation of a position, no engine needed"),
		mcp.WithString("pgn",
			mcp.Description("PGN of the game, or a bare list of SAN moves"),
			mcp.Required(),
		),
		mcp.WithNumber("ply",
			mcp.Description("Number of plies to play before evaluating (default: all)"),
		),
	), h.HandleEvaluateMaterial)

	h.add(s, mcp.NewTool("getEngineStatus",
		mcp.WithDescription("Get the status of the chess engine session"),
	), h.HandleGetEngineStatus)
}

func (h *ToolsHandler) add(s *server.MCPServer, tool mcp.Tool, handler ToolHandler) {
	if h.middleware != nil {
		handler = h.middleware.WrapTool(tool.Name, handler)
	}
	s.AddTool(tool, server.ToolHandlerFunc(handler))
}

// GameReport is the analyzeGame result.
type GameReport struct {
	White  string `json:"white,omitempty"`
	Black  string `json:"black,omitempty"`
	Date   string `json:"date,omitempty"`
	Result string `json:"result,omitempty"`
	Moves  int    `json:"moves"`
	*analysis.Run
	// Fractions maps each score onto the [0,1] bar with the series' sign
	// convention: 1 is winning for whoever a positive score favours.
	Fractions []float64 `json:"fractions"`
}

// HandleAnalyzeGame handles the analyzeGame tool.
func (h *ToolsHandler) HandleAnalyzeGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := h.logger.WithContext(ctx).WithField("tool", "analyzeGame")

	args, err := argsOf(request)
	if err != nil {
		return nil, err
	}
	game, err := parseGame(args)
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args, h.engine.Limit())
	if err != nil {
		return nil, err
	}

	var run *analysis.Run
	if boolArg(args, "useAnnotations", true) && game.HasEvals() {
		logger.Debug("Using evaluations recorded in the PGN", "evals", len(game.Evals))
		run = analysis.AnnotationRun(game.Evals)
	} else {
		run, err = h.engine.AnalyzeGameWith(ctx, game.Tokens, limit)
		if errors.Is(err, analysis.ErrSuperseded) {
			logger.Info("Analysis superseded by a newer request")
			return mcp.NewToolResultError("analysis superseded by a newer request"), nil
		}
		if err != nil {
			return nil, fmt.Errorf("analysis failed: %w", err)
		}
	}

	report := GameReport{
		White:  game.Header("White"),
		Black:  game.Header("Black"),
		Date:   game.Header("Date"),
		Result: game.Header("Result"),
		Moves:  len(game.Tokens),
		Run:    run,
		Fractions: lo.Map(run.Series, func(s float64, _ int) float64 {
			return eval.ToFraction(&s)
		}),
	}
	return jsonResult(report)
}

// PositionReport is the analyzePosition result.
type PositionReport struct {
	Ply       int      `json:"ply"`
	FEN       string   `json:"fen"`
	ToMove    string   `json:"toMove"`
	Score     *float64 `json:"score,omitempty"`
	ScoreText string   `json:"scoreText"`
	Fraction  float64  `json:"fraction"`
	BestMove  string   `json:"bestMove,omitempty"`
	PV        []string `json:"pv,omitempty"`
	Depth     int      `json:"depth,omitempty"`
	Source    string   `json:"source"`
	Partial   bool     `json:"partial,omitempty"`
	Warning   string   `json:"warning,omitempty"`
}

// HandleAnalyzePosition handles the analyzePosition tool.
func (h *ToolsHandler) HandleAnalyzePosition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := h.logger.WithContext(ctx).WithField("tool", "analyzePosition")

	args, err := argsOf(request)
	if err != nil {
		return nil, err
	}
	game, err := parseGame(args)
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args, h.engine.Limit())
	if err != nil {
		return nil, err
	}
	pos, ply, warning, err := replay(game, args)
	if err != nil {
		return nil, err
	}

	report := PositionReport{
		Ply:     ply,
		FEN:     chess.EncodeFEN(&pos, pos.Turn),
		ToMove:  pos.Turn.String(),
		Source:  analysis.SourceEngine,
		Warning: warning,
	}

	res, err := h.engine.AnalyzePositionWith(ctx, pos, limit)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, uci.ErrUnavailable):
		logger.Warn("Engine unavailable, using material evaluation", "error", err)
		res = uci.Result{Score: eval.Score(eval.Material(&pos))}
		report.Source = analysis.SourceMaterial
	case errors.Is(err, uci.ErrTimeout), errors.Is(err, uci.ErrTransport):
		logger.Warn("Engine returned a partial result", "error", err)
		report.Partial = true
	default:
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	report.Score = res.Score
	report.ScoreText = eval.FormatScore(res.Score)
	report.Fraction = eval.ToFraction(res.Score)
	report.BestMove = res.BestMove
	report.PV = analysis.NewLine(pos, res.PV, h.engine.MaxPVLength()).Moves()
	report.Depth = res.Depth
	return jsonResult(report)
}

// LineReport is the replayLine result.
type LineReport struct {
	Ply     int      `json:"ply"`
	Step    int      `json:"step"`
	Length  int      `json:"length"`
	Applied []string `json:"applied"`
	FEN     string   `json:"fen"`
	Error   string   `json:"error,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// HandleReplayLine handles the replayLine tool.
func (h *ToolsHandler) HandleReplayLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := argsOf(request)
	if err != nil {
		return nil, err
	}
	game, err := parseGame(args)
	if err != nil {
		return nil, err
	}
	pvText, err := requireString(args, "pv")
	if err != nil {
		return nil, err
	}
	step, ok, err := intArg(args, "step")
	if err != nil {
		return nil, err
	}
	if !ok {
		step = 1
	}
	base, ply, warning, err := replay(game, args)
	if err != nil {
		return nil, err
	}

	line := analysis.NewLine(base, strings.Fields(pvText), h.engine.MaxPVLength())
	line.Step(step)
	pos, lineErr := line.Position()

	report := LineReport{
		Ply:     ply,
		Step:    line.Index(),
		Length:  line.Len(),
		Applied: line.Moves()[:line.Index()],
		FEN:     chess.EncodeFEN(&pos, pos.Turn),
		Warning: warning,
	}
	if lineErr != nil {
		report.Error = lineErr.Error()
	}
	return jsonResult(report)
}

// MaterialReport is the evaluateMaterial result.
type MaterialReport struct {
	Ply       int     `json:"ply"`
	FEN       string  `json:"fen"`
	Score     float64 `json:"score"`
	ScoreText string  `json:"scoreText"`
	Fraction  float64 `json:"fraction"`
	Warning   string  `json:"warning,omitempty"`
}

// HandleEvaluateMaterial handles the evaluateMaterial tool.
func (h *ToolsHandler) HandleEvaluateMaterial(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := argsOf(request)
	if err != nil {
		return nil, err
	}
	game, err := parseGame(args)
	if err != nil {
		return nil, err
	}
	pos, ply, warning, err := replay(game, args)
	if err != nil {
		return nil, err
	}

	score := eval.Material(&pos)
	return jsonResult(MaterialReport{
		Ply:       ply,
		FEN:       chess.EncodeFEN(&pos, pos.Turn),
		Score:     score,
		ScoreText: eval.FormatScore(&score),
		Fraction:  eval.ToFraction(&score),
		Warning:   warning,
	})
}

// HandleGetEngineStatus handles the getEngineStatus tool.
func (h *ToolsHandler) HandleGetEngineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := h.engine.Status()
	h.logger.WithContext(ctx).Debug("Engine status checked", "phase", st.Phase)

	var b strings.Builder
	fmt.Fprintf(&b, "Engine session: %s\n", st.Phase)
	if st.Engine != "" {
		fmt.Fprintf(&b, "Engine: %s\n", st.Engine)
	}
	fmt.Fprintf(&b, "Search limit: %s\n", st.Limit)
	fmt.Fprintf(&b, "Cached results: %d\n", st.Cached)
	return mcp.NewToolResultText(b.String()), nil
}

func parseGame(args map[string]interface{}) (*transcript.Transcript, error) {
	pgn, err := requireString(args, "pgn")
	if err != nil {
		return nil, err
	}
	game, err := transcript.Parse(pgn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGN: %w", err)
	}
	return game, nil
}

// replay plays the first ply moves of game, or all of them when ply is
// absent. A move that cannot be applied stops the replay; the position
// before it is used and the failure is returned as a warning.
func replay(game *transcript.Transcript, args map[string]interface{}) (chess.Position, int, string, error) {
	n, ok, err := intArg(args, "ply")
	if err != nil {
		return chess.Position{}, 0, "", err
	}
	if !ok {
		n = -1
	}
	if ok && n < 0 {
		return chess.Position{}, 0, "", fmt.Errorf("ply must not be negative")
	}

	pos, applied, err := chess.ReplayTo(game.Tokens, n)
	if err != nil {
		return pos, applied, fmt.Sprintf("stopped after %d plies: %v", applied, err), nil
	}
	return pos, applied, "", nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
