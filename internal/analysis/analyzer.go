// Package analysis walks a game through the engine one ply at a time and
// collects the evaluation series, falling back to the static material
// evaluator when no engine can be reached.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dmmcquay/chess-analysis-mcp/internal/cache"
	"github.com/dmmcquay/chess-analysis-mcp/internal/chess"
	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/eval"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
	"github.com/dmmcquay/chess-analysis-mcp/internal/retry"
	"github.com/dmmcquay/chess-analysis-mcp/internal/store"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

// ErrSuperseded is returned by a run that a newer run replaced. Callers
// discard it silently.
var ErrSuperseded = errors.New("analysis superseded by a newer run")

// Where a run's scores came from.
const (
	SourceEngine      = "engine"
	SourceMaterial    = "material"
	SourceAnnotations = "annotations"
)

// Options configures an Analyzer.
type Options struct {
	Limit            uci.Limit
	Session          uci.SessionOptions
	Retry            retry.Config
	MaxPVLength      int
	WhitePerspective bool
}

// OptionsFromConfig builds Options from the loaded configuration. A
// configured movetime takes precedence over depth.
func OptionsFromConfig(cfg *config.Config) Options {
	limit := uci.DepthLimit(cfg.Engine.Depth)
	if cfg.Engine.MoveTime > 0 {
		limit = uci.MoveTimeLimit(cfg.Engine.MoveTime)
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Engine.DialAttempts
	rc.InitialDelay = cfg.Engine.DialDelay

	return Options{
		Limit: limit,
		Session: uci.SessionOptions{
			HandshakeTimeout: cfg.Engine.HandshakeTimeout,
			DepthTimeout:     cfg.Engine.DepthTimeout,
			MoveTimeSlack:    cfg.Engine.MoveTimeSlack,
			Options:          cfg.Engine.Options,
		},
		Retry:            rc,
		MaxPVLength:      cfg.Analysis.MaxPVLength,
		WhitePerspective: cfg.Analysis.WhitePerspective,
	}
}

// Run is the outcome of analysing a game.
type Run struct {
	// Series has one score per applied ply, in pawns. Plies the engine
	// could not score are recorded as 0.
	Series []float64 `json:"series"`
	Plies  int       `json:"plies"`
	Source string    `json:"source"`
	// StoppedAt is the index of the token that failed to apply, or -1.
	StoppedAt  int    `json:"stoppedAt"`
	StopReason string `json:"stopReason,omitempty"`
	// Partial is set when some plies hold partial or fallback scores.
	Partial bool `json:"partial,omitempty"`
}

// Status describes the engine session the Analyzer currently owns.
type Status struct {
	Phase  string `json:"phase"`
	Engine string `json:"engine,omitempty"`
	Limit  string `json:"limit"`
	Cached int    `json:"cached"`
}

// Analyzer owns at most one engine session and serializes access to it.
type Analyzer struct {
	dial    Dialer
	opts    Options
	cache   *cache.Manager[uci.Result]
	store   *store.Store
	logger  logging.ContextLogger
	metrics *metrics.PrometheusCollector
	retry   *retry.Manager

	seq  atomic.Uint64
	slot chan struct{}

	mu      sync.Mutex
	session *uci.Session
}

// NewAnalyzer creates an Analyzer. cache and store may be nil.
func NewAnalyzer(dial Dialer, opts Options, c *cache.Manager[uci.Result], st *store.Store, logger logging.ContextLogger, m *metrics.PrometheusCollector) *Analyzer {
	if opts.Limit.Validate() != nil {
		opts.Limit = uci.DepthLimit(13)
	}
	if opts.MaxPVLength <= 0 {
		opts.MaxPVLength = DefaultMaxPVLength
	}
	return &Analyzer{
		dial:    dial,
		opts:    opts,
		cache:   c,
		store:   st,
		logger:  logger,
		metrics: m,
		retry:   retry.NewManager(opts.Retry),
		slot:    make(chan struct{}, 1),
	}
}

// Limit returns the default search limit.
func (a *Analyzer) Limit() uci.Limit { return a.opts.Limit }

// MaxPVLength returns the cap applied to navigable lines.
func (a *Analyzer) MaxPVLength() int { return a.opts.MaxPVLength }

// AnalyzeGame replays tokens from the starting position and scores every
// applied ply with the engine. Starting a new run supersedes any run still
// in progress; the older one returns ErrSuperseded at its next ply.
//
// A token that fails to apply stops the walk; the series so far is returned
// with StoppedAt set. If no engine session can be established the whole run
// is scored with the material evaluator instead.
func (a *Analyzer) AnalyzeGame(ctx context.Context, tokens []string) (*Run, error) {
	return a.AnalyzeGameWith(ctx, tokens, a.opts.Limit)
}

// AnalyzeGameWith is AnalyzeGame with an explicit search limit.
func (a *Analyzer) AnalyzeGameWith(ctx context.Context, tokens []string, limit uci.Limit) (*Run, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	id := a.seq.Add(1)
	logger := a.logger.WithFields(map[string]interface{}{"run": id, "limit": limit.String()})
	logger.Info("Starting game analysis", "tokens", len(tokens))

	if err := a.establish(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			a.metrics.RecordRun("cancelled")
			return nil, ctxErr
		}
		if !a.current(id) {
			a.metrics.RecordRun("superseded")
			return nil, ErrSuperseded
		}
		logger.Warn("Engine unavailable, falling back to material evaluation", "error", err)
		return a.materialRun(tokens), nil
	}

	run := &Run{Series: []float64{}, Source: SourceEngine, StoppedAt: -1}
	pos := chess.StartingPosition()

	for i, tok := range tokens {
		if !a.current(id) {
			logger.Info("Run superseded", "plies", run.Plies)
			a.metrics.RecordRun("superseded")
			return nil, ErrSuperseded
		}

		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if chess.IsResult(tok) {
			break
		}
		if err := pos.Play(tok); err != nil {
			logger.Warn("Stopping at unplayable move", "index", i, "error", err)
			run.StoppedAt = i
			run.StopReason = err.Error()
			break
		}

		score, partial, err := a.scorePly(ctx, &pos, limit)
		if err != nil {
			a.metrics.RecordRun("cancelled")
			return run, err
		}
		if !a.current(id) {
			logger.Info("Run superseded", "plies", run.Plies)
			a.metrics.RecordRun("superseded")
			return nil, ErrSuperseded
		}

		run.Series = append(run.Series, score)
		run.Plies++
		run.Partial = run.Partial || partial
	}

	if run.StoppedAt >= 0 {
		a.metrics.RecordRun("stopped")
	} else {
		a.metrics.RecordRun("completed")
	}
	logger.Info("Game analysis finished", "plies", run.Plies, "partial", run.Partial)
	return run, nil
}

// scorePly evaluates pos, which has just been played into, from the engine.
// When the engine cannot be reached the material score stands in and
// partial is set. Only context errors are returned.
func (a *Analyzer) scorePly(ctx context.Context, pos *chess.Position, limit uci.Limit) (score float64, partial bool, err error) {
	res, err := a.query(ctx, pos, limit)
	switch {
	case err == nil:
		a.metrics.RecordPly(SourceEngine)
	case ctx.Err() != nil:
		return 0, false, ctx.Err()
	case errors.Is(err, uci.ErrUnavailable):
		a.metrics.RecordPly(SourceMaterial)
		return a.materialScore(pos), true, nil
	default:
		// Timeout or transport failure: keep whatever partial score arrived.
		a.metrics.RecordPly(SourceEngine)
		partial = true
	}
	if res.Score == nil {
		return 0, true, nil
	}
	return *res.Score, partial, nil
}

// AnalyzePosition runs a single engine query on pos with the default limit.
func (a *Analyzer) AnalyzePosition(ctx context.Context, pos chess.Position) (uci.Result, error) {
	return a.AnalyzePositionWith(ctx, pos, a.opts.Limit)
}

// AnalyzePositionWith runs a single engine query on pos.
func (a *Analyzer) AnalyzePositionWith(ctx context.Context, pos chess.Position, limit uci.Limit) (uci.Result, error) {
	if err := limit.Validate(); err != nil {
		return uci.Result{}, err
	}
	return a.query(ctx, &pos, limit)
}

// query looks pos up in the cache, then the store, then asks the engine.
// Scores are reported for the side to move unless WhitePerspective is set.
func (a *Analyzer) query(ctx context.Context, pos *chess.Position, limit uci.Limit) (uci.Result, error) {
	fen := chess.EncodeFEN(pos, pos.Turn)
	key := cache.KeyFor(fen, limit.String())

	if res, ok := a.cache.Get(key); ok {
		return a.orient(res, pos.Turn), nil
	}
	if res, ok, err := a.store.Get(ctx, key); err != nil {
		a.logger.Warn("Result store read failed", "error", err)
	} else if ok {
		a.cache.Put(key, res)
		return a.orient(res, pos.Turn), nil
	}

	release, err := a.acquire(ctx)
	if err != nil {
		return uci.Result{}, err
	}
	defer release()

	sess, err := a.liveSession(ctx)
	if err != nil {
		return uci.Result{}, err
	}

	res, err := sess.Analyze(ctx, limit, fen)
	if err != nil {
		a.logger.Warn("Engine request failed", "fen", fen, "error", err)
		return a.orient(res, pos.Turn), err
	}

	if res.Complete() {
		a.cache.Put(key, res)
		if err := a.store.Put(ctx, key, fen, limit.String(), res); err != nil {
			a.logger.Warn("Result store write failed", "error", err)
		}
	}
	return a.orient(res, pos.Turn), nil
}

func (a *Analyzer) orient(res uci.Result, toMove chess.Color) uci.Result {
	if !a.opts.WhitePerspective || toMove == chess.White || res.Score == nil {
		return res
	}
	flipped := -*res.Score
	res.Score = &flipped
	return res
}

// materialScore is the static score of pos oriented like engine scores: for
// the side to move, or for white when WhitePerspective is set.
func (a *Analyzer) materialScore(pos *chess.Position) float64 {
	score := eval.Material(pos)
	if !a.opts.WhitePerspective && pos.Turn == chess.Black {
		return -score
	}
	return score
}

// AnnotationRun wraps an evaluation series recorded in the game itself, such
// as PGN %eval comments. Those are white-positive regardless of
// WhitePerspective.
func AnnotationRun(evals []float64) *Run {
	return &Run{
		Series:    slices.Clone(evals),
		Plies:     len(evals),
		Source:    SourceAnnotations,
		StoppedAt: -1,
	}
}

// materialRun scores tokens with the static evaluator.
func (a *Analyzer) materialRun(tokens []string) *Run {
	series, err := eval.MaterialSeries(tokens)
	run := &Run{Series: series, Plies: len(series), Source: SourceMaterial, StoppedAt: -1}
	if err != nil {
		run.StoppedAt = tokenIndex(tokens, len(series))
		run.StopReason = err.Error()
	}
	a.metrics.RecordRun("material")
	return run
}

// tokenIndex returns the index in tokens of the ply numbered applied
// (counting from zero), skipping blank tokens.
func tokenIndex(tokens []string, applied int) int {
	n := 0
	for i, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		if n == applied {
			return i
		}
		n++
	}
	return len(tokens)
}

// current reports whether id is still the latest run.
func (a *Analyzer) current(id uint64) bool {
	return a.seq.Load() == id
}

// acquire takes the single engine slot.
func (a *Analyzer) acquire(ctx context.Context) (func(), error) {
	select {
	case a.slot <- struct{}{}:
		return func() { <-a.slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// establish makes sure a live session exists, dialing one if needed.
func (a *Analyzer) establish(ctx context.Context) error {
	release, err := a.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, err = a.liveSession(ctx)
	return err
}

// liveSession returns the owned session, replacing it when it has
// failed. The caller must hold the slot.
func (a *Analyzer) liveSession(ctx context.Context) (*uci.Session, error) {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	if sess != nil && sess.Phase() != uci.PhaseFailed {
		return sess, nil
	}
	if sess != nil {
		_ = sess.Close()
	}

	var fresh *uci.Session
	err := a.retry.Run(ctx, func(ctx context.Context) error {
		t, err := a.dial(ctx)
		if err != nil {
			return err
		}
		s := uci.NewSession(t, a.opts.Session, a.logger, a.metrics)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return err
		}
		fresh = s
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", uci.ErrUnavailable, err)
	}

	a.mu.Lock()
	a.session = fresh
	a.mu.Unlock()
	a.logger.Info("Engine session established", "engine", fresh.EngineName())
	return fresh, nil
}

// Ping checks the engine, establishing a session if none is live. It
// returns uci.ErrBusy instead of waiting while a query holds the engine.
func (a *Analyzer) Ping(ctx context.Context) error {
	select {
	case a.slot <- struct{}{}:
		defer func() { <-a.slot }()
	default:
		return uci.ErrBusy
	}

	sess, err := a.liveSession(ctx)
	if err != nil {
		return err
	}
	return sess.Ping(ctx)
}

// Reset discards the owned session once no query is using it; the next
// query dials a new one.
func (a *Analyzer) Reset() {
	a.slot <- struct{}{}
	defer func() { <-a.slot }()

	a.mu.Lock()
	sess := a.session
	a.session = nil
	a.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}

// Status reports the owned session's phase.
func (a *Analyzer) Status() Status {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	st := Status{Phase: "none", Limit: a.opts.Limit.String(), Cached: a.cache.Stats().Items}
	if sess != nil {
		st.Phase = sess.Phase().String()
		st.Engine = sess.EngineName()
	}
	return st
}

// Close closes the owned session.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	sess := a.session
	a.session = nil
	a.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}
