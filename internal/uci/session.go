package uci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
)

// Phase is the lifecycle state of a Session.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseHandshaking
	PhaseReady
	PhaseBusy
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseReady:
		return "ready"
	case PhaseBusy:
		return "busy"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// SessionOptions controls handshake and request deadlines.
type SessionOptions struct {
	// HandshakeTimeout bounds each handshake step and the wait for a
	// bestmove after a cancelled search.
	HandshakeTimeout time.Duration
	// DepthTimeout bounds depth-limited searches.
	DepthTimeout time.Duration
	// MoveTimeSlack is added to the movetime of time-limited searches.
	MoveTimeSlack time.Duration
	// Options are sent as setoption commands during the handshake.
	Options map[string]string
}

// DefaultSessionOptions returns the stock deadlines.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		HandshakeTimeout: 4 * time.Second,
		DepthTimeout:     15 * time.Second,
		MoveTimeSlack:    3 * time.Second,
	}
}

const lineBuffer = 256

// Session is a single engine connection. It handshakes lazily on first use,
// runs at most one request at a time and is discarded once it fails.
type Session struct {
	transport Transport
	opts      SessionOptions
	logger    logging.ContextLogger
	metrics   *metrics.PrometheusCollector

	lines chan string
	done  chan struct{}

	mu         sync.Mutex
	phase      Phase
	engineName string
	readErr    error

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps t and starts reading from it. The handshake is deferred
// to the first Analyze or Ping.
func NewSession(t Transport, opts SessionOptions, logger logging.ContextLogger, m *metrics.PrometheusCollector) *Session {
	def := DefaultSessionOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.DepthTimeout <= 0 {
		opts.DepthTimeout = def.DepthTimeout
	}
	if opts.MoveTimeSlack <= 0 {
		opts.MoveTimeSlack = def.MoveTimeSlack
	}

	s := &Session{
		transport: t,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		lines:     make(chan string, lineBuffer),
		done:      make(chan struct{}),
	}
	m.RecordSessionCreated()
	m.SetSessionPhase(PhaseUninitialized.String())
	go s.readLoop()
	return s
}

// Phase reports the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// EngineName is the "id name" the engine reported during the handshake.
func (s *Session) EngineName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineName
}

// Analyze searches the position described by fen and blocks until the
// engine answers with bestmove, the deadline passes or ctx is done.
//
// On ErrTimeout and on ctx cancellation the returned Result holds whatever
// score and PV were seen so far.
func (s *Session) Analyze(ctx context.Context, limit Limit, fen string) (Result, error) {
	if err := limit.Validate(); err != nil {
		return Result{}, err
	}
	if err := s.acquire(ctx); err != nil {
		return Result{}, err
	}

	start := time.Now()
	res, err := s.search(ctx, limit, fen)
	s.metrics.RecordEngineRequest(limit.Kind(), outcome(err), time.Since(start).Seconds())
	return res, err
}

// Ping checks that the engine answers isready. An uninitialized session
// handshakes first.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	s.drain()
	if err := s.send("isready"); err != nil {
		s.fail()
		return err
	}
	err := s.await(ctx, s.opts.HandshakeTimeout, "readyok", nil)
	switch {
	case err == nil:
		s.release()
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransport):
		s.fail()
		return err
	default:
		// The caller went away; a late readyok is drained by the next request.
		s.release()
		return err
	}
}

// Close sends quit if the engine is still usable and closes the transport.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	usable := s.phase != PhaseFailed
	s.setPhase(PhaseFailed)
	s.mu.Unlock()

	if usable {
		_ = s.transport.Send("quit")
	}
	return s.shutdown()
}

// acquire moves the session into Busy, running the handshake first when
// needed.
func (s *Session) acquire(ctx context.Context) error {
	s.mu.Lock()
	switch s.phase {
	case PhaseBusy, PhaseHandshaking:
		s.mu.Unlock()
		return ErrBusy
	case PhaseFailed:
		s.mu.Unlock()
		return ErrUnavailable
	case PhaseReady:
		s.setPhase(PhaseBusy)
		s.mu.Unlock()
		return nil
	}
	s.setPhase(PhaseHandshaking)
	s.mu.Unlock()

	if err := s.handshake(ctx); err != nil {
		s.metrics.RecordHandshake(false)
		s.logger.Error("Engine handshake failed", "error", err)
		s.fail()
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.metrics.RecordHandshake(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseHandshaking {
		return ErrUnavailable
	}
	s.setPhase(PhaseBusy)
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	if err := s.send("uci"); err != nil {
		return err
	}
	err := s.await(ctx, s.opts.HandshakeTimeout, "uciok", func(line string) {
		if name, ok := strings.CutPrefix(line, "id name "); ok {
			s.mu.Lock()
			s.engineName = name
			s.mu.Unlock()
		}
	})
	if err != nil {
		return fmt.Errorf("waiting for uciok: %w", err)
	}

	for _, name := range slices.Sorted(maps.Keys(s.opts.Options)) {
		if err := s.send(fmt.Sprintf("setoption name %s value %s", name, s.opts.Options[name])); err != nil {
			return err
		}
	}

	if err := s.send("isready"); err != nil {
		return err
	}
	if err := s.await(ctx, s.opts.HandshakeTimeout, "readyok", nil); err != nil {
		return fmt.Errorf("waiting for readyok: %w", err)
	}
	if err := s.send("ucinewgame"); err != nil {
		return err
	}

	s.logger.Info("Engine handshake complete", "engine", s.EngineName())
	return nil
}

func (s *Session) search(ctx context.Context, limit Limit, fen string) (Result, error) {
	if n := s.drain(); n > 0 {
		s.logger.Warn("Discarded stale engine output", "lines", n)
		s.metrics.RecordStaleLines(n)
	}

	for _, cmd := range []string{"stop", "position fen " + fen, limit.GoCommand()} {
		if err := s.send(cmd); err != nil {
			s.fail()
			return Result{}, err
		}
	}

	timeout := s.opts.DepthTimeout
	if limit.MoveTime > 0 {
		timeout = limit.MoveTime + s.opts.MoveTimeSlack
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res Result
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.fail()
				return Result{}, s.streamErr()
			}
			if observe(&res, line) {
				s.release()
				return res, nil
			}
		case <-timer.C:
			s.logger.Warn("Engine request timed out", "limit", limit.String(), "timeout", timeout)
			s.fail()
			return res, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ctx.Done():
			return s.abandon(res, ctx.Err())
		}
	}
}

// abandon stops a search whose caller went away. The session survives only
// if the engine acknowledges with bestmove in time.
func (s *Session) abandon(res Result, cause error) (Result, error) {
	if err := s.send("stop"); err != nil {
		s.fail()
		return res, cause
	}

	timer := time.NewTimer(s.opts.HandshakeTimeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.fail()
				return res, cause
			}
			if observe(&res, line) {
				s.release()
				return res, cause
			}
		case <-timer.C:
			s.logger.Warn("Engine ignored stop after cancellation")
			s.fail()
			return res, cause
		}
	}
}

// observe folds line into res and reports whether it was terminal.
func observe(res *Result, line string) bool {
	info := ParseInfo(line)
	if info.Score != nil {
		res.Score = info.Score
	}
	if len(info.PV) > 0 {
		res.PV = info.PV
	}
	if info.Depth > 0 {
		res.Depth = info.Depth
	}
	move, terminal := ParseBestMove(line)
	if terminal {
		res.BestMove = move
	}
	return terminal
}

// await consumes lines until one contains token. Every line seen is passed
// to each, if set.
func (s *Session) await(ctx context.Context, timeout time.Duration, token string, each func(string)) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return s.streamErr()
			}
			if each != nil {
				each(line)
			}
			if strings.Contains(line, token) {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain discards lines buffered since the last request finished.
func (s *Session) drain() int {
	n := 0
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return n
			}
			n++
			s.logger.Debug("Stale engine line", "line", line)
		default:
			return n
		}
	}
}

func (s *Session) send(line string) error {
	s.logger.Debug("Engine <<", "line", line)
	if err := s.transport.Send(line); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.lines)
	for {
		line, err := s.transport.Recv()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
}

func (s *Session) streamErr() error {
	s.mu.Lock()
	err := s.readErr
	s.mu.Unlock()
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: engine closed the stream", ErrTransport)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// release returns a Busy session to Ready.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseBusy {
		s.setPhase(PhaseReady)
	}
}

// fail marks the session Failed and tears down the transport.
func (s *Session) fail() {
	s.mu.Lock()
	s.setPhase(PhaseFailed)
	s.mu.Unlock()
	_ = s.shutdown()
}

func (s *Session) shutdown() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.transport.Close()
	})
	return s.closeErr
}

// setPhase must be called with mu held.
func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.phase = p
	s.metrics.SetSessionPhase(p.String())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "transport_error"
	}
}
