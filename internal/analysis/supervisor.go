package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

// Engine is the part of the Analyzer the supervisor drives.
type Engine interface {
	Ping(ctx context.Context) error
	Reset()
}

var _ Engine = (*Analyzer)(nil)

// Supervisor warms the engine session up at start and keeps checking it,
// discarding an unresponsive session so the next request redials.
type Supervisor struct {
	engine Engine
	logger logging.ContextLogger

	mu                  sync.Mutex
	running             bool
	stopCh              chan struct{}
	restartCh           chan struct{}
	healthCheckInterval time.Duration
	pingTimeout         time.Duration
}

// NewSupervisor creates a supervisor for engine.
func NewSupervisor(engine Engine, logger logging.ContextLogger, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Supervisor{
		engine:              engine,
		logger:              logger,
		stopCh:              make(chan struct{}),
		restartCh:           make(chan struct{}, 1),
		healthCheckInterval: interval,
		pingTimeout:         10 * time.Second,
	}
}

// Start launches the supervision loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("supervisor already running")
	}

	s.running = true
	go s.supervise(ctx)

	return nil
}

// Stop ends the supervision loop. The engine session itself is left to its
// owner.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	return nil
}

// Restart drops the current session and dials a new one.
func (s *Supervisor) Restart() {
	select {
	case s.restartCh <- struct{}{}:
		s.logger.Info("Manual restart requested")
	default:
		// Channel is full, restart already pending
	}
}

func (s *Supervisor) supervise(ctx context.Context) {
	s.logger.Info("Starting engine supervisor")

	s.check(ctx)

	healthTicker := time.NewTicker(s.healthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Supervisor context cancelled")
			return

		case <-s.stopCh:
			s.logger.Info("Supervisor stopped")
			return

		case <-s.restartCh:
			s.logger.Info("Processing restart request")
			s.engine.Reset()
			s.check(ctx)

		case <-healthTicker.C:
			s.check(ctx)
		}
	}
}

// check pings the engine and discards the session when it does not answer.
func (s *Supervisor) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()

	err := s.engine.Ping(pingCtx)
	switch {
	case err == nil:
		s.logger.Debug("Engine health check passed")
	case errors.Is(err, uci.ErrBusy):
		s.logger.Debug("Engine busy, skipping health check")
	default:
		s.logger.Warn("Engine health check failed", "error", err)
		s.engine.Reset()
	}
}
