package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
)

// DefaultTimeout bounds a signal-triggered shutdown.
const DefaultTimeout = 30 * time.Second

type component struct {
	name string
	fn   func(context.Context) error
}

// Manager stops registered components when the process is asked to exit.
type Manager struct {
	logger     logging.ContextLogger
	components []component
	mu         sync.Mutex
	done       chan struct{}
	once       sync.Once
	err        error
}

// NewManager creates a new shutdown manager.
func NewManager(logger logging.ContextLogger) *Manager {
	return &Manager{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Register adds fn under name. The most recently registered component is
// listed first; all of them are stopped concurrently.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append([]component{{name: name, fn: fn}}, m.components...)
}

// HandleSignals shuts down on SIGINT or SIGTERM. The returned func stops
// listening.
func (m *Manager) HandleSignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			m.logger.Info("Received shutdown signal", "signal", sig)
			_ = m.Shutdown(DefaultTimeout)
		case <-stop:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(stop)
		})
	}
}

// Shutdown stops every component within timeout. Only the first call does
// any work; later calls return its result.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.once.Do(func() {
		defer close(m.done)

		m.mu.Lock()
		components := append([]component(nil), m.components...)
		m.mu.Unlock()

		m.logger.Info("Starting graceful shutdown", "timeout", timeout, "components", len(components))
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var g errgroup.Group
		for _, c := range components {
			g.Go(func() error { return m.stop(ctx, c) })
		}

		finished := make(chan error, 1)
		go func() { finished <- g.Wait() }()

		select {
		case err := <-finished:
			m.err = err
			if err != nil {
				m.logger.Error("Graceful shutdown completed with errors", "error", err)
			} else {
				m.logger.Info("Graceful shutdown completed successfully")
			}
		case <-ctx.Done():
			m.err = fmt.Errorf("shutdown timed out after %s: %w", timeout, ctx.Err())
			m.logger.Error("Graceful shutdown timed out", "timeout", timeout)
		}
	})
	<-m.done
	return m.err
}

func (m *Manager) stop(ctx context.Context, c component) error {
	logger := m.logger.WithField("component", c.name)
	logger.Info("Shutting down component")

	start := time.Now()
	if err := c.fn(ctx); err != nil {
		logger.Error("Failed to shutdown component", "error", err, "elapsed", time.Since(start))
		return fmt.Errorf("%s: %w", c.name, err)
	}
	logger.Info("Component shutdown complete", "elapsed", time.Since(start))
	return nil
}

// Done returns a channel that's closed when shutdown is complete.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// WaitForShutdown blocks until shutdown is complete.
func (m *Manager) WaitForShutdown() {
	<-m.done
}
