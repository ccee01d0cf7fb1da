package uci

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
)

// ProcessTransport runs an engine binary and talks to it over its pipes.
type ProcessTransport struct {
	*StreamTransport
	cmd    *exec.Cmd
	logger logging.ContextLogger

	once sync.Once
}

// StartProcess launches the engine at path. ctx only bounds the start; the
// process lives until Close.
func StartProcess(ctx context.Context, path string, args []string, logger logging.ContextLogger) (*ProcessTransport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...) // #nosec G204 -- path is validated configuration

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine %s: %w", path, err)
	}
	logger.Info("Engine process started", "binary", path, "pid", cmd.Process.Pid)

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				logger.Debug("Engine stderr", "line", line)
			}
		}
	}()

	return &ProcessTransport{
		StreamTransport: NewStreamTransport(stdout, stdin),
		cmd:             cmd,
		logger:          logger,
	}, nil
}

// Close closes stdin and waits briefly for the process to exit before
// killing it.
func (p *ProcessTransport) Close() error {
	p.once.Do(func() {
		_ = p.StreamTransport.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				p.logger.Debug("Engine process exited", "error", err)
			}
		case <-time.After(2 * time.Second):
			_ = p.cmd.Process.Kill()
			<-done
			p.logger.Warn("Engine process killed after exit timeout")
		}
	})
	return nil
}
