package uci

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
)

// DetectedSetup describes a locally installed engine.
type DetectedSetup struct {
	BinaryPath string
	Name       string
	Errors     []string
}

// DetectEngine looks for a Stockfish binary and asks it for its name.
func DetectEngine() (*DetectedSetup, error) {
	setup := &DetectedSetup{
		Errors: []string{},
	}

	binaryPath, err := findEngineBinary()
	if err != nil {
		setup.Errors = append(setup.Errors, fmt.Sprintf("Binary: %v", err))
		return setup, fmt.Errorf("engine not found. Installation errors:\n%s", strings.Join(setup.Errors, "\n"))
	}
	setup.BinaryPath = binaryPath

	if name, err := probeEngineName(binaryPath); err != nil {
		setup.Errors = append(setup.Errors, fmt.Sprintf("Probe: %v", err))
	} else {
		setup.Name = name
	}

	return setup, nil
}

func findEngineBinary() (string, error) {
	searchPaths := []string{
		os.Getenv("CHESS_ANALYZER_ENGINE_BINARYPATH"),
		// System PATH
		"stockfish",
		"/usr/local/bin/stockfish",
		"/usr/bin/stockfish",
		"/usr/games/stockfish",
		"/opt/homebrew/bin/stockfish",
		"/opt/local/bin/stockfish",
		"C:\\Program Files\\Stockfish\\stockfish.exe",
		"C:\\Stockfish\\stockfish.exe",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, "bin", "stockfish"),
			filepath.Join(home, ".local", "bin", "stockfish"),
		)
	}

	for _, path := range searchPaths {
		if path == "" {
			continue
		}

		if !filepath.IsAbs(path) {
			if found, err := exec.LookPath(path); err == nil {
				path = found
			}
		}

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if runtime.GOOS == "windows" && strings.HasSuffix(path, ".exe") {
				return path, nil
			}
			if runtime.GOOS != "windows" && info.Mode()&0o111 != 0 {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("not found in PATH or common locations. Install from https://stockfishchess.org/download/")
}

// probeEngineName runs a bare handshake and returns the reported id name.
func probeEngineName(binaryPath string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t, err := StartProcess(ctx, binaryPath, nil, logging.NewNopLogger())
	if err != nil {
		return "", err
	}
	s := NewSession(t, SessionOptions{HandshakeTimeout: 3 * time.Second}, logging.NewNopLogger(), nil)
	defer s.Close()

	if err := s.Ping(ctx); err != nil {
		return "", err
	}
	return s.EngineName(), nil
}

// GetInstallationInstructions returns platform-specific install hints.
func GetInstallationInstructions() string {
	var instructions strings.Builder

	instructions.WriteString("Stockfish Installation Instructions\n")
	instructions.WriteString("===================================\n\n")

	switch runtime.GOOS {
	case "darwin":
		instructions.WriteString("macOS:\n")
		instructions.WriteString("  brew install stockfish\n\n")
	case "linux":
		instructions.WriteString("Linux:\n")
		instructions.WriteString("  Ubuntu/Debian: sudo apt install stockfish\n")
		instructions.WriteString("  OR download from: https://stockfishchess.org/download/\n\n")
	case "windows":
		instructions.WriteString("Windows:\n")
		instructions.WriteString("  Download from: https://stockfishchess.org/download/\n")
		instructions.WriteString("  Extract to C:\\Stockfish\\ or C:\\Program Files\\Stockfish\\\n\n")
	}

	instructions.WriteString("Any UCI engine works. Point the analyzer at it with:\n")
	instructions.WriteString("  export CHESS_ANALYZER_ENGINE_BINARYPATH=/path/to/engine\n")
	instructions.WriteString("Or connect to a running engine bridge:\n")
	instructions.WriteString("  export CHESS_ANALYZER_ENGINE_URL=ws://localhost:8080/engine\n")

	return instructions.String()
}
