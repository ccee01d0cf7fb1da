package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogFormat represents the log output format.
type LogFormat string

const (
	// FormatText is human-readable console output.
	FormatText LogFormat = "text"
	// FormatJSON is structured JSON output.
	FormatJSON LogFormat = "json"
)

// Config represents logging configuration.
type Config struct {
	Level   string
	Format  LogFormat
	Service string
	Version string
	Prefix  string
}

// NewLoggerFromConfig creates a logger writing to stderr. Stdout is left
// alone because the MCP transport owns it.
func NewLoggerFromConfig(cfg *Config) ContextLogger {
	return NewLoggerWithWriter(os.Stderr, cfg)
}

// NewLoggerWithWriter creates a logger for cfg writing to w.
func NewLoggerWithWriter(w io.Writer, cfg *Config) ContextLogger {
	format := cfg.Format
	if format == "" {
		if env := os.Getenv("CHESS_ANALYZER_LOG_FORMAT"); env != "" {
			format = LogFormat(strings.ToLower(env))
		} else {
			format = FormatJSON
		}
	}

	if format == FormatText {
		console := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
		if cfg.Prefix != "" {
			prefix := cfg.Prefix
			console.FormatMessage = func(i interface{}) string {
				s, _ := i.(string)
				return prefix + s
			}
		}
		return NewStructuredLoggerWithWriter(console, cfg.Service, cfg.Version, cfg.Level)
	}
	return NewStructuredLoggerWithWriter(w, cfg.Service, cfg.Version, cfg.Level)
}
