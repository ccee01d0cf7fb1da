package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// StructuredLogger is a ContextLogger backed by zerolog. Correlation and
// request IDs from the context are emitted as top-level fields.
type StructuredLogger struct {
	mu     sync.RWMutex
	level  Level
	zl     zerolog.Logger
	fields map[string]interface{}
	caller bool
}

// NewStructuredLogger creates a JSON logger writing to stderr.
func NewStructuredLogger(service, version, level string) *StructuredLogger {
	return NewStructuredLoggerWithWriter(os.Stderr, service, version, level)
}

// NewStructuredLoggerWithWriter creates a JSON logger writing to w.
func NewStructuredLoggerWithWriter(w io.Writer, service, version, level string) *StructuredLogger {
	ctx := zerolog.New(w).With().Timestamp().Str("service", service)
	if version != "" {
		ctx = ctx.Str("version", version)
	}
	return &StructuredLogger{
		level:  ParseLevel(level),
		zl:     ctx.Logger(),
		fields: make(map[string]interface{}),
		caller: true,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StructuredLogger {
	return &StructuredLogger{
		level:  ErrorLevel,
		zl:     zerolog.Nop(),
		fields: make(map[string]interface{}),
	}
}

func (l *StructuredLogger) clone() *StructuredLogger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := &StructuredLogger{
		level:  l.level,
		zl:     l.zl,
		fields: make(map[string]interface{}, len(l.fields)),
		caller: l.caller,
	}
	for k, v := range l.fields {
		n.fields[k] = v
	}
	return n
}

// WithContext returns a logger with correlation and request IDs from context.
func (l *StructuredLogger) WithContext(ctx context.Context) ContextLogger {
	n := l.clone()
	if id, ok := CorrelationIDFromContext(ctx); ok {
		n.fields["correlation_id"] = id
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		n.fields["request_id"] = id
	}
	return n
}

// WithFields returns a logger with additional fields.
func (l *StructuredLogger) WithFields(fields map[string]interface{}) ContextLogger {
	n := l.clone()
	for k, v := range fields {
		n.fields[k] = v
	}
	return n
}

// WithField returns a logger with an additional field.
func (l *StructuredLogger) WithField(key string, value interface{}) ContextLogger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *StructuredLogger) log(level Level, message string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	ev := l.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}

	msg, kv := splitArgs(message, args)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			ev = ev.Interface(key, kv[i+1])
		}
	}
	if len(kv)%2 == 1 {
		ev = ev.Interface("extra", kv[len(kv)-1])
	}

	l.mu.RLock()
	if len(l.fields) > 0 {
		ev = ev.Fields(l.fields)
	}
	withCaller := l.caller
	l.mu.RUnlock()

	if withCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			ev = ev.Str("caller", fmt.Sprintf("%s:%d", file, line))
		}
	}
	ev.Msg(msg)
}

// splitArgs applies as many args as the message has printf verbs and
// returns the rest as key-value pairs. When there are too few args for the
// verbs, every arg is treated as a key-value pair.
func splitArgs(message string, args []interface{}) (string, []interface{}) {
	if len(args) == 0 || !strings.Contains(message, "%") {
		return message, args
	}
	verbs := 0
	for i := 0; i < len(message)-1; i++ {
		if message[i] != '%' {
			continue
		}
		if message[i+1] == '%' {
			i++
			continue
		}
		verbs++
	}
	if verbs == 0 || len(args) < verbs {
		return message, args
	}
	return fmt.Sprintf(message, args[:verbs]...), args[verbs:]
}

// Debug logs a debug message.
func (l *StructuredLogger) Debug(message string, args ...interface{}) {
	l.log(DebugLevel, message, args...)
}

// Info logs an info message.
func (l *StructuredLogger) Info(message string, args ...interface{}) {
	l.log(InfoLevel, message, args...)
}

// Warn logs a warning message.
func (l *StructuredLogger) Warn(message string, args ...interface{}) {
	l.log(WarnLevel, message, args...)
}

// Error logs an error message.
func (l *StructuredLogger) Error(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
}

// Fatal logs an error message and exits.
func (l *StructuredLogger) Fatal(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
	os.Exit(1)
}

// SetLevel sets the logging level.
func (l *StructuredLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level.
func (l *StructuredLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *StructuredLogger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}
