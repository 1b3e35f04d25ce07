package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger defines a minimal, printf-style logging contract. Components depend
// on this interface so tests can swap in a no-op or capturing logger.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// Config configures the process-wide logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

var (
	defaultMu      sync.RWMutex
	defaultHandler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
)

// Configure installs the process-wide handler used by component loggers.
func Configure(config Config) {
	level := slog.LevelInfo
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultMu.Lock()
	defaultHandler = handler
	defaultMu.Unlock()
}

type slogLogger struct {
	attrs []slog.Attr
}

// NewComponentLogger returns the default application logger scoped to a
// component name.
func NewComponentLogger(component string) Logger {
	return &slogLogger{attrs: []slog.Attr{slog.String("component", component)}}
}

// NewSessionLogger returns a logger scoped to both a component and a
// session identifier, matching the per-session log streams of the service.
func NewSessionLogger(component, sessionID string) Logger {
	return &slogLogger{attrs: []slog.Attr{
		slog.String("component", component),
		slog.String("session_id", sessionID),
	}}
}

func (l *slogLogger) log(level slog.Level, format string, args ...any) {
	defaultMu.RLock()
	handler := defaultHandler
	defaultMu.RUnlock()

	logger := slog.New(handler.WithAttrs(l.attrs))
	logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *slogLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *slogLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *slogLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *slogLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }
