package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger provides leveled logging throughout the application.
// Messages are printf-style; records are emitted through slog.
type Logger struct {
	slog *slog.Logger
}

// NewLogger creates a Logger writing text records to stderr at the given level
// (debug, info, warn or error; anything else means info).
func NewLogger(level string) *Logger {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo creates a Logger writing to w.
func NewLoggerTo(w io.Writer, level string) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return &Logger{slog: slog.New(handler)}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger that adds the given attributes to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Info(format string, args ...any) {
	l.slog.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.slog.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.slog.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.slog.Debug(fmt.Sprintf(format, args...))
}
