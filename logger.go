// Package prefs provides default logging implementations.
package prefs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LogLevel defines the various log levels.
// These correspond to slog's levels.
type LogLevel int

// Log level constants, mirroring slog levels for internal mapping.
const (
	LogLevelDebug LogLevel = LogLevel(slog.LevelDebug) // Debug messages
	LogLevelInfo  LogLevel = LogLevel(slog.LevelInfo)  // Informational messages
	LogLevelWarn  LogLevel = LogLevel(slog.LevelWarn)  // Warning messages
	LogLevelError LogLevel = LogLevel(slog.LevelError) // Error messages
)

// ParseLogLevel maps "debug", "info", "warn" or "error" (any case) to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	}
	return LogLevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidInput, s)
}

// Logger defines the methods required for logging within the preferences system.
// The args should be alternating key-value pairs, similar to slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	SetLevel(level LogLevel)
}

// defaultSlogLogger is an implementation of the Logger interface using the slog package.
type defaultSlogLogger struct {
	slogger  *slog.Logger
	levelVar *slog.LevelVar
}

// NewDefaultLogger returns a Logger writing JSON to os.Stderr at info level.
// The level can be changed later with SetLevel.
func NewDefaultLogger() Logger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)

	handlerOpts := &slog.HandlerOptions{
		Level: levelVar,
	}
	return &defaultSlogLogger{
		slogger:  slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)),
		levelVar: levelVar,
	}
}

func newDefaultLogger() Logger {
	return NewDefaultLogger()
}

// Debug logs a debug-level message.
func (l *defaultSlogLogger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs an info-level message.
func (l *defaultSlogLogger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs a warning-level message.
func (l *defaultSlogLogger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs an error-level message.
func (l *defaultSlogLogger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// SetLevel changes the logging level dynamically.
func (l *defaultSlogLogger) SetLevel(level LogLevel) {
	if l.levelVar != nil {
		l.levelVar.Set(slog.Level(level))
	}
}

// noopLogger discards everything. Backends use it when no logger is given.
type noopLogger struct{}

// NopLogger returns a Logger that discards all messages.
func NopLogger() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) SetLevel(LogLevel)    {}
