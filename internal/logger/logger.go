// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps log/slog to provide level-based filtering and formatted output: "text" renders
// colored lines through tint, "json" emits one JSON object per line.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If an acquisition is running smoothly, it shouldn't generate any error-level logs.
	ErrorLevel
)

var (
	// Global logger instance
	defaultLogger *slog.Logger
)

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the default logger with the specified level and format, writing to stderr.
func Init(level string, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination. The TUI display uses it to move logs
// off the terminal it draws on.
func InitWriter(w io.Writer, level string, format string) {
	l := ParseLevel(level).slogLevel()

	var h slog.Handler
	if strings.ToLower(format) == "text" {
		h = tint.NewHandler(w, &tint.Options{
			Level:      l,
			AddSource:  true,
			TimeFormat: time.TimeOnly + ".000",
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l})
	}

	defaultLogger = slog.New(h)
}

// output records msg with the caller of the exported helper as its source.
func output(level slog.Level, format string, args ...interface{}) {
	if defaultLogger == nil {
		return
	}
	ctx := context.Background()
	if !defaultLogger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, fmt.Sprintf(format, args...), pcs[0])
	_ = defaultLogger.Handler().Handle(ctx, r)
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	output(slog.LevelDebug, format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	output(slog.LevelInfo, format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	output(slog.LevelWarn, format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	output(slog.LevelError, format, args...)
}
