// Package logging builds the key/value loggers used outside of Temporal
// workers, where activity.GetLogger is not available.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.temporal.io/sdk/log"
)

// New returns a logger writing text records to w at level ("debug", "info",
// "warn" or "error"; anything else means info).
func New(w io.Writer, level string) log.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return log.NewStructuredLogger(slog.New(handler))
}

// FromEnv returns a stderr logger honouring LOG_LEVEL.
func FromEnv() log.Logger {
	return New(os.Stderr, os.Getenv("LOG_LEVEL"))
}

// Discard returns a logger that drops everything.
func Discard() log.Logger {
	return New(io.Discard, "error")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
