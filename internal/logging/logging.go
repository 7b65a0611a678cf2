// Package logging builds the slog loggers used by the portal binaries.
// Components receive a *slog.Logger and tag their records with a "subsystem" attribute.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// SubsystemKey is the attribute key naming the component that emitted a record.
const SubsystemKey = "subsystem"

// ParseLevel maps LOG_LEVEL values (debug, info, warn, error) to a slog.Level.
// Unknown or empty values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a text logger writing to w at the given level.
// With json set the records are JSON lines instead, for the worker under a log shipper.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// For returns logger tagged with subsystem. A nil logger yields a tagged slog.Default().
func For(logger *slog.Logger, subsystem string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(SubsystemKey, subsystem)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
