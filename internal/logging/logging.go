// Package logging configures the process-wide diagnostic logger. Audit
// events never go through it.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a logger writing to w. jsonOut selects the JSON handler.
func New(w io.Writer, jsonOut bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonOut {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("component", "quill")
}

// Init sets the default slog logger on stderr. When the audit stream goes
// to the console, diagnostics are JSON so they stay machine-separable from
// audit lines; otherwise text.
func Init(auditToConsole bool, level slog.Level) {
	slog.SetDefault(New(os.Stderr, auditToConsole, level))
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to slog.Level.
// Unknown strings default to LevelInfo.
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
