// Package log configures conveyor's structured logging. Components derive
// their logger from the process-wide default via WithModule, so every record
// carries a module attribute identifying the emitting subsystem.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler writing to stderr as the process-wide
// default logger.
func Setup(logLevel string) {
	SetupWithWriter(os.Stderr, logLevel)
}

// SetupWithWriter is Setup with an explicit destination, so tests can
// capture output.
func SetupWithWriter(w io.Writer, logLevel string) {
	slog.SetDefault(New(w, logLevel))
}

// New builds a logger without touching the process-wide default.
func New(w io.Writer, logLevel string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}))
}

// ParseLevel maps a level name to its slog level. Matching is
// case-insensitive; unknown names fall back to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule returns a logger tagged with the subsystem's name.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
