// Package logging wraps log/slog with the level selection spec.md §6
// assigns to the HYDRA_LOG environment variable. Hydra carries no
// third-party logging dependency: the teacher (nysm) itself only logs
// via fmt/cobra command output, so per SPEC_FULL.md §1 the "ambient
// concerns are carried regardless of Non-goals" rule is satisfied with
// the standard library's structured logger rather than introducing a
// library the example pack never reaches for.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a slog.Logger writing to stderr at the level named by the
// HYDRA_LOG environment variable ("debug", "info", "warn"/"warning",
// "error"; unset or unrecognized defaults to "info").
func New() *slog.Logger {
	return newAtLevel(parseLevel(os.Getenv("HYDRA_LOG")))
}

// NewWithVerbose is New, except --verbose forces debug level regardless
// of HYDRA_LOG, mirroring the teacher's own verbose-flag-wins-over-env
// logging setup in its `hydra analyze` equivalent command.
func NewWithVerbose(verbose bool) *slog.Logger {
	level := parseLevel(os.Getenv("HYDRA_LOG"))
	if verbose {
		level = slog.LevelDebug
	}
	return newAtLevel(level)
}

func newAtLevel(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
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
