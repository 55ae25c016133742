// Package logging builds the project-standard slog logger.
package logging

import (
	"log/slog"
	"os"
)

// New returns a text logger on stderr. Debug mode lowers the level and adds
// source locations, matching the diagnostics the event sampler emits.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}))
}
