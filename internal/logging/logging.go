// Package logging configures the zerolog logger shared by every component.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a console-writer zerolog.Logger at the given level ("debug",
// "info", "warn", "error"; unrecognized values fall back to "info").
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
