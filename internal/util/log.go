package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds a timestamped JSON logger at the requested level.
// Unknown levels fall back to info.
func NewLogger(level string) zerolog.Logger {
	return newLogger(level, os.Stdout)
}

// NewConsoleLogger builds a human-readable logger for interactive runs such
// as backtests.
func NewConsoleLogger(level string) zerolog.Logger {
	return newLogger(level, zerolog.ConsoleWriter{Out: os.Stderr})
}

func newLogger(level string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
