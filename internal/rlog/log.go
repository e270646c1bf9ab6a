// Package rlog wires up the process-wide zerolog logger, the same logging
// dependency the teacher's circuit tests configure for gnark's internal
// debug output (circuits/eth2_sc_update_test.go).
package rlog

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a console-writer logger for interactive use (CLI driver,
// tests) when pretty is true, or a plain JSON logger for production/batch
// use otherwise.
func New(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
