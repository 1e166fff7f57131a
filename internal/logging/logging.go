// Package logging builds the charmbracelet/log logger shared by the CLIs.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// LevelForVerbosity maps a -v count to a level: 1 is info, 2 or more is debug.
// ok is false for zero, which means logging is off.
func LevelForVerbosity(verbosity int) (level log.Level, ok bool) {
	switch {
	case verbosity <= 0:
		return log.InfoLevel, false
	case verbosity == 1:
		return log.InfoLevel, true
	default:
		return log.DebugLevel, true
	}
}

// NewLogger returns a logger writing to w at the level selected by verbosity.
// A verbosity of zero discards everything.
func NewLogger(w io.Writer, verbosity int) *log.Logger {
	level, ok := LevelForVerbosity(verbosity)
	if !ok {
		w = io.Discard
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
}

// NewStderrLogger is NewLogger on os.Stderr
func NewStderrLogger(verbosity int) *log.Logger {
	return NewLogger(os.Stderr, verbosity)
}

// Discard returns a logger that drops all output
func Discard() *log.Logger {
	return log.New(io.Discard)
}
