// Package logging builds the structured logger shared by every command.
package logging

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// New returns a logger writing to w at the given level ("debug", "info",
// "warn", "error" or "fatal").
func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "invalid log level %q", level),
			"use one of debug, info, warn, error, fatal",
		)
	}
	return log.NewWithOptions(w, log.Options{
		Level:  lvl,
		Prefix: "ciresolve",
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
