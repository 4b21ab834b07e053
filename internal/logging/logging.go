// Package logging configures the zerolog logger used for debug output.
// Logs go to stderr so they never mix with the report on stdout.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Init sets up the global logger. Verbose enables debug level; otherwise only
// warnings and errors surface. Returns the configured logger.
func Init(verbose bool) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}

	logger := zerolog.New(consoleWriter).
		With().
		Timestamp().
		Logger()

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &logger
	return logger
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// Component returns a child logger tagged with a component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
