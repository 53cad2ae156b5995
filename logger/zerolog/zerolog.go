// Package zerolog adapts rs/zerolog to the core.Logger interface.
package zerolog

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog logger for adapter construction.
type Logger struct {
	*zerolog.Logger
}

// New creates a zerolog logger with the given level, timestamp layout,
// console coloring and output format.
func New(level, dateTimeLayout string, colored, jsonFormat bool) (*Logger, error) {
	logMode, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(logMode)

	var logger zerolog.Logger
	if jsonFormat {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			NoColor:    !colored,
			TimeFormat: dateTimeLayout,
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	}

	return &Logger{&logger}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	logger := zerolog.Nop()
	return &Logger{&logger}
}
