// Package logger builds the process-wide structured logger.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup configures a zerolog.Logger at the given level, writing JSON to
// stdout. An unrecognized level falls back to info.
func Setup(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stdout).Level(parseLevel(level)).With().Timestamp().Logger()
}

// SetupConsole configures a human-readable console writer, for local
// development where JSON lines are harder to scan than ConsoleWriter output.
func SetupConsole(level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
