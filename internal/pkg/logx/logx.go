/*
Package logx provides a structured logging wrapper based on zerolog.

It initializes the global logger (human-readable console output in development, JSON
otherwise), hands out component-scoped child loggers to long-lived services, and offers
key-value helpers for one-off log lines outside any component.
*/
package logx

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger configures the global logger. level overrides the default of debug in
// development and info otherwise; an unknown level falls back to the default.
func InitGlobalLogger(isDevelopment bool, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.DurationFieldUnit = time.Millisecond

	lvl := zerolog.InfoLevel
	if isDevelopment {
		lvl = zerolog.DebugLevel
	}
	var badLevel bool
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		} else {
			badLevel = true
		}
	}

	var logger zerolog.Logger
	if isDevelopment {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	log.Logger = logger.Level(lvl).With().Timestamp().Caller().Logger()

	if badLevel {
		log.Logger.Warn().Str("log_level", level).Stringer("using", lvl).Msg("Unknown log level, using default.")
	}
}

// Logger returns the global logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// pairs drops a trailing key without value rather than letting zerolog misreport it.
func pairs(fields []any) []any {
	if len(fields)%2 == 0 {
		return fields
	}
	Logger().Warn().
		CallerSkipFrame(2).
		Int("fields_count", len(fields)).
		Msg("Odd number of log fields, last one dropped.")
	return fields[:len(fields)-1]
}

func emit(ev *zerolog.Event, msg string, fields []any) {
	ev.Fields(pairs(fields)).CallerSkipFrame(2).Msg(msg)
}

// Debug logs msg at debug level with key-value fields.
func Debug(msg string, fields ...any) {
	emit(Logger().Debug(), msg, fields)
}

// Info logs msg at info level with key-value fields.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), msg, fields)
}

// Warn logs msg at warn level with key-value fields.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), msg, fields)
}

// Error logs err and msg at error level with key-value fields.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error().Err(err), msg, fields)
}

// Fatal logs err and msg, then exits the process with status 1.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal().Err(err), msg, fields)
}
