package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level   string // debug, info, warn, error
	Pretty  bool   // Enable pretty console output
	Service string // Service name attached to every log line
}

// New creates the process-wide structured logger. When cfg.Service is set,
// every log line carries a "service" field so multi-process deployments (the resilience core runs
// alongside, not instead of, other services) can be told apart in
// aggregated log output.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	builder := zerolog.New(output).With().Timestamp().Caller()
	if cfg.Service != "" {
		builder = builder.Str("service", cfg.Service)
	}
	return builder.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetGlobalLogger sets the package-level default logger used by third-party
// code that logs through zerolog's global log.Logger instead of an injected
// instance.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
