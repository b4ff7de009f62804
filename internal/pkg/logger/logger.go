// PATH: internal/pkg/logger/logger.go
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Logger zerolog.Logger

// Init configures the global Logger from LOG_LEVEL / LOG_FORMAT: JSON output
// when LOG_FORMAT=json, pretty console output otherwise.
func Init() {
	InitWithWriter(os.Stdout)
}

// InitWithWriter is Init with the output writer injected, so tests can assert
// on formatted output without touching stdout.
func InitWithWriter(w io.Writer) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if os.Getenv("LOG_FORMAT") == "json" {
		Logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger().Level(level)
	}

	log.Logger = Logger
}

// WithShard tags a logger with the scanner shard it belongs to.
func WithShard(shard string) zerolog.Logger {
	return Logger.With().Str("shard", shard).Logger()
}

// WithHandlerKind tags a logger with the dispatcher handler it belongs to.
func WithHandlerKind(handlerKind string) zerolog.Logger {
	return Logger.With().Str("handler_kind", handlerKind).Logger()
}
