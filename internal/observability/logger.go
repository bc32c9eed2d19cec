// Package observability configures the process-wide structured logger.
package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu           sync.RWMutex
	globalLogger zerolog.Logger
	initialized  bool
)

// InitLogger configures the global logger to write to stdout.
func InitLogger(level string, pretty bool) {
	InitLoggerTo(os.Stdout, level, pretty)
}

// InitLoggerTo configures the global logger to write to w. Unknown levels
// fall back to info. pretty selects a human-readable console format
// instead of JSON.
func InitLoggerTo(w io.Writer, level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).With().Timestamp().Str("service", "council").Logger()

	mu.Lock()
	globalLogger = logger
	initialized = true
	mu.Unlock()

	log.Logger = logger
}

// GetLogger returns the global logger, initializing it with defaults on
// first use.
func GetLogger() zerolog.Logger {
	mu.RLock()
	logger, ok := globalLogger, initialized
	mu.RUnlock()
	if ok {
		return logger
	}

	InitLogger("info", false)
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// WithTurnID tags logger with the id correlating one conversation turn.
// An empty id is replaced with a fresh one.
func WithTurnID(logger zerolog.Logger, turnID string) zerolog.Logger {
	if turnID == "" {
		turnID = NewTurnID()
	}
	return logger.With().Str("turn_id", turnID).Logger()
}

// WithComponent tags logger with the subsystem emitting the records.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// NewTurnID generates a new correlation id.
func NewTurnID() string {
	return uuid.NewString()
}
