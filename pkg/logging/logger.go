// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Component names used in the "component" field.
const (
	ComponentLoader      = "loader"
	ComponentFetcher     = "batch-fetcher"
	ComponentWindow      = "window-cache"
	ComponentGate        = "admission-gate"
	ComponentHTTPSource  = "http-source"
	ComponentRedisSource = "redis-source"
	ComponentAPI         = "api"
)

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
	}
}

// zerologLevel maps l onto zerolog. Unknown levels log at info.
func (l LogLevel) zerologLevel() zerolog.Level {
	parsed, err := ParseLevel(string(l))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch parsed {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger derived from the global one with the given
// component name.
func NewLogger(component string) zerolog.Logger {
	return Component(nil, component)
}

// Component derives a component logger from base. A nil base means the
// global logger as it is at the time of the call.
func Component(base *zerolog.Logger, component string) zerolog.Logger {
	logger := log.Logger
	if base != nil {
		logger = *base
	}
	return logger.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Batch requests (offset, limit, request_id)
//   - Busy / complete / capacity short-circuits in LoadMore
//   - Window evictions
//   - Cancelled fetches
//
// Info: Normal operation events
//   - Range fetches and exports finished
//   - Materialized result sets
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Failed batch fetches (timeout, transport)
//   - Oversized batches truncated
//   - Retry attempts
//   - Non-2xx source responses
//
// Error: Error conditions requiring attention
//   - Retries exhausted
//   - Admission permits released twice
//   - Configuration errors
//
// Context Fields:
//   - component: one of the Component* constants
//   - key: canonical cache key
//   - namespace: dataset namespace
//   - batch_index, offset, limit: batch position
//   - error_kind: fetch failure kind (timeout, transport, cancelled)
//   - error_class: HTTP failure class (client, server, rate_limit, network)
//   - request_id: X-Request-ID sent to the source
//   - duration: request duration
