package loader

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/window"
)

// Defaults for UI tables.
const (
	DefaultBatchSize      = 60
	DefaultMaxBatches     = window.DefaultMaxBatches
	DefaultMaxConcurrent  = gate.DefaultLimit
	DefaultRequestTimeout = 30 * time.Second
	defaultShards         = 16
)

// Config holds loader controller configuration.
type Config struct {
	// BatchSize is the number of records per batch.
	BatchSize int

	// MaxBatches caps the batches retained per key.
	MaxBatches int

	// MaxConcurrentBatches sizes the admission gate when the controller
	// creates its own. Ignored when a gate is passed to New.
	MaxConcurrentBatches int

	// RequestTimeout bounds each batch request.
	RequestTimeout time.Duration

	// MaxClientRecords is the hard ceiling on records fetched per key.
	// Zero means BatchSize * MaxBatches.
	MaxClientRecords int

	// Shards is the number of independently locked partitions of the
	// key-to-state map.
	Shards int

	// Logger receives loader diagnostics. Zero value uses the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns safe defaults for dashboard tables.
func DefaultConfig() Config {
	return Config{
		BatchSize:            DefaultBatchSize,
		MaxBatches:           DefaultMaxBatches,
		MaxConcurrentBatches: DefaultMaxConcurrent,
		RequestTimeout:       DefaultRequestTimeout,
		Shards:               defaultShards,
	}
}

// withDefaults replaces non-positive values with defaults and derives
// MaxClientRecords.
func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = DefaultMaxBatches
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = DefaultMaxConcurrent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxClientRecords <= 0 {
		c.MaxClientRecords = c.BatchSize * c.MaxBatches
	}
	if c.Shards <= 0 {
		c.Shards = defaultShards
	}
	return c
}
