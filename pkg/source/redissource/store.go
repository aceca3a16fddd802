// Package redissource serves pages of a result set that was materialized
// into Redis.
//
// Each result set lives under the canonical key of its filters:
//
//	{prefix}{cache key}        LIST of JSON-encoded records, in order
//	{prefix}{cache key}:meta   HASH with count and materialized_at
//
// A page is one LRANGE, so queries are cheap regardless of how expensive
// the original query was. Both keys expire together.
//
// Long copies go through a Build, which appends to
// {prefix}{cache key}:building:{id} and renames it onto the live key on
// Commit, so readers never page through a half-written set.
package redissource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
)

var (
	// ErrNotMaterialized indicates the result set is absent or expired.
	ErrNotMaterialized = errors.New("result set not materialized")

	// ErrInvalidRecord indicates a list member that does not decode.
	ErrInvalidRecord = errors.New("invalid materialized record")
)

// MissError is returned by Query for a result set that is absent or
// expired. It matches ErrNotMaterialized and is not retryable.
type MissError struct {
	Key string
}

// Error implements the error interface.
func (e *MissError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNotMaterialized, e.Key)
}

// Is matches ErrNotMaterialized.
func (e *MissError) Is(target error) bool {
	return target == ErrNotMaterialized
}

// Retryable reports false; the set has to be materialized again first.
func (e *MissError) Retryable() bool {
	return false
}

// DefaultPrefix namespaces all keys written by a Store.
const DefaultPrefix = "statsloader:"

// DefaultTTL is how long a materialized result set is kept.
const DefaultTTL = 15 * time.Minute

const (
	metaSuffix         = ":meta"
	metaCount          = "count"
	metaMaterializedAt = "materialized_at"
)

// Config holds the store configuration.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{Prefix: DefaultPrefix, TTL: DefaultTTL}
}

// Store reads and writes materialized result sets of T.
// It implements fetch.Source[T].
type Store[T any] struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
}

// New creates a Store. Zero config fields take their defaults.
func New[T any](redisClient *redis.Client, cfg Config) *Store[T] {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Store[T]{
		redis:  redisClient,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentRedisSource),
	}
}

// Key returns the list key for filters.
func (s *Store[T]) Key(filters filter.FilterSet) string {
	return s.config.Prefix + filter.Normalize(filters).String()
}

// Query returns records [offset, offset+limit) of the materialized result
// set for filters. It returns ErrNotMaterialized when nothing was stored.
func (s *Store[T]) Query(ctx context.Context, filters filter.FilterSet, offset, limit int) ([]T, error) {
	if limit <= 0 {
		return []T{}, nil
	}
	key := s.Key(filters)

	pipe := s.redis.Pipeline()
	exists := pipe.Exists(ctx, key+metaSuffix)
	members := pipe.LRange(ctx, key, int64(offset), int64(offset+limit-1))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		Errors.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	if exists.Val() == 0 {
		Misses.Inc()
		return nil, &MissError{Key: key}
	}
	Hits.Inc()

	records := make([]T, 0, len(members.Val()))
	for i, member := range members.Val() {
		var record T
		if err := json.Unmarshal([]byte(member), &record); err != nil {
			Errors.WithLabelValues("query").Inc()
			return nil, fmt.Errorf("%w at %d: %v", ErrInvalidRecord, offset+i, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// Store replaces the result set for filters with records.
// An empty records slice materializes an empty result set.
func (s *Store[T]) Store(ctx context.Context, filters filter.FilterSet, records []T) error {
	members, err := encode(records)
	if err != nil {
		Errors.WithLabelValues("store").Inc()
		return err
	}
	key := s.Key(filters)

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key, key+metaSuffix)
	if len(members) > 0 {
		pipe.RPush(ctx, key, members...)
		pipe.Expire(ctx, key, s.config.TTL)
	}
	pipe.HSet(ctx, key+metaSuffix,
		metaCount, len(members),
		metaMaterializedAt, time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key+metaSuffix, s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		Errors.WithLabelValues("store").Inc()
		return fmt.Errorf("redis store: %w", err)
	}

	RecordsWritten.Add(float64(len(members)))
	s.logger.Debug().
		Str("key", key).
		Int("records", len(members)).
		Dur("ttl", s.config.TTL).
		Msg("Materialized result set")
	return nil
}

// Append adds records to the end of the result set for filters, creating
// it when absent, and refreshes its TTL.
func (s *Store[T]) Append(ctx context.Context, filters filter.FilterSet, records []T) error {
	members, err := encode(records)
	if err != nil {
		Errors.WithLabelValues("append").Inc()
		return err
	}
	key := s.Key(filters)

	pipe := s.redis.TxPipeline()
	if len(members) > 0 {
		pipe.RPush(ctx, key, members...)
		pipe.Expire(ctx, key, s.config.TTL)
	}
	pipe.HIncrBy(ctx, key+metaSuffix, metaCount, int64(len(members)))
	pipe.HSet(ctx, key+metaSuffix, metaMaterializedAt, time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key+metaSuffix, s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		Errors.WithLabelValues("append").Inc()
		return fmt.Errorf("redis append: %w", err)
	}

	RecordsWritten.Add(float64(len(members)))
	return nil
}

// Len returns the number of records materialized for filters.
func (s *Store[T]) Len(ctx context.Context, filters filter.FilterSet) (int, error) {
	count, err := s.redis.HGet(ctx, s.Key(filters)+metaSuffix, metaCount).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotMaterialized
		}
		Errors.WithLabelValues("len").Inc()
		return 0, fmt.Errorf("redis hget: %w", err)
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return 0, fmt.Errorf("%w: count %q", ErrInvalidRecord, count)
	}
	return n, nil
}

// Delete removes the result set for filters.
func (s *Store[T]) Delete(ctx context.Context, filters filter.FilterSet) error {
	key := s.Key(filters)
	if err := s.redis.Del(ctx, key, key+metaSuffix).Err(); err != nil {
		Errors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func encode[T any](records []T) ([]any, error) {
	members := make([]any, len(records))
	for i, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal record %d: %w", i, err)
		}
		members[i] = data
	}
	return members, nil
}
