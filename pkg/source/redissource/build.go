package redissource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
)

// ErrStagingLost indicates the staging list of a Build expired or was
// modified before Commit.
var ErrStagingLost = errors.New("staging list lost")

const stagingInfix = ":building:"

// Build writes a replacement result set beside the live one. Readers keep
// seeing the previous copy, or ErrNotMaterialized, until Commit swaps it in.
// A Build is not safe for concurrent use.
type Build[T any] struct {
	store   *Store[T]
	key     string
	staging string
	count   int
	done    bool
}

// Begin starts a Build for filters. Concurrent builds of the same filters
// use distinct staging lists; the last to commit wins.
func (s *Store[T]) Begin(filters filter.FilterSet) *Build[T] {
	key := s.Key(filters)
	return &Build[T]{
		store:   s,
		key:     key,
		staging: key + stagingInfix + uuid.NewString(),
	}
}

// StagingKey returns the Redis key records are appended to.
func (b *Build[T]) StagingKey() string {
	return b.staging
}

// Len returns the number of records appended so far.
func (b *Build[T]) Len() int {
	return b.count
}

// Append adds records to the staging list and refreshes its TTL.
func (b *Build[T]) Append(ctx context.Context, records []T) error {
	if b.done {
		return fmt.Errorf("redis build %s: already finished", b.key)
	}
	if len(records) == 0 {
		return nil
	}
	members, err := encode(records)
	if err != nil {
		Errors.WithLabelValues("append").Inc()
		return err
	}

	pipe := b.store.redis.TxPipeline()
	pipe.RPush(ctx, b.staging, members...)
	pipe.Expire(ctx, b.staging, b.store.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		Errors.WithLabelValues("append").Inc()
		return fmt.Errorf("redis append: %w", err)
	}

	b.count += len(members)
	RecordsWritten.Add(float64(len(members)))
	return nil
}

// Commit replaces the live result set with the staged records in one
// transaction. It fails with ErrStagingLost, leaving the live set as it
// was, when the staging list no longer holds every appended record.
func (b *Build[T]) Commit(ctx context.Context) error {
	if b.done {
		return fmt.Errorf("redis build %s: already finished", b.key)
	}
	rdb := b.store.redis
	ttl := b.store.config.TTL
	meta := b.key + metaSuffix

	err := rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, b.staging).Result()
		if err != nil {
			return err
		}
		if int(n) != b.count {
			return fmt.Errorf("%w: %s holds %d of %d records", ErrStagingLost, b.staging, n, b.count)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, b.key, meta)
			if b.count > 0 {
				pipe.Rename(ctx, b.staging, b.key)
				pipe.Expire(ctx, b.key, ttl)
			}
			pipe.HSet(ctx, meta,
				metaCount, b.count,
				metaMaterializedAt, time.Now().UTC().Format(time.RFC3339Nano))
			pipe.Expire(ctx, meta, ttl)
			return nil
		})
		return err
	}, b.staging)
	if errors.Is(err, redis.TxFailedErr) {
		err = fmt.Errorf("%w: %s changed during commit", ErrStagingLost, b.staging)
	}
	if err != nil {
		Errors.WithLabelValues("commit").Inc()
		return fmt.Errorf("redis commit: %w", err)
	}

	b.done = true
	b.store.logger.Debug().
		Str("key", b.key).
		Int("records", b.count).
		Dur("ttl", ttl).
		Msg("Materialized result set")
	return nil
}

// Abort drops the staging list. The live result set is not touched.
func (b *Build[T]) Abort(ctx context.Context) error {
	b.done = true
	if err := b.store.redis.Del(ctx, b.staging).Err(); err != nil {
		Errors.WithLabelValues("abort").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
