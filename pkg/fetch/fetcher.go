package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
)

// Config holds batch fetcher configuration.
type Config struct {
	// BatchSize is the number of records per batch.
	// 60 suits UI tables; server-side jobs use 300-1000.
	BatchSize int

	// Timeout bounds each individual batch request.
	Timeout time.Duration

	// Logger receives fetch diagnostics. Zero value uses the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the configuration used for UI tables.
func DefaultConfig() Config {
	return Config{
		BatchSize: 60,
		Timeout:   30 * time.Second,
	}
}

// Fetcher issues batch requests against a Source.
type Fetcher[T any] struct {
	source Source[T]
	gate   *gate.Gate
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. The gate is shared with every other
// fetcher of the process so the concurrency cap is global.
func NewFetcher[T any](source Source[T], g *gate.Gate, config Config) *Fetcher[T] {
	if source == nil {
		panic("fetch source cannot be nil")
	}
	if g == nil {
		panic("admission gate cannot be nil")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 60
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Fetcher[T]{
		source: source,
		gate:   g,
		config: config,
		logger: logging.Component(config.Logger, logging.ComponentFetcher),
	}
}

// BatchSize returns the configured batch size.
func (f *Fetcher[T]) BatchSize() int {
	return f.config.BatchSize
}

// Gate returns the admission gate used by the fetcher.
func (f *Fetcher[T]) Gate() *gate.Gate {
	return f.gate
}

type queryResult[T any] struct {
	records []T
	err     error
}

// Fetch requests records [BatchIndex*BatchSize, BatchIndex*BatchSize+limit).
//
// The call waits for an admission permit, then for the source, bounded by
// the configured timeout. A permit is never leaked: it is released before
// any error is returned. If ctx ends first the result is discarded and a
// cancelled FetchError is returned.
func (f *Fetcher[T]) Fetch(ctx context.Context, req Request) (Batch[T], error) {
	if req.BatchIndex < 0 {
		return Batch[T]{}, fmt.Errorf("%w: batch index %d", ErrInvalidRequest, req.BatchIndex)
	}

	limit := req.Limit
	if limit <= 0 || limit > f.config.BatchSize {
		limit = f.config.BatchSize
	}
	offset := req.BatchIndex * f.config.BatchSize
	namespace := req.Key.Namespace()

	permit, err := f.gate.Acquire(ctx)
	if err != nil {
		return Batch[T]{}, f.fail(req, KindCancelled, err)
	}
	defer permit.Release()

	start := time.Now()
	queryCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	// The query runs in its own goroutine so a source that ignores its
	// context still cannot hold the permit past the deadline.
	done := make(chan queryResult[T], 1)
	go func() {
		records, err := f.source.Query(queryCtx, req.Filters, offset, limit)
		done <- queryResult[T]{records: records, err: err}
	}()

	var res queryResult[T]
	select {
	case res = <-done:
	case <-queryCtx.Done():
		res.err = queryCtx.Err()
	}
	fetchDuration.WithLabelValues(namespace).Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return Batch[T]{}, f.fail(req, KindCancelled, ctx.Err())
	}
	if res.err != nil {
		kind := KindTransport
		if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return Batch[T]{}, f.fail(req, kind, res.err)
	}

	records := res.records
	if len(records) > limit {
		f.logger.Warn().
			Str("key", req.Key.String()).
			Int("batch_index", req.BatchIndex).
			Int("limit", limit).
			Int("returned", len(records)).
			Msg("Source returned more records than requested, truncating")
		records = records[:limit:limit]
	}

	batch := Batch[T]{
		Index:     req.BatchIndex,
		Offset:    offset,
		Requested: limit,
		Returned:  len(records),
		Last:      len(records) < limit,
		Records:   records,
	}

	fetchTotal.WithLabelValues(namespace, "ok").Inc()
	fetchRecords.WithLabelValues(namespace).Add(float64(batch.Returned))

	f.logger.Debug().
		Str("key", req.Key.String()).
		Int("batch_index", batch.Index).
		Int("offset", offset).
		Int("limit", limit).
		Int("returned", batch.Returned).
		Bool("last", batch.Last).
		Dur("duration", time.Since(start)).
		Msg("Batch fetched")

	return batch, nil
}

func (f *Fetcher[T]) fail(req Request, kind Kind, err error) error {
	fetchTotal.WithLabelValues(req.Key.Namespace(), string(kind)).Inc()

	event := f.logger.Warn()
	if kind == KindCancelled {
		event = f.logger.Debug()
	}
	event.Err(err).
		Str("key", req.Key.String()).
		Int("batch_index", req.BatchIndex).
		Str("error_kind", string(kind)).
		Msg("Batch fetch failed")

	return &FetchError{Kind: kind, Key: req.Key, BatchIndex: req.BatchIndex, Err: err}
}

// FetchRange fetches up to count consecutive batches starting at
// req.BatchIndex, running as many requests in parallel as the gate allows.
//
// Batches are returned in index order and the run ends at the first short
// batch; higher batches are not requested once a short one has been seen.
// The first failure cancels the remaining requests and is returned.
func (f *Fetcher[T]) FetchRange(ctx context.Context, req Request, count int) ([]Batch[T], error) {
	if count <= 0 {
		return nil, nil
	}
	if req.BatchIndex < 0 {
		return nil, fmt.Errorf("%w: batch index %d", ErrInvalidRequest, req.BatchIndex)
	}

	start := time.Now()
	results := make([]Batch[T], count)
	fetched := make([]bool, count)

	// stop holds the index of the lowest short batch seen so far.
	var stop atomic.Int64
	stop.Store(math.MaxInt64)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.gate.Limit())

	for i := 0; i < count; i++ {
		index := req.BatchIndex + i
		if int64(index) > stop.Load() {
			break
		}
		g.Go(func() error {
			if int64(index) > stop.Load() {
				return nil
			}
			r := req
			r.BatchIndex = index
			batch, err := f.Fetch(groupCtx, r)
			if err != nil {
				return err
			}
			results[i] = batch
			fetched[i] = true
			if batch.Last {
				for {
					cur := stop.Load()
					if int64(index) >= cur || stop.CompareAndSwap(cur, int64(index)) {
						break
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Batch[T], 0, count)
	records := 0
	for i := range results {
		if !fetched[i] {
			break
		}
		out = append(out, results[i])
		records += results[i].Returned
		if results[i].Last {
			break
		}
	}

	f.logger.Info().
		Str("key", req.Key.String()).
		Int("first_batch", req.BatchIndex).
		Int("batches", len(out)).
		Int("records", records).
		Dur("duration", time.Since(start)).
		Msg("Batch range fetched")

	return out, nil
}
