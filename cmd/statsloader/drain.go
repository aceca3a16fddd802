package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/retry"
)

// drainOptions configures a full pass over a result set.
type drainOptions struct {
	// MaxRecords stops the pass early. Zero means no limit.
	MaxRecords int

	Policy retry.Policy
}

// drain reads the whole result set for fs in runs of gate-limit batches,
// retrying each run under opts.Policy, and hands every batch to sink in
// index order. It returns the number of records passed to sink.
func drain[T any](ctx context.Context, f *fetch.Fetcher[T], fs filter.FilterSet, opts drainOptions, sink func(fetch.Batch[T]) error) (int, error) {
	req := fetch.Request{Key: filter.Normalize(fs), Filters: fs}
	run := f.Gate().Limit()
	written := 0

	for {
		var batches []fetch.Batch[T]
		err := retry.Do(ctx, opts.Policy, func(ctx context.Context) error {
			var err error
			batches, err = f.FetchRange(ctx, req, run)
			return err
		})
		if err != nil {
			return written, err
		}

		for _, b := range batches {
			if opts.MaxRecords > 0 && written+len(b.Records) > opts.MaxRecords {
				b.Records = b.Records[:opts.MaxRecords-written]
				b.Returned = len(b.Records)
			}
			if err := sink(b); err != nil {
				return written, err
			}
			written += b.Returned
			if opts.MaxRecords > 0 && written >= opts.MaxRecords {
				log.Info().
					Str("key", req.Key.String()).
					Int("records", written).
					Msg("Record limit reached")
				return written, nil
			}
		}

		if len(batches) == 0 || batches[len(batches)-1].Last {
			return written, nil
		}
		req.BatchIndex += len(batches)
	}
}
