package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/retry"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/source/httpsource"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/source/redissource"
)

// cleanupTimeout bounds removal of a staged result set after a failed run.
const cleanupTimeout = 5 * time.Second

func newMaterializeCmd(a *app) *cobra.Command {
	var (
		ff         filterFlags
		maxRecords int
		attempts   int
	)

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Copy a result set from the source API into Redis",
		Long: `Copy a result set from the source API into Redis so that later loads
(serve --backend redis, export --backend redis) page through Redis instead
of re-running the query.`,
		Example: `  statsloader materialize --view support_threads --from 2024-01-01T00:00:00Z --redis-addr localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			fs, err := ff.filterSet()
			if err != nil {
				return err
			}
			if err := a.cfg.RequireSource(); err != nil {
				return err
			}

			src, err := httpsource.New[Record](a.cfg.SourceConfig())
			if err != nil {
				return fmt.Errorf("create source: %w", err)
			}

			client, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			store := redissource.New[Record](client, a.cfg.RedisConfig())

			fetcher := fetch.NewFetcher[Record](src, gate.New(a.cfg.MaxConcurrent), fetch.Config{
				BatchSize: a.cfg.BatchSize,
				Timeout:   a.cfg.RequestTimeout,
			})

			policy := retry.DefaultPolicy()
			policy.MaxAttempts = attempts

			// Readers keep the previous copy until the new one is complete.
			build := store.Begin(fs)

			start := time.Now()
			n, err := drain(ctx, fetcher, fs, drainOptions{MaxRecords: maxRecords, Policy: policy}, func(b fetch.Batch[Record]) error {
				return build.Append(ctx, b.Records)
			})
			if err == nil {
				err = build.Commit(ctx)
			}
			if err != nil {
				abortBuild(ctx, build)
				return fmt.Errorf("materialize after %d records: %w", n, err)
			}

			log.Info().
				Str("key", store.Key(fs)).
				Int("records", n).
				Dur("ttl", a.cfg.RedisTTL).
				Dur("duration", time.Since(start)).
				Msg("Result set materialized")
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "stop after this many records (0 = all)")
	cmd.Flags().IntVar(&attempts, "attempts", retry.DefaultPolicy().MaxAttempts, "attempts per run of batches")

	return cmd
}

type stagedBuild interface {
	Abort(ctx context.Context) error
	StagingKey() string
}

// abortBuild drops the staging list of a failed run. It outlives ctx, which
// is already cancelled when the run was interrupted.
func abortBuild(ctx context.Context, build stagedBuild) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := build.Abort(cleanupCtx); err != nil {
		log.Warn().Err(err).Str("staging", build.StagingKey()).Msg("Failed to remove staged result set")
	}
}
