package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/loader"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/source/httpsource"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/source/redissource"
)

const (
	backendHTTP  = "http"
	backendRedis = "redis"
)

func newServeCmd(a *app) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the loader over HTTP",
		Example: `  statsloader serve --source-url https://stats.example.com --listen :8080
  statsloader serve --backend redis --redis-addr localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			source, closeSource, err := a.source(ctx, backend)
			if err != nil {
				return err
			}
			defer closeSource()

			ctrl := loader.New[Record](source, gate.New(a.cfg.MaxConcurrent), a.cfg.LoaderConfig())
			defer ctrl.Close()

			return serveHTTP(ctx, a.cfg.ListenAddr, newAPI(ctrl).routes())
		},
	}

	cmd.Flags().StringVar(&a.cfg.ListenAddr, "listen", a.cfg.ListenAddr, "HTTP listen address")
	cmd.Flags().StringVar(&backend, "backend", backendHTTP, "record source: http or redis")

	return cmd
}

// source builds the configured record source and a cleanup function.
func (a *app) source(ctx context.Context, backend string) (fetch.Source[Record], func(), error) {
	switch backend {
	case backendHTTP:
		if err := a.cfg.RequireSource(); err != nil {
			return nil, nil, err
		}
		src, err := httpsource.New[Record](a.cfg.SourceConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("create source: %w", err)
		}
		return src, func() {}, nil
	case backendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return redissource.New[Record](client, a.cfg.RedisConfig()), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want %s or %s)", backend, backendHTTP, backendRedis)
	}
}

// serveHTTP runs the server until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting statsloader server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
