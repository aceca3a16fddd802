// Command statsloader serves and exports large filtered datasets in
// bounded batches.
//
//	statsloader serve        HTTP API over a per-process loader
//	statsloader export       stream a whole result set as JSON lines
//	statsloader materialize  copy a result set into Redis
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/oldg9516/ai-agents-stats-sub004/internal/config"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the resolved configuration to subcommands.
type app struct {
	cfg     config.Config
	cfgPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("statsloader failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:           "statsloader",
		Short:         "Incremental, memory-bounded loading of large filtered datasets",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.resolve(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file (default $HOME/.statsloader/config.toml)")
	flags.StringVar(&a.cfg.SourceURL, "source-url", a.cfg.SourceURL, "base URL of the paginated source API")
	flags.StringVar(&a.cfg.UserAgent, "user-agent", a.cfg.UserAgent, "User-Agent sent to the source")
	flags.StringVar(&a.cfg.AuthToken, "auth-token", a.cfg.AuthToken, "bearer token for the source")
	flags.StringVar(&a.cfg.RedisAddr, "redis-addr", a.cfg.RedisAddr, "Redis address for materialized result sets")
	flags.IntVar(&a.cfg.RedisDB, "redis-db", a.cfg.RedisDB, "Redis database")
	flags.StringVar(&a.cfg.RedisPrefix, "redis-prefix", a.cfg.RedisPrefix, "Redis key prefix")
	flags.DurationVar(&a.cfg.RedisTTL, "redis-ttl", a.cfg.RedisTTL, "lifetime of materialized result sets")
	flags.IntVar(&a.cfg.BatchSize, "batch-size", a.cfg.BatchSize, "records per batch")
	flags.IntVar(&a.cfg.MaxBatches, "max-batches", a.cfg.MaxBatches, "batches kept per key")
	flags.IntVar(&a.cfg.MaxConcurrent, "max-concurrent", a.cfg.MaxConcurrent, "batch requests in flight process-wide")
	flags.DurationVar(&a.cfg.RequestTimeout, "request-timeout", a.cfg.RequestTimeout, "timeout per batch request")
	flags.IntVar(&a.cfg.MaxClientRecords, "max-client-records", a.cfg.MaxClientRecords, "records loaded per key (0 = batch-size * max-batches)")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug, info, warn or error")
	flags.BoolVar(&a.cfg.Pretty, "pretty", a.cfg.Pretty, "human-readable logs")

	root.AddCommand(
		newServeCmd(a),
		newExportCmd(a),
		newMaterializeCmd(a),
	)

	return root
}

// resolve applies file and environment configuration under the flags that
// were set explicitly, validates the result and sets up logging.
func (a *app) resolve(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	} else if a.cfgPath != "" {
		return fmt.Errorf("config file %s not found", a.cfgPath)
	}

	if err := config.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logCfg := a.cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logging.Setup(logCfg)
	log.Debug().Interface("config", a.cfg.Redacted()).Msg("configuration")

	return nil
}

// redisClient connects to the configured Redis and checks it answers.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis-addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr: a.cfg.RedisAddr,
		DB:   a.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.RedisAddr, err)
	}
	return client, nil
}
