package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/fetch"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/gate"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/retry"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		ff         filterFlags
		out        string
		backend    string
		maxRecords int
		attempts   int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Stream a whole result set as JSON lines",
		Example: `  statsloader export --view tickets --from 2024-01-01T00:00:00Z --agent alice --batch-size 500 > tickets.jsonl
  statsloader export --view detailed_stats --backend redis --out stats.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			fs, err := ff.filterSet()
			if err != nil {
				return err
			}

			source, closeSource, err := a.source(ctx, backend)
			if err != nil {
				return err
			}
			defer closeSource()

			w, err := openOutput(out, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			fetcher := fetch.NewFetcher[Record](source, gate.New(a.cfg.MaxConcurrent), fetch.Config{
				BatchSize: a.cfg.BatchSize,
				Timeout:   a.cfg.RequestTimeout,
			})

			policy := retry.DefaultPolicy()
			policy.MaxAttempts = attempts

			start := time.Now()
			n, err := drain(ctx, fetcher, fs, drainOptions{MaxRecords: maxRecords, Policy: policy}, func(b fetch.Batch[Record]) error {
				for _, rec := range b.Records {
					if _, err := w.Write(rec); err != nil {
						return err
					}
					if err := w.WriteByte('\n'); err != nil {
						return err
					}
				}
				return nil
			})
			if closeErr := w.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("export after %d records: %w", n, err)
			}

			log.Info().
				Int("records", n).
				Dur("duration", time.Since(start)).
				Msg("Export complete")
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&backend, "backend", backendHTTP, "record source: http or redis")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "stop after this many records (0 = all)")
	cmd.Flags().IntVar(&attempts, "attempts", retry.DefaultPolicy().MaxAttempts, "attempts per run of batches")

	return cmd
}

// output buffers exported records for stdout or a file.
type output struct {
	*bufio.Writer
	closer io.Closer
}

// openOutput opens path for writing; "" and "-" mean stdout.
func openOutput(path string, stdout io.Writer) (*output, error) {
	if path == "" || path == "-" {
		return newOutput(stdout, nil), nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return newOutput(file, file), nil
}

func newOutput(w io.Writer, closer io.Closer) *output {
	return &output{Writer: bufio.NewWriter(w), closer: closer}
}

// Close flushes buffered records and closes the file, if any. It reports
// the first error.
func (o *output) Close() error {
	err := o.Flush()
	if o.closer != nil {
		if closeErr := o.closer.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close output: %w", closeErr)
		}
	}
	return err
}
