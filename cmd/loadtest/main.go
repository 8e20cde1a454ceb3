// Command loadtest drives prefix searches (and optionally inserts) against
// a running search service and reports throughput, latency percentiles,
// status codes, and the query cache hit ratio.
//
// Usage:
//
//	go run ./cmd/loadtest --url http://localhost:8080 --concurrency 20 --duration 30s
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:           "loadtest",
		Short:         "Load test the hash tree search service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Hash Tree Search Load Test ===")
			fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
			fmt.Fprintf(out, "Insert ratio: %.2f\n", cfg.InsertRatio)

			stats, err := Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			PrintReport(out, stats, cfg.Duration)
			if stats.Total() == 0 {
				return fmt.Errorf("no requests completed; is the service running at %s?", cfg.BaseURL)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	f.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	f.IntVar(&cfg.Limit, "limit", 10, "limit parameter sent with each search")
	f.IntVar(&cfg.MaxPrefix, "max-prefix", 3, "longest prefix derived from each indexed word")
	f.Float64Var(&cfg.InsertRatio, "insert-ratio", 0, "fraction of requests that insert a new record")
	f.StringSliceVar(&cfg.Queries, "query", nil, "explicit query terms; skips deriving prefixes from the index")
	return cmd
}
