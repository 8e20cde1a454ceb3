package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/resilience"
)

type options struct {
	file     string
	url      string
	timeout  time.Duration
	retries  int
	fallback bool
	logLevel string

	remote  string
	jsonOut bool
	limit   int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "hashtreectl",
		Short:         "Query a hash tree prefix index",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.file, "file", "", "JSON file holding an array of {key, value} records")
	pf.StringVar(&opts.url, "url", "", "HTTP endpoint serving an array of {key, value} records (default from HT_LOADER_URL)")
	pf.DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout for each fetch attempt")
	pf.IntVar(&opts.retries, "retries", 3, "fetch attempts per source")
	pf.BoolVar(&opts.fallback, "fallback", true, "index the built-in sample records when no source yields data")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newQueryCmd(opts), newStatsCmd(opts))
	return root
}

func newQueryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [term...]",
		Short: "Print every record matching the term; no term lists everything",
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			var (
				records []hashtree.Record
				err     error
			)
			if opts.remote != "" {
				records, err = remoteQuery(cmd.Context(), opts, term)
			} else {
				var idx *hashtree.Index
				idx, _, err = buildIndex(cmd.Context(), opts)
				if err == nil {
					records = idx.Query(term)
				}
			}
			if err != nil {
				return err
			}
			if opts.limit > 0 && len(records) > opts.limit {
				records = records[:opts.limit]
			}
			return printRecords(cmd.OutOrStdout(), records, opts.jsonOut)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.remote, "remote", "", "base URL of a running search service, e.g. http://localhost:8080")
	f.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	f.IntVar(&opts.limit, "limit", 0, "maximum number of records to print (0 = all)")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the records and print index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, result, err := buildIndex(cmd.Context(), opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Load  loader.Result  `json:"load"`
				Index hashtree.Stats `json:"index"`
			}{result, idx.Stats()})
		},
	}
}

// buildIndex loads the configured sources into a fresh Index.
func buildIndex(ctx context.Context, opts *options) (*hashtree.Index, loader.Result, error) {
	var sources []loader.Source
	if opts.file != "" {
		sources = append(sources, &loader.FileSource{Path: opts.file})
	}
	if opts.url != "" {
		sources = append(sources, loader.NewHTTPSource(opts.url, nil))
	}
	if len(sources) == 0 {
		cfg, err := config.Load("")
		if err != nil {
			return nil, loader.Result{}, err
		}
		sources = append(sources, loader.NewHTTPSource(cfg.Loader.URL, nil))
	}

	idx := hashtree.New()
	l := loader.New(sources, loader.Options{
		Timeout:  opts.timeout,
		Retry:    resilience.RetryConfig{MaxAttempts: opts.retries},
		Fallback: opts.fallback,
	})
	result, err := l.Load(ctx, idx)
	if err != nil {
		return nil, result, fmt.Errorf("loading records: %w", err)
	}
	return idx, result, nil
}

// remoteQuery asks a running search service for term.
func remoteQuery(ctx context.Context, opts *options, term string) ([]hashtree.Record, error) {
	base, err := url.Parse(strings.TrimRight(opts.remote, "/") + "/api/v1/search")
	if err != nil {
		return nil, fmt.Errorf("parsing remote url: %w", err)
	}
	q := base.Query()
	q.Set("q", term)
	if opts.limit > 0 {
		q.Set("limit", strconv.Itoa(opts.limit))
	}
	base.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", opts.remote, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("querying %s: status %d: %s", opts.remote, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Results []hashtree.Record `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return out.Results, nil
}

func printRecords(w io.Writer, records []hashtree.Record, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []hashtree.Record{}
		}
		return json.NewEncoder(w).Encode(records)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No matches found.")
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s: %s\n", r.Key, r.Value); err != nil {
			return err
		}
	}
	return nil
}
