package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/tokenizer"
)

// Config controls one load test run.
type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	MaxPrefix   int
	InsertRatio float64
	Queries     []string
}

// Stats accumulates request outcomes across workers.
type Stats struct {
	searches    atomic.Int64
	inserts     atomic.Int64
	success     atomic.Int64
	errors      atomic.Int64
	cacheHits   atomic.Int64
	zeroResults atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func newStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

// Total is the number of requests attempted.
func (s *Stats) Total() int64 {
	return s.searches.Load() + s.inserts.Load()
}

func (s *Stats) record(d time.Duration, status int, err error) {
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

type searchResponse struct {
	Total    int  `json:"total"`
	CacheHit bool `json:"cache_hit"`
	Results  []struct {
		Key string `json:"key"`
	} `json:"results"`
}

// Run executes the load test until cfg.Duration elapses or ctx is cancelled.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	if cfg.Concurrency <= 0 {
		return nil, errors.New("concurrency must be positive")
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	queries := cfg.Queries
	if len(queries) == 0 {
		var err error
		queries, err = derivePrefixes(ctx, client, cfg.BaseURL, cfg.MaxPrefix)
		if err != nil {
			return nil, err
		}
	}
	if len(queries) == 0 {
		return nil, errors.New("index is empty; nothing to query")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	stats := newStats()
	insertEvery := 0
	if cfg.InsertRatio > 0 {
		insertEvery = int(math.Max(1, math.Round(1/cfg.InsertRatio)))
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		worker := w
		g.Go(func() error {
			for n := worker; gctx.Err() == nil; n++ {
				if insertEvery > 0 && n%insertEvery == 0 {
					doInsert(gctx, client, cfg.BaseURL, queries[n%len(queries)], stats)
					continue
				}
				doSearch(gctx, client, cfg, queries[n%len(queries)], stats)
			}
			return nil
		})
	}
	return stats, g.Wait()
}

func doSearch(ctx context.Context, client *http.Client, cfg Config, q string, stats *Stats) {
	u := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(q), cfg.Limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		stats.errors.Add(1)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	d := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		stats.searches.Add(1)
		stats.record(d, 0, err)
		return
	}
	defer resp.Body.Close()
	stats.searches.Add(1)

	var body searchResponse
	if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&body) == nil {
		if body.CacheHit {
			stats.cacheHits.Add(1)
		}
		if body.Total == 0 {
			stats.zeroResults.Add(1)
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	stats.record(d, resp.StatusCode, nil)
}

func doInsert(ctx context.Context, client *http.Client, baseURL, word string, stats *Stats) {
	payload, _ := json.Marshal(hashtree.Record{
		Key:   word + " loadtest-" + uuid.NewString()[:8],
		Value: "loadtest",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/records", bytes.NewReader(payload))
	if err != nil {
		stats.errors.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := client.Do(req)
	d := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		stats.inserts.Add(1)
		stats.record(d, 0, err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.inserts.Add(1)
	stats.record(d, resp.StatusCode, nil)
}

// derivePrefixes fetches the full listing and returns every prefix of
// length 1..maxLen of every indexed word, in first-seen order.
func derivePrefixes(ctx context.Context, client *http.Client, baseURL string, maxLen int) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/search?q=", nil)
	if err != nil {
		return nil, fmt.Errorf("building listing request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching listing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching listing: status %d", resp.StatusCode)
	}
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, r := range body.Results {
		for _, w := range tokenizer.Words(r.Key) {
			runes := []rune(w)
			for n := 1; n <= len(runes) && (maxLen <= 0 || n <= maxLen); n++ {
				p := string(runes[:n])
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// PrintReport writes a human-readable summary of stats.
func PrintReport(w io.Writer, stats *Stats, duration time.Duration) {
	total := stats.Total()
	searches := stats.searches.Load()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Searches:        %d\n", searches)
	fmt.Fprintf(w, "Inserts:         %d\n", stats.inserts.Load())
	fmt.Fprintf(w, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", stats.errors.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(stats.errors.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if searches > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(searches)*100)
		fmt.Fprintf(w, "Zero Results:    %.2f%%\n", float64(stats.zeroResults.Load())/float64(searches)*100)
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.statusCodes))
	for code, n := range stats.statusCodes {
		counts[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
