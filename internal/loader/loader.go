// Package loader seeds the prefix index at startup. It walks a chain of
// record sources, retrying each behind a circuit breaker, and substitutes a
// small fixed record set when none of them yields anything.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/resilience"
)

// Sink receives loaded records in source order and returns how many of them
// were indexable.
type Sink interface {
	InsertBatch(records []hashtree.Record) int
}

// Options tune a Loader. Zero values fall back to the resilience defaults.
type Options struct {
	Timeout  time.Duration
	Retry    resilience.RetryConfig
	Breaker  resilience.CircuitBreakerConfig
	Fallback bool
	Metrics  *metrics.Metrics
}

// OptionsFromConfig maps the loader section of the service config.
func OptionsFromConfig(cfg config.LoaderConfig) Options {
	return Options{
		Timeout: cfg.Timeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerReset,
		},
		Fallback: cfg.Fallback,
	}
}

// SourceResult reports what one source contributed.
type SourceResult struct {
	Name    string `json:"name"`
	Fetched int    `json:"fetched"`
	Indexed int    `json:"indexed"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Result summarises a Load call.
type Result struct {
	Indexed  int            `json:"indexed"`
	Fallback bool           `json:"fallback"`
	Sources  []SourceResult `json:"sources"`
}

// Loader runs the source chain.
type Loader struct {
	sources  []Source
	breakers map[string]*resilience.CircuitBreaker
	opts     Options
	logger   *slog.Logger
}

// New builds a Loader over sources, tried in the given order.
func New(sources []Source, opts Options) *Loader {
	l := &Loader{
		sources:  sources,
		breakers: make(map[string]*resilience.CircuitBreaker, len(sources)),
		opts:     opts,
		logger:   logger.WithComponent("loader"),
	}
	for i, src := range sources {
		name := src.Name()
		if _, dup := l.breakers[name]; dup {
			name = name + "-" + strconv.Itoa(i)
		}
		bcfg := opts.Breaker
		if opts.Metrics != nil {
			gauge := opts.Metrics.CircuitBreakerState
			bcfg.OnStateChange = func(name string, _, to resilience.State) {
				gauge.WithLabelValues(name).Set(float64(to))
			}
		}
		l.breakers[name] = resilience.NewCircuitBreaker("loader-"+name, bcfg)
	}
	return l
}

// Load feeds sink from the first source that completes. Sources that fail
// part-way still commit what they produced before failing, and the chain
// moves on to the next source. When nothing was indexed, the fallback set is
// used if enabled; otherwise ErrNoRecords is returned.
func (l *Loader) Load(ctx context.Context, sink Sink) (Result, error) {
	var (
		result  Result
		lastErr error
	)
	for i, src := range l.sources {
		name := l.breakerName(i, src)
		start := time.Now()
		records, err := l.fetch(ctx, name, src)
		indexed := 0
		if len(records) > 0 {
			indexed = sink.InsertBatch(records)
		}
		result.Indexed += indexed

		sr := SourceResult{Name: name, Fetched: len(records), Indexed: indexed, Status: "ok"}
		switch {
		case err != nil && len(records) > 0:
			sr.Status = "partial"
		case err != nil:
			sr.Status = "failed"
		}
		if err != nil {
			sr.Error = err.Error()
			lastErr = err
		}
		result.Sources = append(result.Sources, sr)
		l.observe(name, sr.Status)

		log := l.logger.With("source", name, "fetched", len(records), "indexed", indexed,
			"skipped", len(records)-indexed, "latency_ms", time.Since(start).Milliseconds())
		if err == nil {
			log.Info("initial data loaded successfully")
			break
		}
		log.Error("error loading initial data", "status", sr.Status, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	if result.Indexed > 0 {
		return result, nil
	}
	if !l.opts.Fallback {
		if lastErr == nil {
			return result, apperrors.ErrNoRecords
		}
		return result, fmt.Errorf("%w: %w", apperrors.ErrNoRecords, lastErr)
	}
	result.Indexed = sink.InsertBatch(FallbackRecords())
	result.Fallback = true
	l.observe("fallback", "ok")
	l.logger.Warn("fallback data loaded", "records", result.Indexed)
	return result, nil
}

// fetch runs one source under retry, breaker and timeout, returning the
// longest record prefix any attempt produced.
func (l *Loader) fetch(ctx context.Context, name string, src Source) ([]hashtree.Record, error) {
	cb := l.breakers[name]
	var best []hashtree.Record
	err := resilience.Retry(ctx, "load-"+name, l.opts.Retry, func() error {
		buf := &collector{}
		err := cb.Execute(func() error {
			return resilience.WithTimeout(ctx, l.opts.Timeout, "fetch "+name, func(ctx context.Context) error {
				return src.Fetch(ctx, buf.add)
			})
		})
		if got := buf.snapshot(); len(got) > len(best) {
			best = got
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return resilience.Permanent(err)
		}
		return err
	})
	return best, err
}

func (l *Loader) breakerName(i int, src Source) string {
	name := src.Name()
	if _, ok := l.breakers[name+"-"+strconv.Itoa(i)]; ok {
		return name + "-" + strconv.Itoa(i)
	}
	return name
}

func (l *Loader) observe(source, status string) {
	if l.opts.Metrics == nil {
		return
	}
	l.opts.Metrics.LoadsTotal.WithLabelValues(source, status).Inc()
}

// collector buffers emitted records. A fetch abandoned on timeout may keep
// emitting after the loader has taken its snapshot.
type collector struct {
	mu      sync.Mutex
	records []hashtree.Record
}

func (c *collector) add(r hashtree.Record) {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

func (c *collector) snapshot() []hashtree.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]hashtree.Record, len(c.records))
	copy(out, c.records)
	return out
}
