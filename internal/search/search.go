// Package search answers lookups against the prefix index. Service adds a
// Redis query cache, metrics, analytics events and a stream of the most
// recent result list on top of hashtree.Store.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/tracing"
)

// Index is the part of *hashtree.Store the service uses.
type Index interface {
	QueryInto(text string, dst []hashtree.Record) []hashtree.Record
	InsertBatch(records []hashtree.Record) int
	Stats() hashtree.Stats
}

// Swapper is implemented by indexes that can be replaced wholesale, such as
// *hashtree.Store.
type Swapper interface {
	Replace(idx *hashtree.Index)
}

// Filler populates a fresh index, typically by running the loader into it.
type Filler func(ctx context.Context, idx *hashtree.Index) error

// ErrReloadInProgress is returned by Reload while another reload runs.
var ErrReloadInProgress = apperrors.New(apperrors.ErrConflict, http.StatusConflict, "a reload is already running")

// maxSizeHint caps the preallocation learned from earlier answers, so one
// full listing does not inflate every later lookup.
const maxSizeHint = 256

// Result is the answer to one query. Total is the number of matches before
// any limit is applied by the caller.
type Result struct {
	Query    string            `json:"query"`
	Tokens   []string          `json:"tokens"`
	Total    int               `json:"total"`
	Results  []hashtree.Record `json:"results"`
	CacheHit bool              `json:"cache_hit"`
}

// Service is safe for concurrent use. Result slices it hands out are shared
// with the cache and with subscribers and must not be modified.
type Service struct {
	index   Index
	cache   *cache.QueryCache
	tracker analytics.Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger

	sizeHint      atomic.Int64
	reloading     atomic.Bool
	reloadInserts atomic.Int64

	mu      sync.Mutex
	latest  []hashtree.Record
	subs    map[uint64]chan []hashtree.Record
	nextSub uint64
}

// New returns a Service over index. queryCache, tracker and m are optional.
func New(index Index, queryCache *cache.QueryCache, tracker analytics.Tracker, m *metrics.Metrics) *Service {
	return &Service{
		index:   index,
		cache:   queryCache,
		tracker: tracker,
		metrics: m,
		logger:  logger.WithComponent("search-service"),
		latest:  []hashtree.Record{},
		subs:    make(map[uint64]chan []hashtree.Record),
	}
}

// Search runs term against the index. A blank term lists every record.
// The result list is published to subscribers.
func (s *Service) Search(ctx context.Context, term string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := tracing.Child(ctx, "search")
	defer span.End()
	start := time.Now()
	tokens := tokenizer.Words(term)

	var (
		records  []hashtree.Record
		cacheHit bool
		err      error
	)
	if s.cache != nil {
		records, cacheHit, err = s.cache.GetOrCompute(ctx, tokens, func() ([]hashtree.Record, error) {
			return s.query(ctx, term), nil
		})
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", term, err)
		}
	} else {
		records = s.query(ctx, term)
	}
	latency := time.Since(start)
	span.SetAttr("token_count", len(tokens))
	span.SetAttr("returned", len(records))
	span.SetAttr("cache_hit", cacheHit)

	s.observe(tokens, len(records), cacheHit, latency)
	logger.FromContext(ctx).Debug("search completed",
		"query", term,
		"token_count", len(tokens),
		"returned", len(records),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if s.tracker != nil {
		s.tracker.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     term,
			Tokens:    tokens,
			Returned:  len(records),
			LatencyMs: latency.Milliseconds(),
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}
	s.publish(records)

	if tokens == nil {
		tokens = []string{}
	}
	return &Result{
		Query:    term,
		Tokens:   tokens,
		Total:    len(records),
		Results:  records,
		CacheHit: cacheHit,
	}, nil
}

// Insert adds records to the index in order and returns how many had at
// least one word. origin labels the insert in metrics and analytics.
func (s *Service) Insert(ctx context.Context, origin string, records []hashtree.Record) int {
	_, span := tracing.Child(ctx, "insert")
	defer span.End()
	span.SetAttr("origin", origin)
	n := s.index.InsertBatch(records)
	if n > 0 && s.reloading.Load() {
		s.reloadInserts.Add(int64(n))
	}
	if n > 0 && s.cache != nil {
		s.cache.Bump()
	}
	stats := s.index.Stats()
	if s.metrics != nil {
		s.metrics.RecordsInsertedTotal.WithLabelValues(origin).Add(float64(n))
		s.metrics.IndexNodes.Set(float64(stats.Nodes))
		s.metrics.IndexRecords.Set(float64(stats.Records))
	}
	if s.tracker != nil && n > 0 {
		s.tracker.Track(analytics.InsertEvent{
			Type:      analytics.EventInsert,
			Origin:    origin,
			Count:     n,
			Timestamp: time.Now().UTC(),
		})
	}
	logger.FromContext(ctx).Debug("records inserted",
		"origin", origin,
		"submitted", len(records),
		"inserted", n,
		"index_records", stats.Records,
	)
	return n
}

// Reload builds a new index with fill and swaps it in only if fill
// succeeds; the current index keeps answering queries meanwhile. Records
// inserted while fill runs are not carried over; their count is logged as
// a warning after the swap. Cached results are invalidated.
func (s *Service) Reload(ctx context.Context, fill Filler) (hashtree.Stats, error) {
	swapper, ok := s.index.(Swapper)
	if !ok {
		return hashtree.Stats{}, fmt.Errorf("index %T cannot be replaced", s.index)
	}
	if !s.reloading.CompareAndSwap(false, true) {
		return hashtree.Stats{}, ErrReloadInProgress
	}
	defer s.reloading.Store(false)
	s.reloadInserts.Store(0)

	ctx, span := tracing.Child(ctx, "reload")
	defer span.End()
	start := time.Now()
	fresh := hashtree.New()
	if err := fill(ctx, fresh); err != nil {
		return hashtree.Stats{}, fmt.Errorf("reloading index: %w", err)
	}
	swapper.Replace(fresh)
	lost := s.reloadInserts.Swap(0)
	s.sizeHint.Store(0)
	if s.cache != nil {
		s.cache.Bump()
	}

	stats := s.index.Stats()
	span.SetAttr("records", stats.Records)
	if s.metrics != nil {
		s.metrics.IndexNodes.Set(float64(stats.Nodes))
		s.metrics.IndexRecords.Set(float64(stats.Records))
	}
	logger.FromContext(ctx).Info("index reloaded",
		"records", stats.Records,
		"words", stats.Words,
		"nodes", stats.Nodes,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if lost > 0 {
		s.logger.Warn("records inserted during reload were not carried over",
			"records_lost", lost,
		)
	}
	return stats, nil
}

// InsertBatch satisfies loader.Sink; records are labelled with the
// "loader" origin.
func (s *Service) InsertBatch(records []hashtree.Record) int {
	return s.Insert(context.Background(), "loader", records)
}

func (s *Service) Stats() hashtree.Stats {
	return s.index.Stats()
}

// Latest returns the most recently published result list. It is empty
// until the first search.
func (s *Service) Latest() []hashtree.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Subscribe returns a channel that immediately holds the latest result
// list and then receives each later one. A subscriber that falls behind
// only sees the newest list. cancel closes the channel.
func (s *Service) Subscribe() (<-chan []hashtree.Record, func()) {
	ch := make(chan []hashtree.Record, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.latest
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// query preallocates from the size of the previous answer, up to
// maxSizeHint.
func (s *Service) query(ctx context.Context, term string) []hashtree.Record {
	_, span := tracing.Child(ctx, "index.query")
	defer span.End()
	dst := make([]hashtree.Record, 0, s.sizeHint.Load())
	records := s.index.QueryInto(term, dst)
	s.sizeHint.Store(int64(min(len(records), maxSizeHint)))
	return records
}

func (s *Service) publish(records []hashtree.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = records
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- records
	}
}

func (s *Service) observe(tokens []string, returned int, cacheHit bool, latency time.Duration) {
	if s.metrics == nil {
		return
	}
	resultType := "match"
	switch {
	case len(tokens) == 0:
		resultType = "listing"
	case returned == 0:
		resultType = "zero_result"
	}
	s.metrics.QueriesTotal.WithLabelValues(resultType).Inc()
	s.metrics.QueryResults.Observe(float64(returned))

	cacheStatus := "disabled"
	if s.cache != nil {
		if cacheHit {
			cacheStatus = "hit"
			s.metrics.CacheHitsTotal.Inc()
		} else {
			cacheStatus = "miss"
			s.metrics.CacheMissesTotal.Inc()
		}
	}
	s.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
}
