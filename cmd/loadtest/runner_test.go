package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search/handler"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
)

func newSearchServer(t *testing.T, records ...hashtree.Record) *httptest.Server {
	t.Helper()
	svc := search.New(hashtree.NewStore(), nil, nil, nil)
	svc.InsertBatch(records)
	h := handler.New(svc, nil, validator.New(config.IngestionConfig{
		MaxKeyLength:   1024,
		MaxValueLength: 1024,
		MaxBatchSize:   10,
	}), 0, 0)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/records", h.InsertRecord)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDerivePrefixes(t *testing.T) {
	srv := newSearchServer(t,
		hashtree.Record{Key: "apple", Value: "fruit"},
		hashtree.Record{Key: "App Store", Value: "software"},
		hashtree.Record{Key: "banana", Value: "fruit"},
	)

	got, err := derivePrefixes(context.Background(), srv.Client(), srv.URL, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "ap", "s", "st", "b", "ba"}, got)
}

func TestDerivePrefixes_NoLimit(t *testing.T) {
	srv := newSearchServer(t, hashtree.Record{Key: "cat", Value: "animal"})

	got, err := derivePrefixes(context.Background(), srv.Client(), srv.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "ca", "cat"}, got)
}

func TestDerivePrefixes_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := derivePrefixes(context.Background(), srv.Client(), srv.URL, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestRun_SearchAndInsert(t *testing.T) {
	srv := newSearchServer(t,
		hashtree.Record{Key: "New York", Value: "NY"},
		hashtree.Record{Key: "Newark", Value: "NJ"},
	)

	stats, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    200 * time.Millisecond,
		Limit:       5,
		MaxPrefix:   3,
		InsertRatio: 0.25,
	})
	require.NoError(t, err)
	assert.Positive(t, stats.searches.Load())
	assert.Positive(t, stats.inserts.Load())
	assert.Zero(t, stats.errors.Load())
	assert.Equal(t, stats.Total(), stats.success.Load())
}

func TestRun_CountsCacheHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total":1,"cache_hit":true,"results":[{"key":"x","value":"y"}]}`)
	}))
	defer srv.Close()

	stats, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Concurrency: 1,
		Duration:    100 * time.Millisecond,
		Queries:     []string{"x"},
	})
	require.NoError(t, err)
	require.Positive(t, stats.searches.Load())
	assert.Equal(t, stats.searches.Load(), stats.cacheHits.Load())

	var buf bytes.Buffer
	PrintReport(&buf, stats, 100*time.Millisecond)
	assert.Contains(t, buf.String(), "Cache Hit Rate:  100.00%")
	assert.Contains(t, buf.String(), "200: ")
}

func TestRun_EmptyIndex(t *testing.T) {
	srv := newSearchServer(t)

	_, err := Run(context.Background(), Config{BaseURL: srv.URL, Concurrency: 1, Duration: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index is empty")
}

func TestRun_InvalidConcurrency(t *testing.T) {
	_, err := Run(context.Background(), Config{Concurrency: 0})
	require.Error(t, err)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}
