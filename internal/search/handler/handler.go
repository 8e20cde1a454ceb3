// Package handler exposes the search service over HTTP: prefix search,
// direct record inserts, index stats and query cache control.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/search/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
)

const maxBodyBytes = 8 << 20

// Searcher is the part of *search.Service the handler uses.
type Searcher interface {
	Search(ctx context.Context, term string) (*search.Result, error)
	Insert(ctx context.Context, origin string, records []hashtree.Record) int
	Stats() hashtree.Stats
}

type Handler struct {
	searcher     Searcher
	cache        *cache.QueryCache
	validator    *validator.Validator
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New returns a Handler. queryCache may be nil when caching is disabled.
// A zero defaultLimit returns up to maxResults records; a zero maxResults
// means no cap.
func New(s Searcher, queryCache *cache.QueryCache, v *validator.Validator, defaultLimit, maxResults int) *Handler {
	return &Handler{
		searcher:     s,
		cache:        queryCache,
		validator:    v,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

type searchResponse struct {
	Query    string            `json:"query"`
	Tokens   []string          `json:"tokens"`
	Total    int               `json:"total"`
	Returned int               `json:"returned"`
	Results  []hashtree.Record `json:"results"`
	CacheHit bool              `json:"cache_hit"`
}

// Search serves GET /api/v1/search?q=&limit=. An empty q lists every record.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.searcher.Search(ctx, query)
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	records := result.Results
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	log.Info("search completed",
		"query", query,
		"total", result.Total,
		"returned", len(records),
		"cache_hit", result.CacheHit,
	)
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:    result.Query,
		Tokens:   result.Tokens,
		Total:    result.Total,
		Returned: len(records),
		Results:  records,
		CacheHit: result.CacheHit,
	})
}

// InsertRecord serves POST /api/v1/records.
func (h *Handler) InsertRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ingestion.RecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.ValidateRecord(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	h.searcher.Insert(ctx, "api", []hashtree.Record{req.Record()})
	logger.FromContext(ctx).Info("record indexed", "record_key", req.Key)
	h.writeJSON(w, http.StatusCreated, ingestion.RecordResponse{Key: req.Key, Status: ingestion.StatusIndexed})
}

// InsertBatch serves POST /api/v1/records/batch. Records are inserted in
// request order.
func (h *Handler) InsertBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reqs []ingestion.RecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.ValidateBatch(reqs); err != nil {
		h.writeValidationError(w, err)
		return
	}

	records := make([]hashtree.Record, len(reqs))
	for i, req := range reqs {
		records[i] = req.Record()
	}
	n := h.searcher.Insert(ctx, "api", records)
	logger.FromContext(ctx).Info("record batch indexed", "batch_size", len(records), "inserted", n)
	h.writeJSON(w, http.StatusCreated, ingestion.BatchResponse{Accepted: n, Status: ingestion.StatusIndexed})
}

// Stats serves GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.searcher.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Reload returns the handler for POST /api/v1/reload, which rebuilds the
// index through reload and answers with the new index stats.
func (h *Handler) Reload(reload func(ctx context.Context) (hashtree.Stats, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := reload(r.Context())
		if err != nil {
			logger.FromContext(r.Context()).Error("index reload failed", "error", err)
			h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "index": stats})
	}
}

func (h *Handler) parseLimit(raw string) (int, error) {
	limit := h.defaultLimit
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, errors.New("limit must be a non-negative integer")
		}
		if parsed > 0 {
			limit = parsed
		}
	}
	if h.maxResults > 0 && (limit == 0 || limit > h.maxResults) {
		limit = h.maxResults
	}
	return limit, nil
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
