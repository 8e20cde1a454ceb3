package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
)

const maxTopN = 100

// SnapshotReader loads the last persisted aggregate. *SnapshotStore
// satisfies it.
type SnapshotReader interface {
	Latest(ctx context.Context) (*AggregatedStats, error)
}

// Handler serves the aggregate over HTTP.
type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotReader
	logger     *slog.Logger
}

// NewHandler serves agg. snapshots may be nil when nothing is persisted.
func NewHandler(agg *Aggregator, snapshots SnapshotReader) *Handler {
	return &Handler{
		aggregator: agg,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics?top=N.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	n := DefaultTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTopN {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be between 1 and 100"})
			return
		}
		n = parsed
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(n))
}

// Snapshot serves GET /api/v1/analytics/snapshot, the last aggregate
// written to PostgreSQL.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshots are not enabled"})
		return
	}
	stats, err := h.snapshots.Latest(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("loading analytics snapshot", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load snapshot"})
		return
	}
	if stats == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
