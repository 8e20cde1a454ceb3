// Package handler exposes the ingestion pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
)

const maxBodyBytes = 8 << 20

// Ingester is the part of *publisher.Publisher the handler uses.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.RecordRequest) (*ingestion.RecordResponse, error)
	IngestBatch(ctx context.Context, reqs []ingestion.RecordRequest) (*ingestion.BatchResponse, error)
}

type Handler struct {
	ingester  Ingester
	validator *validator.Validator
	logger    *slog.Logger
}

func New(ing Ingester, v *validator.Validator) *Handler {
	return &Handler{
		ingester:  ing,
		validator: v,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest serves POST /api/v1/records. An accepted record answers 202; a
// record whose key is already stored answers 200.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.RecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.ValidateRecord(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"record_key", req.Key,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("record ingested",
		"record_id", resp.ID,
		"record_key", resp.Key,
		"status", resp.Status,
	)
	status := http.StatusAccepted
	if resp.Status == ingestion.StatusDuplicate {
		status = http.StatusOK
	}
	h.writeJSON(w, status, resp)
}

// IngestBatch serves POST /api/v1/records/batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var reqs []ingestion.RecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.ValidateBatch(reqs); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.ingester.IngestBatch(ctx, reqs)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("batch ingestion failed",
			"batch_size", len(reqs),
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("record batch ingested",
		"batch_size", len(reqs),
		"accepted", resp.Accepted,
		"duplicates", resp.Duplicates,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
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
