package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/kafka"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (p *fakeProducer) PublishBatch(ctx context.Context, events []kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func newHandler(prod *fakeProducer) *Handler {
	v := validator.New(config.IngestionConfig{MaxKeyLength: 32, MaxValueLength: 32, MaxBatchSize: 2})
	return New(publisher.New(nil, prod), v)
}

func TestIngest(t *testing.T) {
	prod := &fakeProducer{}
	h := newHandler(prod)

	rec := httptest.NewRecorder()
	h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/records",
		strings.NewReader(`{"key":"apple","value":"fruit"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"accepted"`)
	require.Len(t, prod.events, 1)
	assert.Equal(t, "apple", prod.events[0].Value.(ingestion.RecordEvent).Key)
}

func TestIngest_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `not json`, "invalid JSON body"},
		{"blank key", `{"key":" ","value":"x"}`, "validation failed"},
		{"long value", `{"key":"a","value":"` + strings.Repeat("v", 33) + `"}`, "value must be at most 32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prod := &fakeProducer{}
			rec := httptest.NewRecorder()
			newHandler(prod).Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, prod.events)
		})
	}
}

func TestIngest_PublisherDown(t *testing.T) {
	h := newHandler(&fakeProducer{err: errors.New("broker down")})
	rec := httptest.NewRecorder()
	h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/records",
		strings.NewReader(`{"key":"apple","value":"fruit"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestBatch(t *testing.T) {
	prod := &fakeProducer{}
	h := newHandler(prod)

	rec := httptest.NewRecorder()
	h.IngestBatch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/records/batch",
		strings.NewReader(`[{"key":"apple","value":"fruit"},{"key":"cat","value":"animal"}]`)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted":2`)
	assert.Len(t, prod.events, 2)
}

func TestIngestBatch_TooLarge(t *testing.T) {
	h := newHandler(&fakeProducer{})
	rec := httptest.NewRecorder()
	h.IngestBatch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/records/batch",
		strings.NewReader(`[{"key":"a"},{"key":"b"},{"key":"c"}]`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
