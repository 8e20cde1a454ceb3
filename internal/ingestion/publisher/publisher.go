// Package publisher persists accepted records to PostgreSQL and publishes
// them to Kafka for the search service to index.
package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/tracing"
)

// RecordStore persists records. Save reports, per request, whether the
// record was new.
type RecordStore interface {
	Save(ctx context.Context, reqs []ingestion.RecordRequest) ([]bool, error)
}

// EventPublisher is the part of *kafka.Producer the publisher needs.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher coordinates record persistence and Kafka event production.
type Publisher struct {
	store    RecordStore
	producer EventPublisher
	logger   *slog.Logger
}

// New creates a Publisher. store may be nil, in which case records are only
// published.
func New(store RecordStore, producer EventPublisher) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest accepts a single record. See IngestBatch.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.RecordRequest) (*ingestion.RecordResponse, error) {
	batch, err := p.IngestBatch(ctx, []ingestion.RecordRequest{*req})
	if err != nil {
		return nil, err
	}
	resp := &ingestion.RecordResponse{Key: req.Key, Status: batch.Status}
	if batch.Duplicates > 0 {
		resp.Status = ingestion.StatusDuplicate
	}
	if len(batch.IDs) > 0 {
		resp.ID = batch.IDs[0]
	}
	return resp, nil
}

// IngestBatch persists reqs, then publishes a RecordEvent for every record
// that was new. Records already stored are reported as duplicates and not
// republished. When publishing fails after the records were persisted the
// batch is reported as persisted: the search service picks them up from
// PostgreSQL on its next load. Without a store a publish failure is an
// error.
func (p *Publisher) IngestBatch(ctx context.Context, reqs []ingestion.RecordRequest) (*ingestion.BatchResponse, error) {
	fresh := make([]bool, len(reqs))
	for i := range fresh {
		fresh[i] = true
	}
	if p.store != nil {
		_, span := tracing.Child(ctx, "records.save")
		var err error
		fresh, err = p.store.Save(ctx, reqs)
		span.End()
		if err != nil {
			return nil, fmt.Errorf("persisting records: %w", err)
		}
	}

	now := time.Now().UTC()
	resp := &ingestion.BatchResponse{Status: ingestion.StatusAccepted}
	events := make([]kafka.Event, 0, len(reqs))
	for i, req := range reqs {
		if !fresh[i] {
			resp.Duplicates++
			continue
		}
		id := uuid.NewString()
		resp.IDs = append(resp.IDs, id)
		events = append(events, kafka.Event{
			Key: req.Key,
			Value: ingestion.RecordEvent{
				ID:         id,
				Key:        req.Key,
				Value:      req.Value,
				IngestedAt: now,
			},
		})
	}
	resp.Accepted = len(events)
	if len(events) == 0 {
		resp.Status = ingestion.StatusDuplicate
		return resp, nil
	}

	_, span := tracing.Child(ctx, "records.publish")
	span.SetAttr("batch_size", len(events))
	err := p.producer.PublishBatch(ctx, events)
	span.End()
	if err != nil {
		if p.store == nil {
			return nil, apperrors.Newf(apperrors.ErrPublisherUnhealthy, http.StatusServiceUnavailable,
				"publishing %d records: %v", len(events), err)
		}
		p.logger.Error("failed to publish to kafka, records persisted only",
			"batch_size", len(events),
			"error", err,
		)
		resp.Status = ingestion.StatusPersisted
		return resp, nil
	}

	p.logger.Debug("records published", "batch_size", len(events), "duplicates", resp.Duplicates)
	return resp, nil
}

// PostgresStore writes records to the records table. Keys are unique; a
// record whose key already exists is left unchanged.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, reqs []ingestion.RecordRequest) ([]bool, error) {
	fresh := make([]bool, len(reqs))
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO records (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for i, req := range reqs {
			res, err := stmt.ExecContext(ctx, req.Key, req.Value)
			if err != nil {
				return fmt.Errorf("inserting record %q: %w", req.Key, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("reading rows affected: %w", err)
			}
			fresh[i] = n == 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}
