// Package consumer reads record events from Kafka and inserts them into the
// search service's index.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/kafka"
)

// Origin labels inserts made by the consumer.
const Origin = "kafka"

// Inserter is the part of *search.Service the consumer needs.
type Inserter interface {
	Insert(ctx context.Context, origin string, records []hashtree.Record) int
}

// IndexConsumer wraps a Kafka consumer to drive index inserts.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler that inserts each RecordEvent.
// Undecodable events and events without an indexable key are logged and
// committed.
func HandleMessage(ins Inserter) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.RecordEvent](value)
		if err != nil {
			logger.Error("failed to decode record event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if tokenizer.IsBlank(event.Key) {
			logger.Warn("skipping record event without key", "record_id", event.ID)
			return nil
		}

		n := ins.Insert(ctx, Origin, []hashtree.Record{event.Record()})
		logger.Debug("record event processed",
			"record_id", event.ID,
			"record_key", event.Key,
			"inserted", n,
		)
		return nil
	}
}
