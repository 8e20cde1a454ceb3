// Package ingestion defines the request/response types and Kafka event
// schema of the record ingestion pipeline.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
)

// RecordRequest is the JSON body accepted for a single record.
type RecordRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r RecordRequest) Record() hashtree.Record {
	return hashtree.Record{Key: r.Key, Value: r.Value}
}

// Record statuses reported to callers.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusPersisted = "persisted"
	StatusIndexed   = "indexed"
)

// RecordResponse is returned after a record is accepted.
type RecordResponse struct {
	ID     string `json:"id,omitempty"`
	Key    string `json:"key"`
	Status string `json:"status"`
}

// BatchResponse is returned after a batch of records is accepted.
type BatchResponse struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates,omitempty"`
	IDs        []string `json:"ids,omitempty"`
	Status     string   `json:"status"`
}

// RecordEvent is the Kafka payload published for each accepted record.
type RecordEvent struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	IngestedAt time.Time `json:"ingested_at"`
}

func (e RecordEvent) Record() hashtree.Record {
	return hashtree.Record{Key: e.Key, Value: e.Value}
}
