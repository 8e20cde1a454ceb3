// Package analytics tracks search and insert activity. The Collector
// publishes events to Kafka, the Aggregator folds them into running stats,
// and SnapshotStore persists those stats to PostgreSQL.
package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventInsert EventType = "insert"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Tokens    []string  `json:"tokens"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// InsertEvent describes a batch of records added to the index.
type InsertEvent struct {
	Type      EventType `json:"type"`
	Origin    string    `json:"origin"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker accepts SearchEvent and InsertEvent values.
type Tracker interface {
	Track(event any)
}
