package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/logger"
)

// DefaultRetention is how long snapshots are kept when NewSnapshotStore is
// given no explicit retention.
const DefaultRetention = 7 * 24 * time.Hour

// DB is the subset of *sql.DB used by SnapshotStore.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SnapshotStore writes periodic copies of the aggregator's counters to the
// analytics_snapshots table so the dashboard survives a restart. Rows older
// than the retention window are pruned after each periodic save.
type SnapshotStore struct {
	db        DB
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSnapshotStore returns a store over db. A non-positive retention keeps
// DefaultRetention.
func NewSnapshotStore(db DB, retention time.Duration) *SnapshotStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SnapshotStore{
		db:        db,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.WithComponent("analytics-snapshots"),
	}
}

// Save appends one snapshot row.
func (s *SnapshotStore) Save(ctx context.Context, stats AggregatedStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		payload, s.now(),
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	s.logger.Debug("snapshot written",
		"searches", stats.TotalSearches,
		"inserts", stats.RecordsInserted,
		"bytes", len(payload),
	)
	return nil
}

// Prune deletes snapshots captured before the retention window and returns
// how many rows went.
func (s *SnapshotStore) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analytics_snapshots WHERE captured_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Latest returns the newest snapshot, or nil when the table is empty.
func (s *SnapshotStore) Latest(ctx context.Context) (*AggregatedStats, error) {
	var payload []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`)
	switch err := row.Scan(&payload); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading latest snapshot: %w", err)
	}
	stats := new(AggregatedStats)
	if err := json.Unmarshal(payload, stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return stats, nil
}

// Run snapshots agg on every tick and prunes expired rows. When ctx ends it
// writes one last snapshot on a fresh context before returning.
func (s *SnapshotStore) Run(ctx context.Context, agg *Aggregator, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("snapshot loop running", "interval", interval, "retention", s.retention)
	for {
		select {
		case <-ctx.Done():
			return s.flush(agg)
		case <-ticker.C:
			s.tick(ctx, agg)
		}
	}
}

func (s *SnapshotStore) tick(ctx context.Context, agg *Aggregator) {
	if err := s.Save(ctx, agg.Stats()); err != nil {
		s.logger.Error("snapshot failed", "error", err)
		return
	}
	pruned, err := s.Prune(ctx)
	if err != nil {
		s.logger.Warn("snapshot prune failed", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("expired snapshots pruned", "rows", pruned)
	}
}

func (s *SnapshotStore) flush(agg *Aggregator) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Save(ctx, agg.Stats()); err != nil {
		s.logger.Error("final snapshot failed", "error", err)
	}
	return nil
}
