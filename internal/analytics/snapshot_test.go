package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/postgres"
)

type execCall struct {
	query string
	args  []any
}

type rowsAffected int64

func (r rowsAffected) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r rowsAffected) RowsAffected() (int64, error) { return int64(r), nil }

// execDB records ExecContext calls; QueryRowContext is not exercised here.
type execDB struct {
	calls    []execCall
	affected int64
	err      error
}

func (d *execDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	d.calls = append(d.calls, execCall{query: query, args: args})
	if d.err != nil {
		return nil, d.err
	}
	return rowsAffected(d.affected), nil
}

func (d *execDB) QueryRowContext(context.Context, string, ...any) *sql.Row {
	panic("unexpected QueryRowContext")
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestSnapshotStore_SaveEncodesStats(t *testing.T) {
	db := &execDB{}
	store := NewSnapshotStore(db, 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = fixedClock(now)

	require.NoError(t, store.Save(context.Background(), AggregatedStats{TotalSearches: 4, RecordsInserted: 2}))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "INSERT INTO analytics_snapshots")
	var saved AggregatedStats
	require.NoError(t, json.Unmarshal(db.calls[0].args[0].([]byte), &saved))
	assert.Equal(t, int64(4), saved.TotalSearches)
	assert.Equal(t, int64(2), saved.RecordsInserted)
	assert.Equal(t, now, db.calls[0].args[1])
}

func TestSnapshotStore_PruneUsesRetentionCutoff(t *testing.T) {
	db := &execDB{affected: 3}
	store := NewSnapshotStore(db, 48*time.Hour)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store.now = fixedClock(now)

	n, err := store.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "DELETE FROM analytics_snapshots")
	assert.Equal(t, now.Add(-48*time.Hour), db.calls[0].args[0])
}

func TestSnapshotStore_DefaultRetention(t *testing.T) {
	assert.Equal(t, DefaultRetention, NewSnapshotStore(&execDB{}, -time.Hour).retention)
}

func TestSnapshotStore_ErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewSnapshotStore(&execDB{err: boom}, time.Hour)

	err := store.Save(context.Background(), AggregatedStats{})
	assert.ErrorIs(t, err, boom)
	_, err = store.Prune(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSnapshotStore_RunFlushesOnShutdown(t *testing.T) {
	db := &execDB{}
	store := NewSnapshotStore(db, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, store.Run(ctx, NewAggregator(), time.Hour))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "INSERT")
}

func TestSnapshotStore_SaveAndLatest(t *testing.T) {
	if os.Getenv("TEST_POSTGRES_HOST") == "" {
		t.Skip("skipping: TEST_POSTGRES_HOST not set")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	pg := cfg.Postgres
	pg.Host = os.Getenv("TEST_POSTGRES_HOST")
	ctx := context.Background()
	client, err := postgres.New(ctx, pg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	defer client.Close()
	require.NoError(t, client.Migrate(ctx))

	agg := NewAggregator()
	agg.Track(SearchEvent{Type: EventSearch, Query: "snapshot-test", Returned: 1, Timestamp: time.Now()})
	store := NewSnapshotStore(client.DB, time.Hour)
	require.NoError(t, store.Save(ctx, agg.Stats()))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1), latest.TotalSearches)
}
