package loader

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
)

const selectRecords = `SELECT key, value FROM records ORDER BY id`

// Querier is the subset of *sql.DB used by PostgresSource.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresSource reads every row of the records table in insertion order.
type PostgresSource struct {
	DB Querier
}

func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) Fetch(ctx context.Context, emit func(hashtree.Record)) error {
	rows, err := s.DB.QueryContext(ctx, selectRecords)
	if err != nil {
		return fmt.Errorf("%w: querying records: %v", apperrors.ErrSourceUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec hashtree.Record
		if err := rows.Scan(&rec.Key, &rec.Value); err != nil {
			return fmt.Errorf("scanning record: %w", err)
		}
		emit(rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating records: %v", apperrors.ErrSourceUnavailable, err)
	}
	return nil
}
