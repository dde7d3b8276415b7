package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/dates"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS us10yr_daily (
	date        date PRIMARY KEY,
	open        double precision NOT NULL,
	close       double precision NOT NULL,
	high        double precision NOT NULL,
	low         double precision NOT NULL,
	change      double precision NOT NULL,
	change_rate double precision NOT NULL
)`

const insertQuoteSQL = `
INSERT INTO us10yr_daily (date, open, close, high, low, change, change_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (date) DO NOTHING`

const selectDatesSQL = `
SELECT date FROM us10yr_daily WHERE date >= $1 AND date < $2`

// PostgresStore persists quotes in a us10yr_daily table keyed by date.
// Re-crawled dates are dropped by ON CONFLICT, so replaying a range is safe.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating us10yr_daily: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Append(ctx context.Context, q model.Quote) error {
	_, err := s.pool.Exec(ctx, insertQuoteSQL,
		q.Date, q.Open, q.Close, q.High, q.Low, q.Change, q.ChangeRate)
	if err != nil {
		return fmt.Errorf("inserting quote for %s: %w", q.Date.Format(dates.Layout), err)
	}
	return nil
}

func (s *PostgresStore) Dates(ctx context.Context, r dates.Range) (map[time.Time]bool, error) {
	rows, err := s.pool.Query(ctx, selectDatesSQL, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("selecting persisted dates: %w", err)
	}
	defer rows.Close()

	seen := make(map[time.Time]bool)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning persisted date: %w", err)
		}
		seen[dates.DateOf(d)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("selecting persisted dates: %w", err)
	}
	return seen, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
