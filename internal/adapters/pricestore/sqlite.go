// Package pricestore persists resolved daily reference prices in SQLite so
// they survive restarts.
package pricestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // driver
)

const schema = `CREATE TABLE IF NOT EXISTS daily_prices (
	day   TEXT PRIMARY KEY,
	price TEXT NOT NULL
)`

// SQLiteStore implements oracle.HistoryStore.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open price store: %w", err)
	}
	// A single connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate price store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the stored price for day.
func (s *SQLiteStore) Get(ctx context.Context, day string) (decimal.Decimal, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT price FROM daily_prices WHERE day = ?`, day).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get price %s: %w", day, err)
	}
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decode price %s: %w", day, err)
	}
	return p, true, nil
}

// Put stores the price for day, replacing any previous value.
func (s *SQLiteStore) Put(ctx context.Context, day string, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_prices (day, price) VALUES (?, ?)
		 ON CONFLICT(day) DO UPDATE SET price = excluded.price`,
		day, price.String())
	if err != nil {
		return fmt.Errorf("put price %s: %w", day, err)
	}
	return nil
}

// Len returns the number of stored days.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_prices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count prices: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
