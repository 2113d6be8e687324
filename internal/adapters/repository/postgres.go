package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/appraisal/internal/domain/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	status     TEXT NOT NULL,
	version    BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	body       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_status_updated_idx ON reports (status, updated_at);
CREATE INDEX IF NOT EXISTS reports_created_idx ON reports (created_at);
`

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore keeps reports in one table. The version column guards
// every update.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate reports: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Create implements Store.Create.
func (s *PostgresStore) Create(ctx context.Context, r *model.Report) error {
	body, err := encodeReport(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports (id, owner, status, version, created_at, updated_at, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.Owner, string(r.Status), r.Version, r.CreatedAt, r.UpdatedAt, body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrExists
		}
		return fmt.Errorf("create report %s: %w", r.ID, err)
	}
	return nil
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Report, error) {
	var body []byte
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version, body FROM reports WHERE id = $1`, id).Scan(&version, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	var r model.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	r.Version = version
	return &r, nil
}

// Save implements Store.Save.
func (s *PostgresStore) Save(ctx context.Context, r *model.Report) error {
	next := r.Clone()
	next.Version++
	body, err := encodeReport(next)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports
		SET status = $1, version = $2, updated_at = $3, body = $4
		WHERE id = $5 AND version = $6
	`, string(next.Status), next.Version, next.UpdatedAt, body, r.ID, r.Version)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, r.ID)
	}
	r.Version = next.Version
	return nil
}

// MarkFailed implements Store.MarkFailed.
func (s *PostgresStore) MarkFailed(ctx context.Context, id, reason string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var body []byte
	err = tx.QueryRow(ctx, `SELECT body FROM reports WHERE id = $1 FOR UPDATE`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	var r model.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("decode report %s: %w", id, err)
	}
	r.Status = model.StatusFailed
	r.LastError = reason
	r.UpdatedAt = time.Now().UTC()
	if body, err = json.Marshal(&r); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnrecoverable, id, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reports
		SET status = $1, version = version + 1, updated_at = $2, body = $3
		WHERE id = $4
	`, string(model.StatusFailed), r.UpdatedAt, body, id); err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	committed = true
	return nil
}

// CountInProgress implements Store.CountInProgress.
func (s *PostgresStore) CountInProgress(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM reports
		WHERE status IN ($1, $2) AND updated_at >= $3
	`, string(model.StatusProcessing), string(model.StatusPartial), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count in progress: %w", err)
	}
	return n, nil
}

// DeleteExpired implements Store.DeleteExpired.
func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Count implements Store.Count.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("save report %s: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
