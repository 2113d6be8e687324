// Package repository defines the report store interface and its backends.
package repository

import (
	"context"
	"time"

	"github.com/okian/appraisal/internal/domain/model"
)

// Store persists reports. Every read returns a private copy, and every
// write replaces the whole report.
type Store interface {
	// Create inserts a new report. Returns ErrExists if the id is taken.
	Create(ctx context.Context, r *model.Report) error

	// Get returns the report or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Report, error)

	// Save replaces the report if the stored version still equals r.Version.
	// On success r.Version is advanced; otherwise ErrConflict is returned
	// and nothing is written.
	Save(ctx context.Context, r *model.Report) error

	// MarkFailed sets status failed and the reason, regardless of version.
	MarkFailed(ctx context.Context, id, reason string) error

	// CountInProgress counts processing or partial reports updated at or
	// after since.
	CountInProgress(ctx context.Context, since time.Time) (int, error)

	// DeleteExpired removes reports created before the cutoff and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)

	// Count returns the number of stored reports.
	Count(ctx context.Context) (int, error)
}
