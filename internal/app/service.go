// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/okian/appraisal/internal/adapters/repository"
	"github.com/okian/appraisal/internal/domain/dedupe"
	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/internal/domain/types"
	"github.com/okian/appraisal/pkg/logger"
)

// InventorySource lists the assets a wallet holds.
type InventorySource interface {
	FetchAssetsByOwner(ctx context.Context, owner string) ([]model.Asset, error)
}

// Service implements the API dependencies for report creation, reads and
// advancing.
type Service struct {
	store      repository.Store
	processor  *Processor
	inventory  InventorySource
	clock      clock.Clock
	extraStats map[string]func() int
	logger     logger.Logger
}

// New constructs a Service around a processor.
func New(store repository.Store, processor *Processor, inventory InventorySource, opts ...Option) *Service {
	s := &Service{
		store:      store,
		processor:  processor,
		inventory:  inventory,
		clock:      clock.New(),
		extraStats: make(map[string]func() int),
		logger:     logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateReport records a new report for owner. With no ids the selection is
// the owner's whole inventory. Ids are deduplicated in first-seen order.
func (s *Service) CreateReport(ctx context.Context, owner string, assetIDs []string) (types.ReportSummary, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return types.ReportSummary{}, fmt.Errorf("%w: missing owner", ErrInvalidRequest)
	}

	if len(assetIDs) == 0 {
		assets, err := s.inventory.FetchAssetsByOwner(ctx, owner)
		if err != nil {
			return types.ReportSummary{}, fmt.Errorf("%w: %s: %w", ErrInventoryUnavailable, owner, err)
		}
		for _, a := range assets {
			assetIDs = append(assetIDs, a.ID)
		}
	}
	selected := dedupe.Unique(ctx, dedupe.NewInMemoryDeduper(), assetIDs)

	now := s.clock.Now().UTC()
	r := &model.Report{
		ID:               uuid.NewString(),
		Owner:            owner,
		Status:           model.StatusNotStarted,
		SelectedIDs:      selected,
		PendingIDs:       append([]string(nil), selected...),
		QueueInitialized: true,
		Results:          []model.ValuationRow{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return types.ReportSummary{}, fmt.Errorf("create report: %w", err)
	}
	s.logger.Info(ctx, "report created",
		logger.String("report_id", r.ID),
		logger.String("owner", owner),
		logger.Int("assets", len(selected)),
	)
	return s.summary(r), nil
}

// GetReport returns the report with every row accumulated so far.
func (s *Service) GetReport(ctx context.Context, id string) (types.ReportSummary, error) {
	r, err := s.processor.load(ctx, id)
	if err != nil {
		return types.ReportSummary{}, err
	}
	if r.Expired(s.clock.Now(), s.processor.retention) {
		return types.ReportSummary{}, fmt.Errorf("%w: %s", ErrReportExpired, id)
	}
	return s.summary(r), nil
}

// Advance runs one processing invocation against report id.
func (s *Service) Advance(ctx context.Context, id string) (types.Progress, error) {
	return s.processor.Advance(ctx, id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	ctx := context.Background()
	profile := s.processor.profile
	stats := map[string]interface{}{
		"tier":                 profile.Name,
		"pageSize":             profile.PageSize,
		"classifierWorkers":    profile.ClassifierWorkers,
		"maxConcurrentReports": s.processor.Admission.MaxConcurrent(),
		"advancing":            s.processor.locks.len(),
	}
	if n, err := s.store.Count(ctx); err == nil {
		stats["reports"] = n
	}
	since := s.clock.Now().Add(-s.processor.staleAfter)
	if n, err := s.store.CountInProgress(ctx, since); err == nil {
		stats["reportsInProgress"] = n
	}
	for name, f := range s.extraStats {
		stats[name] = f()
	}
	return stats
}

func (s *Service) summary(r *model.Report) types.ReportSummary {
	rows := r.Results
	if rows == nil {
		rows = []model.ValuationRow{}
	}
	return types.ReportSummary{
		Progress:  s.processor.progress(r),
		Owner:     r.Owner,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.UTC().Format(time.RFC3339),
		LastError: r.LastError,
		Rows:      rows,
	}
}
