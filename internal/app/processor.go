package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/internal/adapters/mq/events"
	"github.com/okian/appraisal/internal/adapters/mq/queue"
	"github.com/okian/appraisal/internal/adapters/mq/worker"
	"github.com/okian/appraisal/internal/adapters/repository"
	"github.com/okian/appraisal/internal/config"
	"github.com/okian/appraisal/internal/domain/admission"
	"github.com/okian/appraisal/internal/domain/dedupe"
	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/internal/domain/types"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
)

const defaultStaleAfter = 15 * time.Minute

// MetadataSource fetches asset metadata in one batch. Unknown ids are
// absent from the result.
type MetadataSource interface {
	FetchMetadataBatch(ctx context.Context, ids []string) ([]model.Asset, error)
}

// CollectionResolver serves collection floor data.
type CollectionResolver interface {
	Resolve(ctx context.Context, collectionID, nameHint string) (model.CollectionFloorData, error)
	Lookup(collectionID string) (model.CollectionFloorData, bool)
}

// Components are the collaborators a Processor drives.
type Components struct {
	Store       repository.Store
	Metadata    MetadataSource
	Collections CollectionResolver
	Sales       SaleFinder
	Prices      PriceOracle
	// Admission defaults to a controller sized by the tier profile.
	Admission *admission.Controller
}

// Processor advances reports one page at a time. Every call loads the
// persisted report, does a bounded amount of work and writes the result
// back in one versioned save, so callers may re-invoke it freely.
type Processor struct {
	Components
	profile    config.Profile
	budget     time.Duration
	reserve    time.Duration
	retention  time.Duration
	staleAfter time.Duration
	publisher  events.Publisher
	clock      clock.Clock
	locks      *keyedLocks
	logger     logger.Logger
}

// NewProcessor creates a Processor for the given tier profile.
func NewProcessor(c Components, profile config.Profile, opts ...ProcessorOption) *Processor {
	p := &Processor{
		Components: c,
		profile:    profile,
		budget:     defaultBudget,
		reserve:    defaultReserve,
		retention:  defaultRetention,
		staleAfter: defaultStaleAfter,
		publisher:  events.Nop{},
		clock:      clock.New(),
		locks:      newKeyedLocks(),
		logger:     logger.Get().Named("processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.Admission == nil {
		p.Admission = admission.New(p.Store, profile.MaxConcurrentReports, p.staleAfter, admission.WithClock(p.clock))
	}
	return p
}

// Advance runs one invocation against report id.
func (p *Processor) Advance(ctx context.Context, id string) (types.Progress, error) {
	start := p.clock.Now()
	outcome := "error"
	defer func() {
		metrics.RecordInvocation(outcome, float64(p.clock.Since(start).Milliseconds()))
	}()

	release, ok := p.locks.tryLock(id)
	if !ok {
		outcome = "conflict"
		return types.Progress{}, fmt.Errorf("%w: %s", ErrConcurrentAdvance, id)
	}
	defer release()

	r, err := p.load(ctx, id)
	if err != nil {
		return types.Progress{}, err
	}
	switch {
	case r.Status == model.StatusComplete:
		outcome = "noop"
		return p.progress(r), nil
	case r.Status == model.StatusFailed:
		outcome = "failed"
		return p.progress(r), nil
	case r.Expired(start, p.retention):
		outcome = "expired"
		return types.Progress{}, fmt.Errorf("%w: %s", ErrReportExpired, id)
	}

	var (
		next    *model.Report
		saveErr error
	)
	run := func(ctx context.Context) error {
		n, err := p.process(ctx, r, start)
		if err != nil {
			return err
		}
		if err := p.Store.Save(ctx, n); err != nil {
			saveErr = err
			return err
		}
		next = n
		return nil
	}

	// A report already in progress is admitted without running the pass.
	admitted, err := p.Admission.Admit(ctx, r, run)
	if err == nil && admitted && next == nil {
		err = run(ctx)
	}
	switch {
	case errors.Is(err, admission.ErrCount):
		return types.Progress{}, err
	case saveErr != nil:
		return types.Progress{}, p.writeError(ctx, r.ID, saveErr)
	case err != nil:
		return types.Progress{}, err
	}
	if !admitted {
		outcome = "queued"
		prog := p.progress(r)
		prog.Status = types.StatusQueued
		prog.RetryAfterMs = p.profile.InterBatchDelay.Milliseconds()
		p.logger.Info(ctx, "report queued, capacity reached",
			logger.String("report_id", id),
			logger.Int("max_concurrent", p.Admission.MaxConcurrent()),
		)
		return prog, nil
	}

	outcome = string(next.Status)
	p.publish(ctx, next)
	p.logger.Info(ctx, "report advanced",
		logger.String("report_id", id),
		logger.String("status", string(next.Status)),
		logger.Int("processed", next.ProcessedCount()),
		logger.Int("total", next.TotalCount()),
		logger.Duration("took", p.clock.Since(start)),
	)
	return p.progress(next), nil
}

func (p *Processor) load(ctx context.Context, id string) (*model.Report, error) {
	r, err := p.Store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", id, err)
	}
	return r, nil
}

// process builds the next state of r without touching the store. Any error
// leaves the persisted report as it was.
func (p *Processor) process(ctx context.Context, r *model.Report, start time.Time) (*model.Report, error) {
	next := r.Clone()
	p.heal(ctx, next)

	if len(next.PendingIDs) == 0 {
		next.Status = model.StatusComplete
		next.UpdatedAt = p.clock.Now().UTC()
		return next, nil
	}

	size := min(p.profile.PageSize, len(next.PendingIDs))
	page, rest := next.PendingIDs[:size], next.PendingIDs[size:]

	assets, err := p.Metadata.FetchMetadataBatch(ctx, page)
	if err != nil {
		metrics.RecordErrorByComponent("processor", "metadata_batch")
		return nil, fmt.Errorf("%w: report %s: %w", ErrMetadataUnavailable, r.ID, err)
	}
	byID := make(map[string]model.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	rows := make([]*model.ValuationRow, len(page))
	found := make([]model.Asset, 0, len(page))
	slot := make([]int, 0, len(page))
	for i, id := range page {
		a, ok := byID[id]
		if !ok {
			row := worker.ErrorRow(model.Asset{ID: id}, errors.New("metadata not found"))
			rows[i] = &row
			continue
		}
		found = append(found, a)
		slot = append(slot, i)
	}

	// Valuation may run into the first half of the reserve; collection
	// resolution may not.
	cols, err := p.resolveCollections(ctx, found, start.Add(p.budget-p.reserve))
	if err != nil {
		return nil, err
	}

	q, err := queue.FromPage(ctx, found)
	if err != nil {
		return nil, err
	}
	pool := worker.NewPool(p.profile.ClassifierWorkers,
		&rowValuer{sales: p.Sales, prices: p.Prices, collections: cols},
		worker.WithDeadline(start.Add(p.budget-p.reserve/2)),
		worker.WithClock(p.clock),
	)
	out, err := pool.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, res := range out.Results {
		row := res.Row
		rows[slot[res.Index]] = &row
	}

	var deferred []string
	for i, row := range rows {
		switch {
		case row == nil:
			deferred = append(deferred, page[i])
		case row.Failed():
			metrics.RecordAssetFailed("valuation")
			next.Results = append(next.Results, *row)
		default:
			metrics.RecordAssetValued()
			next.Results = append(next.Results, *row)
		}
	}
	metrics.RecordAssetsDeferred(len(deferred))

	pending := make([]string, 0, len(deferred)+len(rest))
	next.PendingIDs = append(append(pending, deferred...), rest...)
	switch {
	case len(next.PendingIDs) == 0:
		next.Status = model.StatusComplete
	case len(deferred) > 0:
		next.Status = model.StatusPartial
	default:
		next.Status = model.StatusProcessing
	}
	next.UpdatedAt = p.clock.Now().UTC()
	return next, nil
}

// heal rebuilds the pending queue when it was never initialised or lost
// track of unprocessed ids, and drops ids that already have a row.
func (p *Processor) heal(ctx context.Context, r *model.Report) {
	seen := dedupe.NewInMemoryDeduper(dedupe.WithSeed(r.ProcessedIDs()...))
	rebuild := !r.QueueInitialized || (len(r.PendingIDs) == 0 && r.ProcessedCount() < r.TotalCount())
	source := r.PendingIDs
	if rebuild {
		source = r.SelectedIDs
	}
	pending := dedupe.Unique(ctx, seen, source)
	if rebuild || len(pending) != len(r.PendingIDs) {
		p.logger.Warn(ctx, "pending queue repaired",
			logger.String("report_id", r.ID),
			logger.Int("before", len(r.PendingIDs)),
			logger.Int("after", len(pending)),
		)
	}
	r.PendingIDs = pending
	r.QueueInitialized = true
}

// resolveCollections resolves each distinct collection of the page in
// first-seen order. Once the deadline has passed, only already cached data
// is used and the rest get an empty entry marked degraded.
func (p *Processor) resolveCollections(ctx context.Context, assets []model.Asset, deadline time.Time) (map[string]model.CollectionFloorData, error) {
	out := make(map[string]model.CollectionFloorData)
	skipped := 0
	for _, a := range assets {
		if _, done := out[a.CollectionID]; done {
			continue
		}
		if !p.clock.Now().Before(deadline) {
			data, ok := p.Collections.Lookup(a.CollectionID)
			if !ok {
				data = model.CollectionFloorData{CollectionID: a.CollectionID, Name: a.CollectionName, Degraded: true}
				skipped++
			}
			out[a.CollectionID] = data
			continue
		}
		data, err := p.Collections.Resolve(ctx, a.CollectionID, a.CollectionName)
		if err != nil {
			return nil, fmt.Errorf("resolve collection %s: %w", a.CollectionID, err)
		}
		out[a.CollectionID] = data
	}
	if skipped > 0 {
		p.logger.Info(ctx, "budget spent, collections left unresolved for this pass",
			logger.Int("skipped", skipped))
	}
	return out, nil
}

// writeError maps a failed save. An unrecoverable write marks the report
// failed on a best-effort basis.
func (p *Processor) writeError(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConcurrentAdvance, id)
	case errors.Is(err, repository.ErrUnrecoverable):
		if merr := p.Store.MarkFailed(ctx, id, err.Error()); merr != nil {
			p.logger.Error(ctx, "could not mark report failed",
				logger.String("report_id", id), logger.Error(merr))
		}
		metrics.RecordErrorByComponent("processor", "unrecoverable_write")
		return fmt.Errorf("save report %s: %w", id, err)
	default:
		metrics.RecordErrorByComponent("processor", "store_write")
		return fmt.Errorf("save report %s: %w", id, err)
	}
}

func (p *Processor) publish(ctx context.Context, r *model.Report) {
	ev := model.ReportEvent{
		ReportID:  r.ID,
		Owner:     r.Owner,
		Status:    r.Status,
		Processed: r.ProcessedCount(),
		Total:     r.TotalCount(),
		At:        r.UpdatedAt,
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Warn(ctx, "report event not published",
			logger.String("report_id", r.ID), logger.Error(err))
	}
}

func (p *Processor) progress(r *model.Report) types.Progress {
	prog := types.Progress{
		ReportID:        r.ID,
		Status:          string(r.Status),
		ProcessedCount:  r.ProcessedCount(),
		TotalCount:      r.TotalCount(),
		ProgressPercent: r.ProgressPercent(),
	}
	if !r.Status.Terminal() {
		prog.RetryAfterMs = p.profile.InterBatchDelay.Milliseconds()
	}
	return prog
}
