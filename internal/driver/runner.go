// Package driver re-invokes report advancing until a report is done.
package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/internal/domain/types"
	"github.com/okian/appraisal/pkg/logger"
)

// Client is the subset of the report API the driver calls.
type Client interface {
	CreateReport(ctx context.Context, owner string, ids []string) (types.ReportSummary, error)
	GetReport(ctx context.Context, id string) (types.ReportSummary, error)
	Advance(ctx context.Context, id string) (types.Progress, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for waits.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithSleep replaces the wait between invocations.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Driver) { d.sleep = f }
}

// Driver loops advance calls against one report.
type Driver struct {
	client Client
	cfg    Config
	clock  clock.Clock
	sleep  func(ctx context.Context, d time.Duration) error
	logger logger.Logger
}

// New creates a driver. Zero config fields take their defaults.
func New(client Client, cfg Config, opts ...Option) *Driver {
	if cfg.MaxInvocations <= 0 {
		cfg.MaxInvocations = DefaultMaxInvocations
	}
	if cfg.ConflictDelay <= 0 {
		cfg.ConflictDelay = DefaultConflictDelay
	}
	d := &Driver{
		client: client,
		cfg:    cfg,
		clock:  clock.New(),
		logger: logger.Get().Named("driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sleep == nil {
		d.sleep = d.clockSleep
	}
	return d
}

// Run creates the report when no id is configured, advances it until it is
// done and verifies the final summary.
func (d *Driver) Run(ctx context.Context) (types.ReportSummary, Stats, error) {
	stats := Stats{StartTime: d.clock.Now()}
	defer func() {
		stats.EndTime = d.clock.Now()
		stats.Duration = stats.EndTime.Sub(stats.StartTime)
	}()

	id := d.cfg.ReportID
	if id == "" {
		sum, err := d.client.CreateReport(ctx, d.cfg.Owner, d.cfg.AssetIDs)
		if err != nil {
			return types.ReportSummary{}, stats, fmt.Errorf("create report: %w", err)
		}
		id = sum.ReportID
		d.logger.Info(ctx, "report created",
			logger.String("report_id", id),
			logger.Int("total", sum.TotalCount),
		)
	}

	if err := d.advance(ctx, id, &stats); err != nil {
		return types.ReportSummary{}, stats, err
	}

	sum, err := d.client.GetReport(ctx, id)
	if err != nil {
		return types.ReportSummary{}, stats, fmt.Errorf("get report: %w", err)
	}
	if err := Verify(sum); err != nil {
		return sum, stats, err
	}
	d.logger.Info(ctx, "report finished",
		logger.String("report_id", id),
		logger.String("status", sum.Status),
		logger.Int("rows", len(sum.Rows)),
		logger.Int("invocations", stats.Invocations),
	)
	if sum.Status == string(model.StatusFailed) {
		return sum, stats, fmt.Errorf("%w: %s", ErrReportFailed, sum.LastError)
	}
	return sum, stats, nil
}

func (d *Driver) advance(ctx context.Context, id string, stats *Stats) error {
	for stats.Invocations < d.cfg.MaxInvocations {
		stats.Invocations++
		p, err := d.client.Advance(ctx, id)

		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
			stats.Conflicts++
			d.logger.Warn(ctx, "report is being advanced elsewhere", logger.String("report_id", id))
			if err := d.sleep(ctx, d.cfg.ConflictDelay); err != nil {
				return err
			}
			continue
		case err != nil:
			return fmt.Errorf("advance %s: %w", id, err)
		}

		if p.Status == types.StatusQueued {
			stats.Queued++
		}
		if d.cfg.Verbose || p.Done() {
			d.logger.Info(ctx, "advanced",
				logger.String("report_id", id),
				logger.String("status", p.Status),
				logger.Int("processed", p.ProcessedCount),
				logger.Int("total", p.TotalCount),
				logger.Float64("percent", p.ProgressPercent),
			)
		}
		if p.Done() {
			return nil
		}
		if p.RetryAfterMs > 0 {
			if err := d.sleep(ctx, time.Duration(p.RetryAfterMs)*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: %d", ErrMaxInvocations, d.cfg.MaxInvocations)
}

func (d *Driver) clockSleep(ctx context.Context, wait time.Duration) error {
	t := d.clock.Timer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Verify checks that a summary is internally consistent.
func Verify(sum types.ReportSummary) error {
	switch {
	case sum.ProcessedCount != len(sum.Rows):
		return fmt.Errorf("%w: %d rows but processed %d", ErrInconsistent, len(sum.Rows), sum.ProcessedCount)
	case sum.ProcessedCount > sum.TotalCount:
		return fmt.Errorf("%w: processed %d of %d", ErrInconsistent, sum.ProcessedCount, sum.TotalCount)
	case sum.Status == string(model.StatusComplete) && sum.ProcessedCount != sum.TotalCount:
		return fmt.Errorf("%w: complete with %d of %d", ErrInconsistent, sum.ProcessedCount, sum.TotalCount)
	}
	seen := make(map[string]struct{}, len(sum.Rows))
	for _, r := range sum.Rows {
		if _, dup := seen[r.AssetID]; dup {
			return fmt.Errorf("%w: duplicate row %s", ErrInconsistent, r.AssetID)
		}
		seen[r.AssetID] = struct{}{}
	}
	return nil
}
