// Package cron runs housekeeping jobs on a schedule.
package cron

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
)

// Runner wraps a seconds-aware cron scheduler. Jobs receive the base
// context the runner was created with.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
	logger  logger.Logger
}

// New creates a runner whose jobs run under baseCtx.
func New(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		baseCtx: baseCtx,
		logger:  logger.Get().Named("cron"),
	}
}

// Add registers job under spec.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { r.run(name, job) })
	if err != nil {
		return 0, err
	}
	r.logger.Info(r.baseCtx, "job registered", logger.String("job", name), logger.String("schedule", spec))
	return id, nil
}

func (r *Runner) run(name string, job func(context.Context) error) {
	if r.baseCtx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job(r.baseCtx); err != nil {
		metrics.RecordErrorByComponent("cron", name)
		r.logger.Error(r.baseCtx, "job failed", logger.String("job", name), logger.Error(err))
		return
	}
	r.logger.Debug(r.baseCtx, "job completed", logger.String("job", name), logger.Duration("took", time.Since(start)))
}

// Start begins scheduling.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info(r.baseCtx, "cron started")
}

// Stop waits for running jobs and stops scheduling.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info(r.baseCtx, "cron stopped")
}

// Purger deletes reports created before a cutoff.
type Purger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// Cleanup returns a job purging reports older than retention.
func Cleanup(p Purger, retention time.Duration, clk clock.Clock) func(context.Context) error {
	if clk == nil {
		clk = clock.New()
	}
	log := logger.Get().Named("cleanup")
	return func(ctx context.Context) error {
		n, err := p.DeleteExpired(ctx, clk.Now().Add(-retention))
		if err != nil {
			return err
		}
		metrics.RecordReportsPurged(n)
		if n > 0 {
			log.Info(ctx, "expired reports purged", logger.Int("count", n))
		}
		return nil
	}
}
