// Package worker values the jobs of one page concurrently.
package worker

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/okian/appraisal/internal/adapters/mq/queue"
	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
)

const defaultPoolSize = 2

// Valuer builds the row of one asset.
type Valuer interface {
	Value(ctx context.Context, asset model.Asset) (model.ValuationRow, error)
}

// ValuerFunc adapts a function to Valuer.
type ValuerFunc func(ctx context.Context, asset model.Asset) (model.ValuationRow, error)

// Value calls f.
func (f ValuerFunc) Value(ctx context.Context, asset model.Asset) (model.ValuationRow, error) {
	return f(ctx, asset)
}

// Result is a finished job.
type Result struct {
	Index int
	Row   model.ValuationRow
}

// Outcome is what one pool run produced. Results are in page order and
// Deferred holds the jobs no worker started.
type Outcome struct {
	Results  []Result
	Deferred []queue.Job
}

// InMemoryWorker takes jobs off a channel until told to stop.
type InMemoryWorker struct {
	valuer Valuer
	name   string
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(valuer Valuer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		valuer: valuer,
		name:   "worker",
		logger: logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run consumes jobs while more reports true. It returns when the channel
// is closed, more turns false, or ctx is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context, jobs <-chan queue.Job, more func() bool, emit func(Result)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !more() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-jobs:
			if !ok {
				return nil
			}
			metrics.RecordQueueDequeue()
			emit(w.process(ctx, j))
		}
	}
}

// process never fails: a valuation error becomes an error row.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) Result {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	row, err := w.valuer.Value(ctx, j.Asset)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "valuation_error")
		w.logger.Warn(ctx, "asset valuation failed",
			logger.String("asset_id", j.Asset.ID),
			logger.Error(err),
		)
		row = ErrorRow(j.Asset, err)
	}
	return Result{Index: j.Index, Row: row}
}

// ErrorRow records a failed valuation for asset.
func ErrorRow(asset model.Asset, err error) model.ValuationRow {
	return model.ValuationRow{
		AssetID:        asset.ID,
		AssetName:      asset.Name,
		CollectionID:   asset.CollectionID,
		CollectionName: asset.CollectionName,
		Error:          err.Error(),
	}
}

// Pool runs a fixed number of workers over one page queue.
type Pool struct {
	size     int
	valuer   Valuer
	deadline time.Time
	clock    clock.Clock
	logger   logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(size int, valuer Valuer, opts ...PoolOption) *Pool {
	if size < 1 {
		size = defaultPoolSize
	}
	p := &Pool{
		size:   size,
		valuer: valuer,
		clock:  clock.New(),
		logger: logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drains q with the pool's workers. Jobs left when the deadline passes
// are returned as deferred. The error is non-nil only when ctx was cancelled.
func (p *Pool) Run(ctx context.Context, q queue.Queue) (Outcome, error) {
	var (
		mu      sync.Mutex
		results []Result
	)
	emit := func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	metrics.UpdateWorkerActiveCount(p.size)
	defer metrics.UpdateWorkerActiveCount(0)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		w := NewInMemoryWorker(p.valuer, WithName("worker-"+strconv.Itoa(i)))
		g.Go(func() error {
			return w.Run(gctx, q.Dequeue(), p.more, emit)
		})
	}
	err := g.Wait()

	sort.Slice(results, func(i, k int) bool { return results[i].Index < results[k].Index })
	out := Outcome{Results: results, Deferred: q.Drain()}
	if len(out.Deferred) > 0 {
		p.logger.Info(ctx, "deferring jobs past the deadline",
			logger.Int("valued", len(out.Results)),
			logger.Int("deferred", len(out.Deferred)),
		)
	}
	return out, err
}

func (p *Pool) more() bool {
	return p.deadline.IsZero() || p.clock.Now().Before(p.deadline)
}
