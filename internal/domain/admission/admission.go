// Package admission caps how many reports may be in progress at once.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/internal/domain/model"
)

// ErrCount is returned when the in-progress count cannot be read.
var ErrCount = errors.New("admission count failed")

// Counter counts in-progress reports updated at or after since.
type Counter interface {
	CountInProgress(ctx context.Context, since time.Time) (int, error)
}

// Controller admits reports into processing. Reports stuck in progress for
// longer than staleAfter no longer hold a slot.
type Controller struct {
	counter       Counter
	maxConcurrent int
	staleAfter    time.Duration
	clock         clock.Clock

	mu sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// New creates a Controller.
func New(counter Counter, maxConcurrent int, staleAfter time.Duration, opts ...Option) *Controller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	c := &Controller{
		counter:       counter,
		maxConcurrent: maxConcurrent,
		staleAfter:    staleAfter,
		clock:         clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit reports whether r may proceed. A report already in progress is
// admitted without a check and start is not called. Otherwise start runs
// while the slot count is held, so two callers cannot both take the last
// slot in this process. start must persist r as in progress when it
// succeeds; when it fails nothing is taken and its error is returned.
// A false result with a nil error means queued.
func (c *Controller) Admit(ctx context.Context, r *model.Report, start func(ctx context.Context) error) (bool, error) {
	if r.InProgress() {
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.counter.CountInProgress(ctx, c.clock.Now().Add(-c.staleAfter))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCount, err)
	}
	if n >= c.maxConcurrent {
		return false, nil
	}
	if err := start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// MaxConcurrent returns the configured slot count.
func (c *Controller) MaxConcurrent() int { return c.maxConcurrent }
