package worker

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithDeadline stops workers from taking new jobs at or after t.
func WithDeadline(t time.Time) PoolOption {
	return func(p *Pool) {
		p.deadline = t
	}
}

// WithClock injects the time source the deadline is checked against.
func WithClock(clk clock.Clock) PoolOption {
	return func(p *Pool) {
		if clk != nil {
			p.clock = clk
		}
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
