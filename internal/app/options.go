package service

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/internal/adapters/mq/events"
	"github.com/okian/appraisal/pkg/logger"
)

const (
	defaultBudget    = 25 * time.Second
	defaultReserve   = 5 * time.Second
	defaultRetention = 7 * 24 * time.Hour
)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithBudget sets the wall-clock budget of one advance and the reserve kept
// free at its end for persisting.
func WithBudget(budget, reserve time.Duration) ProcessorOption {
	return func(p *Processor) {
		if budget > 0 && reserve >= 0 && reserve < budget {
			p.budget = budget
			p.reserve = reserve
		}
	}
}

// WithRetention sets the age past which reports are refused.
func WithRetention(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.retention = d
	}
}

// WithStaleAfter sets how long an untouched in-progress report keeps its
// admission slot.
func WithStaleAfter(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.staleAfter = d
		}
	}
}

// WithPublisher sets where report events go.
func WithPublisher(pub events.Publisher) ProcessorOption {
	return func(p *Processor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithClock injects the time source.
func WithClock(clk clock.Clock) ProcessorOption {
	return func(p *Processor) {
		if clk != nil {
			p.clock = clk
		}
	}
}

// WithLogger sets the processor logger.
func WithLogger(l logger.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithServiceClock injects the time source used for report timestamps.
func WithServiceClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithServiceLogger sets a custom logger for the service.
func WithServiceLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStatsSource adds a named figure to GetStats.
func WithStatsSource(name string, f func() int) Option {
	return func(s *Service) {
		if name != "" && f != nil {
			s.extraStats[name] = f
		}
	}
}
