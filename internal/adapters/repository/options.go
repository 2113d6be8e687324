package repository

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithClock injects the time source used for the in-progress gauge.
func WithClock(clk clock.Clock) Option {
	return func(s *MemoryStore) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithStaleAfter sets the window an in-progress report counts toward the gauge.
func WithStaleAfter(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}
