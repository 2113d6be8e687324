package oracle

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/ratelimit"
)

// Option applies a configuration option to the Oracle.
type Option func(*Oracle)

// WithCurrentTTL sets how long the current price is reused.
func WithCurrentTTL(ttl time.Duration) Option {
	return func(o *Oracle) {
		if ttl > 0 {
			o.currentTTL = ttl
		}
	}
}

// WithHistoryStore persists resolved historical prices.
func WithHistoryStore(s HistoryStore) Option {
	return func(o *Oracle) {
		o.store = s
	}
}

// WithLimiter sets the limiter in front of every upstream call.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *Oracle) {
		if l != nil {
			o.limiter = l
		}
	}
}

// WithClock injects the time source.
func WithClock(clk clock.Clock) Option {
	return func(o *Oracle) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithLogger sets the oracle logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Oracle) {
		if l != nil {
			o.logger = l
		}
	}
}
