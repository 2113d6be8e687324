// Package collection caches per-collection floor and trait-floor data so a
// collection shared by many assets is resolved once per TTL.
package collection

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/ratelimit"
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets how long a resolved entry is served without refetching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLimiter sets the limiter shared by every market call.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Cache) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithClock injects the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithStore adds a shared second tier behind the in-memory map.
func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}
