// Package classifier selects the last genuine sale of an asset from its
// noisy transaction history.
package classifier

import (
	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/ratelimit"
)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithMinSalePrice sets the absolute floor below which no candidate survives.
func WithMinSalePrice(lamports int64) Option {
	return func(c *Classifier) {
		if lamports > 0 {
			c.minSalePrice = lamports
		}
	}
}

// WithSignificantOutflow sets the minimum outflow balance inference accepts.
func WithSignificantOutflow(lamports int64) Option {
	return func(c *Classifier) {
		if lamports > 0 {
			c.significantOutflow = lamports
		}
	}
}

// WithLargeOutflow sets the outflow at which a transfer counts as a large deposit.
func WithLargeOutflow(lamports int64) Option {
	return func(c *Classifier) {
		if lamports > 0 {
			c.largeOutflow = lamports
		}
	}
}

// WithUnusualOutflow sets the outflow required before a low-confidence type
// (stake, claim, collect) is trusted at all.
func WithUnusualOutflow(lamports int64) Option {
	return func(c *Classifier) {
		if lamports > 0 {
			c.unusualOutflow = lamports
		}
	}
}

// WithHighConfidenceTypes adds type tags treated as sales.
func WithHighConfidenceTypes(types ...string) Option {
	return func(c *Classifier) { addAll(c.highConfidence, types) }
}

// WithNotSaleTypes adds type tags that are never sales.
func WithNotSaleTypes(types ...string) Option {
	return func(c *Classifier) { addAll(c.notSale, types) }
}

// WithMarketplaces adds marketplace source tags.
func WithMarketplaces(sources ...string) Option {
	return func(c *Classifier) { addAll(c.marketplaces, sources) }
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithLimiter sets the limiter awaited before each history fetch.
func WithLimiter(l ratelimit.Limiter) FinderOption {
	return func(f *Finder) {
		if l != nil {
			f.limiter = l
		}
	}
}

// WithTypeFilter sets the type filter of the first, narrow history pass.
func WithTypeFilter(filter string) FinderOption {
	return func(f *Finder) {
		if filter != "" {
			f.typeFilter = filter
		}
	}
}

// WithFinderLogger sets the finder's logger.
func WithFinderLogger(l logger.Logger) FinderOption {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
}

// tierName is used as a metric label.
func tierName(t model.ConfidenceTier) string { return t.String() }
