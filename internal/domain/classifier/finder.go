package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
	"github.com/okian/appraisal/pkg/ratelimit"
)

// HistorySource fetches an asset's parsed transactions. An empty typeFilter
// requests the unfiltered history.
type HistorySource interface {
	FetchTransactionHistory(ctx context.Context, assetID, typeFilter string) ([]Transaction, error)
}

// Finder resolves the last sale of an asset from its history.
type Finder struct {
	source     HistorySource
	classifier *Classifier
	limiter    ratelimit.Limiter
	typeFilter string
	logger     logger.Logger
}

// NewFinder creates a Finder. Every history fetch waits on the limiter.
func NewFinder(source HistorySource, c *Classifier, opts ...FinderOption) *Finder {
	if c == nil {
		c = New()
	}
	f := &Finder{
		source:     source,
		classifier: c,
		limiter:    ratelimit.Unlimited(),
		typeFilter: saleEventType,
		logger:     logger.Get().Named("classifier"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LastSale classifies the type-filtered history first and only falls back
// to the full history when the filtered pass yields no candidate.
func (f *Finder) LastSale(ctx context.Context, assetID string) (model.SaleCandidate, bool, error) {
	filtered, ferr := f.fetch(ctx, assetID, f.typeFilter)
	if ferr == nil {
		if cand, ok := f.classifier.Classify(filtered, assetID); ok {
			metrics.RecordLastSale("found")
			return cand, true, nil
		}
	} else {
		if ctx.Err() != nil {
			return model.SaleCandidate{}, false, ferr
		}
		f.logger.Debug(ctx, "filtered history failed, trying full history",
			logger.String("asset_id", assetID), logger.Error(ferr))
	}

	all, err := f.fetch(ctx, assetID, "")
	if err != nil {
		return model.SaleCandidate{}, false, fmt.Errorf("%w: %s: %w", ErrHistoryUnavailable, assetID, errors.Join(ferr, err))
	}
	if cand, ok := f.classifier.Classify(all, assetID); ok {
		metrics.RecordLastSale("fallback")
		return cand, true, nil
	}
	metrics.RecordLastSale("none")
	return model.SaleCandidate{}, false, nil
}

func (f *Finder) fetch(ctx context.Context, assetID, typeFilter string) ([]Transaction, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return f.source.FetchTransactionHistory(ctx, assetID, typeFilter)
}
