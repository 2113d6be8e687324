// Package oracle answers "what was one native unit worth in the reference
// currency" for today and for past days.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
	"github.com/okian/appraisal/pkg/ratelimit"
)

const defaultCurrentTTL = time.Minute

// Quote sources.
const (
	SourceUpstream = "upstream"
	SourceStore    = "store"
	SourceEstimate = "estimate"

	// SourceStale is a current quote reused past its TTL.
	SourceStale = "stale"
)

// dayLayout keys historical quotes by UTC day.
const dayLayout = "2006-01-02"

// Quote is a reference price for one native unit.
type Quote struct {
	Price     decimal.Decimal
	Estimated bool
	Source    string
}

// PriceSource is the upstream price provider.
type PriceSource interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
	HistoricalPrice(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

// HistoryStore persists resolved historical prices keyed by UTC day.
type HistoryStore interface {
	Get(ctx context.Context, day string) (decimal.Decimal, bool, error)
	Put(ctx context.Context, day string, price decimal.Decimal) error
}

// Oracle caches current and historical quotes in front of a PriceSource.
type Oracle struct {
	source     PriceSource
	store      HistoryStore
	limiter    ratelimit.Limiter
	clock      clock.Clock
	currentTTL time.Duration
	logger     logger.Logger

	mu        sync.Mutex
	current   *Quote
	currentAt time.Time
	history   map[string]Quote
}

// New creates an Oracle.
func New(source PriceSource, opts ...Option) *Oracle {
	o := &Oracle{
		source:     source,
		limiter:    ratelimit.Unlimited(),
		clock:      clock.New(),
		currentTTL: defaultCurrentTTL,
		logger:     logger.Get().Named("oracle"),
		history:    make(map[string]Quote),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Current returns today's price. A fresh cached quote is served without a
// call. On failure the last known price is reused, marked stale and
// estimated, and with none the current month's estimate is returned.
func (o *Oracle) Current(ctx context.Context) (Quote, error) {
	now := o.clock.Now()
	o.mu.Lock()
	if o.current != nil && now.Sub(o.currentAt) < o.currentTTL {
		q := *o.current
		o.mu.Unlock()
		metrics.RecordOracleQuote("current", "cache")
		return q, nil
	}
	o.mu.Unlock()

	price, err := o.fetchCurrent(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Quote{}, ctx.Err()
		}
		o.logger.Warn(ctx, "current price unavailable", logger.Error(err))
		metrics.RecordErrorByComponent("oracle", "current")

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.current != nil {
			metrics.RecordOracleQuote("current", SourceStale)
			return Quote{Price: o.current.Price, Estimated: true, Source: SourceStale}, nil
		}
		metrics.RecordOracleQuote("current", SourceEstimate)
		return Quote{Price: Estimate(now), Estimated: true, Source: SourceEstimate}, nil
	}

	q := Quote{Price: price, Source: SourceUpstream}
	o.mu.Lock()
	o.current = &q
	o.currentAt = now
	o.mu.Unlock()
	metrics.RecordOracleQuote("current", SourceUpstream)
	return q, nil
}

// Historical returns the price on day (UTC). Today or later is answered by
// Current. Resolved past days are cached for good; estimates never are.
func (o *Oracle) Historical(ctx context.Context, day time.Time) (Quote, error) {
	d := truncateDay(day)
	if !d.Before(truncateDay(o.clock.Now())) {
		return o.Current(ctx)
	}
	key := d.Format(dayLayout)

	o.mu.Lock()
	q, ok := o.history[key]
	o.mu.Unlock()
	if ok {
		metrics.RecordOracleQuote("historical", "cache")
		return q, nil
	}

	if o.store != nil {
		price, found, err := o.store.Get(ctx, key)
		switch {
		case err != nil:
			o.logger.Warn(ctx, "price store lookup failed", logger.String("day", key), logger.Error(err))
		case found:
			q := Quote{Price: price, Source: SourceStore}
			o.remember(key, q)
			metrics.RecordOracleQuote("historical", SourceStore)
			return q, nil
		}
	}

	price, err := o.fetchHistorical(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			return Quote{}, ctx.Err()
		}
		o.logger.Warn(ctx, "historical price unavailable, using estimate",
			logger.String("day", key), logger.Error(err))
		metrics.RecordErrorByComponent("oracle", "historical")
		metrics.RecordOracleQuote("historical", SourceEstimate)
		return Quote{Price: Estimate(d), Estimated: true, Source: SourceEstimate}, nil
	}

	q = Quote{Price: price, Source: SourceUpstream}
	o.remember(key, q)
	if o.store != nil {
		if err := o.store.Put(ctx, key, price); err != nil {
			o.logger.Warn(ctx, "failed to persist price", logger.String("day", key), logger.Error(err))
		}
	}
	metrics.RecordOracleQuote("historical", SourceUpstream)
	return q, nil
}

func (o *Oracle) remember(key string, q Quote) {
	o.mu.Lock()
	o.history[key] = q
	o.mu.Unlock()
}

func (o *Oracle) fetchCurrent(ctx context.Context) (decimal.Decimal, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return o.source.CurrentPrice(ctx)
}

func (o *Oracle) fetchHistorical(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return o.source.HistoricalPrice(ctx, day)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
