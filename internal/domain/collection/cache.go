package collection

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/metrics"
	"github.com/okian/appraisal/pkg/ratelimit"
)

const defaultTTL = 10 * time.Minute

// Stats is the market summary of a collection.
type Stats struct {
	Name  string
	Floor decimal.Decimal
}

// ListingSource returns every active listing of a collection.
type ListingSource interface {
	FetchListings(ctx context.Context, collectionID string) ([]model.Listing, error)
}

// FloorSource returns the floor price and display name of a collection.
type FloorSource interface {
	FetchFloor(ctx context.Context, collectionID string) (Stats, error)
}

// Store is an optional shared tier. Entries are written whole and never
// updated in place.
type Store interface {
	Get(ctx context.Context, collectionID string) (model.CollectionFloorData, bool, error)
	Put(ctx context.Context, data model.CollectionFloorData) error
}

// Cache resolves collection floor data with a TTL.
type Cache struct {
	listings ListingSource
	floors   FloorSource
	limiter  ratelimit.Limiter
	clock    clock.Clock
	ttl      time.Duration
	store    Store
	logger   logger.Logger

	mu      sync.RWMutex
	entries map[string]model.CollectionFloorData
	group   singleflight.Group
}

// New creates a Cache over the two market sources.
func New(listings ListingSource, floors FloorSource, opts ...Option) *Cache {
	c := &Cache{
		listings: listings,
		floors:   floors,
		limiter:  ratelimit.Unlimited(),
		clock:    clock.New(),
		ttl:      defaultTTL,
		logger:   logger.Get().Named("collection-cache"),
		entries:  make(map[string]model.CollectionFloorData),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the floor data of a collection, fetching it at most once
// per TTL. Provider failures produce a degraded entry that is cached like a
// healthy one; only context cancellation is returned as an error.
func (c *Cache) Resolve(ctx context.Context, collectionID, nameHint string) (model.CollectionFloorData, error) {
	if data, ok := c.Lookup(collectionID); ok {
		metrics.RecordCollectionCache("hit")
		return data, nil
	}

	v, err, _ := c.group.Do(collectionID, func() (any, error) {
		if data, ok := c.Lookup(collectionID); ok {
			metrics.RecordCollectionCache("hit")
			return data, nil
		}
		if data, ok := c.fromStore(ctx, collectionID); ok {
			metrics.RecordCollectionCache("store_hit")
			c.remember(data)
			return data, nil
		}

		metrics.RecordCollectionCache("miss")
		data, err := c.fetch(ctx, collectionID, nameHint)
		if err != nil {
			return model.CollectionFloorData{}, err
		}
		c.remember(data)
		if c.store != nil {
			if perr := c.store.Put(ctx, data); perr != nil {
				c.logger.Warn(ctx, "failed to share collection entry",
					logger.String("collection_id", collectionID), logger.Error(perr))
			}
		}
		return data, nil
	})
	if err != nil {
		return model.CollectionFloorData{}, err
	}
	return v.(model.CollectionFloorData), nil
}

// Lookup returns a fresh in-memory entry without any external call.
func (c *Cache) Lookup(collectionID string) (model.CollectionFloorData, bool) {
	c.mu.RLock()
	data, ok := c.entries[collectionID]
	c.mu.RUnlock()
	if !ok || data.Expired(c.clock.Now()) {
		return model.CollectionFloorData{}, false
	}
	return data, true
}

// Len returns the number of entries held in memory, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) remember(data model.CollectionFloorData) {
	c.mu.Lock()
	c.entries[data.CollectionID] = data
	c.mu.Unlock()
}

func (c *Cache) fromStore(ctx context.Context, collectionID string) (model.CollectionFloorData, bool) {
	if c.store == nil {
		return model.CollectionFloorData{}, false
	}
	data, ok, err := c.store.Get(ctx, collectionID)
	if err != nil {
		c.logger.Warn(ctx, "shared collection lookup failed",
			logger.String("collection_id", collectionID), logger.Error(err))
		return model.CollectionFloorData{}, false
	}
	if !ok || data.Expired(c.clock.Now()) {
		return model.CollectionFloorData{}, false
	}
	return data, true
}

func (c *Cache) fetch(ctx context.Context, collectionID, nameHint string) (model.CollectionFloorData, error) {
	data := model.CollectionFloorData{
		CollectionID: collectionID,
		Name:         nameHint,
		Floor:        decimal.Zero,
		TraitFloors:  map[string]decimal.Decimal{},
		TTL:          c.ttl,
	}

	stats, err := c.floorStats(ctx, collectionID)
	if err == nil {
		var listings []model.Listing
		listings, err = c.activeListings(ctx, collectionID)
		if err == nil {
			data.Floor = stats.Floor
			if stats.Name != "" {
				data.Name = stats.Name
			}
			data.TraitFloors = TraitFloors(listings)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.CollectionFloorData{}, ctx.Err()
		}
		metrics.RecordCollectionCache("failure")
		metrics.RecordErrorByComponent("collection-cache", "provider")
		c.logger.Warn(ctx, "collection resolution degraded",
			logger.String("collection_id", collectionID), logger.Error(err))
		data.Degraded = true
	}

	data.ResolvedAt = c.clock.Now()
	return data, nil
}

func (c *Cache) floorStats(ctx context.Context, collectionID string) (Stats, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Stats{}, err
	}
	return c.floors.FetchFloor(ctx, collectionID)
}

func (c *Cache) activeListings(ctx context.Context, collectionID string) ([]model.Listing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.listings.FetchListings(ctx, collectionID)
}

// TraitFloors keeps the cheapest listing price per trait key.
func TraitFloors(listings []model.Listing) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, l := range listings {
		if !l.Price.IsPositive() {
			continue
		}
		for _, attr := range l.Attributes {
			key := attr.Key()
			if cur, ok := out[key]; !ok || l.Price.LessThan(cur) {
				out[key] = l.Price
			}
		}
	}
	return out
}
