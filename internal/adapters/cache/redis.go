// Package cache shares collection floor entries between processes through Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/appraisal/internal/domain/model"
)

const defaultKeyPrefix = "appraisal:collection:"

// RedisFloorStore implements collection.Store on a Redis string per collection.
// Entries expire with their own TTL.
type RedisFloorStore struct {
	client *redis.Client
	prefix string
}

// Option configures a RedisFloorStore.
type Option func(*RedisFloorStore)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisFloorStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisFloorStore wraps an existing client.
func NewRedisFloorStore(client *redis.Client, opts ...Option) *RedisFloorStore {
	s := &RedisFloorStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// entry is the wire form. Decimals travel as strings so no precision is lost.
type entry struct {
	CollectionID string            `msgpack:"id"`
	Name         string            `msgpack:"name"`
	Floor        string            `msgpack:"floor"`
	TraitFloors  map[string]string `msgpack:"traits"`
	ResolvedAt   int64             `msgpack:"resolved_at"`
	TTL          int64             `msgpack:"ttl"`
	Degraded     bool              `msgpack:"degraded"`
}

// Get returns the shared entry for a collection, if present.
func (s *RedisFloorStore) Get(ctx context.Context, collectionID string) (model.CollectionFloorData, bool, error) {
	raw, err := s.client.Get(ctx, s.key(collectionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CollectionFloorData{}, false, nil
	}
	if err != nil {
		return model.CollectionFloorData{}, false, fmt.Errorf("get collection %s: %w", collectionID, err)
	}
	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return model.CollectionFloorData{}, false, fmt.Errorf("decode collection %s: %w", collectionID, err)
	}
	data, err := e.toModel()
	if err != nil {
		return model.CollectionFloorData{}, false, fmt.Errorf("decode collection %s: %w", collectionID, err)
	}
	return data, true, nil
}

// Put replaces the shared entry. The key expires when the entry does.
func (s *RedisFloorStore) Put(ctx context.Context, data model.CollectionFloorData) error {
	raw, err := msgpack.Marshal(fromModel(data))
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", data.CollectionID, err)
	}
	ttl := time.Until(data.ResolvedAt.Add(data.TTL))
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(data.CollectionID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("put collection %s: %w", data.CollectionID, err)
	}
	return nil
}

func (s *RedisFloorStore) key(collectionID string) string {
	return s.prefix + collectionID
}

func fromModel(d model.CollectionFloorData) entry {
	traits := make(map[string]string, len(d.TraitFloors))
	for k, v := range d.TraitFloors {
		traits[k] = v.String()
	}
	return entry{
		CollectionID: d.CollectionID,
		Name:         d.Name,
		Floor:        d.Floor.String(),
		TraitFloors:  traits,
		ResolvedAt:   d.ResolvedAt.UnixNano(),
		TTL:          int64(d.TTL),
		Degraded:     d.Degraded,
	}
}

func (e entry) toModel() (model.CollectionFloorData, error) {
	floor, err := decimal.NewFromString(e.Floor)
	if err != nil {
		return model.CollectionFloorData{}, err
	}
	traits := make(map[string]decimal.Decimal, len(e.TraitFloors))
	for k, v := range e.TraitFloors {
		p, err := decimal.NewFromString(v)
		if err != nil {
			return model.CollectionFloorData{}, fmt.Errorf("trait %s: %w", k, err)
		}
		traits[k] = p
	}
	return model.CollectionFloorData{
		CollectionID: e.CollectionID,
		Name:         e.Name,
		Floor:        floor,
		TraitFloors:  traits,
		ResolvedAt:   time.Unix(0, e.ResolvedAt).UTC(),
		TTL:          time.Duration(e.TTL),
		Degraded:     e.Degraded,
	}, nil
}
