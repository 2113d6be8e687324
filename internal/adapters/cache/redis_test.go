package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/appraisal/internal/domain/model"
)

func newStore(t *testing.T) (*RedisFloorStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFloorStore(client, WithKeyPrefix("test:")), mr
}

func TestRedisFloorStoreRoundTrip(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	in := model.CollectionFloorData{
		CollectionID: "col-1",
		Name:         "Degods",
		Floor:        decimal.RequireFromString("12.345678901"),
		TraitFloors: map[string]decimal.Decimal{
			"Head:Crown": decimal.RequireFromString("14.2"),
		},
		ResolvedAt: time.Now().UTC().Truncate(time.Millisecond),
		TTL:        10 * time.Minute,
	}
	require.NoError(t, s.Put(ctx, in))
	assert.True(t, mr.Exists("test:col-1"))
	assert.Greater(t, mr.TTL("test:col-1"), time.Duration(0))

	out, ok, err := s.Get(ctx, "col-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Degods", out.Name)
	assert.True(t, in.Floor.Equal(out.Floor))
	assert.True(t, in.TraitFloors["Head:Crown"].Equal(out.TraitFloors["Head:Crown"]))
	assert.True(t, in.ResolvedAt.Equal(out.ResolvedAt))
	assert.Equal(t, in.TTL, out.TTL)
	assert.False(t, out.Degraded)
}

func TestRedisFloorStoreMissAndExpiry(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, model.CollectionFloorData{
		CollectionID: "col-2",
		Floor:        decimal.Zero,
		ResolvedAt:   time.Now(),
		TTL:          time.Minute,
		Degraded:     true,
	}))
	mr.FastForward(2 * time.Minute)

	_, ok, err = s.Get(ctx, "col-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisFloorStoreSkipsExpiredEntries(t *testing.T) {
	s, mr := newStore(t)

	require.NoError(t, s.Put(context.Background(), model.CollectionFloorData{
		CollectionID: "old",
		ResolvedAt:   time.Now().Add(-time.Hour),
		TTL:          time.Minute,
	}))
	assert.False(t, mr.Exists("test:old"))
}

func TestRedisFloorStoreCorruptEntry(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, mr.Set("test:bad", "not msgpack"))

	_, _, err := s.Get(context.Background(), "bad")
	assert.Error(t, err)
}
