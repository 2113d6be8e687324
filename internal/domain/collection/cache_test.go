package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/ratelimit"
)

func init() {
	_ = logger.Init()
}

type mockMarket struct {
	mu          sync.Mutex
	listings    []model.Listing
	stats       Stats
	listingErr  error
	floorErr    error
	listingHits int
	floorHits   int
}

func (m *mockMarket) FetchListings(context.Context, string) ([]model.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listingHits++
	return m.listings, m.listingErr
}

func (m *mockMarket) FetchFloor(context.Context, string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.floorHits++
	return m.stats, m.floorErr
}

func (m *mockMarket) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.floorHits, m.listingHits
}

type mapStore struct {
	mu      sync.Mutex
	entries map[string]model.CollectionFloorData
	puts    int
}

func (s *mapStore) Get(_ context.Context, id string) (model.CollectionFloorData, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.entries[id]
	return d, ok, nil
}

func (s *mapStore) Put(_ context.Context, d model.CollectionFloorData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[d.CollectionID] = d
	s.puts++
	return nil
}

func listing(price string, attrs ...model.Attribute) model.Listing {
	return model.Listing{Price: decimal.RequireFromString(price), Attributes: attrs}
}

func TestCacheResolve(t *testing.T) {
	Convey("Given a cache with a mock clock and a ten minute TTL", t, func() {
		ctx := context.Background()
		clk := clock.NewMock()
		market := &mockMarket{
			stats: Stats{Name: "Degods", Floor: decimal.RequireFromString("12.5")},
			listings: []model.Listing{
				listing("13", model.Attribute{TraitType: "Head", Value: "Crown"}),
				listing("20", model.Attribute{TraitType: "Head", Value: "Crown"}, model.Attribute{TraitType: "Eyes", Value: "Laser"}),
				listing("18", model.Attribute{TraitType: "Eyes", Value: "Laser"}),
			},
		}
		c := New(market, market, WithClock(clk), WithTTL(10*time.Minute))

		Convey("When the collection is resolved", func() {
			data, err := c.Resolve(ctx, "col-1", "hint")

			Convey("Then floor and trait minimums are computed", func() {
				So(err, ShouldBeNil)
				So(data.Name, ShouldEqual, "Degods")
				So(data.Floor.String(), ShouldEqual, "12.5")
				So(data.TraitFloors["Head:Crown"].String(), ShouldEqual, "13")
				So(data.TraitFloors["Eyes:Laser"].String(), ShouldEqual, "18")
				So(data.Degraded, ShouldBeFalse)
				So(data.ResolvedAt, ShouldEqual, clk.Now())
			})

			Convey("And a second resolve within the TTL makes no upstream call", func() {
				clk.Add(9 * time.Minute)
				_, err := c.Resolve(ctx, "col-1", "hint")
				So(err, ShouldBeNil)
				floors, listings := market.calls()
				So(floors, ShouldEqual, 1)
				So(listings, ShouldEqual, 1)
			})

			Convey("And a resolve after expiry fetches again", func() {
				clk.Add(10 * time.Minute)
				_, err := c.Resolve(ctx, "col-1", "hint")
				So(err, ShouldBeNil)
				floors, listings := market.calls()
				So(floors, ShouldEqual, 2)
				So(listings, ShouldEqual, 2)
			})
		})

		Convey("When many callers resolve the same collection at once", func() {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = c.Resolve(ctx, "col-1", "")
				}()
			}
			wg.Wait()

			Convey("Then the upstream is called once", func() {
				floors, listings := market.calls()
				So(floors, ShouldEqual, 1)
				So(listings, ShouldEqual, 1)
			})
		})

		Convey("When the collection has zero listings", func() {
			market.listings = nil
			data, err := c.Resolve(ctx, "col-empty", "")

			Convey("Then the trait map is empty but not nil", func() {
				So(err, ShouldBeNil)
				So(data.TraitFloors, ShouldNotBeNil)
				So(data.TraitFloors, ShouldBeEmpty)
				_, ok := data.TraitFloor("Head:Crown")
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestCacheDegraded(t *testing.T) {
	Convey("Given a cache whose listing source fails", t, func() {
		ctx := context.Background()
		clk := clock.NewMock()
		market := &mockMarket{
			stats:      Stats{Name: "Degods", Floor: decimal.RequireFromString("12.5")},
			listingErr: errors.New("503"),
		}
		c := New(market, market, WithClock(clk), WithTTL(time.Minute))

		Convey("When the collection is resolved", func() {
			data, err := c.Resolve(ctx, "col-1", "Hinted Name")

			Convey("Then a degraded empty entry is returned without error", func() {
				So(err, ShouldBeNil)
				So(data.Degraded, ShouldBeTrue)
				So(data.Floor.IsZero(), ShouldBeTrue)
				So(data.TraitFloors, ShouldBeEmpty)
				So(data.Name, ShouldEqual, "Hinted Name")
			})

			Convey("And it is not retried within the TTL", func() {
				clk.Add(30 * time.Second)
				again, err := c.Resolve(ctx, "col-1", "")
				So(err, ShouldBeNil)
				So(again.Degraded, ShouldBeTrue)
				floors, listings := market.calls()
				So(floors, ShouldEqual, 1)
				So(listings, ShouldEqual, 1)
			})
		})

		Convey("When the floor source fails instead", func() {
			market.listingErr = nil
			market.floorErr = errors.New("timeout")
			data, err := c.Resolve(ctx, "col-2", "")

			Convey("Then listings are not fetched and the entry is degraded", func() {
				So(err, ShouldBeNil)
				So(data.Degraded, ShouldBeTrue)
				_, listings := market.calls()
				So(listings, ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled before the call", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			c = New(market, market, WithClock(clk),
				WithLimiter(ratelimit.Func(func(ctx context.Context) error { return ctx.Err() })))
			_, err := c.Resolve(cctx, "col-3", "")

			Convey("Then the error is returned and nothing is cached", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				_, ok := c.Lookup("col-3")
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestCacheLookupAndStore(t *testing.T) {
	Convey("Given a cache backed by a shared store", t, func() {
		ctx := context.Background()
		clk := clock.NewMock()
		market := &mockMarket{stats: Stats{Floor: decimal.NewFromInt(3)}}
		store := &mapStore{entries: map[string]model.CollectionFloorData{}}
		c := New(market, market, WithClock(clk), WithTTL(time.Minute), WithStore(store))

		Convey("When nothing was resolved yet", func() {
			_, ok := c.Lookup("col-1")

			Convey("Then lookup misses without calling out", func() {
				So(ok, ShouldBeFalse)
				floors, _ := market.calls()
				So(floors, ShouldEqual, 0)
			})
		})

		Convey("When a resolve succeeds", func() {
			_, err := c.Resolve(ctx, "col-1", "")
			So(err, ShouldBeNil)

			Convey("Then the entry is shared", func() {
				So(store.puts, ShouldEqual, 1)
				So(c.Len(), ShouldEqual, 1)
			})
		})

		Convey("When another process already shared a fresh entry", func() {
			store.entries["col-9"] = model.CollectionFloorData{
				CollectionID: "col-9",
				Floor:        decimal.NewFromInt(7),
				TraitFloors:  map[string]decimal.Decimal{},
				ResolvedAt:   clk.Now(),
				TTL:          time.Minute,
			}
			data, err := c.Resolve(ctx, "col-9", "")

			Convey("Then it is used without an upstream call", func() {
				So(err, ShouldBeNil)
				So(data.Floor.String(), ShouldEqual, "7")
				floors, _ := market.calls()
				So(floors, ShouldEqual, 0)
				_, ok := c.Lookup("col-9")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When the shared entry is stale", func() {
			store.entries["col-9"] = model.CollectionFloorData{
				CollectionID: "col-9",
				ResolvedAt:   clk.Now().Add(-2 * time.Minute),
				TTL:          time.Minute,
			}
			_, err := c.Resolve(ctx, "col-9", "")

			Convey("Then the upstream is consulted", func() {
				So(err, ShouldBeNil)
				floors, _ := market.calls()
				So(floors, ShouldEqual, 1)
			})
		})
	})
}

func TestTraitFloors(t *testing.T) {
	Convey("Given listings with shared and priceless traits", t, func() {
		out := TraitFloors([]model.Listing{
			listing("5", model.Attribute{TraitType: "Bg", Value: "Red"}),
			listing("0", model.Attribute{TraitType: "Bg", Value: "Red"}),
			listing("4", model.Attribute{TraitType: "Bg", Value: "Red"}),
		})

		Convey("Then the cheapest priced listing wins", func() {
			So(out, ShouldHaveLength, 1)
			So(out["Bg:Red"].String(), ShouldEqual, "4")
		})
	})
}
