package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/appraisal/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type mockPrices struct {
	mu             sync.Mutex
	current        decimal.Decimal
	historical     decimal.Decimal
	err            error
	currentCalls   int
	historicalDays []time.Time
}

func (m *mockPrices) CurrentPrice(context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentCalls++
	return m.current, m.err
}

func (m *mockPrices) HistoricalPrice(_ context.Context, day time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historicalDays = append(m.historicalDays, day)
	return m.historical, m.err
}

type memStore struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func (s *memStore) Get(_ context.Context, day string) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[day]
	return p, ok, nil
}

func (s *memStore) Put(_ context.Context, day string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[day] = price
	return nil
}

func TestOracleCurrent(t *testing.T) {
	Convey("Given an oracle with a one minute current TTL", t, func() {
		ctx := context.Background()
		clk := clock.NewMock()
		clk.Set(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
		src := &mockPrices{current: decimal.NewFromInt(150)}
		o := New(src, WithClock(clk), WithCurrentTTL(time.Minute))

		Convey("When current is asked twice within the TTL", func() {
			q1, err1 := o.Current(ctx)
			clk.Add(30 * time.Second)
			q2, err2 := o.Current(ctx)

			Convey("Then the upstream is called once", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(q1.Price.String(), ShouldEqual, "150")
				So(q2.Price.String(), ShouldEqual, "150")
				So(q1.Estimated, ShouldBeFalse)
				So(src.currentCalls, ShouldEqual, 1)
			})
		})

		Convey("When the TTL passes", func() {
			_, _ = o.Current(ctx)
			clk.Add(time.Minute)
			_, _ = o.Current(ctx)

			Convey("Then the upstream is called again", func() {
				So(src.currentCalls, ShouldEqual, 2)
			})
		})

		Convey("When the upstream fails after a success", func() {
			_, _ = o.Current(ctx)
			clk.Add(2 * time.Minute)
			src.err = errors.New("down")
			q, err := o.Current(ctx)

			Convey("Then the last known price is reused and marked stale", func() {
				So(err, ShouldBeNil)
				So(q.Price.String(), ShouldEqual, "150")
				So(q.Estimated, ShouldBeTrue)
				So(q.Source, ShouldEqual, SourceStale)
			})

			Convey("And a recovered upstream serves a fresh quote again", func() {
				src.err = nil
				src.current = decimal.NewFromInt(160)
				fresh, err := o.Current(ctx)
				So(err, ShouldBeNil)
				So(fresh.Price.String(), ShouldEqual, "160")
				So(fresh.Estimated, ShouldBeFalse)
				So(fresh.Source, ShouldEqual, SourceUpstream)
			})
		})

		Convey("When the upstream fails with nothing cached", func() {
			src.err = errors.New("down")
			q, err := o.Current(ctx)

			Convey("Then the current month's estimate is returned", func() {
				So(err, ShouldBeNil)
				So(q.Estimated, ShouldBeTrue)
				So(q.Source, ShouldEqual, SourceEstimate)
				So(q.Price.String(), ShouldEqual, "180")
			})
		})
	})
}

func TestOracleHistorical(t *testing.T) {
	Convey("Given an oracle with a history store", t, func() {
		ctx := context.Background()
		clk := clock.NewMock()
		clk.Set(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
		src := &mockPrices{current: decimal.NewFromInt(150), historical: decimal.NewFromInt(40)}
		store := &memStore{prices: map[string]decimal.Decimal{}}
		o := New(src, WithClock(clk), WithHistoryStore(store))
		past := time.Date(2022, time.June, 1, 18, 30, 0, 0, time.UTC)

		Convey("When a past day is resolved twice", func() {
			q1, _ := o.Historical(ctx, past)
			q2, _ := o.Historical(ctx, past.Add(2*time.Hour))

			Convey("Then it is fetched once and persisted by UTC day", func() {
				So(q1.Price.String(), ShouldEqual, "40")
				So(q2.Price.String(), ShouldEqual, "40")
				So(src.historicalDays, ShouldHaveLength, 1)
				So(src.historicalDays[0], ShouldEqual, time.Date(2022, time.June, 1, 0, 0, 0, 0, time.UTC))
				So(store.prices, ShouldContainKey, "2022-06-01")
			})
		})

		Convey("When the day is today", func() {
			q, err := o.Historical(ctx, clk.Now().Add(-time.Hour))

			Convey("Then the current price answers", func() {
				So(err, ShouldBeNil)
				So(q.Price.String(), ShouldEqual, "150")
				So(src.historicalDays, ShouldBeEmpty)
				So(src.currentCalls, ShouldEqual, 1)
			})
		})

		Convey("When the day is in the future", func() {
			_, _ = o.Historical(ctx, clk.Now().Add(72*time.Hour))
			So(src.historicalDays, ShouldBeEmpty)
		})

		Convey("When the store already knows the day", func() {
			store.prices["2022-06-01"] = decimal.NewFromInt(33)
			q, err := o.Historical(ctx, past)

			Convey("Then no upstream call is made", func() {
				So(err, ShouldBeNil)
				So(q.Price.String(), ShouldEqual, "33")
				So(q.Source, ShouldEqual, SourceStore)
				So(src.historicalDays, ShouldBeEmpty)
			})
		})

		Convey("When the upstream is down for a past day", func() {
			src.err = errors.New("down")
			q, err := o.Historical(ctx, past)

			Convey("Then the table estimate is returned, never the current price", func() {
				So(err, ShouldBeNil)
				So(q.Estimated, ShouldBeTrue)
				So(q.Price.String(), ShouldEqual, "35")
				So(src.currentCalls, ShouldEqual, 0)
			})

			Convey("And the estimate is not cached", func() {
				So(store.prices, ShouldBeEmpty)
				src.err = nil
				again, _ := o.Historical(ctx, past)
				So(again.Estimated, ShouldBeFalse)
				So(again.Price.String(), ShouldEqual, "40")
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			src.err = context.Canceled
			_, err := o.Historical(cctx, past)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestEstimate(t *testing.T) {
	Convey("Given the estimate table", t, func() {
		cases := map[string]string{
			"2019-06-01": "1.5",
			"2020-07-15": "1.5",
			"2021-02-01": "10",
			"2021-08-20": "75",
			"2021-11-01": "180",
			"2022-03-01": "100",
			"2022-12-31": "14",
			"2023-05-05": "20",
			"2023-12-01": "60",
			"2024-02-29": "100",
			"2024-06-01": "160",
			"2025-09-09": "180",
			"2027-01-01": "180",
		}
		for day, want := range cases {
			d, err := time.Parse("2006-01-02", day)
			So(err, ShouldBeNil)
			So(Estimate(d).String(), ShouldEqual, want)
		}
	})
}
