package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/appraisal/internal/adapters/cache"
	"github.com/okian/appraisal/internal/adapters/pricestore"
	"github.com/okian/appraisal/internal/adapters/provider"
	"github.com/okian/appraisal/internal/adapters/repository"
	service "github.com/okian/appraisal/internal/app"
	"github.com/okian/appraisal/internal/config"
	"github.com/okian/appraisal/internal/domain/classifier"
	"github.com/okian/appraisal/internal/domain/collection"
	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/internal/domain/oracle"
	"github.com/okian/appraisal/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// upstream fakes every provider on one server.
type upstream struct {
	mu    sync.Mutex
	hits  map[string]int
	owner []model.Asset
}

func (u *upstream) hit(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hits[path]++
}

func (u *upstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

func (u *upstream) handler() http.Handler {
	byID := make(map[string]model.Asset, len(u.owner))
	for _, a := range u.owner {
		byID[a.ID] = a
	}
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	sale := func(id string, at time.Time, lamports int64) classifier.Transaction {
		return classifier.Transaction{
			Signature: "sig-" + id,
			Timestamp: at.Unix(),
			Type:      "NFT_SALE",
			Source:    "MAGIC_EDEN",
			Events: classifier.Events{NFT: &classifier.NFTEvent{
				Type: "NFT_SALE", Amount: lamports, Buyer: "buyer", Seller: "seller",
				NFTs: []classifier.NFTRef{{Mint: id}},
			}},
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /owners/{owner}/assets", func(w http.ResponseWriter, r *http.Request) {
		u.hit("owner")
		write(w, map[string]any{"assets": u.owner})
	})
	mux.HandleFunc("POST /assets/batch", func(w http.ResponseWriter, r *http.Request) {
		u.hit("batch")
		var body struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		var out []model.Asset
		for _, id := range body.IDs {
			if a, ok := byID[id]; ok {
				out = append(out, a)
			}
		}
		write(w, map[string]any{"assets": out})
	})
	mux.HandleFunc("GET /assets/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		u.hit("history")
		switch r.PathValue("id") {
		case "ape-0":
			write(w, []classifier.Transaction{sale("ape-0", time.Date(2022, 6, 1, 10, 0, 0, 0, time.UTC), 5_000_000_000)})
		case "ape-1":
			write(w, []classifier.Transaction{sale("ape-1", time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC), 2_000_000_000)})
		default:
			write(w, []classifier.Transaction{})
		}
	})
	mux.HandleFunc("GET /collections/{id}/listings", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		u.hit("listings:" + id)
		var listings []model.Listing
		if id == "apes" {
			listings = []model.Listing{
				{AssetID: "x1", Price: decimal.NewFromInt(9), Attributes: []model.Attribute{{TraitType: "hat", Value: "crown"}}},
				{AssetID: "x2", Price: decimal.NewFromInt(2), Attributes: []model.Attribute{{TraitType: "hat", Value: "cap"}}},
			}
		}
		write(w, map[string]any{"listings": listings, "has_more": false})
	})
	mux.HandleFunc("GET /collections/{id}/stats", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		u.hit("stats:" + id)
		floor := "1"
		if id == "apes" {
			floor = "2"
		}
		write(w, map[string]any{"name": id, "floor_price": floor})
	})
	mux.HandleFunc("GET /current", func(w http.ResponseWriter, r *http.Request) {
		u.hit("current")
		write(w, map[string]any{"price": "150"})
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		u.hit("history-price")
		if r.URL.Query().Get("date") == "2022-06-01" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		write(w, map[string]any{"price": "20"})
	})
	return mux
}

func rowByID(rows []model.ValuationRow, id string) model.ValuationRow {
	for _, r := range rows {
		if r.AssetID == id {
			return r
		}
	}
	return model.ValuationRow{}
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given the full pipeline against fake providers", t, func() {
		ctx := context.Background()

		var owned []model.Asset
		for i := 0; i < 20; i++ {
			if i < 12 {
				owned = append(owned, model.Asset{ID: fmt.Sprintf("ape-%d", i), CollectionID: "apes", Attributes: []model.Attribute{
					{TraitType: "hat", Value: "crown"}, {TraitType: "eyes", Value: "laser"},
				}})
				continue
			}
			owned = append(owned, model.Asset{ID: fmt.Sprintf("cat-%d", i), CollectionID: "cats", Attributes: []model.Attribute{
				{TraitType: "hat", Value: "crown"},
			}})
		}
		up := &upstream{hits: make(map[string]int), owner: owned}
		srv := httptest.NewServer(up.handler())
		Reset(srv.Close)

		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		Reset(func() { _ = rdb.Close() })

		prices, err := pricestore.Open(ctx, ":memory:")
		So(err, ShouldBeNil)
		Reset(func() { _ = prices.Close() })

		fast := provider.WithBackoff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) })
		assets := provider.NewAssetClient(srv.URL, fast)
		market := provider.NewMarketClient(srv.URL, fast)
		feed := provider.NewPriceClient(srv.URL, fast, provider.WithMaxRetries(1))

		store := repository.NewRedisStore(rdb)
		profile, err := config.LookupTier(config.TierFree)
		So(err, ShouldBeNil)
		proc := service.NewProcessor(service.Components{
			Store:       store,
			Metadata:    assets,
			Collections: collection.New(market, market, collection.WithStore(cache.NewRedisFloorStore(rdb))),
			Sales:       classifier.NewFinder(assets, classifier.New()),
			Prices:      oracle.New(feed, oracle.WithHistoryStore(prices)),
		}, profile)
		svc := service.New(store, proc, assets)

		Convey("When a wallet report is created and advanced to the end", func() {
			sum, err := svc.CreateReport(ctx, "wallet1", nil)
			So(err, ShouldBeNil)
			So(sum.TotalCount, ShouldEqual, 20)

			calls := 0
			for calls < 5 {
				prog, err := svc.Advance(ctx, sum.ReportID)
				So(err, ShouldBeNil)
				calls++
				if prog.Done() {
					break
				}
			}
			report, err := svc.GetReport(ctx, sum.ReportID)
			So(err, ShouldBeNil)

			Convey("Then it completes in two invocations with a row per asset", func() {
				So(calls, ShouldEqual, 2)
				So(report.Status, ShouldEqual, string(model.StatusComplete))
				So(report.Rows, ShouldHaveLength, 20)
				for i, row := range report.Rows {
					So(row.AssetID, ShouldEqual, owned[i].ID)
					So(row.Failed(), ShouldBeFalse)
				}
			})

			Convey("Then a sale on a day without a price uses the estimate", func() {
				row := rowByID(report.Rows, "ape-0")
				So(row.LastSale, ShouldNotBeNil)
				So(row.LastSale.Native.Equal(decimal.NewFromInt(5)), ShouldBeTrue)
				So(row.LastSale.Reference.Equal(decimal.NewFromInt(175)), ShouldBeTrue)
				So(row.Estimated, ShouldBeTrue)
				So(row.FloorReference.Equal(decimal.NewFromInt(300)), ShouldBeTrue)
				So(row.TraitPremiumReference.Equal(decimal.NewFromInt(1350)), ShouldBeTrue)
				So(row.TraitsWithoutData, ShouldEqual, 1)
				So(row.PnLVsFloor.Equal(decimal.NewFromInt(125)), ShouldBeTrue)
			})

			Convey("Then a sale on a priced day is exact and persisted", func() {
				row := rowByID(report.Rows, "ape-1")
				So(row.Estimated, ShouldBeFalse)
				So(row.LastSale.Reference.Equal(decimal.NewFromInt(40)), ShouldBeTrue)
				n, err := prices.Len(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Then a collection without listings reports no trait data", func() {
				row := rowByID(report.Rows, owned[19].ID)
				So(row.CollectionID, ShouldEqual, "cats")
				So(row.TraitsWithoutData, ShouldEqual, 1)
				So(row.PnLVsFloor, ShouldBeNil)
				So(row.FloorReference.Equal(decimal.NewFromInt(150)), ShouldBeTrue)
			})

			Convey("Then each collection was fetched once and shared through redis", func() {
				So(up.count("listings:apes"), ShouldEqual, 1)
				So(up.count("stats:cats"), ShouldEqual, 1)
				So(mr.Exists("appraisal:collection:apes"), ShouldBeTrue)
				So(up.count("batch"), ShouldEqual, 2)
			})

			Convey("And a further advance changes nothing", func() {
				history := up.count("history")
				prog, err := svc.Advance(ctx, sum.ReportID)
				So(err, ShouldBeNil)
				So(prog.Status, ShouldEqual, string(model.StatusComplete))
				So(prog.ProcessedCount, ShouldEqual, 20)
				So(up.count("history"), ShouldEqual, history)
			})
		})
	})
}
