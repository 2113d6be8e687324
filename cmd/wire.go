package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"

	"github.com/okian/appraisal/internal/adapters/cache"
	"github.com/okian/appraisal/internal/adapters/http/api"
	"github.com/okian/appraisal/internal/adapters/http/swagger"
	"github.com/okian/appraisal/internal/adapters/mq/events"
	"github.com/okian/appraisal/internal/adapters/pricestore"
	"github.com/okian/appraisal/internal/adapters/provider"
	"github.com/okian/appraisal/internal/adapters/repository"
	service "github.com/okian/appraisal/internal/app"
	"github.com/okian/appraisal/internal/config"
	cronrunner "github.com/okian/appraisal/internal/cron"
	"github.com/okian/appraisal/internal/domain/classifier"
	"github.com/okian/appraisal/internal/domain/collection"
	"github.com/okian/appraisal/internal/domain/oracle"
	"github.com/okian/appraisal/pkg/logger"
	"github.com/okian/appraisal/pkg/ratelimit"
)

// application is the wired process: the service, its HTTP handler, the
// cleanup schedule and everything that must be closed on shutdown.
type application struct {
	svc     *service.Service
	handler http.Handler
	cron    *cronrunner.Runner
	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires every component from cfg. On error, whatever was opened is
// closed before returning.
func build(ctx context.Context, cfg *config.Config) (_ *application, err error) {
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}
	a := &application{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		c := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		rdb = c
		a.closers = append(a.closers, c.Close)
		return c, nil
	}

	var store repository.Store
	switch cfg.Store {
	case "redis":
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		store = repository.NewRedisStore(c)
	case "postgres":
		pg, err := repository.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		store = pg
	default:
		mem := repository.NewMemoryStore(ctx, repository.WithStaleAfter(cfg.StaleAfter))
		a.closers = append(a.closers, mem.Close)
		store = mem
	}

	provOpts := []provider.Option{
		provider.WithTimeout(cfg.ProviderTimeout),
		provider.WithMaxRetries(cfg.ProviderMaxRetries),
		provider.WithAPIKey(cfg.APIKey),
	}
	assets := provider.NewAssetClient(cfg.DASURL, provOpts...)
	market := provider.NewMarketClient(cfg.MarketURL, provOpts...)
	feed := provider.NewPriceClient(cfg.PriceURL, provOpts...)

	collOpts := []collection.Option{
		collection.WithTTL(cfg.CollectionTTL),
		collection.WithLimiter(ratelimit.Instrumented("market", ratelimit.MinInterval(cfg.MarketMinInterval))),
	}
	if cfg.RedisAddr != "" {
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		collOpts = append(collOpts, collection.WithStore(cache.NewRedisFloorStore(c)))
	}

	var svcOpts []service.Option
	oracleOpts := []oracle.Option{
		oracle.WithCurrentTTL(cfg.PriceCurrentTTL),
		oracle.WithLimiter(ratelimit.Instrumented("price", ratelimit.MinInterval(cfg.PriceMinInterval))),
	}
	if cfg.PriceStorePath != "" {
		prices, err := pricestore.Open(ctx, cfg.PriceStorePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, prices.Close)
		oracleOpts = append(oracleOpts, oracle.WithHistoryStore(prices))
		svcOpts = append(svcOpts, service.WithStatsSource("historicalPrices", func() int {
			n, _ := prices.Len(ctx)
			return n
		}))
	}

	var publisher events.Publisher = events.Nop{}
	if brokers := splitList(cfg.KafkaBrokers); len(brokers) > 0 {
		kp := events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		a.closers = append(a.closers, kp.Close)
		publisher = kp
	}

	cls := classifier.New(
		classifier.WithMinSalePrice(cfg.MinSaleLamports),
		classifier.WithSignificantOutflow(cfg.SignificantOutflowLamports),
		classifier.WithLargeOutflow(cfg.LargeOutflowLamports),
		classifier.WithUnusualOutflow(cfg.UnusualOutflowLamports),
	)
	sales := classifier.NewFinder(assets, cls,
		classifier.WithLimiter(ratelimit.Instrumented("history", ratelimit.MinInterval(cfg.HistoryMinInterval))))
	proc := service.NewProcessor(service.Components{
		Store:       store,
		Metadata:    assets,
		Collections: collection.New(market, market, collOpts...),
		Sales:       sales,
		Prices:      oracle.New(feed, oracleOpts...),
	}, profile,
		service.WithBudget(cfg.InvocationBudget, cfg.BudgetReserve),
		service.WithRetention(cfg.ReportRetention),
		service.WithStaleAfter(cfg.StaleAfter),
		service.WithPublisher(publisher),
	)
	a.svc = service.New(store, proc, assets, svcOpts...)

	a.cron = cronrunner.New(ctx)
	if _, err := a.cron.Add("cleanup", cfg.CleanupSchedule, cronrunner.Cleanup(store, cfg.ReportRetention, clock.New())); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(a.svc, a.svc).Register(ctx, mux)
	a.handler = mux

	logger.Get().Info(ctx, "components wired",
		logger.String("tier", profile.Name),
		logger.String("store", cfg.Store),
		logger.Bool("shared_collection_cache", cfg.RedisAddr != ""),
		logger.Bool("price_store", cfg.PriceStorePath != ""),
		logger.Bool("events", cfg.KafkaBrokers != ""),
	)
	return a, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
