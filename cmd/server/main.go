package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/marketer-attribution/internal/api"
	"github.com/ignite/marketer-attribution/internal/app"
	"github.com/ignite/marketer-attribution/internal/cache"
	"github.com/ignite/marketer-attribution/internal/config"
	"github.com/ignite/marketer-attribution/internal/metrics"
	"github.com/ignite/marketer-attribution/internal/notify"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
	"github.com/ignite/marketer-attribution/internal/report"
	"github.com/ignite/marketer-attribution/internal/shopify"
	"github.com/ignite/marketer-attribution/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "path", *configPath, "error", err)
	}
	app.SetupLogging(cfg.Log, "attribution-server")
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, resolver, err := app.LoadResolver(cfg.Mapping.Path)
	if err != nil {
		logger.Fatal("failed to load marketer mapping", "error", err)
	}
	bucketer, err := report.NewBucketer(cfg.Reporting.Timezone)
	if err != nil {
		logger.Fatal("invalid reporting timezone", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	redisClient := app.ConnectRedis(ctx, cfg.Cache.RedisURL)
	var store cache.Store = cache.NewMemoryStore()
	if redisClient != nil {
		store = cache.NewRedisStore(redisClient, app.CachePrefix)
	}
	memo := cache.NewMemo(store, m)

	trafficClient, err := app.NewTrafficClient(ctx, cfg.Analytics)
	if err != nil {
		logger.Fatal("failed to create analytics client", "error", err)
	}
	shopClient, err := app.NewShopifyClient(cfg.Shopify)
	if err != nil {
		logger.Fatal("failed to create shopify client", "error", err)
	}

	snapshots, db, err := app.OpenSnapshotStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to open snapshot store", "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	// Historical reports always query the APIs. Realtime reads either the
	// APIs or the worker's latest snapshot.
	var (
		realtimeTraffic report.RealtimeTrafficSource = trafficClient
		recentOrders    notify.OrderSource           = shopClient
		realtimeOrders  shopify.OrderLister          = shopClient
	)
	if cfg.Reporting.SnapshotMode() {
		feed := snapshot.NewFeed(snapshots, cfg.Reporting.SnapshotMaxAge())
		realtimeTraffic, recentOrders, realtimeOrders = feed, feed, feed
		logger.Info("realtime reports served from snapshots", "max_age", cfg.Reporting.SnapshotMaxAge().String())
	}

	svc, err := report.NewService(report.Config{
		Resolver:            resolver,
		Bucketer:            bucketer,
		RealtimeTraffic:     realtimeTraffic,
		RealtimePurchases:   shopify.NewPurchaseSource(realtimeOrders),
		HistoricalTraffic:   trafficClient,
		HistoricalPurchases: shopify.NewPurchaseSource(shopClient),
		Cache:               memo,
		RealtimeTTL:         cfg.Cache.RealtimeTTL(),
		HistoricalTTL:       cfg.Cache.HistoricalTTL(),
		Window:              cfg.Reporting.Window(),
		Recorder:            m,
	})
	if err != nil {
		logger.Fatal("failed to create report service", "error", err)
	}

	tracker, err := notify.NewTracker(notify.Config{
		Resolver: resolver,
		Seen:     seenStore(redisClient, cfg.Notify.SeenTTL()),
		Orders:   recentOrders,
		Window:   cfg.Reporting.Window(),
		Template: cfg.Notify.Template,
		Recorder: m,
	})
	if err != nil {
		logger.Fatal("failed to create sale tracker", "error", err)
	}

	handlers := api.NewHandlers(svc, bucketer, table)
	handlers.SetSalesTracker(tracker)
	health := api.NewHealthChecker(db, redisClient, healthSnapshots(cfg, snapshots), cfg.Reporting.SnapshotMaxAge())
	router := api.SetupRoutes(handlers, health, metrics.Handler(reg), cfg.Server.CORSAllowedOrigins)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", server.Addr, "realtime_mode", cfg.Reporting.RealtimeMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", "error", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	closeRedis(redisClient)
	logger.Info("server stopped")
}

func seenStore(client *redis.Client, ttl time.Duration) notify.SeenStore {
	if client != nil {
		return notify.NewRedisSeenStore(client, ttl)
	}
	return notify.NewMemorySeenStore(ttl)
}

// healthSnapshots only reports snapshot freshness when reports depend on it.
func healthSnapshots(cfg *config.Config, store snapshot.Store) snapshot.Store {
	if !cfg.Reporting.SnapshotMode() {
		return nil
	}
	return store
}

func closeRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.Warn("redis close", "error", err)
	}
}
