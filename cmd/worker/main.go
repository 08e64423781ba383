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

	"github.com/ignite/marketer-attribution/internal/app"
	"github.com/ignite/marketer-attribution/internal/cache"
	"github.com/ignite/marketer-attribution/internal/config"
	"github.com/ignite/marketer-attribution/internal/metrics"
	"github.com/ignite/marketer-attribution/internal/pkg/distlock"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
	"github.com/ignite/marketer-attribution/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "address for the /metrics listener, empty to disable")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "path", *configPath, "error", err)
	}
	app.SetupLogging(cfg.Log, "attribution-worker")
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "error", err)
	}
	if cfg.Storage.DatabaseURL == "" {
		logger.Fatal("snapshot worker requires storage.database_url")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, db, err := app.OpenSnapshotStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to open snapshot store", "error", err)
	}
	defer db.Close()

	trafficClient, err := app.NewTrafficClient(ctx, cfg.Analytics)
	if err != nil {
		logger.Fatal("failed to create analytics client", "error", err)
	}
	shopClient, err := app.NewShopifyClient(cfg.Shopify)
	if err != nil {
		logger.Fatal("failed to create shopify client", "error", err)
	}

	// Redis when reachable, a Postgres advisory lock otherwise.
	redisClient := app.ConnectRedis(ctx, cfg.Cache.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}
	lock := distlock.NewLock(redisClient, db, "snapshot-worker", cfg.Polling.LockTTL())

	// A fresh snapshot makes the shared realtime report stale.
	var reports worker.ReportCache
	if redisClient != nil {
		reports = cache.NewMemo(cache.NewRedisStore(redisClient, app.CachePrefix), nil)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	w, err := worker.NewSnapshotWorker(worker.SnapshotConfig{
		Traffic:  trafficClient,
		Orders:   shopClient,
		Store:    store,
		Lock:     lock,
		Interval: cfg.Polling.Interval(),
		Window:   cfg.Polling.Window(),
		Reports:  reports,
		Recorder: m,
	})
	if err != nil {
		logger.Fatal("failed to create snapshot worker", "error", err)
	}
	w.Start(ctx)

	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	logger.Info("worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	w.Stop()
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown error", "error", err)
		}
	}
	logger.Info("worker stopped")
}
