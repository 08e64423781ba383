// Package app builds the collaborators shared by the server and worker
// binaries from the loaded configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/marketer-attribution/internal/attribution"
	"github.com/ignite/marketer-attribution/internal/config"
	"github.com/ignite/marketer-attribution/internal/mapping"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
	"github.com/ignite/marketer-attribution/internal/shopify"
	"github.com/ignite/marketer-attribution/internal/snapshot"
	"github.com/ignite/marketer-attribution/internal/traffic"
)

// CachePrefix namespaces report cache keys shared by the server and worker.
const CachePrefix = "attribution:"

// SetupLogging installs the default logger for service.
func SetupLogging(cfg config.LogConfig, service string) {
	l := logger.NewForFormat(os.Stderr, service, cfg.Format)
	l.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetDefault(l)
}

// ConnectRedis returns nil when url is empty or Redis does not answer a ping;
// callers fall back to in-process state.
func ConnectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Info("redis not configured, using in-process cache and seen-order state")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, falling back to in-process state", "addr", opts.Addr, "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", opts.Addr)
	return client
}

// LoadResolver reads the marketer mapping and builds the resolver over it.
func LoadResolver(path string) (*mapping.Table, *attribution.Resolver, error) {
	table, err := mapping.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("marketer mapping loaded", "path", path,
		"symbols", len(table.Symbols()), "landing_pages", len(table.LandingPageKeys()))
	return table, attribution.NewResolver(table), nil
}

// NewShopifyClient builds the order client.
func NewShopifyClient(cfg config.ShopifyConfig) (*shopify.Client, error) {
	return shopify.NewClient(shopify.Config{
		StoreURL:    cfg.StoreURL,
		APIVersion:  cfg.APIVersion,
		AccessToken: cfg.AccessToken,
		PageSize:    cfg.PageSize,
		Timeout:     cfg.Timeout(),
	})
}

// NewTrafficClient builds the analytics client.
func NewTrafficClient(ctx context.Context, cfg config.AnalyticsConfig) (*traffic.Client, error) {
	return traffic.NewClient(ctx, traffic.Config{
		PropertyID:      cfg.PropertyID,
		CredentialsJSON: cfg.CredentialsJSON,
		CredentialsFile: cfg.CredentialsFile,
		PageSize:        cfg.PageSize,
	})
}

// OpenSnapshotStore connects to Postgres and, when a bucket is configured,
// archives every saved snapshot to S3. It returns a nil store and DB when no
// database URL is set.
func OpenSnapshotStore(ctx context.Context, cfg config.StorageConfig) (snapshot.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil
	}
	db, err := snapshot.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	pg := snapshot.NewPostgresStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	if cfg.S3Bucket == "" {
		return pg, db, nil
	}
	archive, err := snapshot.NewS3Archive(ctx, snapshot.ArchiveConfig{
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		Region:    cfg.AWSRegion,
		Profile:   cfg.GetAWSProfile(),
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("snapshot archive: %w", err)
	}
	logger.Info("snapshot archive enabled", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
	return snapshot.WithArchive(pg, archive), db, nil
}
