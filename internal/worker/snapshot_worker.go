package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/marketer-attribution/internal/pkg/distlock"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
	"github.com/ignite/marketer-attribution/internal/report"
	"github.com/ignite/marketer-attribution/internal/shopify"
	"github.com/ignite/marketer-attribution/internal/snapshot"
)

const (
	// DefaultSnapshotInterval is how often the upstream APIs are polled.
	DefaultSnapshotInterval = time.Minute

	// DefaultSnapshotWindow is how far back recent orders are fetched.
	DefaultSnapshotWindow = 30 * time.Minute
)

// ErrLockHeld is returned by RunOnce when another replica holds the lock.
var ErrLockHeld = errors.New("snapshot lock held by another worker")

// TrafficFetcher returns the realtime traffic report.
type TrafficFetcher interface {
	RealtimeTraffic(ctx context.Context) (report.RealtimeTraffic, error)
}

// OrderFetcher lists orders created since a point in time.
type OrderFetcher interface {
	RecentOrders(ctx context.Context, since time.Time) ([]shopify.Order, error)
}

// RunRecorder observes each tick. result is "ok", "error" or "skipped".
type RunRecorder interface {
	SnapshotRun(result string, d time.Duration)
}

// ReportCache drops cached reports. cache.Memo satisfies it.
type ReportCache interface {
	Invalidate(ctx context.Context, key string) error
}

// SnapshotConfig wires a SnapshotWorker. Lock, Reports and Recorder are
// optional.
type SnapshotConfig struct {
	Traffic  TrafficFetcher
	Orders   OrderFetcher
	Store    snapshot.Store
	Lock     distlock.DistLock
	Interval time.Duration
	Window   time.Duration
	Reports  ReportCache
	Recorder RunRecorder
}

// SnapshotWorker periodically fetches realtime traffic and recent orders
// and stores them as the latest snapshot.
type SnapshotWorker struct {
	cfg SnapshotConfig
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSnapshotWorker validates cfg and applies defaults.
func NewSnapshotWorker(cfg SnapshotConfig) (*SnapshotWorker, error) {
	if cfg.Traffic == nil || cfg.Orders == nil || cfg.Store == nil {
		return nil, errors.New("snapshot worker: traffic, orders and store are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSnapshotInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultSnapshotWindow
	}
	return &SnapshotWorker{cfg: cfg, now: time.Now}, nil
}

// Start runs one tick immediately, then one per interval, until Stop is
// called or ctx is cancelled.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)

	logger.Info("snapshot worker starting", "interval", w.cfg.Interval.String(), "window", w.cfg.Window.String())

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.tick(ctx)

		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (w *SnapshotWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	logger.Info("snapshot worker stopped")
}

func (w *SnapshotWorker) tick(ctx context.Context) {
	start := time.Now()
	snap, err := w.RunOnce(ctx)
	d := time.Since(start)

	switch {
	case errors.Is(err, ErrLockHeld):
		logger.Debug("snapshot tick skipped, lock held elsewhere")
		w.record("skipped", d)
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		logger.Error("snapshot tick failed", "error", err, "duration", d.String())
		w.record("error", d)
	default:
		logger.Info("snapshot saved",
			"snapshot_id", snap.ID,
			"traffic_rows", len(snap.Traffic.Rows),
			"orders", len(snap.Orders),
			"duration", d.Round(time.Millisecond).String())
		w.record("ok", d)
	}
}

// RunOnce fetches traffic and orders concurrently and saves them. Nothing is
// saved when either fetch fails.
func (w *SnapshotWorker) RunOnce(ctx context.Context) (*snapshot.Snapshot, error) {
	if w.cfg.Lock != nil {
		acquired, err := w.cfg.Lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire snapshot lock: %w", err)
		}
		if !acquired {
			return nil, ErrLockHeld
		}
		defer func() {
			if err := w.cfg.Lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release snapshot lock", "error", err)
			}
		}()
	}

	now := w.now()
	snap := &snapshot.Snapshot{ID: uuid.NewString(), FetchedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := w.cfg.Traffic.RealtimeTraffic(gctx)
		if err != nil {
			return fmt.Errorf("fetch realtime traffic: %w", err)
		}
		snap.Traffic = t
		return nil
	})
	g.Go(func() error {
		orders, err := w.cfg.Orders.RecentOrders(gctx, now.Add(-w.cfg.Window))
		if err != nil {
			return fmt.Errorf("fetch recent orders: %w", err)
		}
		snap.Orders = orders
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := w.cfg.Store.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if w.cfg.Reports != nil {
		if err := w.cfg.Reports.Invalidate(ctx, report.RealtimeCacheKey); err != nil {
			logger.Warn("invalidate cached realtime report", "error", err)
		}
	}
	return snap, nil
}

func (w *SnapshotWorker) record(result string, d time.Duration) {
	if w.cfg.Recorder != nil {
		w.cfg.Recorder.SnapshotRun(result, d)
	}
}
