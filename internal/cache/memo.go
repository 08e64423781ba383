package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ignite/marketer-attribution/internal/pkg/logger"
)

// Observer is told about cache hits and misses. It may be nil.
type Observer interface {
	CacheLookup(key string, hit bool)
}

// Memo runs a loader at most once per key per TTL. Concurrent callers for a
// missing key share one load. Failed loads are never stored.
type Memo struct {
	store    Store
	group    singleflight.Group
	observer Observer
}

// NewMemo wraps store.
func NewMemo(store Store, observer Observer) *Memo {
	return &Memo{store: store, observer: observer}
}

// Do returns the cached value for key or calls load and stores its result.
// The shared load runs detached from any single caller's cancellation.
func (m *Memo) Do(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if val, ok, err := m.store.Get(ctx, key); err != nil {
		logger.Warn("cache: lookup failed", "key", key, "error", err)
	} else if ok {
		m.observe(key, true)
		return val, nil
	}
	m.observe(key, false)

	ch := m.group.DoChan(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := m.store.Set(loadCtx, key, val, ttl); err != nil {
			logger.Warn("cache: store failed", "key", key, "error", err)
		}
		return val, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops key from the store.
func (m *Memo) Invalidate(ctx context.Context, key string) error {
	return m.store.Delete(ctx, key)
}

func (m *Memo) observe(key string, hit bool) {
	if m.observer != nil {
		m.observer.CacheLookup(key, hit)
	}
}
