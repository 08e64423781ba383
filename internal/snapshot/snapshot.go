// Package snapshot persists the raw realtime fetch (traffic rows and recent
// orders) so API replicas can serve the dashboard without calling the
// upstream APIs on every request. The worker writes it; readers use Feed.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/marketer-attribution/internal/report"
	"github.com/ignite/marketer-attribution/internal/shopify"
)

// ErrNotFound is returned when no snapshot has been stored yet.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one raw realtime fetch.
type Snapshot struct {
	ID        string                 `json:"id"`
	Traffic   report.RealtimeTraffic `json:"traffic"`
	Orders    []shopify.Order        `json:"orders"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Store keeps the latest snapshot.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Latest(ctx context.Context) (*Snapshot, error)
}

// Feed serves the latest stored snapshot as realtime traffic and orders.
// It satisfies report.RealtimeTrafficSource and shopify.OrderLister.
type Feed struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
}

// NewFeed reads from store. Snapshots older than maxAge are rejected; zero
// disables the check.
func NewFeed(store Store, maxAge time.Duration) *Feed {
	return &Feed{store: store, maxAge: maxAge, now: time.Now}
}

func (f *Feed) latest(ctx context.Context) (*Snapshot, error) {
	s, err := f.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if f.maxAge > 0 {
		if age := f.now().Sub(s.FetchedAt); age > f.maxAge {
			return nil, fmt.Errorf("snapshot %s is stale (fetched %s ago)", s.ID, age.Round(time.Second))
		}
	}
	return s, nil
}

// RealtimeTraffic returns the stored traffic.
func (f *Feed) RealtimeTraffic(ctx context.Context) (report.RealtimeTraffic, error) {
	s, err := f.latest(ctx)
	if err != nil {
		return report.RealtimeTraffic{}, err
	}
	return s.Traffic, nil
}

// RecentOrders returns stored orders created at or after since.
func (f *Feed) RecentOrders(ctx context.Context, since time.Time) ([]shopify.Order, error) {
	s, err := f.latest(ctx)
	if err != nil {
		return nil, err
	}
	var out []shopify.Order
	for _, o := range s.Orders {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Orders returns stored orders created in [start, end).
func (f *Feed) Orders(ctx context.Context, start, end time.Time) ([]shopify.Order, error) {
	s, err := f.latest(ctx)
	if err != nil {
		return nil, err
	}
	var out []shopify.Order
	for _, o := range s.Orders {
		if !o.CreatedAt.Before(start) && o.CreatedAt.Before(end) {
			out = append(out, o)
		}
	}
	return out, nil
}
