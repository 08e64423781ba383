package shopify

import (
	"context"
	"time"

	"github.com/ignite/marketer-attribution/internal/report"
)

// OrderLister is implemented by Client.
type OrderLister interface {
	RecentOrders(ctx context.Context, since time.Time) ([]Order, error)
	Orders(ctx context.Context, start, end time.Time) ([]Order, error)
}

// PurchaseSource adapts an OrderLister to the report service's purchase
// source interfaces.
type PurchaseSource struct {
	orders OrderLister
	now    func() time.Time
}

// NewPurchaseSource wraps orders.
func NewPurchaseSource(orders OrderLister) *PurchaseSource {
	return &PurchaseSource{orders: orders, now: time.Now}
}

// RecentPurchases returns line items of orders created within window.
func (s *PurchaseSource) RecentPurchases(ctx context.Context, window time.Duration) ([]report.PurchaseRow, error) {
	orders, err := s.orders.RecentOrders(ctx, s.now().Add(-window))
	if err != nil {
		return nil, err
	}
	return ExplodeAll(orders), nil
}

// Purchases returns line items of orders created in [start, end).
func (s *PurchaseSource) Purchases(ctx context.Context, start, end time.Time) ([]report.PurchaseRow, error) {
	orders, err := s.orders.Orders(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return ExplodeAll(orders), nil
}
