package shopify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(shipping string, lines ...LineItem) Order {
	o := Order{ID: 1001, CreatedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), LineItems: lines}
	if shipping != "" {
		o.TotalShippingPriceSet = &PriceSet{ShopMoney: Money{Amount: shipping, CurrencyCode: "USD"}}
	}
	return o
}

func sumRevenue(t *testing.T, o Order) decimal.Decimal {
	t.Helper()
	total := decimal.Zero
	for _, r := range Explode(o) {
		total = total.Add(decimal.NewFromFloat(r.Revenue))
	}
	return total
}

func TestExplodeAllocatesShippingProportionally(t *testing.T) {
	o := order("10.00",
		LineItem{Title: "Red Shoes MKT5", Quantity: 2, Price: "15.00"},
		LineItem{Title: "Blue Hat MKT7", Quantity: 1, Price: "20.00"},
	)

	rows := Explode(o)

	require.Len(t, rows, 2)
	assert.Equal(t, "1001", rows[0].OrderID)
	assert.Equal(t, int64(2), rows[0].Quantity)
	assert.InDelta(t, 36.0, rows[0].Revenue, 1e-9)
	assert.InDelta(t, 24.0, rows[1].Revenue, 1e-9)
	assert.Equal(t, o.CreatedAt, rows[1].CreatedAt)
}

func TestExplodeConservesRevenue(t *testing.T) {
	cases := []Order{
		order("10.00",
			LineItem{Title: "A", Quantity: 1, Price: "10.00"},
			LineItem{Title: "B", Quantity: 1, Price: "10.00"},
			LineItem{Title: "C", Quantity: 1, Price: "10.00"},
		),
		order("7.99",
			LineItem{Title: "A", Quantity: 3, Price: "3.33"},
			LineItem{Title: "B", Quantity: 7, Price: "1.01"},
			LineItem{Title: "Free gift", Quantity: 1, Price: "0.00"},
		),
		order("",
			LineItem{Title: "A", Quantity: 1, Price: "19.99"},
		),
	}

	for i, o := range cases {
		t.Run(fmt.Sprintf("order %d", i), func(t *testing.T) {
			want := decimal.Zero
			for _, li := range o.LineItems {
				want = want.Add(parseAmount(li.Price).Mul(decimal.NewFromInt(li.Quantity)))
			}
			want = want.Add(parseAmount(o.ShippingAmount()))

			got := sumRevenue(t, o)
			assert.True(t, got.Sub(want).Abs().LessThan(decimal.RequireFromString("0.000001")),
				"got %s want %s", got, want)
			assert.True(t, OrderRevenue(o).Equal(want.Round(2)))
		})
	}
}

func TestExplodeZeroSubtotal(t *testing.T) {
	o := order("5.00", LineItem{Title: "Free sample", Quantity: 1, Price: "0.00"})

	rows := Explode(o)

	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].Revenue)
}

func TestExplodeBadValuesAreZeroed(t *testing.T) {
	o := order("oops",
		LineItem{Title: "A", Quantity: -2, Price: "10.00"},
		LineItem{Title: "B", Quantity: 1, Price: "n/a"},
		LineItem{Title: "C", Quantity: 1, Price: "4.50"},
	)

	rows := Explode(o)

	require.Len(t, rows, 3)
	assert.Equal(t, int64(0), rows[0].Quantity)
	assert.Equal(t, 0.0, rows[0].Revenue)
	assert.Equal(t, 0.0, rows[1].Revenue)
	assert.InDelta(t, 4.5, rows[2].Revenue, 1e-9)
}

func TestExplodeNoLineItems(t *testing.T) {
	assert.Empty(t, Explode(order("5.00")))
}

type fakeLister struct {
	since      time.Time
	start, end time.Time
	orders     []Order
}

func (f *fakeLister) RecentOrders(_ context.Context, since time.Time) ([]Order, error) {
	f.since = since
	return f.orders, nil
}

func (f *fakeLister) Orders(_ context.Context, start, end time.Time) ([]Order, error) {
	f.start, f.end = start, end
	return f.orders, nil
}

func TestPurchaseSource(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	lister := &fakeLister{orders: []Order{
		order("", LineItem{Title: "Red Shoes MKT5", Quantity: 2, Price: "20.00"}),
	}}
	src := NewPurchaseSource(lister)
	src.now = func() time.Time { return now }

	rows, err := src.RecentPurchases(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), lister.since)
	require.Len(t, rows, 1)
	assert.InDelta(t, 40.0, rows[0].Revenue, 1e-9)

	start := time.Date(2024, 5, 31, 17, 0, 0, 0, time.UTC)
	_, err = src.Purchases(context.Background(), start, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, start, lister.start)
}
