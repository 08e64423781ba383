// Package notify detects sales a dashboard viewer has not seen yet and
// renders an announcement for each, credited to the responsible marketer.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/marketer-attribution/internal/attribution"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
	"github.com/ignite/marketer-attribution/internal/shopify"
)

// DefaultTemplate is the announcement used when none is configured.
const DefaultTemplate = `New Sale for {{ marketer | default: "Unattributed" }}! Products: {{ products | join: ", " }}. Total Revenue: ${{ revenue | money }}`

// OrderSource lists recent orders. *shopify.Client and *snapshot.Feed
// satisfy it.
type OrderSource interface {
	RecentOrders(ctx context.Context, since time.Time) ([]shopify.Order, error)
}

// Recorder counts notified sales. It may be nil.
type Recorder interface {
	SalesNotified(n int)
}

// Sale is one newly seen order.
type Sale struct {
	OrderID      string    `json:"order_id"`
	OrderName    string    `json:"order_name,omitempty"`
	Marketer     string    `json:"marketer"`
	Products     []string  `json:"products"`
	TotalRevenue float64   `json:"total_revenue"`
	CreatedAt    time.Time `json:"created_at"`
	Message      string    `json:"message"`
}

// Config wires a Tracker.
type Config struct {
	Resolver *attribution.Resolver
	Seen     SeenStore
	Orders   OrderSource
	Window   time.Duration
	Template string
	Recorder Recorder
}

// Tracker compares each viewer's current orders with the ones shown before.
type Tracker struct {
	cfg Config
	tpl *liquid.Template
	now func() time.Time
}

// NewTracker parses the announcement template.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Resolver == nil || cfg.Seen == nil {
		return nil, errors.New("notify: resolver and seen store are required")
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Minute
	}

	engine := liquid.NewEngine()
	// Two-decimal amounts: {{ revenue | money }}
	engine.RegisterFilter("money", func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	})
	tpl, err := engine.ParseString(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("parse sale template: %w", err)
	}
	return &Tracker{cfg: cfg, tpl: tpl, now: time.Now}, nil
}

// Poll fetches orders from the configured source and checks them for viewer.
func (t *Tracker) Poll(ctx context.Context, viewer string) ([]Sale, error) {
	if t.cfg.Orders == nil {
		return nil, errors.New("notify: no order source configured")
	}
	orders, err := t.cfg.Orders.RecentOrders(ctx, t.now().Add(-t.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("fetch recent orders: %w", err)
	}
	return t.Check(ctx, viewer, orders)
}

// Check returns the orders viewer has not seen, oldest first, and records
// the current IDs as seen. An empty order list leaves the seen set untouched.
func (t *Tracker) Check(ctx context.Context, viewer string, orders []shopify.Order) ([]Sale, error) {
	if len(orders) == 0 {
		return []Sale{}, nil
	}

	previous, err := t.cfg.Seen.Seen(ctx, viewer)
	if err != nil {
		return nil, err
	}

	current := make([]string, 0, len(orders))
	sales := []Sale{}
	for _, o := range orders {
		id := o.IDString()
		current = append(current, id)
		if previous[id] {
			continue
		}
		sale := t.sale(o)
		msg, err := t.render(sale)
		if err != nil {
			logger.Warn("notify: render failed", "order_id", id, "error", err)
		}
		sale.Message = msg
		sales = append(sales, sale)
	}

	if err := t.cfg.Seen.Replace(ctx, viewer, current); err != nil {
		return nil, err
	}

	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.Before(sales[j].CreatedAt)
		}
		return sales[i].OrderID < sales[j].OrderID
	})
	if t.cfg.Recorder != nil {
		t.cfg.Recorder.SalesNotified(len(sales))
	}
	return sales, nil
}

func (t *Tracker) sale(o shopify.Order) Sale {
	products := make([]string, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		products = append(products, li.Title)
	}
	return Sale{
		OrderID:      o.IDString(),
		OrderName:    o.Name,
		Marketer:     t.marketer(o),
		Products:     products,
		TotalRevenue: shopify.OrderRevenue(o).InexactFloat64(),
		CreatedAt:    o.CreatedAt,
	}
}

// marketer prefers the landing page and falls back to line-item titles.
func (t *Tracker) marketer(o shopify.Order) string {
	if m := t.cfg.Resolver.ResolveLandingPage(o.LandingSite); m != "" {
		return m
	}
	for _, li := range o.LineItems {
		if m := t.cfg.Resolver.ResolveTitle(li.Title); m != "" {
			return m
		}
	}
	return ""
}

func (t *Tracker) render(s Sale) (string, error) {
	out, err := t.tpl.RenderString(liquid.Bindings{
		"marketer": s.Marketer,
		"products": s.Products,
		"revenue":  s.TotalRevenue,
		"order":    s.OrderName,
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
