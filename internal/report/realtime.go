package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ignite/marketer-attribution/internal/attribution"
)

// PerMinuteBuckets is the number of bars in the per-minute chart.
const PerMinuteBuckets = 30

// Rate returns purchases per 100 visitors, or 0 when there are no visitors.
func Rate(purchases, visitors int64) float64 {
	if visitors <= 0 {
		return 0
	}
	return float64(purchases) / float64(visitors) * 100
}

func nonNeg(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func money(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

type purchaseAgg struct {
	quantity int64
	revenue  float64
	last     time.Time
}

// groupPurchases sums purchases per join key. bucket may be nil.
func groupPurchases(purchases []PurchaseRow, r *attribution.Resolver, bucket func(PurchaseRow) string) map[Key]*purchaseAgg {
	out := make(map[Key]*purchaseAgg)
	for _, p := range purchases {
		core, symbol := r.Normalize(p.ProductTitle)
		k := Key{CoreTitle: core, Symbol: symbol}
		if bucket != nil {
			k.Bucket = bucket(p)
		}
		agg, ok := out[k]
		if !ok {
			agg = &purchaseAgg{}
			out[k] = agg
		}
		agg.quantity += nonNeg(p.Quantity)
		agg.revenue += money(p.Revenue)
		if p.CreatedAt.After(agg.last) {
			agg.last = p.CreatedAt
		}
	}
	return out
}

// AggregateRealtime joins realtime traffic with recent purchases.
//
// Traffic drives the join: every distinct (core title, symbol) seen in traffic
// yields exactly one row, and purchases whose key never appears in traffic are
// dropped. The marketer is resolved from the first raw title seen for the key.
func AggregateRealtime(traffic []TrafficRow, purchases []PurchaseRow, r *attribution.Resolver) []RealtimeRow {
	groups := make(map[Key]*RealtimeRow)
	var order []Key
	for _, t := range traffic {
		core, symbol := r.Normalize(t.Title)
		k := Key{CoreTitle: core, Symbol: symbol}
		row, ok := groups[k]
		if !ok {
			row = &RealtimeRow{CoreTitle: core, Symbol: symbol, Title: t.Title}
			groups[k] = row
			order = append(order, k)
		}
		row.ActiveUsers += nonNeg(t.ActiveUsers)
		row.Views += nonNeg(t.Views)
	}

	bought := groupPurchases(purchases, r, nil)

	rows := make([]RealtimeRow, 0, len(order))
	for _, k := range order {
		row := groups[k]
		if p, ok := bought[k]; ok {
			row.Purchases = p.quantity
			row.Revenue = p.revenue
			if !p.last.IsZero() {
				last := p.last
				row.LastPurchase = &last
			}
		}
		row.ConversionRate = Rate(row.Purchases, row.ActiveUsers)
		row.Marketer = r.ResolveTitle(row.Title)
		rows = append(rows, *row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ActiveUsers != b.ActiveUsers {
			return a.ActiveUsers > b.ActiveUsers
		}
		if a.CoreTitle != b.CoreTitle {
			return a.CoreTitle < b.CoreTitle
		}
		return a.Symbol < b.Symbol
	})
	return rows
}

// BuildRealtimeReport aggregates the table and fills in totals and the
// per-minute series.
func BuildRealtimeReport(traffic RealtimeTraffic, purchases []PurchaseRow, r *attribution.Resolver, now time.Time) *RealtimeReport {
	rep := &RealtimeReport{
		Rows:        AggregateRealtime(traffic.Rows, purchases, r),
		PerMinute:   perMinute(traffic.Minutes),
		LastUpdated: now,
	}

	rep.Totals.ActiveUsers = nonNeg(traffic.ActiveUsers)
	rep.Totals.Views = nonNeg(traffic.Views)
	if rep.Totals.ActiveUsers == 0 || rep.Totals.Views == 0 {
		var users, views int64
		for _, t := range traffic.Rows {
			users += nonNeg(t.ActiveUsers)
			views += nonNeg(t.Views)
		}
		if rep.Totals.ActiveUsers == 0 {
			rep.Totals.ActiveUsers = users
		}
		if rep.Totals.Views == 0 {
			rep.Totals.Views = views
		}
	}
	for _, row := range rep.Rows {
		rep.Totals.Purchases += row.Purchases
		rep.Totals.Revenue += row.Revenue
	}
	return rep
}

// EmptyRealtimeReport is what callers see when a source failed.
func EmptyRealtimeReport(now time.Time) *RealtimeReport {
	return &RealtimeReport{
		Rows:        []RealtimeRow{},
		PerMinute:   perMinute(nil),
		LastUpdated: now,
	}
}

// perMinute returns PerMinuteBuckets points, oldest first, zero-filled.
func perMinute(minutes []MinuteUsers) []MinutePoint {
	users := make([]int64, PerMinuteBuckets)
	for _, m := range minutes {
		if m.MinutesAgo < 0 || m.MinutesAgo >= PerMinuteBuckets {
			continue
		}
		users[m.MinutesAgo] += nonNeg(m.ActiveUsers)
	}
	points := make([]MinutePoint, 0, PerMinuteBuckets)
	for ago := PerMinuteBuckets - 1; ago >= 0; ago-- {
		label := "now"
		if ago > 0 {
			label = fmt.Sprintf("-%d min", ago)
		}
		points = append(points, MinutePoint{MinutesAgo: ago, Label: label, ActiveUsers: users[ago]})
	}
	return points
}
