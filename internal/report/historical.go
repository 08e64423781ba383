package report

import (
	"sort"
	"time"

	"github.com/ignite/marketer-attribution/internal/attribution"
)

// AggregateHistorical joins traffic and purchases for a date range.
//
// Rows are keyed by (core title, symbol) and, when seg is day or week, by
// bucket as well. As with the realtime table, purchases without matching
// traffic are dropped. Traffic rows whose date cannot be bucketed are skipped
// when segmenting.
func AggregateHistorical(traffic []TrafficRow, purchases []PurchaseRow, r *attribution.Resolver, b *Bucketer, seg Segment) []HistoricalRow {
	segmented := seg == SegmentDay || seg == SegmentWeek

	groups := make(map[Key]*HistoricalRow)
	var order []Key
	for _, t := range traffic {
		core, symbol := r.Normalize(t.Title)
		k := Key{CoreTitle: core, Symbol: symbol}
		if segmented {
			bucket, err := b.BucketDate(t.Date, seg)
			if err != nil {
				continue
			}
			k.Bucket = bucket
		}
		row, ok := groups[k]
		if !ok {
			row = &HistoricalRow{CoreTitle: core, Symbol: symbol, Bucket: k.Bucket, Title: t.Title}
			groups[k] = row
			order = append(order, k)
		}
		row.Sessions += nonNeg(t.Sessions)
		row.Users += nonNeg(t.ActiveUsers)
		row.Views += nonNeg(t.Views)
	}

	var bucketFn func(PurchaseRow) string
	if segmented {
		bucketFn = func(p PurchaseRow) string { return b.Bucket(p.CreatedAt, seg) }
	}
	bought := groupPurchases(purchases, r, bucketFn)

	rows := make([]HistoricalRow, 0, len(order))
	for _, k := range order {
		row := groups[k]
		if p, ok := bought[k]; ok {
			row.Purchases = p.quantity
			row.Revenue = p.revenue
		}
		row.SessionConversionRate = Rate(row.Purchases, row.Sessions)
		row.UserConversionRate = Rate(row.Purchases, row.Users)
		row.Marketer = r.ResolveTitle(row.Title)
		rows = append(rows, *row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if segmented && a.Bucket != b.Bucket {
			return a.Bucket < b.Bucket
		}
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		if a.CoreTitle != b.CoreTitle {
			return a.CoreTitle < b.CoreTitle
		}
		return a.Symbol < b.Symbol
	})
	return rows
}

// BuildHistoricalReport aggregates the table and computes totals.
func BuildHistoricalReport(q HistoricalQuery, traffic []TrafficRow, purchases []PurchaseRow, r *attribution.Resolver, b *Bucketer, now time.Time) *HistoricalReport {
	rep := &HistoricalReport{
		Query:       q,
		Rows:        AggregateHistorical(traffic, purchases, r, b, q.Segment),
		LastUpdated: now,
	}
	for _, row := range rep.Rows {
		rep.Totals.Sessions += row.Sessions
		rep.Totals.ActiveUsers += row.Users
		rep.Totals.Views += row.Views
		rep.Totals.Purchases += row.Purchases
		rep.Totals.Revenue += row.Revenue
	}
	return rep
}

// EmptyHistoricalReport is what callers see when a source failed.
func EmptyHistoricalReport(q HistoricalQuery, now time.Time) *HistoricalReport {
	return &HistoricalReport{Query: q, Rows: []HistoricalRow{}, LastUpdated: now}
}
