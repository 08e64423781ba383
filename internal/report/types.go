package report

import (
	"fmt"
	"time"
)

// Segment selects the time granularity of a historical report.
type Segment string

const (
	SegmentNone Segment = "none"
	SegmentDay  Segment = "day"
	SegmentWeek Segment = "week"
)

// ParseSegment accepts "", "none", "day" and "week".
func ParseSegment(s string) (Segment, error) {
	switch Segment(s) {
	case "", SegmentNone:
		return SegmentNone, nil
	case SegmentDay, SegmentWeek:
		return Segment(s), nil
	}
	return "", fmt.Errorf("unknown segment %q (want none, day or week)", s)
}

// TrafficRow is one page-title row from the analytics source.
type TrafficRow struct {
	Title       string `json:"title"`
	ActiveUsers int64  `json:"active_users"`
	Views       int64  `json:"views"`
	Sessions    int64  `json:"sessions,omitempty"`
	// Date is a YYYY-MM-DD civil date in the reporting timezone (historical only).
	Date string `json:"date,omitempty"`
}

// MinuteUsers is the property-wide active users for one minute of the window.
type MinuteUsers struct {
	MinutesAgo  int   `json:"minutes_ago"`
	ActiveUsers int64 `json:"active_users"`
}

// RealtimeTraffic is the analytics payload for the last window.
//
// Rows hold one entry per page title over the whole window, so a visitor
// active for several minutes counts once per page. Minutes is the separate
// per-minute series. ActiveUsers and Views are the property-level totals;
// they may be zero when the source did not report totals.
type RealtimeTraffic struct {
	Rows        []TrafficRow  `json:"rows"`
	Minutes     []MinuteUsers `json:"minutes"`
	ActiveUsers int64         `json:"active_users"`
	Views       int64         `json:"views"`
}

// PurchaseRow is one order line item with shipping already allocated.
type PurchaseRow struct {
	OrderID      string    `json:"order_id"`
	ProductTitle string    `json:"product_title"`
	Quantity     int64     `json:"quantity"`
	Revenue      float64   `json:"revenue"`
	CreatedAt    time.Time `json:"created_at"`
}

// Key is the join key shared by traffic and purchases.
type Key struct {
	CoreTitle string
	Symbol    string
	Bucket    string
}

// RealtimeRow is one attributed row of the realtime table.
type RealtimeRow struct {
	CoreTitle      string     `json:"core_title"`
	Symbol         string     `json:"symbol"`
	Title          string     `json:"title"`
	Marketer       string     `json:"marketer"`
	ActiveUsers    int64      `json:"active_users"`
	Views          int64      `json:"views"`
	Purchases      int64      `json:"purchases"`
	Revenue        float64    `json:"revenue"`
	LastPurchase   *time.Time `json:"last_purchase,omitempty"`
	ConversionRate float64    `json:"conversion_rate"`
}

// HistoricalRow is one attributed row of a historical report.
type HistoricalRow struct {
	CoreTitle             string  `json:"core_title"`
	Symbol                string  `json:"symbol"`
	Bucket                string  `json:"bucket,omitempty"`
	Title                 string  `json:"title"`
	Marketer              string  `json:"marketer"`
	Sessions              int64   `json:"sessions"`
	Users                 int64   `json:"users"`
	Views                 int64   `json:"views"`
	Purchases             int64   `json:"purchases"`
	Revenue               float64 `json:"revenue"`
	SessionConversionRate float64 `json:"session_conversion_rate"`
	UserConversionRate    float64 `json:"user_conversion_rate"`
}

// Totals summarises a report.
type Totals struct {
	ActiveUsers int64   `json:"active_users"`
	Sessions    int64   `json:"sessions,omitempty"`
	Views       int64   `json:"views"`
	Purchases   int64   `json:"purchases"`
	Revenue     float64 `json:"revenue"`
}

// MinutePoint is one bar of the per-minute active users chart.
type MinutePoint struct {
	MinutesAgo  int    `json:"minutes_ago"`
	Label       string `json:"label"`
	ActiveUsers int64  `json:"active_users"`
}

// RealtimeReport is the realtime table plus the dashboard extras.
type RealtimeReport struct {
	Rows        []RealtimeRow `json:"rows"`
	Totals      Totals        `json:"totals"`
	PerMinute   []MinutePoint `json:"per_minute"`
	LastUpdated time.Time     `json:"last_updated"`
}

// HistoricalQuery selects an inclusive date range and segmentation.
type HistoricalQuery struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Segment Segment `json:"segment"`
}

// CacheKey identifies the query for memoization.
func (q HistoricalQuery) CacheKey() string {
	return fmt.Sprintf("report:historical:%s:%s:%s", q.From, q.To, q.Segment)
}

// HistoricalReport is the historical table for one query.
type HistoricalReport struct {
	Query       HistoricalQuery `json:"query"`
	Rows        []HistoricalRow `json:"rows"`
	Totals      Totals          `json:"totals"`
	LastUpdated time.Time       `json:"last_updated"`
}
