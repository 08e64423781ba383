package report

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// MaxRangeDays bounds the inclusive span of a historical query.
const MaxRangeDays = 366

// Bucketer assigns instants and civil dates to day/week buckets in the fixed
// reporting timezone. Marketing days start at local midnight, not UTC.
type Bucketer struct {
	loc *time.Location
}

// NewBucketer loads the IANA timezone used for reporting.
func NewBucketer(timezone string) (*Bucketer, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load reporting timezone %q: %w", timezone, err)
	}
	return &Bucketer{loc: loc}, nil
}

// Location returns the reporting timezone.
func (b *Bucketer) Location() *time.Location { return b.loc }

// Bucket returns the bucket label of t. Purchases use this.
func (b *Bucketer) Bucket(t time.Time, seg Segment) string {
	if seg == SegmentNone || seg == "" {
		return ""
	}
	local := t.In(b.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, b.loc)
	return b.label(day, seg)
}

// BucketDate returns the bucket label of a YYYY-MM-DD civil date. Traffic uses
// this, since the analytics source already reports dates in the property zone.
func (b *Bucketer) BucketDate(date string, seg Segment) (string, error) {
	if seg == SegmentNone || seg == "" {
		return "", nil
	}
	day, err := time.ParseInLocation(dateLayout, date, b.loc)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return b.label(day, seg), nil
}

func (b *Bucketer) label(day time.Time, seg Segment) string {
	if seg == SegmentWeek {
		// ISO weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7
		day = day.AddDate(0, 0, -offset)
	}
	return day.Format(dateLayout)
}

// Range converts an inclusive civil date range into the half-open instant
// range [start, end) in the reporting timezone.
func (b *Bucketer) Range(from, to string) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(dateLayout, from, b.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse from date %q: %w", from, err)
	}
	last, err := time.ParseInLocation(dateLayout, to, b.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse to date %q: %w", to, err)
	}
	if last.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("from date %s is after to date %s", from, to)
	}
	if !last.Before(start.AddDate(0, 0, MaxRangeDays)) {
		return time.Time{}, time.Time{}, fmt.Errorf("date range %s..%s exceeds %d days", from, to, MaxRangeDays)
	}
	return start, last.AddDate(0, 0, 1), nil
}

// Today returns the current civil date in the reporting timezone.
func (b *Bucketer) Today(now time.Time) string {
	return now.In(b.loc).Format(dateLayout)
}

// Validate checks a historical query against this bucketer.
func (b *Bucketer) Validate(q HistoricalQuery) error {
	if _, err := ParseSegment(string(q.Segment)); err != nil {
		return err
	}
	_, _, err := b.Range(q.From, q.To)
	return err
}
