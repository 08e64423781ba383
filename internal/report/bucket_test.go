package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketerBucket(t *testing.T) {
	b := newBucketer(t)

	tests := []struct {
		name string
		at   time.Time
		seg  Segment
		want string
	}{
		{"no segment", time.Date(2024, 6, 2, 18, 30, 0, 0, time.UTC), SegmentNone, ""},
		{"day crosses local midnight", time.Date(2024, 6, 2, 18, 30, 0, 0, time.UTC), SegmentDay, "2024-06-03"},
		{"day before local midnight", time.Date(2024, 6, 2, 16, 59, 0, 0, time.UTC), SegmentDay, "2024-06-02"},
		{"week of a monday", time.Date(2024, 6, 3, 5, 0, 0, 0, time.UTC), SegmentWeek, "2024-06-03"},
		{"week of a sunday", time.Date(2024, 6, 9, 5, 0, 0, 0, time.UTC), SegmentWeek, "2024-06-03"},
		{"week across year end", time.Date(2024, 12, 31, 5, 0, 0, 0, time.UTC), SegmentWeek, "2024-12-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Bucket(tt.at, tt.seg))
		})
	}
}

func TestBucketerBucketDate(t *testing.T) {
	b := newBucketer(t)

	got, err := b.BucketDate("2024-06-05", SegmentWeek)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03", got)

	got, err = b.BucketDate("2024-06-05", SegmentDay)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-05", got)

	_, err = b.BucketDate("20240605", SegmentDay)
	assert.Error(t, err)
}

func TestBucketerRange(t *testing.T) {
	b := newBucketer(t)

	start, end, err := b.Range("2024-06-01", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 31, 17, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = b.Range("2024-06-02", "2024-06-01")
	assert.Error(t, err)
	_, _, err = b.Range("yesterday", "2024-06-01")
	assert.Error(t, err)
}

func TestBucketerRangeSpanLimit(t *testing.T) {
	b := newBucketer(t)

	// 2024 is a leap year: Jan 1 to Dec 31 is exactly MaxRangeDays days.
	start, end, err := b.Range("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, MaxRangeDays*24*time.Hour, end.Sub(start))

	_, _, err = b.Range("2024-01-01", "2025-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	assert.Error(t, b.Validate(HistoricalQuery{From: "2000-01-01", To: "2024-06-07", Segment: SegmentNone}))
}

func TestBucketerValidate(t *testing.T) {
	b := newBucketer(t)
	assert.NoError(t, b.Validate(HistoricalQuery{From: "2024-06-01", To: "2024-06-07", Segment: SegmentWeek}))
	assert.Error(t, b.Validate(HistoricalQuery{From: "2024-06-01", To: "2024-06-07", Segment: "month"}))
}

func TestBucketerToday(t *testing.T) {
	b := newBucketer(t)
	assert.Equal(t, "2024-06-03", b.Today(time.Date(2024, 6, 2, 17, 0, 0, 0, time.UTC)))
}

func TestNewBucketerRejectsUnknownZone(t *testing.T) {
	_, err := NewBucketer("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestParseSegment(t *testing.T) {
	for in, want := range map[string]Segment{"": SegmentNone, "none": SegmentNone, "day": SegmentDay, "week": SegmentWeek} {
		got, err := ParseSegment(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSegment("month")
	assert.Error(t, err)
}
