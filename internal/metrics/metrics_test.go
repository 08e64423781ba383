package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch("traffic", 120*time.Millisecond, nil)
	m.ObserveFetch("purchases", 80*time.Millisecond, errors.New("401"))
	m.ObserveReport("realtime", 7, nil)
	m.ObserveReport("historical", 0, errors.New("source down"))
	m.CacheLookup("report:historical:2024-06-01:2024-06-07:day", true)
	m.CacheLookup("report:realtime", false)
	m.SnapshotRun("ok", time.Second)
	m.SnapshotRun("skipped", 0)
	m.SalesNotified(3)

	if got := testutil.ToFloat64(m.fetchErrors.WithLabelValues("purchases")); got != 1 {
		t.Fatalf("expected purchases fetch errors=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.reportRows.WithLabelValues("realtime")); got != 7 {
		t.Fatalf("expected realtime rows=7, got %f", got)
	}
	if got := testutil.ToFloat64(m.reportErrors.WithLabelValues("historical")); got != 1 {
		t.Fatalf("expected historical errors=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("historical", "hit")); got != 1 {
		t.Fatalf("expected historical cache hits=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("realtime", "miss")); got != 1 {
		t.Fatalf("expected realtime cache misses=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.snapshotRuns.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("expected skipped runs=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.salesNotified); got != 3 {
		t.Fatalf("expected sales notified=3, got %f", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("traffic", time.Second, nil)
	m.ObserveReport("realtime", 1, nil)
	m.CacheLookup("report:realtime", true)
	m.SnapshotRun("ok", time.Second)
	m.SalesNotified(1)

	unregistered := New(nil)
	unregistered.ObserveFetch("traffic", time.Second, errors.New("x"))
}

func TestHandlerServesExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SalesNotified(1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "attribution_sales_notified_total 1") {
		t.Fatalf("exposition missing sales counter:\n%s", rec.Body.String())
	}
}

func TestCacheKind(t *testing.T) {
	cases := map[string]string{
		"report:realtime":            "realtime",
		"report:historical:a:b:none": "historical",
		"seen:viewer-1":              "other",
		"":                           "other",
	}
	for key, want := range cases {
		if got := cacheKind(key); got != want {
			t.Errorf("cacheKind(%q) = %q, want %q", key, got, want)
		}
	}
}
