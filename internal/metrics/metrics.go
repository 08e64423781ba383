// Package metrics exposes Prometheus collectors for source fetches, report
// builds, the report cache, the snapshot worker and sale notifications.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attribution"

// Metrics groups the collectors.
type Metrics struct {
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	reportRows    *prometheus.GaugeVec
	reportErrors  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	snapshotRuns  *prometheus.CounterVec
	snapshotTime  prometheus.Histogram
	salesNotified prometheus.Counter
}

// New registers the collectors on reg. A nil reg yields no-op metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Duration of upstream source fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_errors_total",
			Help:      "Failed upstream source fetches.",
		}, []string{"source"}),
		reportRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_rows",
			Help:      "Rows in the most recently served report.",
		}, []string{"kind"}),
		reportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_errors_total",
			Help:      "Reports served empty because a source failed.",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Report cache lookups by result.",
		}, []string{"kind", "result"}),
		snapshotRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_runs_total",
			Help:      "Snapshot worker ticks by outcome.",
		}, []string{"result"}),
		snapshotTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of snapshot fetch and save.",
			Buckets:   prometheus.DefBuckets,
		}),
		salesNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_notified_total",
			Help:      "New sales reported to dashboard viewers.",
		}),
	}
	reg.MustRegister(m.fetchDuration, m.fetchErrors, m.reportRows, m.reportErrors,
		m.cacheLookups, m.snapshotRuns, m.snapshotTime, m.salesNotified)
	return m
}

// ObserveFetch records one source fetch.
func (m *Metrics) ObserveFetch(source string, d time.Duration, err error) {
	if m == nil || m.fetchDuration == nil {
		return
	}
	source = label(source)
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(source).Inc()
	}
}

// ObserveReport records one served report.
func (m *Metrics) ObserveReport(kind string, rows int, err error) {
	if m == nil || m.reportRows == nil {
		return
	}
	kind = label(kind)
	if err != nil {
		m.reportErrors.WithLabelValues(kind).Inc()
		return
	}
	m.reportRows.WithLabelValues(kind).Set(float64(rows))
}

// CacheLookup records a cache hit or miss. Keys look like
// "report:<kind>:..."; only the kind becomes a label.
func (m *Metrics) CacheLookup(key string, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cacheKind(key), result).Inc()
}

// SnapshotRun records one worker tick. result is "ok", "error" or "skipped".
func (m *Metrics) SnapshotRun(result string, d time.Duration) {
	if m == nil || m.snapshotRuns == nil {
		return
	}
	m.snapshotRuns.WithLabelValues(label(result)).Inc()
	if result == "ok" {
		m.snapshotTime.Observe(d.Seconds())
	}
}

// SalesNotified adds n notified sales.
func (m *Metrics) SalesNotified(n int) {
	if m == nil || m.salesNotified == nil || n <= 0 {
		return
	}
	m.salesNotified.Add(float64(n))
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func cacheKind(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) >= 2 && parts[0] == "report" {
		return label(parts[1])
	}
	return "other"
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
