package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/marketer-attribution/internal/attribution"
	"github.com/ignite/marketer-attribution/internal/mapping"
	"github.com/ignite/marketer-attribution/internal/metrics"
	"github.com/ignite/marketer-attribution/internal/notify"
	"github.com/ignite/marketer-attribution/internal/report"
	"github.com/ignite/marketer-attribution/internal/snapshot"
)

var testNow = time.Date(2024, 6, 12, 3, 0, 0, 0, time.UTC) // 10:00 in Ho Chi Minh

type fakeTraffic struct {
	realtime   report.RealtimeTraffic
	historical []report.TrafficRow
	err        error
	lastFrom   string
	lastTo     string
}

func (f *fakeTraffic) RealtimeTraffic(context.Context) (report.RealtimeTraffic, error) {
	return f.realtime, f.err
}

func (f *fakeTraffic) HistoricalTraffic(_ context.Context, from, to string, _ bool) ([]report.TrafficRow, error) {
	f.lastFrom, f.lastTo = from, to
	return f.historical, f.err
}

type fakePurchases struct {
	rows []report.PurchaseRow
}

func (f *fakePurchases) RecentPurchases(context.Context, time.Duration) ([]report.PurchaseRow, error) {
	return f.rows, nil
}

func (f *fakePurchases) Purchases(context.Context, time.Time, time.Time) ([]report.PurchaseRow, error) {
	return f.rows, nil
}

type fakeSales struct {
	sales []notify.Sale
	err   error
}

func (f *fakeSales) Poll(context.Context, string) ([]notify.Sale, error) {
	return f.sales, f.err
}

type testEnv struct {
	router  http.Handler
	traffic *fakeTraffic
	h       *Handlers
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	table, err := mapping.New(map[string]string{"MKT5": "Alice", "MKT1": "Bob"}, nil)
	require.NoError(t, err)
	resolver := attribution.NewResolver(table)
	bucketer, err := report.NewBucketer("Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	traffic := &fakeTraffic{
		realtime: report.RealtimeTraffic{
			Rows:        []report.TrafficRow{{Title: "Red Shoes – MKT5", ActiveUsers: 10, Views: 25}},
			ActiveUsers: 10,
			Views:       25,
		},
		historical: []report.TrafficRow{{Title: "Red Shoes – MKT5", Sessions: 40, ActiveUsers: 20, Views: 60}},
	}
	purchases := &fakePurchases{rows: []report.PurchaseRow{
		{OrderID: "1", ProductTitle: "Red Shoes MKT5", Quantity: 1, Revenue: 50, CreatedAt: testNow},
	}}

	svc, err := report.NewService(report.Config{
		Resolver:            resolver,
		Bucketer:            bucketer,
		RealtimeTraffic:     traffic,
		RealtimePurchases:   purchases,
		HistoricalTraffic:   traffic,
		HistoricalPurchases: purchases,
	})
	require.NoError(t, err)

	h := NewHandlers(svc, bucketer, table)
	h.now = func() time.Time { return testNow }
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	router := SetupRoutes(h, NewHealthChecker(nil, nil, nil, 0), metrics.Handler(reg), nil)
	return &testEnv{router: router, traffic: traffic, h: h}
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetRealtime(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/realtime")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.NotContains(t, body, "error")
	rows := body["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "red shoes", row["core_title"])
	assert.Equal(t, "MKT5", row["symbol"])
	assert.Equal(t, "Alice", row["marketer"])
	assert.Equal(t, 10.0, row["conversion_rate"])
	assert.Len(t, body["per_minute"], report.PerMinuteBuckets)
}

func TestGetRealtimeSourceErrorIsGraceful(t *testing.T) {
	env := setupTestEnv(t)
	env.traffic.err = errors.New("ga quota exceeded")

	rec := env.get(t, "/api/realtime")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Contains(t, body["error"], "traffic source")
	assert.Empty(t, body["rows"])
}

func TestGetHistorical(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/historical?from=2024-06-01&to=2024-06-07&segment=none")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	rows := body["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, 2.5, row["session_conversion_rate"])
	assert.Equal(t, 5.0, row["user_conversion_rate"])
}

func TestGetHistoricalDefaultsToLastWeek(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/historical")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-06-06", env.traffic.lastFrom)
	assert.Equal(t, "2024-06-12", env.traffic.lastTo)
}

func TestGetHistoricalRejectsBadParams(t *testing.T) {
	env := setupTestEnv(t)

	for _, target := range []string{
		"/api/historical?from=2024-06-07&to=2024-06-01",
		"/api/historical?from=2024-06-01&to=2024-06-07&segment=month",
		"/api/historical?from=June&to=2024-06-07",
		"/api/historical?from=2000-01-01",
	} {
		rec := env.get(t, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, decode(t, rec)["error"], target)
	}
}

func TestGetNewSales(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/sales/new?viewer=v1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	sales := &fakeSales{sales: []notify.Sale{{OrderID: "7", Marketer: "Alice", Message: "New Sale for Alice!"}}}
	env.h.SetSalesTracker(sales)

	rec = env.get(t, "/api/sales/new")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get(t, "/api/sales/new?viewer=v1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "v1", body["viewer"])
	require.Len(t, body["sales"], 1)

	sales.err = errors.New("shopify down")
	rec = env.get(t, "/api/sales/new?viewer=v1")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "shopify down", body["error"])
	assert.Empty(t, body["sales"])
}

func TestGetMarketers(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.get(t, "/api/marketers")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []interface{}{"Alice", "Bob"}, body["marketers"])
	assert.Equal(t, 2.0, body["symbols"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.get(t, "/api/realtime")

	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "attribution_")
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/realtime", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &snapshot.Snapshot{FetchedAt: testNow.Add(-30 * time.Second)}))

	hc := NewHealthChecker(db, client, store, time.Minute)
	hc.now = func() time.Time { return testNow }

	rec := httptest.NewRecorder()
	hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, statusUp, status.Checks["database"].Status)
	assert.Equal(t, statusUp, status.Checks["redis"].Status)
	assert.Equal(t, statusUp, status.Checks["snapshot"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(db, nil, nil, 0)
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestHealthStaleSnapshotDegrades(t *testing.T) {
	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &snapshot.Snapshot{FetchedAt: testNow.Add(-time.Hour)}))

	hc := NewHealthChecker(nil, nil, store, 5*time.Minute)
	hc.now = func() time.Time { return testNow }

	checks := hc.runAllChecks(context.Background())
	assert.Equal(t, statusNotConfigured, checks["database"].Status)
	assert.Equal(t, statusDegraded, checks["snapshot"].Status)
	assert.Equal(t, "degraded", determineOverallStatus(checks))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 3s", formatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1d 2h 0m 0s", formatUptime(26*time.Hour))
}
