package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{StoreURL: srv.URL, APIVersion: "2024-01", AccessToken: "shpat_test"})
	require.NoError(t, err)
	c.SetHTTPClient(srv.Client())
	return c
}

func TestRecentOrdersFollowsPagination(t *testing.T) {
	var srvURL string
	var pages []string

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/orders.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		q := r.URL.Query()
		pages = append(pages, q.Get("page_info"))

		switch q.Get("page_info") {
		case "":
			assert.Equal(t, "any", q.Get("status"))
			assert.Equal(t, "2024-06-01T09:30:00Z", q.Get("created_at_min"))
			assert.Contains(t, q.Get("fields"), "landing_site")
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/orders.json?limit=250&page_info=p2>; rel="next"`, srvURL))
			fmt.Fprint(w, `{"orders":[{"id":1,"created_at":"2024-06-01T10:00:00Z","line_items":[]}]}`)
		case "p2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/orders.json?limit=250&page_info=p1>; rel="previous", <%s/admin/api/2024-01/orders.json?limit=250&page_info=p3>; rel="next"`, srvURL, srvURL))
			fmt.Fprint(w, `{"orders":[{"id":2,"created_at":"2024-06-01T10:05:00Z","line_items":[]}]}`)
		case "p3":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/orders.json?limit=250&page_info=p2>; rel="previous"`, srvURL))
			fmt.Fprint(w, `{"orders":[{"id":3,"created_at":"2024-06-01T10:10:00Z","line_items":[]}]}`)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c, err := NewClient(Config{StoreURL: srv.URL, AccessToken: "shpat_test"})
	require.NoError(t, err)
	c.SetHTTPClient(srv.Client())

	orders, err := c.RecentOrders(context.Background(), time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, orders, 3)
	assert.Equal(t, []string{"", "p2", "p3"}, pages)
	assert.Equal(t, int64(3), orders[2].ID)
}

func TestOrdersFiltersHalfOpenRange(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"orders":[
			{"id":1,"created_at":"2024-05-31T16:59:59Z","line_items":[]},
			{"id":2,"created_at":"2024-05-31T17:00:00Z","line_items":[]},
			{"id":3,"created_at":"2024-06-01T16:59:59Z","line_items":[]},
			{"id":4,"created_at":"2024-06-01T17:00:00Z","line_items":[]}
		]}`)
	}))

	start := time.Date(2024, 5, 31, 17, 0, 0, 0, time.UTC)
	orders, err := c.Orders(context.Background(), start, start.Add(24*time.Hour))
	require.NoError(t, err)

	require.Len(t, orders, 2)
	assert.Equal(t, int64(2), orders[0].ID)
	assert.Equal(t, int64(3), orders[1].ID)
}

func TestListOrdersAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":"[API] Invalid API key or access token"}`)
	}))

	_, err := c.RecentOrders(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestListOrdersRejectsForeignNextLink(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", `<https://evil.example/admin/api/2024-01/orders.json?page_info=x>; rel="next"`)
		fmt.Fprint(w, `{"orders":[]}`)
	}))

	_, err := c.RecentOrders(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foreign host")
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{`<https://s/a?page_info=1>; rel="next"`, "https://s/a?page_info=1"},
		{`<https://s/a?page_info=0>; rel="previous", <https://s/a?page_info=2>; rel="next"`, "https://s/a?page_info=2"},
		{`<https://s/a?page_info=0>; rel="previous"`, ""},
		{`garbage`, ""},
	}
	for _, tt := range tests {
		if got := nextLink(tt.header); got != tt.want {
			t.Errorf("nextLink(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{AccessToken: "x"})
	assert.Error(t, err)
	_, err = NewClient(Config{StoreURL: "demo.myshopify.com"})
	assert.Error(t, err)

	c, err := NewClient(Config{StoreURL: "demo.myshopify.com", AccessToken: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2024-01/", c.baseURL.String())
	assert.Equal(t, defaultPageSize, c.pageSize)
}
