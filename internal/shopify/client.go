// Package shopify reads orders from the Shopify Admin REST API and turns them
// into attributed purchase rows.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/marketer-attribution/internal/pkg/httpretry"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
)

const (
	defaultAPIVersion = "2024-01"
	defaultPageSize   = 250
	orderFields       = "id,name,line_items,total_shipping_price_set,subtotal_price,created_at,landing_site"
)

// Config holds store credentials.
type Config struct {
	StoreURL    string
	APIVersion  string
	AccessToken string
	PageSize    int
	Timeout     time.Duration
}

// Client is the Shopify Admin API client.
type Client struct {
	baseURL    *url.URL
	token      string
	pageSize   int
	httpClient httpretry.HTTPDoer
}

// NewClient creates a client for one store. StoreURL may be a bare domain
// ("demo.myshopify.com") or a full URL.
func NewClient(cfg Config) (*Client, error) {
	store := strings.TrimRight(strings.TrimSpace(cfg.StoreURL), "/")
	if store == "" {
		return nil, errors.New("shopify store url is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("shopify access token is required")
	}
	if !strings.Contains(store, "://") {
		store = "https://" + store
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	base, err := url.Parse(fmt.Sprintf("%s/admin/api/%s/", store, version))
	if err != nil {
		return nil, fmt.Errorf("parse shopify store url: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    base,
		token:      cfg.AccessToken,
		pageSize:   pageSize,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// RecentOrders returns every order created at or after since.
func (c *Client) RecentOrders(ctx context.Context, since time.Time) ([]Order, error) {
	params := c.baseParams()
	params.Set("created_at_min", since.UTC().Format(time.RFC3339))
	return c.listOrders(ctx, params)
}

// Orders returns every order created in [start, end). The API bound is
// inclusive, so the upper edge is filtered here.
func (c *Client) Orders(ctx context.Context, start, end time.Time) ([]Order, error) {
	params := c.baseParams()
	params.Set("created_at_min", start.UTC().Format(time.RFC3339))
	params.Set("created_at_max", end.UTC().Format(time.RFC3339))

	orders, err := c.listOrders(ctx, params)
	if err != nil {
		return nil, err
	}
	kept := orders[:0]
	for _, o := range orders {
		if !o.CreatedAt.Before(start) && o.CreatedAt.Before(end) {
			kept = append(kept, o)
		}
	}
	return kept, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("status", "any")
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("fields", orderFields)
	return params
}

// listOrders follows rel="next" links one page at a time; each page's link
// only exists once the previous page has been read.
func (c *Client) listOrders(ctx context.Context, params url.Values) ([]Order, error) {
	next := c.baseURL.ResolveReference(&url.URL{Path: "orders.json", RawQuery: params.Encode()})

	var orders []Order
	for page := 1; next != nil; page++ {
		body, header, err := c.doRequest(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("list orders page %d: %w", page, err)
		}

		var resp ordersResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode orders page %d: %w", page, err)
		}
		orders = append(orders, resp.Orders...)

		next, err = c.nextPage(header.Get("Link"))
		if err != nil {
			return nil, err
		}
	}
	logger.Debug("shopify: listed orders", "count", len(orders))
	return orders, nil
}

func (c *Client) nextPage(link string) (*url.URL, error) {
	raw := nextLink(link)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse next page link: %w", err)
	}
	if u.Host != c.baseURL.Host {
		return nil, fmt.Errorf("next page link points at foreign host %q", u.Host)
	}
	return u, nil
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, attr := range segs[1:] {
			attr = strings.ReplaceAll(strings.TrimSpace(attr), " ", "")
			if strings.EqualFold(attr, `rel="next"`) || strings.EqualFold(attr, "rel=next") {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

// doRequest performs an authenticated GET against the Admin API
func (c *Client) doRequest(ctx context.Context, u *url.URL) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 512))
	}
	return body, resp.Header, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
