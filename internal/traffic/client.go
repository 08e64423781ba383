// Package traffic reads page activity from a Google Analytics 4 property
// through the Analytics Data API.
package traffic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"github.com/ignite/marketer-attribution/internal/pkg/logger"
	"github.com/ignite/marketer-attribution/internal/report"
)

const (
	defaultPageSize = 10000
	// The realtime API does not page; it returns at most this many rows.
	realtimeLimit = 10000
)

// Config selects the property and credentials.
type Config struct {
	PropertyID      string
	CredentialsJSON string
	CredentialsFile string
	PageSize        int64
}

// Client wraps the Analytics Data API for one property.
type Client struct {
	svc      *analyticsdata.Service
	property string
	pageSize int64
}

// NewClient builds a client authenticated with a service-account key. Extra
// options are appended last, so tests can redirect the endpoint.
func NewClient(ctx context.Context, cfg Config, extra ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.PropertyID) == "" {
		return nil, errors.New("analytics property id is required")
	}

	opts, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create analytics data service: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	property := cfg.PropertyID
	if !strings.HasPrefix(property, "properties/") {
		property = "properties/" + property
	}
	return &Client{svc: svc, property: property, pageSize: pageSize}, nil
}

func clientOptions(ctx context.Context, cfg Config) ([]option.ClientOption, error) {
	keyJSON := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	if len(keyJSON) == 0 && strings.TrimSpace(cfg.CredentialsFile) != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read analytics credentials: %w", err)
		}
		keyJSON = data
	}
	if len(keyJSON) == 0 {
		// Application default credentials.
		return nil, nil
	}

	jwt, err := google.JWTConfigFromJSON(keyJSON, analyticsdata.AnalyticsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse analytics service account: %w", err)
	}
	return []option.ClientOption{option.WithTokenSource(jwt.TokenSource(ctx))}, nil
}

// RealtimeTraffic returns activity per page title over the last 30 minutes,
// the per-minute active users series and the property totals. Page rows and
// the series come from separate requests; page rows count each visitor once
// per page.
func (c *Client) RealtimeTraffic(ctx context.Context) (report.RealtimeTraffic, error) {
	var out report.RealtimeTraffic

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := c.runRealtime(gctx, &analyticsdata.RunRealtimeReportRequest{
			Dimensions: []*analyticsdata.Dimension{{Name: "unifiedScreenName"}},
			Metrics: []*analyticsdata.Metric{
				{Name: "activeUsers"},
				{Name: "screenPageViews"},
			},
			MetricAggregations: []string{"TOTAL"},
			Limit:              realtimeLimit,
		})
		if err != nil {
			return fmt.Errorf("run realtime page report: %w", err)
		}
		out.Rows = make([]report.TrafficRow, 0, len(resp.Rows))
		for _, row := range resp.Rows {
			out.Rows = append(out.Rows, report.TrafficRow{
				Title:       dimension(row, 0),
				ActiveUsers: metricInt(metric(row, 0)),
				Views:       metricInt(metric(row, 1)),
			})
		}
		if len(resp.Totals) > 0 {
			out.ActiveUsers = metricInt(metric(resp.Totals[0], 0))
			out.Views = metricInt(metric(resp.Totals[0], 1))
		}
		if int64(len(resp.Rows)) < resp.RowCount {
			logger.Warn("traffic: realtime report truncated", "rows", len(resp.Rows), "row_count", resp.RowCount)
		}
		return nil
	})
	g.Go(func() error {
		resp, err := c.runRealtime(gctx, &analyticsdata.RunRealtimeReportRequest{
			Dimensions: []*analyticsdata.Dimension{{Name: "minutesAgo"}},
			Metrics:    []*analyticsdata.Metric{{Name: "activeUsers"}},
		})
		if err != nil {
			return fmt.Errorf("run realtime minute report: %w", err)
		}
		out.Minutes = make([]report.MinuteUsers, 0, len(resp.Rows))
		for _, row := range resp.Rows {
			out.Minutes = append(out.Minutes, report.MinuteUsers{
				MinutesAgo:  int(metricInt(dimension(row, 0))),
				ActiveUsers: metricInt(metric(row, 0)),
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return report.RealtimeTraffic{}, err
	}
	return out, nil
}

func (c *Client) runRealtime(ctx context.Context, req *analyticsdata.RunRealtimeReportRequest) (*analyticsdata.RunRealtimeReportResponse, error) {
	return c.svc.Properties.RunRealtimeReport(c.property, req).Context(ctx).Do()
}

// HistoricalTraffic returns sessions, users and views per page title (and per
// date when withDate is set) for the inclusive range [from, to].
func (c *Client) HistoricalTraffic(ctx context.Context, from, to string, withDate bool) ([]report.TrafficRow, error) {
	dims := []*analyticsdata.Dimension{{Name: "pageTitle"}}
	if withDate {
		dims = append(dims, &analyticsdata.Dimension{Name: "date"})
	}

	var rows []report.TrafficRow
	var offset int64
	for {
		req := &analyticsdata.RunReportRequest{
			DateRanges: []*analyticsdata.DateRange{{StartDate: from, EndDate: to}},
			Dimensions: dims,
			Metrics: []*analyticsdata.Metric{
				{Name: "sessions"},
				{Name: "activeUsers"},
				{Name: "screenPageViews"},
			},
			Limit:  c.pageSize,
			Offset: offset,
		}

		resp, err := c.svc.Properties.RunReport(c.property, req).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("run report (offset %d): %w", offset, err)
		}

		for _, row := range resp.Rows {
			tr := report.TrafficRow{
				Title:       dimension(row, 0),
				Sessions:    metricInt(metric(row, 0)),
				ActiveUsers: metricInt(metric(row, 1)),
				Views:       metricInt(metric(row, 2)),
			}
			if withDate {
				tr.Date = isoDate(dimension(row, 1))
			}
			rows = append(rows, tr)
		}

		offset += int64(len(resp.Rows))
		if len(resp.Rows) == 0 || offset >= resp.RowCount {
			break
		}
	}
	return rows, nil
}

func dimension(row *analyticsdata.Row, i int) string {
	if row == nil || i >= len(row.DimensionValues) || row.DimensionValues[i] == nil {
		return ""
	}
	return row.DimensionValues[i].Value
}

func metric(row *analyticsdata.Row, i int) string {
	if row == nil || i >= len(row.MetricValues) || row.MetricValues[i] == nil {
		return ""
	}
	return row.MetricValues[i].Value
}

// metricInt parses a metric value. Unparseable values count as zero.
func metricInt(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// isoDate turns the API's YYYYMMDD into YYYY-MM-DD.
func isoDate(v string) string {
	if len(v) != 8 {
		return v
	}
	return v[:4] + "-" + v[4:6] + "-" + v[6:]
}
