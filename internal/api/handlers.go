package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/marketer-attribution/internal/mapping"
	"github.com/ignite/marketer-attribution/internal/notify"
	"github.com/ignite/marketer-attribution/internal/pkg/httputil"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
	"github.com/ignite/marketer-attribution/internal/report"
)

// defaultHistoricalDays is the range used when from/to are omitted.
const defaultHistoricalDays = 7

// ReportService builds the realtime and historical reports.
// *report.Service satisfies it.
type ReportService interface {
	Realtime(ctx context.Context) report.Result[*report.RealtimeReport]
	Historical(ctx context.Context, q report.HistoricalQuery) report.Result[*report.HistoricalReport]
}

// SalesTracker finds sales a viewer has not seen yet.
type SalesTracker interface {
	Poll(ctx context.Context, viewer string) ([]notify.Sale, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	reports  ReportService
	bucketer *report.Bucketer
	mapping  *mapping.Table
	sales    SalesTracker
	now      func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(reports ReportService, bucketer *report.Bucketer, table *mapping.Table) *Handlers {
	return &Handlers{
		reports:  reports,
		bucketer: bucketer,
		mapping:  table,
		now:      time.Now,
	}
}

// SetSalesTracker enables /api/sales/new
func (h *Handlers) SetSalesTracker(t SalesTracker) {
	h.sales = t
}

type realtimeResponse struct {
	*report.RealtimeReport
	Error string `json:"error,omitempty"`
}

type historicalResponse struct {
	*report.HistoricalReport
	Error string `json:"error,omitempty"`
}

type salesResponse struct {
	Viewer string        `json:"viewer"`
	Sales  []notify.Sale `json:"sales"`
	Error  string        `json:"error,omitempty"`
}

// GetRealtime serves the last-30-minutes attribution table. Source failures
// still answer 200 with an empty table and the error message.
//
//	GET /api/realtime
func (h *Handlers) GetRealtime(w http.ResponseWriter, r *http.Request) {
	res := h.reports.Realtime(r.Context())
	resp := realtimeResponse{RealtimeReport: res.Value()}
	if err := res.Err(); err != nil {
		resp.Error = err.Error()
	}
	httputil.OK(w, resp)
}

// GetHistorical serves the attribution table for a date range.
//
//	GET /api/historical?from=YYYY-MM-DD&to=YYYY-MM-DD&segment=none|day|week
func (h *Handlers) GetHistorical(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseHistoricalQuery(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res := h.reports.Historical(r.Context(), q)
	resp := historicalResponse{HistoricalReport: res.Value()}
	if err := res.Err(); err != nil {
		resp.Error = err.Error()
	}
	httputil.OK(w, resp)
}

func (h *Handlers) parseHistoricalQuery(r *http.Request) (report.HistoricalQuery, error) {
	params := r.URL.Query()
	seg, err := report.ParseSegment(strings.ToLower(strings.TrimSpace(params.Get("segment"))))
	if err != nil {
		return report.HistoricalQuery{}, err
	}

	to := strings.TrimSpace(params.Get("to"))
	if to == "" {
		to = h.bucketer.Today(h.now())
	}
	from := strings.TrimSpace(params.Get("from"))
	if from == "" {
		end, err := time.ParseInLocation("2006-01-02", to, h.bucketer.Location())
		if err != nil {
			return report.HistoricalQuery{}, err
		}
		from = end.AddDate(0, 0, -(defaultHistoricalDays - 1)).Format("2006-01-02")
	}

	q := report.HistoricalQuery{From: from, To: to, Segment: seg}
	if err := h.bucketer.Validate(q); err != nil {
		return report.HistoricalQuery{}, err
	}
	return q, nil
}

// GetNewSales returns orders the viewer has not been shown yet.
//
//	GET /api/sales/new?viewer=<id>
func (h *Handlers) GetNewSales(w http.ResponseWriter, r *http.Request) {
	if h.sales == nil {
		httputil.ServiceUnavailable(w, "sale notifications are not configured")
		return
	}
	viewer := strings.TrimSpace(r.URL.Query().Get("viewer"))
	if viewer == "" {
		httputil.BadRequest(w, "viewer is required")
		return
	}

	sales, err := h.sales.Poll(r.Context(), viewer)
	resp := salesResponse{Viewer: viewer, Sales: sales}
	if err != nil {
		logger.Warn("api: new sales poll failed", "viewer", viewer, "error", err)
		resp.Sales = []notify.Sale{}
		resp.Error = err.Error()
	}
	if resp.Sales == nil {
		resp.Sales = []notify.Sale{}
	}
	httputil.OK(w, resp)
}

// GetMarketers lists the marketers known to the mapping.
//
//	GET /api/marketers
func (h *Handlers) GetMarketers(w http.ResponseWriter, r *http.Request) {
	marketers, symbols := []string{}, 0
	if h.mapping != nil {
		marketers = h.mapping.Marketers()
		symbols = len(h.mapping.Symbols())
	}
	httputil.OK(w, map[string]interface{}{
		"marketers": marketers,
		"symbols":   symbols,
	})
}
