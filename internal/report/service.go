package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/marketer-attribution/internal/attribution"
	"github.com/ignite/marketer-attribution/internal/pkg/logger"
)

// RealtimeTrafficSource reports activity over the recent window.
type RealtimeTrafficSource interface {
	RealtimeTraffic(ctx context.Context) (RealtimeTraffic, error)
}

// RealtimePurchaseSource lists line items of orders created within window.
type RealtimePurchaseSource interface {
	RecentPurchases(ctx context.Context, window time.Duration) ([]PurchaseRow, error)
}

// HistoricalTrafficSource reports traffic for an inclusive civil date range.
// When withDate is set every row carries its date.
type HistoricalTrafficSource interface {
	HistoricalTraffic(ctx context.Context, from, to string, withDate bool) ([]TrafficRow, error)
}

// HistoricalPurchaseSource lists line items of orders created in [start, end).
type HistoricalPurchaseSource interface {
	Purchases(ctx context.Context, start, end time.Time) ([]PurchaseRow, error)
}

// Cache memoizes encoded reports. cache.Memo satisfies it.
type Cache interface {
	Do(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error)
}

// Recorder receives fetch and build metrics. It may be nil.
type Recorder interface {
	ObserveFetch(source string, d time.Duration, err error)
	ObserveReport(kind string, rows int, err error)
}

const (
	SourceTraffic   = "traffic"
	SourcePurchases = "purchases"

	// RealtimeCacheKey holds the encoded realtime report.
	RealtimeCacheKey = "report:realtime"
)

// Config holds the service collaborators. Sources left nil make the matching
// report fail with a SourceError.
type Config struct {
	Resolver *attribution.Resolver
	Bucketer *Bucketer

	RealtimeTraffic     RealtimeTrafficSource
	RealtimePurchases   RealtimePurchaseSource
	HistoricalTraffic   HistoricalTrafficSource
	HistoricalPurchases HistoricalPurchaseSource

	Cache         Cache
	RealtimeTTL   time.Duration
	HistoricalTTL time.Duration
	Window        time.Duration
	Recorder      Recorder
}

// Service builds realtime and historical reports.
type Service struct {
	cfg Config
	now func() time.Time
}

// NewService validates cfg and fills defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("report service: resolver is required")
	}
	if cfg.Bucketer == nil {
		return nil, fmt.Errorf("report service: bucketer is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Minute
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// Realtime returns the realtime report. On any source failure the value is an
// empty report and Err carries a *SourceError.
func (s *Service) Realtime(ctx context.Context) Result[*RealtimeReport] {
	data, err := s.memo(ctx, RealtimeCacheKey, s.cfg.RealtimeTTL, func(ctx context.Context) ([]byte, error) {
		rep, err := s.buildRealtime(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rep)
	})
	if err != nil {
		s.recordReport("realtime", 0, err)
		logger.Warn("report: realtime build failed", "error", err)
		return Fail(EmptyRealtimeReport(s.now()), err)
	}

	var rep RealtimeReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return Fail(EmptyRealtimeReport(s.now()), fmt.Errorf("decode cached realtime report: %w", err))
	}
	s.recordReport("realtime", len(rep.Rows), nil)
	return Ok(&rep)
}

func (s *Service) buildRealtime(ctx context.Context) (*RealtimeReport, error) {
	if s.cfg.RealtimeTraffic == nil || s.cfg.RealtimePurchases == nil {
		return nil, &SourceError{Source: SourceTraffic, Err: fmt.Errorf("realtime sources not configured")}
	}

	var (
		traffic   RealtimeTraffic
		purchases []PurchaseRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		traffic, err = timed(s, SourceTraffic, func() (RealtimeTraffic, error) {
			return s.cfg.RealtimeTraffic.RealtimeTraffic(gctx)
		})
		return err
	})
	g.Go(func() error {
		var err error
		purchases, err = timed(s, SourcePurchases, func() ([]PurchaseRow, error) {
			return s.cfg.RealtimePurchases.RecentPurchases(gctx, s.cfg.Window)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BuildRealtimeReport(traffic, purchases, s.cfg.Resolver, s.now()), nil
}

// Historical returns the historical report for q. Invalid queries are
// rejected before any source is called.
func (s *Service) Historical(ctx context.Context, q HistoricalQuery) Result[*HistoricalReport] {
	seg, err := ParseSegment(string(q.Segment))
	if err != nil {
		return Fail(EmptyHistoricalReport(q, s.now()), err)
	}
	q.Segment = seg
	start, end, err := s.cfg.Bucketer.Range(q.From, q.To)
	if err != nil {
		return Fail(EmptyHistoricalReport(q, s.now()), err)
	}

	data, err := s.memo(ctx, q.CacheKey(), s.cfg.HistoricalTTL, func(ctx context.Context) ([]byte, error) {
		rep, err := s.buildHistorical(ctx, q, start, end)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rep)
	})
	if err != nil {
		s.recordReport("historical", 0, err)
		logger.Warn("report: historical build failed", "from", q.From, "to", q.To, "segment", q.Segment, "error", err)
		return Fail(EmptyHistoricalReport(q, s.now()), err)
	}

	var rep HistoricalReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return Fail(EmptyHistoricalReport(q, s.now()), fmt.Errorf("decode cached historical report: %w", err))
	}
	s.recordReport("historical", len(rep.Rows), nil)
	return Ok(&rep)
}

func (s *Service) buildHistorical(ctx context.Context, q HistoricalQuery, start, end time.Time) (*HistoricalReport, error) {
	if s.cfg.HistoricalTraffic == nil || s.cfg.HistoricalPurchases == nil {
		return nil, &SourceError{Source: SourceTraffic, Err: fmt.Errorf("historical sources not configured")}
	}

	var (
		traffic   []TrafficRow
		purchases []PurchaseRow
	)
	withDate := q.Segment != SegmentNone
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		traffic, err = timed(s, SourceTraffic, func() ([]TrafficRow, error) {
			return s.cfg.HistoricalTraffic.HistoricalTraffic(gctx, q.From, q.To, withDate)
		})
		return err
	})
	g.Go(func() error {
		var err error
		purchases, err = timed(s, SourcePurchases, func() ([]PurchaseRow, error) {
			return s.cfg.HistoricalPurchases.Purchases(gctx, start, end)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BuildHistoricalReport(q, traffic, purchases, s.cfg.Resolver, s.cfg.Bucketer, s.now()), nil
}

func (s *Service) memo(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if s.cfg.Cache == nil || ttl <= 0 {
		return load(ctx)
	}
	return s.cfg.Cache.Do(ctx, key, ttl, load)
}

// timed runs fetch, wraps its error as a SourceError and records latency.
func timed[T any](s *Service, source string, fetch func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fetch()
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.ObserveFetch(source, time.Since(start), err)
	}
	if err != nil {
		return v, &SourceError{Source: source, Err: err}
	}
	return v, nil
}

func (s *Service) recordReport(kind string, rows int, err error) {
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.ObserveReport(kind, rows, err)
	}
}
