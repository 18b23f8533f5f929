package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
	"github.com/aevon-lab/healthquery/internal/core/aggregation"
	"github.com/aevon-lab/healthquery/internal/core/cursor"
	"github.com/aevon-lab/healthquery/internal/core/metric"
	"github.com/aevon-lab/healthquery/internal/pagination"
	"github.com/aevon-lab/healthquery/internal/telemetry"
)

// Operation labels for request telemetry.
const (
	opAggregate = "aggregate"
	opQueryPage = "query_page"
	opQueryAll  = "query_all"
	opCatalog   = "catalog"
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
// It is joined with the specific cause (ErrInvalidRange, ErrInvalidCursor, ...).
var ErrInvalidQuery = errors.New("invalid query")

// Options configures a Service.
type Options struct {
	Calendar           aggregation.Calendar
	DefaultGranularity aggregation.Granularity

	// RequestTimeout bounds each HTTP request's context. 0 disables it.
	RequestTimeout time.Duration

	// Recorder receives request and skipped-record metrics; nil disables them.
	Recorder *telemetry.Recorder
}

// Service implements the two read paths: bucketed aggregation and paged records.
// It keeps no per-request state; concurrent calls are independent.
type Service struct {
	metrics            *metric.Table
	pages              *pagination.Paginator
	calendar           aggregation.Calendar
	defaultGranularity aggregation.Granularity
	requestTimeout     time.Duration
	recorder           *telemetry.Recorder
}

// NewService creates a new query service.
func NewService(metrics *metric.Table, pages *pagination.Paginator, opts Options) *Service {
	if opts.Calendar.Location == nil {
		opts.Calendar.Location = time.UTC
	}
	if opts.DefaultGranularity == "" {
		opts.DefaultGranularity = aggregation.DefaultGranularity
	}

	return &Service{
		metrics:            metrics,
		pages:              pages,
		calendar:           opts.Calendar,
		defaultGranularity: opts.DefaultGranularity,
		requestTimeout:     opts.RequestTimeout,
		recorder:           opts.Recorder,
	}
}

// Aggregate buckets the metric's records over the range and reduces each bucket
// by the metric's kind. Records are streamed page by page; a failure at any page
// discards all partial bucket state.
func (s *Service) Aggregate(ctx context.Context, req AggregateRequest) (resp *AggregateResponse, err error) {
	defer func() { s.recorder.Request(opAggregate, outcomeOf(err)) }()

	if err := validateTarget(req.MetricType, req.Range); err != nil {
		return nil, err
	}

	kind, err := s.metrics.Classify(req.MetricType)
	if err != nil {
		return nil, err
	}

	granularity, cal, err := s.resolveCalendar(req)
	if err != nil {
		return nil, err
	}

	buckets, err := aggregation.BuildBuckets(req.Range, granularity, cal)
	if err != nil {
		if errors.Is(err, aggregation.ErrTooManyBuckets) || errors.Is(err, aggregation.ErrInvalidRange) {
			return nil, invalidQuery(err)
		}
		return nil, fmt.Errorf("build buckets: %w", err)
	}

	acc, err := aggregation.NewAccumulator(buckets, kind)
	if err != nil {
		return nil, fmt.Errorf("prepare aggregation: %w", err)
	}

	if err := s.pages.Scan(ctx, req.MetricType, req.Range, acc.Fold); err != nil {
		slog.Error("[Query] Aggregation aborted",
			"metric_type", req.MetricType,
			"granularity", granularity,
			"error", err)
		return nil, fmt.Errorf("aggregate %s: %w", req.MetricType, err)
	}

	unit := s.metrics.UnitFor(req.MetricType)
	result := acc.Result(unit)

	if result.Skipped > 0 {
		slog.Warn("[Query] Records outside every bucket were skipped",
			"metric_type", req.MetricType,
			"skipped", result.Skipped,
			"start", req.Range.Start,
			"end", req.Range.End)
		s.recorder.RecordsSkipped(req.MetricType, result.Skipped)
	}

	return &AggregateResponse{
		MetricType:     req.MetricType,
		Kind:           kind,
		Unit:           unit,
		Granularity:    granularity,
		TimeZone:       cal.Location.String(),
		WeekStart:      strings.ToLower(cal.WeekStart.String()),
		Start:          req.Range.Start.In(cal.Location),
		End:            req.Range.End.In(cal.Location),
		SkippedRecords: result.Skipped,
		Buckets:        result.Buckets,
	}, nil
}

// QueryPage returns one page of raw records and, when more remain, a cursor.
func (s *Service) QueryPage(ctx context.Context, req RecordsRequest) (resp *RecordsResponse, err error) {
	defer func() { s.recorder.Request(opQueryPage, outcomeOf(err)) }()

	if err := validateTarget(req.MetricType, req.Range); err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, invalidQueryf("limit must be >= 0, got %d", req.Limit)
	}
	if _, err := s.metrics.Classify(req.MetricType); err != nil {
		return nil, err
	}

	page, err := s.pages.FetchPage(ctx, pagination.Request{
		MetricType: req.MetricType,
		Range:      req.Range,
		Limit:      req.Limit,
		Cursor:     req.Cursor,
	})
	if err != nil {
		if errors.Is(err, cursor.ErrInvalidCursor) {
			slog.Warn("[Query] Rejected cursor", "metric_type", req.MetricType, "error", err)
			return nil, invalidQuery(err)
		}
		if errors.Is(err, pagination.ErrInvalidLimit) {
			return nil, invalidQuery(err)
		}
		return nil, fmt.Errorf("query records %s: %w", req.MetricType, err)
	}

	return &RecordsResponse{
		MetricType: req.MetricType,
		Records:    nonNil(page.Records),
		NextCursor: page.NextCursor,
	}, nil
}

// QueryAll enumerates every record of the range, looping over source pages
// until exhaustion. It may take arbitrarily long and stops when ctx ends.
func (s *Service) QueryAll(ctx context.Context, metricType string, rng aggregation.TimeRange) (resp *RecordsResponse, err error) {
	defer func() { s.recorder.Request(opQueryAll, outcomeOf(err)) }()

	if err := validateTarget(metricType, rng); err != nil {
		return nil, err
	}
	if _, err := s.metrics.Classify(metricType); err != nil {
		return nil, err
	}

	records, err := s.pages.FetchAll(ctx, metricType, rng)
	if err != nil {
		return nil, fmt.Errorf("query all records %s: %w", metricType, err)
	}

	return &RecordsResponse{MetricType: metricType, Records: nonNil(records)}, nil
}

// Catalog lists every metric the service can classify.
func (s *Service) Catalog() *CatalogResponse {
	s.recorder.Request(opCatalog, telemetry.OutcomeOK)
	return &CatalogResponse{Metrics: s.metrics.Definitions()}
}

func (s *Service) resolveCalendar(req AggregateRequest) (aggregation.Granularity, aggregation.Calendar, error) {
	cal := s.calendar

	granularity := s.defaultGranularity
	if req.Granularity != "" {
		g, err := aggregation.ParseGranularity(req.Granularity)
		if err != nil {
			return "", cal, invalidQuery(err)
		}
		granularity = g
	}

	if tz := strings.TrimSpace(req.TimeZone); tz != "" {
		if tz == "Local" {
			return "", cal, invalidQueryf("time zone must be an IANA name, got %q", tz)
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", cal, invalidQueryf("unknown time zone %q", tz)
		}
		cal.Location = loc
	}

	if req.WeekStart != "" {
		ws, err := aggregation.ParseWeekStart(req.WeekStart)
		if err != nil {
			return "", cal, invalidQuery(err)
		}
		cal.WeekStart = ws
	}

	return granularity, cal, nil
}

func validateTarget(metricType string, rng aggregation.TimeRange) error {
	if strings.TrimSpace(metricType) == "" {
		return invalidQueryf("metric_type is required")
	}
	if err := rng.Validate(); err != nil {
		return invalidQuery(err)
	}
	return nil
}

func invalidQuery(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidQuery, cause)
}

func invalidQueryf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// outcomeOf labels an operation's result for telemetry.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, metric.ErrUnknownMetricType):
		return telemetry.OutcomeRejected
	default:
		return telemetry.OutcomeError
	}
}

func nonNil(records []v1.Record) []v1.Record {
	if records == nil {
		return []v1.Record{}
	}
	return records
}
