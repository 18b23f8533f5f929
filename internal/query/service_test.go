package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
	"github.com/aevon-lab/healthquery/internal/core/aggregation"
	"github.com/aevon-lab/healthquery/internal/core/cursor"
	"github.com/aevon-lab/healthquery/internal/core/metric"
	"github.com/aevon-lab/healthquery/internal/core/storage"
	"github.com/aevon-lab/healthquery/internal/core/storage/memory"
	storagemocks "github.com/aevon-lab/healthquery/internal/mocks/storage"
	"github.com/aevon-lab/healthquery/internal/pagination"
	"github.com/aevon-lab/healthquery/internal/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	day1 = time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	day3 = day1.Add(72 * time.Hour)

	threeDays = aggregation.TimeRange{Start: day1, End: day3}
)

func newRecord(metricType string, start time.Time, value string) v1.Record {
	return v1.Record{
		ID:         uuid.New(),
		MetricType: metricType,
		StartTime:  start,
		EndTime:    start,
		Value:      decimal.RequireFromString(value),
		SourceID:   "watch-1",
	}
}

func newMemoryService(t *testing.T, pageSize int, records ...v1.Record) (*Service, *memory.Source) {
	t.Helper()

	src := memory.NewSource()
	require.NoError(t, src.Load(records...))

	svc := NewService(metric.Builtin(), pagination.New(src, pageSize, 100), Options{
		Calendar: aggregation.DefaultCalendar(),
	})
	return svc, src
}

func TestService_Aggregate_CumulativeDailyExample(t *testing.T) {
	svc, _ := newMemoryService(t, 2,
		newRecord("steps", day1.Add(8*time.Hour), "100"),
		newRecord("steps", day1.Add(18*time.Hour), "200"),
		newRecord("steps", day1.Add(30*time.Hour), "50"),
		newRecord("heart_rate", day1.Add(8*time.Hour), "70"),
	)

	resp, err := svc.Aggregate(context.Background(), AggregateRequest{MetricType: "steps", Range: threeDays})
	require.NoError(t, err)

	require.Equal(t, metric.Cumulative, resp.Kind)
	require.Equal(t, "count", resp.Unit)
	require.Equal(t, aggregation.Day, resp.Granularity)
	require.Equal(t, "UTC", resp.TimeZone)
	require.Equal(t, "monday", resp.WeekStart)
	require.Zero(t, resp.SkippedRecords)

	require.Len(t, resp.Buckets, 3)
	want := []struct {
		value   string
		samples int64
	}{{"300", 2}, {"50", 1}, {"0", 0}}
	for i, w := range want {
		require.Equal(t, w.value, resp.Buckets[i].Value.String(), "bucket %d", i)
		require.Equal(t, w.samples, resp.Buckets[i].SampleCount, "bucket %d", i)
		require.Equal(t, "count", resp.Buckets[i].Unit)
	}
}

func TestService_Aggregate_DiscreteMeanAndEmptyBucket(t *testing.T) {
	svc, _ := newMemoryService(t, 10,
		newRecord("heart_rate", day1.Add(1*time.Hour), "60"),
		newRecord("heart_rate", day1.Add(2*time.Hour), "70"),
		newRecord("heart_rate", day1.Add(3*time.Hour), "80"),
	)

	resp, err := svc.Aggregate(context.Background(), AggregateRequest{MetricType: "heart_rate", Range: threeDays})
	require.NoError(t, err)
	require.Equal(t, metric.Discrete, resp.Kind)
	require.Len(t, resp.Buckets, 3)
	require.Equal(t, "70", resp.Buckets[0].Value.String())
	require.Equal(t, int64(3), resp.Buckets[0].SampleCount)
	require.True(t, resp.Buckets[1].Value.IsZero())
	require.Zero(t, resp.Buckets[1].SampleCount)
}

func TestService_Aggregate_TimeZoneOverride(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2025-11-02 is the US fall-back day: 25 hours long in New York.
	start := time.Date(2025, 11, 2, 0, 0, 0, 0, ny)
	end := time.Date(2025, 11, 3, 0, 0, 0, 0, ny)

	svc, _ := newMemoryService(t, 10,
		newRecord("steps", start.Add(30*time.Minute), "1"),
		newRecord("steps", start.Add(24*time.Hour+30*time.Minute), "2"),
	)

	resp, err := svc.Aggregate(context.Background(), AggregateRequest{
		MetricType: "steps",
		Range:      aggregation.TimeRange{Start: start, End: end},
		TimeZone:   "America/New_York",
	})
	require.NoError(t, err)
	require.Equal(t, "America/New_York", resp.TimeZone)
	require.Len(t, resp.Buckets, 1)
	require.Equal(t, 25*time.Hour, resp.Buckets[0].EndTime.Sub(resp.Buckets[0].StartTime))
	require.Equal(t, "3", resp.Buckets[0].Value.String())
}

func TestService_Aggregate_Idempotent(t *testing.T) {
	var records []v1.Record
	for i := range 40 {
		records = append(records, newRecord("distance", day1.Add(time.Duration(i)*97*time.Minute), fmt.Sprintf("%d.25", i)))
	}
	svc, _ := newMemoryService(t, 7, records...)

	req := AggregateRequest{MetricType: "distance", Range: threeDays, Granularity: "hour"}
	first, err := svc.Aggregate(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Aggregate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, second.Buckets, len(first.Buckets))
	total := decimal.Zero
	for i := range first.Buckets {
		require.True(t, first.Buckets[i].Value.Equal(second.Buckets[i].Value))
		require.Equal(t, first.Buckets[i].SampleCount, second.Buckets[i].SampleCount)
		total = total.Add(first.Buckets[i].Value)
	}

	want := decimal.Zero
	for _, r := range records {
		want = want.Add(r.Value)
	}
	require.True(t, want.Equal(total), "sum of buckets %s != sum of records %s", total, want)
}

func TestService_Aggregate_Rejections(t *testing.T) {
	svc, _ := newMemoryService(t, 10)

	tests := []struct {
		name   string
		req    AggregateRequest
		target error
	}{
		{
			name:   "empty range",
			req:    AggregateRequest{MetricType: "steps", Range: aggregation.TimeRange{Start: day1, End: day1}},
			target: aggregation.ErrInvalidRange,
		},
		{
			name:   "inverted range",
			req:    AggregateRequest{MetricType: "steps", Range: aggregation.TimeRange{Start: day3, End: day1}},
			target: aggregation.ErrInvalidRange,
		},
		{
			name:   "unknown metric",
			req:    AggregateRequest{MetricType: "mood", Range: threeDays},
			target: metric.ErrUnknownMetricType,
		},
		{
			name:   "bad granularity",
			req:    AggregateRequest{MetricType: "steps", Range: threeDays, Granularity: "fortnight"},
			target: aggregation.ErrInvalidGranularity,
		},
		{
			name:   "bad week start",
			req:    AggregateRequest{MetricType: "steps", Range: threeDays, WeekStart: "someday"},
			target: ErrInvalidQuery,
		},
		{
			name:   "bad time zone",
			req:    AggregateRequest{MetricType: "steps", Range: threeDays, TimeZone: "Mars/Olympus"},
			target: ErrInvalidQuery,
		},
		{
			name:   "local time zone",
			req:    AggregateRequest{MetricType: "steps", Range: threeDays, TimeZone: "Local"},
			target: ErrInvalidQuery,
		},
		{
			name:   "missing metric",
			req:    AggregateRequest{Range: threeDays},
			target: ErrInvalidQuery,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Aggregate(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.target)
		})
	}
}

func TestService_Aggregate_TooManyBuckets(t *testing.T) {
	src := memory.NewSource()
	cal := aggregation.DefaultCalendar()
	cal.MaxBuckets = 24
	svc := NewService(metric.Builtin(), pagination.New(src, 10, 100), Options{Calendar: cal})

	_, err := svc.Aggregate(context.Background(), AggregateRequest{MetricType: "steps", Range: threeDays, Granularity: "hour"})
	require.ErrorIs(t, err, ErrInvalidQuery)
	require.ErrorIs(t, err, aggregation.ErrTooManyBuckets)
}

func TestService_Aggregate_RejectsBeforeTouchingSource(t *testing.T) {
	// The mock fails the test on any unexpected QueryRecords call.
	source := storagemocks.NewRecordSource(t)
	svc := NewService(metric.Builtin(), pagination.New(source, 10, 100), Options{})

	_, err := svc.Aggregate(context.Background(), AggregateRequest{MetricType: "mood", Range: threeDays})
	require.ErrorIs(t, err, metric.ErrUnknownMetricType)

	_, err = svc.Aggregate(context.Background(), AggregateRequest{
		MetricType: "steps",
		Range:      aggregation.TimeRange{Start: day3, End: day1},
	})
	require.ErrorIs(t, err, aggregation.ErrInvalidRange)
}

func TestService_Aggregate_SourceFailureMidScanReturnsNoBuckets(t *testing.T) {
	first := newRecord("steps", day1.Add(time.Hour), "5")
	srcErr := fmt.Errorf("%w: connection reset", storage.ErrSourceUnavailable)

	source := storagemocks.NewRecordSource(t)
	source.EXPECT().
		QueryRecords(mock.Anything, mock.MatchedBy(func(q storage.SourceQuery) bool { return q.After == nil })).
		Return(storage.SourcePage{Records: []v1.Record{first}, HasMore: true}, nil).
		Once()
	source.EXPECT().
		QueryRecords(mock.Anything, mock.MatchedBy(func(q storage.SourceQuery) bool { return q.After != nil })).
		Return(storage.SourcePage{}, srcErr).
		Once()

	svc := NewService(metric.Builtin(), pagination.New(source, 1, 100), Options{})

	resp, err := svc.Aggregate(context.Background(), AggregateRequest{MetricType: "steps", Range: threeDays})
	require.ErrorIs(t, err, storage.ErrSourceUnavailable)
	require.Nil(t, resp)
}

func TestService_Aggregate_CancelledContextStopsScan(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	source := storagemocks.NewRecordSource(t)
	source.EXPECT().
		QueryRecords(mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, storage.SourceQuery) (storage.SourcePage, error) {
			cancel()
			return storage.SourcePage{
				Records: []v1.Record{newRecord("steps", day1.Add(time.Hour), "1")},
				HasMore: true,
			}, nil
		}).
		Once()

	svc := NewService(metric.Builtin(), pagination.New(source, 1, 100), Options{})

	resp, err := svc.Aggregate(ctx, AggregateRequest{MetricType: "steps", Range: threeDays})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, resp)
}

func TestService_Aggregate_CountsSkippedRecords(t *testing.T) {
	inside := newRecord("steps", day1.Add(time.Hour), "10")
	skewed := newRecord("steps", day3.Add(time.Hour), "99")

	source := storagemocks.NewRecordSource(t)
	source.EXPECT().
		QueryRecords(mock.Anything, mock.Anything).
		Return(storage.SourcePage{Records: []v1.Record{inside, skewed}}, nil).
		Once()

	recorder := telemetry.NewRecorderWith(prometheus.NewRegistry())
	svc := NewService(metric.Builtin(), pagination.New(source, 10, 100), Options{Recorder: recorder})

	resp, err := svc.Aggregate(context.Background(), AggregateRequest{MetricType: "steps", Range: threeDays})
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.SkippedRecords)
	require.Equal(t, "10", resp.Buckets[0].Value.String())

	families, err := recorder.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "healthquery_records_skipped_total" {
			found = true
			require.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found)
}

func TestService_QueryPage_EnumeratesCompletely(t *testing.T) {
	var records []v1.Record
	for i := range 23 {
		records = append(records, newRecord("steps", day1.Add(time.Duration(i%5)*time.Hour), "1"))
	}
	svc, _ := newMemoryService(t, 10, records...)

	req := RecordsRequest{MetricType: "steps", Range: threeDays, Limit: 4}
	seen := map[uuid.UUID]bool{}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10)
		resp, err := svc.QueryPage(context.Background(), req)
		require.NoError(t, err)
		for _, r := range resp.Records {
			require.False(t, seen[r.ID], "duplicate %s", r.ID)
			seen[r.ID] = true
		}
		if resp.NextCursor == "" {
			break
		}
		req.Cursor = resp.NextCursor
	}
	require.Len(t, seen, 23)

	all, err := svc.QueryAll(context.Background(), "steps", threeDays)
	require.NoError(t, err)
	require.Len(t, all.Records, 23)
	require.Empty(t, all.NextCursor)
}

func TestService_QueryPage_CursorFromOtherQuery(t *testing.T) {
	svc, _ := newMemoryService(t, 10,
		newRecord("steps", day1.Add(time.Hour), "1"),
		newRecord("steps", day1.Add(2*time.Hour), "2"),
		newRecord("distance", day1.Add(time.Hour), "3"),
	)

	first, err := svc.QueryPage(context.Background(), RecordsRequest{MetricType: "steps", Range: threeDays, Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, first.NextCursor)

	_, err = svc.QueryPage(context.Background(), RecordsRequest{
		MetricType: "distance", Range: threeDays, Limit: 1, Cursor: first.NextCursor,
	})
	require.ErrorIs(t, err, cursor.ErrInvalidCursor)
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.QueryPage(context.Background(), RecordsRequest{
		MetricType: "steps",
		Range:      aggregation.TimeRange{Start: day1, End: day3.Add(time.Hour)},
		Limit:      1,
		Cursor:     first.NextCursor,
	})
	require.ErrorIs(t, err, cursor.ErrInvalidCursor)
}

func TestService_QueryPage_Rejections(t *testing.T) {
	svc, _ := newMemoryService(t, 10)

	_, err := svc.QueryPage(context.Background(), RecordsRequest{MetricType: "steps", Range: threeDays, Limit: -1})
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = svc.QueryPage(context.Background(), RecordsRequest{MetricType: "mood", Range: threeDays})
	require.ErrorIs(t, err, metric.ErrUnknownMetricType)

	_, err = svc.QueryAll(context.Background(), "steps", aggregation.TimeRange{Start: day1, End: day1})
	require.ErrorIs(t, err, aggregation.ErrInvalidRange)
}

func TestService_QueryPage_EmptyResultHasRecordsSlice(t *testing.T) {
	svc, _ := newMemoryService(t, 10)

	resp, err := svc.QueryPage(context.Background(), RecordsRequest{MetricType: "steps", Range: threeDays})
	require.NoError(t, err)
	require.NotNil(t, resp.Records)
	require.Empty(t, resp.Records)
	require.Empty(t, resp.NextCursor)
}

func TestService_Catalog(t *testing.T) {
	svc, _ := newMemoryService(t, 10)

	resp := svc.Catalog()
	require.Len(t, resp.Metrics, metric.Builtin().Len())
	for i := 1; i < len(resp.Metrics); i++ {
		require.Less(t, resp.Metrics[i-1].Type, resp.Metrics[i].Type)
	}
}

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, telemetry.OutcomeOK, outcomeOf(nil))
	require.Equal(t, telemetry.OutcomeRejected, outcomeOf(invalidQueryf("bad")))
	require.Equal(t, telemetry.OutcomeRejected, outcomeOf(fmt.Errorf("x: %w", metric.ErrUnknownMetricType)))
	require.Equal(t, telemetry.OutcomeError, outcomeOf(errors.New("boom")))
}
