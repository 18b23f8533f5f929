package query

import (
	"time"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
	"github.com/aevon-lab/healthquery/internal/core/aggregation"
	"github.com/aevon-lab/healthquery/internal/core/metric"
)

// AggregateRequest is the input for an aggregation query.
type AggregateRequest struct {
	MetricType  string
	Range       aggregation.TimeRange
	Granularity string // empty selects the configured default

	// TimeZone and WeekStart override the configured calendar when set.
	TimeZone  string
	WeekStart string
}

// AggregateResponse is the response for an aggregation query.
type AggregateResponse struct {
	MetricType     string                  `json:"metric_type"`
	Kind           metric.Kind             `json:"kind"`
	Unit           string                  `json:"unit,omitempty"`
	Granularity    aggregation.Granularity `json:"granularity"`
	TimeZone       string                  `json:"time_zone"`
	WeekStart      string                  `json:"week_start"`
	Start          time.Time               `json:"start"`
	End            time.Time               `json:"end"`
	SkippedRecords int64                   `json:"skipped_records"`
	Buckets        []aggregation.Bucket    `json:"buckets"`
}

// RecordsRequest is the input for a raw-record page query.
type RecordsRequest struct {
	MetricType string
	Range      aggregation.TimeRange

	// Limit is the page size; 0 lets the service choose.
	Limit int

	// Cursor resumes a previous page sequence of the same query.
	Cursor string
}

// RecordsResponse carries one page of records. NextCursor is omitted once the
// query is exhausted; callers must check it rather than the record count.
type RecordsResponse struct {
	MetricType string      `json:"metric_type"`
	Records    []v1.Record `json:"records"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// CatalogResponse lists the classification table.
type CatalogResponse struct {
	Metrics []metric.Definition `json:"metrics"`
}
