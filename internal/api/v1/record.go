package v1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is one health measurement as read from the record store.
// Records are immutable once read; the query engine never mutates them.
type Record struct {
	// ID is the stable identifier assigned by the store.
	// Together with StartTime it forms the pagination sort key, so it must
	// never change for the lifetime of the record.
	ID uuid.UUID `json:"id"`

	// MetricType is the catalog identifier (e.g. "steps", "heart_rate").
	MetricType string `json:"metric_type"`

	// StartTime and EndTime bound the measurement interval. Instantaneous
	// readings carry StartTime == EndTime.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Value is the measured quantity expressed in Unit.
	Value decimal.Decimal `json:"value"`

	// SourceID identifies the origin (device, app) of the reading. Opaque.
	SourceID string `json:"source_id"`

	// Unit is informational only and is echoed back to callers.
	Unit string `json:"unit,omitempty"`
}

// Validate ensures the record carries the attributes the engine relies on.
func (r *Record) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}

	if r.MetricType == "" {
		return fmt.Errorf("metric_type is required")
	}

	if r.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}

	if r.EndTime.Before(r.StartTime) {
		return fmt.Errorf("end_time must not be before start_time")
	}

	return nil
}

// SortsBefore reports whether r precedes other in (StartTime, ID) order.
func (r *Record) SortsBefore(other *Record) bool {
	if !r.StartTime.Equal(other.StartTime) {
		return r.StartTime.Before(other.StartTime)
	}
	return CompareIDs(r.ID, other.ID) < 0
}

// CompareIDs orders ids bytewise, matching PostgreSQL's uuid ordering.
func CompareIDs(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
