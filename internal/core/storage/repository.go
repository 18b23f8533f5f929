package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
	"github.com/google/uuid"
)

// ErrSourceUnavailable wraps every failure reported by a RecordSource.
// Callers use it to tell transient store failures from malformed requests.
var ErrSourceUnavailable = errors.New("record source unavailable")

// SortKey positions a record in (StartTime, ID) ascending order.
type SortKey struct {
	StartTime time.Time
	ID        uuid.UUID
}

// SourceQuery selects one page of records.
type SourceQuery struct {
	MetricType string

	// Start and End bound record StartTime to [Start, End).
	Start time.Time
	End   time.Time

	// After, when non-nil, restricts results to records strictly after the key.
	After *SortKey

	// Limit is the maximum number of records to return; always > 0.
	Limit int
}

// SourcePage is one page from the store, ordered by (StartTime, ID) ascending.
type SourcePage struct {
	Records []v1.Record
	HasMore bool
}

// RecordSource is the only capability the query engine needs from the record store.
// Each call reflects the store's committed state at the moment of the call; there
// is no snapshot spanning calls.
type RecordSource interface {
	QueryRecords(ctx context.Context, q SourceQuery) (SourcePage, error)
}

// HealthChecker is implemented by sources that can report connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
