// Package pagination enumerates records from a RecordSource in bounded pages.
//
// Pages are ordered by (start_time, id). Each page reflects the store as of that
// page's fetch (read-committed per page); a multi-page enumeration is not a
// snapshot, but it never repeats or skips a record that stayed in place.
package pagination

import (
	"context"
	"errors"
	"fmt"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
	"github.com/aevon-lab/healthquery/internal/core/aggregation"
	"github.com/aevon-lab/healthquery/internal/core/cursor"
	"github.com/aevon-lab/healthquery/internal/core/storage"
)

const (
	DefaultPageSize = 1000
	MaxPageSize     = 10000
)

// ErrInvalidLimit is returned for negative page sizes.
var ErrInvalidLimit = errors.New("invalid page limit")

// Request identifies one page of one logical query.
type Request struct {
	MetricType string
	Range      aggregation.TimeRange

	// Limit is the caller's page size. 0 selects the default; values above
	// the maximum are clamped. The cursor is bound to the value given here.
	Limit int

	// Cursor resumes a previous enumeration. Empty starts from the beginning.
	Cursor string
}

// Page is one page of records. NextCursor is empty once the query is exhausted.
type Page struct {
	Records    []v1.Record
	NextCursor string
}

// Paginator wraps a RecordSource with the cursor protocol.
// It holds no per-query state and is safe for concurrent use.
type Paginator struct {
	source          storage.RecordSource
	defaultPageSize int
	maxPageSize     int
}

// New creates a Paginator. Non-positive sizes fall back to the package defaults.
func New(source storage.RecordSource, defaultPageSize, maxPageSize int) *Paginator {
	if maxPageSize <= 0 {
		maxPageSize = MaxPageSize
	}
	if defaultPageSize <= 0 {
		defaultPageSize = min(DefaultPageSize, maxPageSize)
	}
	return &Paginator{
		source:          source,
		defaultPageSize: min(defaultPageSize, maxPageSize),
		maxPageSize:     maxPageSize,
	}
}

// PageSize resolves a caller limit into the size requested from the source.
func (p *Paginator) PageSize(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	case limit == 0:
		return p.defaultPageSize, nil
	case limit > p.maxPageSize:
		return p.maxPageSize, nil
	default:
		return limit, nil
	}
}

// FetchPage returns one page and, when more records remain, a cursor for the next.
// A cursor issued for a different (metric, range, limit) fails with cursor.ErrInvalidCursor.
func (p *Paginator) FetchPage(ctx context.Context, req Request) (Page, error) {
	size, err := p.PageSize(req.Limit)
	if err != nil {
		return Page{}, err
	}

	bound := cursorQuery(req)

	var after *storage.SortKey
	if req.Cursor != "" {
		c, err := cursor.DecodeFor(req.Cursor, bound)
		if err != nil {
			return Page{}, err
		}
		after = &storage.SortKey{StartTime: c.After.StartTime, ID: c.After.ID}
	}

	page, err := p.source.QueryRecords(ctx, sourceQuery(req, after, size))
	if err != nil {
		return Page{}, err
	}

	out := Page{Records: page.Records}
	if page.HasMore && len(page.Records) > 0 {
		last := page.Records[len(page.Records)-1]
		out.NextCursor = cursor.New(bound, cursor.SortKey{StartTime: last.StartTime, ID: last.ID}).Encode()
	}
	return out, nil
}

// Scan walks every record of the query in source-sized chunks, handing each page
// to consume before fetching the next. It stops at the first error from the
// source, from consume, or from ctx; pages already consumed are not retracted.
func (p *Paginator) Scan(ctx context.Context, metricType string, rng aggregation.TimeRange, consume func([]v1.Record) error) error {
	req := Request{MetricType: metricType, Range: rng}

	var after *storage.SortKey
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.source.QueryRecords(ctx, sourceQuery(req, after, p.defaultPageSize))
		if err != nil {
			return err
		}

		if len(page.Records) > 0 {
			if err := consume(page.Records); err != nil {
				return err
			}
		}
		if !page.HasMore || len(page.Records) == 0 {
			return nil
		}

		last := page.Records[len(page.Records)-1]
		if after != nil && !keyBefore(*after, last) {
			return fmt.Errorf("record source did not advance past %s/%s", after.StartTime, after.ID)
		}
		after = &storage.SortKey{StartTime: last.StartTime, ID: last.ID}
	}
}

// FetchAll concatenates every page of the query. It is bounded only by source
// exhaustion and stops as soon as ctx ends.
func (p *Paginator) FetchAll(ctx context.Context, metricType string, rng aggregation.TimeRange) ([]v1.Record, error) {
	var all []v1.Record
	err := p.Scan(ctx, metricType, rng, func(records []v1.Record) error {
		all = append(all, records...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func cursorQuery(req Request) cursor.Query {
	return cursor.Query{
		MetricType: req.MetricType,
		Start:      req.Range.Start,
		End:        req.Range.End,
		Limit:      req.Limit,
	}
}

func sourceQuery(req Request, after *storage.SortKey, size int) storage.SourceQuery {
	return storage.SourceQuery{
		MetricType: req.MetricType,
		Start:      req.Range.Start,
		End:        req.Range.End,
		After:      after,
		Limit:      size,
	}
}

func keyBefore(k storage.SortKey, r v1.Record) bool {
	key := v1.Record{StartTime: k.StartTime, ID: k.ID}
	return key.SortsBefore(&r)
}
