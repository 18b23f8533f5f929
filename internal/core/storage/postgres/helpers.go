package postgres

import (
	"database/sql"
	"fmt"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecordRow scans a database row into a Record.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
// A NULL unit becomes the empty string.
func scanRecordRow(row scanner) (v1.Record, error) {
	var rec v1.Record
	var unit sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.MetricType,
		&rec.StartTime,
		&rec.EndTime,
		&rec.Value,
		&rec.SourceID,
		&unit,
	)
	if err != nil {
		return v1.Record{}, fmt.Errorf("failed to scan record row: %w", err)
	}

	rec.Unit = unit.String
	return rec, nil
}

// collectRecords drains rows, returning at most limit records and whether a further row existed.
func collectRecords(rows *sql.Rows, limit int) ([]v1.Record, bool, error) {
	records := make([]v1.Record, 0, limit)
	hasMore := false
	for rows.Next() {
		if len(records) == limit {
			hasMore = true
			break
		}
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, false, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating records: %w", err)
	}

	return records, hasMore, nil
}
