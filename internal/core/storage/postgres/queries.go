package postgres

// SQL queries for the health record read path.
// Both page queries order by (start_time, id) so a page boundary is a strict
// total-order position; the composite index on (metric_type, start_time, id)
// serves them without a sort.

const (
	// queryFirstPage fetches the first page of one metric's records in a range.
	queryFirstPage = `
		SELECT
			id, metric_type, start_time, end_time, value, source_id, unit
		FROM health_records
		WHERE metric_type = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time ASC, id ASC
		LIMIT $4
	`

	// queryPageAfter resumes strictly after the (start_time, id) of the last record served.
	queryPageAfter = `
		SELECT
			id, metric_type, start_time, end_time, value, source_id, unit
		FROM health_records
		WHERE metric_type = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND (start_time, id) > ($4, $5)
		ORDER BY start_time ASC, id ASC
		LIMIT $6
	`

	// queryTableExists checks the migrations have created health_records.
	queryTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'health_records'
		)
	`
)
