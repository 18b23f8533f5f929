package telemetry

import (
	"context"
	"time"

	"github.com/aevon-lab/healthquery/internal/core/storage"
)

// instrumentedSource times every page fetch of the wrapped source.
type instrumentedSource struct {
	next     storage.RecordSource
	recorder *Recorder
}

// InstrumentSource wraps src so each QueryRecords call is observed in
// healthquery_source_fetch_seconds. A nil recorder returns src unchanged.
func InstrumentSource(src storage.RecordSource, r *Recorder) storage.RecordSource {
	if r == nil {
		return src
	}
	return &instrumentedSource{next: src, recorder: r}
}

func (s *instrumentedSource) QueryRecords(ctx context.Context, q storage.SourceQuery) (storage.SourcePage, error) {
	started := time.Now()
	page, err := s.next.QueryRecords(ctx, q)
	s.recorder.SourceFetch(time.Since(started), err)
	return page, err
}

// Ping forwards to the wrapped source when it supports health checks.
func (s *instrumentedSource) Ping(ctx context.Context) error {
	if hc, ok := s.next.(storage.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
