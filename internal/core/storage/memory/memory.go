package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	v1 "github.com/aevon-lab/healthquery/internal/api/v1"
	"github.com/aevon-lab/healthquery/internal/core/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Source is an in-memory implementation of storage.RecordSource.
// Useful for testing and development. Records are kept per metric type in
// (StartTime, ID) order.
type Source struct {
	mu      sync.RWMutex
	records map[string][]v1.Record
}

// NewSource creates an empty in-memory record source.
func NewSource() *Source {
	return &Source{
		records: make(map[string][]v1.Record),
	}
}

// Load adds records to the store, keeping each metric's slice ordered.
// This is a fixture path for tests and local development, not a public write API.
func (s *Source) Load(records ...v1.Record) error {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		list := s.records[rec.MetricType]
		idx := sort.Search(len(list), func(i int) bool {
			return !list[i].SortsBefore(&rec)
		})
		list = append(list, v1.Record{})
		copy(list[idx+1:], list[idx:])
		list[idx] = rec
		s.records[rec.MetricType] = list
	}
	return nil
}

// QueryRecords returns one ordered page. Each call sees the store as of that call.
func (s *Source) QueryRecords(ctx context.Context, q storage.SourceQuery) (storage.SourcePage, error) {
	if err := ctx.Err(); err != nil {
		return storage.SourcePage{}, fmt.Errorf("%w: %w", storage.ErrSourceUnavailable, err)
	}
	if q.Limit <= 0 {
		return storage.SourcePage{}, fmt.Errorf("record query limit must be > 0, got %d", q.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[q.MetricType]

	pos := sort.Search(len(list), func(i int) bool {
		return !list[i].StartTime.Before(q.Start)
	})
	if q.After != nil {
		key := v1.Record{StartTime: q.After.StartTime, ID: q.After.ID}
		after := sort.Search(len(list), func(i int) bool {
			return key.SortsBefore(&list[i])
		})
		pos = max(pos, after)
	}

	out := make([]v1.Record, 0, q.Limit)
	for i := pos; i < len(list) && list[i].StartTime.Before(q.End); i++ {
		if len(out) == q.Limit {
			return storage.SourcePage{Records: out, HasMore: true}, nil
		}
		out = append(out, list[i])
	}
	return storage.SourcePage{Records: out}, nil
}

// Ping always succeeds.
func (s *Source) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored records across all metric types.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, list := range s.records {
		n += len(list)
	}
	return n
}

// fixtureFile is the on-disk YAML shape for development fixtures.
type fixtureFile struct {
	Records []struct {
		ID         string    `yaml:"id"`
		MetricType string    `yaml:"metric_type"`
		StartTime  time.Time `yaml:"start_time"`
		EndTime    time.Time `yaml:"end_time"`
		Value      string    `yaml:"value"`
		SourceID   string    `yaml:"source_id"`
		Unit       string    `yaml:"unit"`
	} `yaml:"records"`
}

// LoadFixtures reads records from a YAML file into s.
// Records without an id get a random one; end_time defaults to start_time.
func (s *Source) LoadFixtures(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading fixtures %s: %w", path, err)
	}

	var raw fixtureFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing fixtures %s: %w", path, err)
	}

	records := make([]v1.Record, 0, len(raw.Records))
	for i, r := range raw.Records {
		id := uuid.New()
		if r.ID != "" {
			id, err = uuid.Parse(r.ID)
			if err != nil {
				return fmt.Errorf("fixture %d: invalid id %q: %w", i, r.ID, err)
			}
		}
		value, err := decimal.NewFromString(r.Value)
		if err != nil {
			return fmt.Errorf("fixture %d: invalid value %q: %w", i, r.Value, err)
		}
		end := r.EndTime
		if end.IsZero() {
			end = r.StartTime
		}
		records = append(records, v1.Record{
			ID:         id,
			MetricType: r.MetricType,
			StartTime:  r.StartTime,
			EndTime:    end,
			Value:      value,
			SourceID:   r.SourceID,
			Unit:       r.Unit,
		})
	}

	return s.Load(records...)
}
