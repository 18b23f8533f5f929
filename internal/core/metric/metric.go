package metric

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownMetricType is returned when a metric type is not in the classification table.
var ErrUnknownMetricType = errors.New("unknown metric type")

// Kind selects the reduction applied to a metric's records within a bucket.
type Kind string

const (
	// Cumulative metrics sum over a period (steps, distance, energy).
	Cumulative Kind = "cumulative"
	// Discrete metrics average instantaneous readings (heart rate, weight).
	Discrete Kind = "discrete"
)

// ParseKind maps a catalog string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Cumulative:
		return Cumulative, nil
	case Discrete:
		return Discrete, nil
	default:
		return "", fmt.Errorf("unsupported metric kind %q (must be cumulative or discrete)", s)
	}
}

// Definition is one row of the classification table.
type Definition struct {
	Type string `json:"metric_type"`
	Kind Kind   `json:"kind"`
	Unit string `json:"unit,omitempty"`
}

// Table is the immutable metric classification table.
// It is built once at startup and passed by reference to the components
// that need it; there is no mutation path after construction.
type Table struct {
	defs map[string]Definition
}

// NewTable builds a table from definitions. Duplicate or malformed entries are rejected.
func NewTable(defs []Definition) (*Table, error) {
	t := &Table{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if strings.TrimSpace(d.Type) == "" {
			return nil, fmt.Errorf("metric definition: type must not be empty")
		}
		kind, err := ParseKind(string(d.Kind))
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", d.Type, err)
		}
		d.Kind = kind
		if _, exists := t.defs[d.Type]; exists {
			return nil, fmt.Errorf("metric %q: duplicate definition", d.Type)
		}
		t.defs[d.Type] = d
	}
	return t, nil
}

// Classify returns the reduction kind for metricType.
func (t *Table) Classify(metricType string) (Kind, error) {
	d, ok := t.defs[metricType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetricType, metricType)
	}
	return d.Kind, nil
}

// UnitFor returns the canonical display unit, or "" for undocumented types.
func (t *Table) UnitFor(metricType string) string {
	return t.defs[metricType].Unit
}

// Definitions returns every entry ordered by type name.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, 0, len(t.defs))
	for _, d := range t.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Len returns the number of classified metric types.
func (t *Table) Len() int {
	return len(t.defs)
}
