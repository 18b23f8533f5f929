package metric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable_Classify(t *testing.T) {
	table := Builtin()

	tests := []struct {
		name       string
		metricType string
		wantKind   Kind
		wantUnit   string
		wantErr    bool
	}{
		{name: "steps are summed", metricType: "steps", wantKind: Cumulative, wantUnit: "count"},
		{name: "distance is summed", metricType: "distance", wantKind: Cumulative, wantUnit: "m"},
		{name: "heart rate is averaged", metricType: "heart_rate", wantKind: Discrete, wantUnit: "bpm"},
		{name: "weight is averaged", metricType: "weight", wantKind: Discrete, wantUnit: "kg"},
		{name: "unknown type", metricType: "mood", wantErr: true},
		{name: "empty type", metricType: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, err := table.Classify(tc.metricType)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrUnknownMetricType)
				require.Empty(t, table.UnitFor(tc.metricType))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantKind, kind)
			require.Equal(t, tc.wantUnit, table.UnitFor(tc.metricType))
		})
	}
}

func TestNewTable_RejectsBadDefinitions(t *testing.T) {
	_, err := NewTable([]Definition{{Type: "", Kind: Cumulative}})
	require.ErrorContains(t, err, "type must not be empty")

	_, err = NewTable([]Definition{{Type: "steps", Kind: "median"}})
	require.ErrorContains(t, err, "unsupported metric kind")

	_, err = NewTable([]Definition{
		{Type: "steps", Kind: Cumulative},
		{Type: "steps", Kind: Discrete},
	})
	require.ErrorContains(t, err, "duplicate definition")
}

func TestNewTable_NormalizesKind(t *testing.T) {
	table, err := NewTable([]Definition{
		{Type: "steps", Kind: "Cumulative"},
		{Type: "heart_rate", Kind: " DISCRETE "},
	})
	require.NoError(t, err)

	kind, err := table.Classify("steps")
	require.NoError(t, err)
	require.Equal(t, Cumulative, kind)

	kind, err = table.Classify("heart_rate")
	require.NoError(t, err)
	require.Equal(t, Discrete, kind)

	for _, d := range table.Definitions() {
		_, err := ParseKind(string(d.Kind))
		require.NoError(t, err)
		require.Contains(t, []Kind{Cumulative, Discrete}, d.Kind)
	}
}

func TestTable_UndocumentedUnitIsEmpty(t *testing.T) {
	table, err := NewTable([]Definition{{Type: "custom_score", Kind: Discrete}})
	require.NoError(t, err)

	kind, err := table.Classify("custom_score")
	require.NoError(t, err)
	require.Equal(t, Discrete, kind)
	require.Empty(t, table.UnitFor("custom_score"))
}

func TestTable_DefinitionsSorted(t *testing.T) {
	defs := Builtin().Definitions()
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		require.Less(t, defs[i-1].Type, defs[i].Type)
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
metrics:
  - type: steps
    kind: cumulative
    unit: count
  - type: glucose
    kind: Discrete
    unit: mmol/L
`), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	kind, err := table.Classify("glucose")
	require.NoError(t, err)
	require.Equal(t, Discrete, kind)
	require.Equal(t, "mmol/L", table.UnitFor("glucose"))

	_, err = table.Classify("heart_rate")
	require.ErrorIs(t, err, ErrUnknownMetricType)
}

func TestLoadTable_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTable(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "reading metric catalog")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("metrics: []\n"), 0o644))
	_, err = LoadTable(empty)
	require.ErrorContains(t, err, "defines no metrics")

	badKind := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badKind, []byte("metrics:\n  - type: steps\n    kind: total\n"), 0o644))
	_, err = LoadTable(badKind)
	require.ErrorContains(t, err, "unsupported metric kind")
}

func TestLoadTable_EmptyPathIsBuiltin(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	require.Equal(t, Builtin().Len(), table.Len())
}
