package metric

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// builtinDefinitions is the default classification table.
var builtinDefinitions = []Definition{
	{Type: "active_energy_burned", Kind: Cumulative, Unit: "kcal"},
	{Type: "basal_energy_burned", Kind: Cumulative, Unit: "kcal"},
	{Type: "blood_glucose", Kind: Discrete, Unit: "mg/dL"},
	{Type: "blood_pressure_diastolic", Kind: Discrete, Unit: "mmHg"},
	{Type: "blood_pressure_systolic", Kind: Discrete, Unit: "mmHg"},
	{Type: "body_fat_percentage", Kind: Discrete, Unit: "%"},
	{Type: "body_temperature", Kind: Discrete, Unit: "degC"},
	{Type: "distance", Kind: Cumulative, Unit: "m"},
	{Type: "exercise_time", Kind: Cumulative, Unit: "min"},
	{Type: "flights_climbed", Kind: Cumulative, Unit: "count"},
	{Type: "heart_rate", Kind: Discrete, Unit: "bpm"},
	{Type: "heart_rate_variability", Kind: Discrete, Unit: "ms"},
	{Type: "height", Kind: Discrete, Unit: "m"},
	{Type: "hydration", Kind: Cumulative, Unit: "mL"},
	{Type: "oxygen_saturation", Kind: Discrete, Unit: "%"},
	{Type: "respiratory_rate", Kind: Discrete, Unit: "breaths/min"},
	{Type: "resting_heart_rate", Kind: Discrete, Unit: "bpm"},
	{Type: "sleep_duration", Kind: Cumulative, Unit: "min"},
	{Type: "steps", Kind: Cumulative, Unit: "count"},
	{Type: "weight", Kind: Discrete, Unit: "kg"},
	{Type: "wheelchair_pushes", Kind: Cumulative, Unit: "count"},
}

// Builtin returns the default classification table.
func Builtin() *Table {
	t, err := NewTable(builtinDefinitions)
	if err != nil {
		// The builtin list is a compile-time constant; a failure here is a programming error.
		panic(fmt.Sprintf("builtin metric catalog: %v", err))
	}
	return t
}

// rawCatalog is the on-disk YAML shape.
type rawCatalog struct {
	Metrics []struct {
		Type string `yaml:"type"`
		Kind string `yaml:"kind"`
		Unit string `yaml:"unit"`
	} `yaml:"metrics"`
}

// LoadTable reads a classification table from a YAML file.
// An empty path yields the builtin table.
//
//	metrics:
//	  - type: steps
//	    kind: cumulative
//	    unit: count
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return Builtin(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metric catalog %s: %w", path, err)
	}

	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing metric catalog %s: %w", path, err)
	}
	if len(raw.Metrics) == 0 {
		return nil, fmt.Errorf("metric catalog %s defines no metrics", path)
	}

	defs := make([]Definition, 0, len(raw.Metrics))
	for _, m := range raw.Metrics {
		kind, err := ParseKind(m.Kind)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", m.Type, err)
		}
		defs = append(defs, Definition{Type: m.Type, Kind: kind, Unit: m.Unit})
	}

	return NewTable(defs)
}
