package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults and validates the simulation file at path.
//
// The format is determined by extension:
//   - .json -> JSON
//   - anything else -> YAML
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes data in the format implied by path, applies defaults and
// validates the result.
func Parse(data []byte, path string) (*File, error) {
	var f File

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ApplyDefaults fills unset optional fields.
func (f *File) ApplyDefaults() {
	if f.Settings.LogLevel == "" {
		f.Settings.LogLevel = "info"
	}
	if f.Simulation.Drain == "" {
		f.Simulation.Drain = "graceful"
	}
	if t := f.Simulation.Throttle; t != nil && t.Window == 0 {
		t.Window = Duration(defaultThrottleWindow)
	}
	for i := range f.Workflows {
		defaultSteps(f.Workflows[i].Steps)
	}
}

func defaultSteps(steps []Step) {
	for i := range steps {
		st := &steps[i]
		switch {
		case st.HTTP != nil:
			h := st.HTTP
			h.Method = strings.ToUpper(h.Method)
			if h.Method == "" {
				h.Method = "GET"
			}
			if h.SaveTo == "" {
				h.SaveTo = h.Name
			}
		case st.Measure != nil:
			defaultSteps(st.Measure.Steps)
		case st.Repeat != nil:
			defaultSteps(st.Repeat.Steps)
		case st.ForEach != nil:
			if st.ForEach.As == "" {
				st.ForEach.As = "item"
			}
			defaultSteps(st.ForEach.Steps)
		}
	}
}
