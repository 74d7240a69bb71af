// Package scaler applies the per-feature standardisation fitted at training
// time.
package scaler

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Artifact is the on-disk form of a fitted standard scaler
type Artifact struct {
	FeatureNames []string  `yaml:"feature_names,omitempty" json:"feature_names,omitempty"`
	Mean         []float64 `yaml:"mean" json:"mean"`
	Scale        []float64 `yaml:"scale" json:"scale"`
}

// Scaler standardises feature rows column by column. It is immutable once
// built.
type Scaler struct {
	names []string
	mean  []float64
	scale []float64
}

// New validates an artifact against the expected width and builds a Scaler.
// Zero scales are treated as 1, as scikit-learn does for constant columns.
func New(a Artifact, width int) (*Scaler, error) {
	if len(a.Mean) != width || len(a.Scale) != width {
		return nil, fmt.Errorf("scaler has %d means and %d scales, want %d", len(a.Mean), len(a.Scale), width)
	}
	if len(a.FeatureNames) != 0 && len(a.FeatureNames) != width {
		return nil, fmt.Errorf("scaler names %d features, want %d", len(a.FeatureNames), width)
	}

	s := &Scaler{
		names: append([]string(nil), a.FeatureNames...),
		mean:  make([]float64, width),
		scale: make([]float64, width),
	}
	for i := range width {
		m, sc := a.Mean[i], a.Scale[i]
		if math.IsNaN(m) || math.IsInf(m, 0) || math.IsNaN(sc) || math.IsInf(sc, 0) {
			return nil, fmt.Errorf("scaler column %d is not finite", i)
		}
		if sc == 0 {
			sc = 1
		}
		s.mean[i] = m
		s.scale[i] = sc
	}
	return s, nil
}

// Load reads a YAML or JSON (by extension) scaler artifact
func Load(path string, width int) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler %s: %w", path, err)
	}

	var a Artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &a)
	default:
		err = yaml.Unmarshal(data, &a)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse scaler %s: %w", path, err)
	}

	return New(a, width)
}

// Transform returns (x - mean) / scale for a single row
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.mean) {
		return nil, fmt.Errorf("row has %d columns, scaler expects %d", len(row), len(s.mean))
	}

	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

// TransformRows standardises every row, leaving the input untouched
func (s *Scaler) TransformRows(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// Width returns the number of columns
func (s *Scaler) Width() int { return len(s.mean) }

// FeatureNames returns the column names recorded at fit time, if any
func (s *Scaler) FeatureNames() []string {
	return append([]string(nil), s.names...)
}
