package scaler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform(t *testing.T) {
	s, err := New(Artifact{Mean: []float64{1, 2, 3}, Scale: []float64{2, 0, 0.5}}, 3)
	require.NoError(t, err)

	row := []float64{3, 5, 4}
	out, err := s.Transform(row)
	require.NoError(t, err)

	// zero scale behaves as 1
	assert.InDeltaSlice(t, []float64{1, 3, 2}, out, 1e-12)
	assert.Equal(t, []float64{3, 5, 4}, row, "input must not be modified")

	again, err := s.Transform(row)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestTransformRowsWidthMismatch(t *testing.T) {
	s, err := New(Artifact{Mean: []float64{0, 0}, Scale: []float64{1, 1}}, 2)
	require.NoError(t, err)

	_, err = s.TransformRows([][]float64{{1, 2}, {1, 2, 3}})
	assert.ErrorContains(t, err, "row 1")
}

func TestNewRejectsBadArtifacts(t *testing.T) {
	_, err := New(Artifact{Mean: []float64{0}, Scale: []float64{1}}, 34)
	assert.Error(t, err)

	_, err = New(Artifact{FeatureNames: []string{"a"}, Mean: []float64{0, 0}, Scale: []float64{1, 1}}, 2)
	assert.Error(t, err)
}

func TestLoadYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "scaler.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("feature_names: [a, b]\nmean: [1, 2]\nscale: [1, 4]\n"), 0o644))
	s, err := Load(yamlPath, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.FeatureNames())
	assert.Equal(t, 2, s.Width())

	jsonPath := filepath.Join(dir, "scaler.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"mean":[1,2],"scale":[1,4]}`), 0o644))
	s, err = Load(jsonPath, 2)
	require.NoError(t, err)
	out, err := s.Transform([]float64{2, 6})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1}, out, 1e-12)

	_, err = Load(filepath.Join(dir, "missing.yaml"), 2)
	assert.Error(t, err)
}
