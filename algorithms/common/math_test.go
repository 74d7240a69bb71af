package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnMeans(t *testing.T) {
	rows := [][]float64{{1, 2, 3}, {3, 4, 5}}
	assert.Equal(t, []float64{2, 3, 4}, ColumnMeans(rows))

	assert.Nil(t, ColumnMeans(nil))
	assert.Nil(t, ColumnMeans([][]float64{{1, 2}, {1}}))
}

func TestRMSAndAbsMax(t *testing.T) {
	assert.InDelta(t, 1.0, RMS([]float64{1, -1, 1, -1}), 1e-12)
	assert.Equal(t, 0.0, RMS(nil))
	assert.Equal(t, 3.0, AbsMax([]float64{1, -3, 2}))
}

func TestAllFinite(t *testing.T) {
	assert.True(t, AllFinite([]float64{0, 1, -2}))
	assert.False(t, AllFinite([]float64{0, math.NaN()}))
	assert.False(t, AllFinite([]float64{math.Inf(-1)}))
}

func TestParabolicPeak(t *testing.T) {
	// y = -(x-2.25)^2 sampled at 1,2,3 peaks at 2.25
	f := func(x float64) float64 { return -(x - 2.25) * (x - 2.25) }
	data := []float64{f(0), f(1), f(2), f(3), f(4)}

	offset, value := ParabolicPeak(data, 2)
	assert.InDelta(t, 0.25, offset, 1e-12)
	assert.InDelta(t, 0.0, value, 1e-12)

	offset, _ = ParabolicPeak(data, 0)
	assert.Zero(t, offset)
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, NextPowerOfTwo(0))
	assert.Equal(t, 1024, NextPowerOfTwo(1000))
	assert.Equal(t, 2048, NextPowerOfTwo(2048))
}
