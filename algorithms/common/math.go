package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Variance calculates the sample variance of a slice using gonum
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.Variance(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return math.Sqrt(Variance(data))
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// ColumnMeans averages a row-major matrix over its rows.
// Rows shorter than the first row are rejected by returning nil.
func ColumnMeans(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}

	width := len(rows[0])
	sums := make([]float64, width)
	for _, row := range rows {
		if len(row) != width {
			return nil
		}
		floats.Add(sums, row)
	}
	floats.Scale(1.0/float64(len(rows)), sums)
	return sums
}

// AbsMax returns the largest absolute sample value
func AbsMax(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Max(math.Abs(floats.Max(data)), math.Abs(floats.Min(data)))
}

// AllFinite reports whether no element is NaN or ±Inf
func AllFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ParabolicPeak refines the location of an extremum at index i from its two
// neighbours. It returns the fractional offset in [-0.5, 0.5] and the
// interpolated value.
func ParabolicPeak(data []float64, i int) (offset, value float64) {
	if i <= 0 || i >= len(data)-1 {
		return 0, data[i]
	}

	y1, y2, y3 := data[i-1], data[i], data[i+1]
	denom := y1 - 2*y2 + y3
	if denom == 0 {
		return 0, y2
	}

	offset = 0.5 * (y1 - y3) / denom
	offset = math.Max(-0.5, math.Min(0.5, offset))
	value = y2 - 0.25*(y1-y3)*offset
	return offset, value
}

// NextPowerOfTwo returns the next power of two >= n
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
