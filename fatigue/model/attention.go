package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Pool collapses a [timesteps x dim] sequence to one dim-vector with
// additive attention:
//
//	e_t = tanh(x_t·w + b_t)
//	a   = softmax(e)
//	out = Σ_t a_t·x_t
//
// It returns the pooled vector and the attention weights, which sum to 1.
func Pool(seq *mat.Dense, w []float64, b []float64) ([]float64, []float64, error) {
	steps, dim := seq.Dims()
	if len(w) != dim {
		return nil, nil, fmt.Errorf("attention has %d weights for %d features", len(w), dim)
	}
	if len(b) != steps {
		return nil, nil, fmt.Errorf("attention has %d biases for %d timesteps", len(b), steps)
	}

	scores := make([]float64, steps)
	wv := mat.NewVecDense(dim, append([]float64(nil), w...))
	for t := range steps {
		scores[t] = math.Tanh(mat.Dot(seq.RowView(t), wv) + b[t])
	}
	weights := softmax(scores)

	pooled := make([]float64, dim)
	row := make([]float64, dim)
	for t := range steps {
		mat.Row(row, t, seq)
		floats.AddScaled(pooled, weights[t], row)
	}
	return pooled, weights, nil
}

// softmax returns a numerically stable softmax of x
func softmax(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	peak := floats.Max(x)
	for i, v := range x {
		out[i] = math.Exp(v - peak)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
