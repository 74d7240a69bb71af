package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// lstm is one direction of a recurrent layer
type lstm struct {
	units     int
	kernel    *mat.Dense // in x 4u
	recurrent *mat.Dense // u x 4u
	bias      []float64  // 4u
}

func newLSTM(w LSTMWeights, inputDim int) (*lstm, error) {
	units := len(w.RecurrentKernel)
	if units == 0 {
		return nil, fmt.Errorf("recurrent kernel is empty")
	}

	kernel, err := denseFrom(w.Kernel, inputDim, 4*units)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	recurrent, err := denseFrom(w.RecurrentKernel, units, 4*units)
	if err != nil {
		return nil, fmt.Errorf("recurrent kernel: %w", err)
	}
	if len(w.Bias) != 4*units {
		return nil, fmt.Errorf("bias has %d values, want %d", len(w.Bias), 4*units)
	}

	return &lstm{
		units:     units,
		kernel:    kernel,
		recurrent: recurrent,
		bias:      append([]float64(nil), w.Bias...),
	}, nil
}

// run returns the hidden state at every step. With reverse set the sequence
// is consumed last step first, and the outputs are returned in input order.
func (l *lstm) run(seq *mat.Dense, reverse bool) *mat.Dense {
	steps, _ := seq.Dims()
	u := l.units

	// Input projections for all steps at once: steps x 4u
	var projected mat.Dense
	projected.Mul(seq, l.kernel)

	out := mat.NewDense(steps, u, nil)
	h := mat.NewVecDense(u, nil)
	c := make([]float64, u)
	z := mat.NewVecDense(4*u, nil)

	for s := range steps {
		t := s
		if reverse {
			t = steps - 1 - s
		}

		z.MulVec(l.recurrent.T(), h)
		for k := range 4 * u {
			z.SetVec(k, z.AtVec(k)+projected.At(t, k)+l.bias[k])
		}

		for j := range u {
			i := sigmoid(z.AtVec(j))
			f := sigmoid(z.AtVec(u + j))
			g := math.Tanh(z.AtVec(2*u + j))
			o := sigmoid(z.AtVec(3*u + j))

			c[j] = f*c[j] + i*g
			h.SetVec(j, o*math.Tanh(c[j]))
		}
		out.SetRow(t, h.RawVector().Data)
	}

	return out
}

// biLSTM runs both directions and concatenates forward then backward
type biLSTM struct {
	forward  *lstm
	backward *lstm
}

func newBiLSTM(w BiLSTMWeights, inputDim int) (*biLSTM, error) {
	fwd, err := newLSTM(w.Forward, inputDim)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	bwd, err := newLSTM(w.Backward, inputDim)
	if err != nil {
		return nil, fmt.Errorf("backward: %w", err)
	}
	return &biLSTM{forward: fwd, backward: bwd}, nil
}

func (b *biLSTM) outputDim() int {
	return b.forward.units + b.backward.units
}

func (b *biLSTM) run(seq *mat.Dense) *mat.Dense {
	fwd := b.forward.run(seq, false)
	bwd := b.backward.run(seq, true)

	var out mat.Dense
	out.Augment(fwd, bwd)
	return &out
}

// denseFrom copies a [rows][cols] nested slice into a matrix
func denseFrom(values [][]float64, rows, cols int) (*mat.Dense, error) {
	if len(values) != rows {
		return nil, fmt.Errorf("has %d rows, want %d", len(values), rows)
	}
	m := mat.NewDense(rows, cols, nil)
	for i, row := range values {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		m.SetRow(i, row)
	}
	return m, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
