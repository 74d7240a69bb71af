package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation names accepted in dense layers
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationTanh    = "tanh"
	ActivationSigmoid = "sigmoid"
	ActivationSoftmax = "softmax"
)

type dense struct {
	kernel     *mat.Dense // in x out
	bias       *mat.VecDense
	activation string
}

func newDense(w DenseWeights, inputDim int) (*dense, error) {
	out := len(w.Bias)
	if out == 0 {
		return nil, fmt.Errorf("bias is empty")
	}

	kernel, err := denseFrom(w.Kernel, inputDim, out)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	act := w.Activation
	if act == "" {
		act = ActivationLinear
	}
	switch act {
	case ActivationLinear, ActivationReLU, ActivationTanh, ActivationSigmoid, ActivationSoftmax:
	default:
		return nil, fmt.Errorf("unsupported activation %q", w.Activation)
	}

	return &dense{
		kernel:     kernel,
		bias:       mat.NewVecDense(out, append([]float64(nil), w.Bias...)),
		activation: act,
	}, nil
}

func (d *dense) outputDim() int {
	_, c := d.kernel.Dims()
	return c
}

func (d *dense) forward(x []float64) []float64 {
	in := mat.NewVecDense(len(x), x)
	var y mat.VecDense
	y.MulVec(d.kernel.T(), in)
	y.AddVec(&y, d.bias)

	out := make([]float64, y.Len())
	copy(out, y.RawVector().Data)

	switch d.activation {
	case ActivationReLU:
		for i, v := range out {
			out[i] = math.Max(0, v)
		}
	case ActivationTanh:
		for i, v := range out {
			out[i] = math.Tanh(v)
		}
	case ActivationSigmoid:
		for i, v := range out {
			out[i] = sigmoid(v)
		}
	case ActivationSoftmax:
		out = softmax(out)
	}
	return out
}
