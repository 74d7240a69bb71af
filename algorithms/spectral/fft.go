package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/RyanBlaney/sonido-fatigue/algorithms/common"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes Fast Fourier Transform using mjibson/go-dsp
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// mjibson/go-dsp handles all sizes, including non-power-of-2
	return fft.FFTReal(x)
}

// PowerSpectrum returns |X[k]|^2 for the non-negative frequency bins
// k = 0..len(x)/2 of a real frame.
func (f *FFT) PowerSpectrum(x []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	spectrum := fft.FFTReal(x)
	bins := len(x)/2 + 1
	power := make([]float64, bins)
	for k := range bins {
		re, im := real(spectrum[k]), imag(spectrum[k])
		power[k] = re*re + im*im
	}
	return power
}

// Autocorrelation computes the linear (non-circular) autocorrelation
// r[τ] = Σ x[n]·x[n+τ] for τ = 0..maxLag. The frame is zero padded to a
// power of two of at least twice its length before transforming.
func (f *FFT) Autocorrelation(x []float64, maxLag int) []float64 {
	if len(x) == 0 {
		return []float64{}
	}
	if maxLag >= len(x) {
		maxLag = len(x) - 1
	}

	size := common.NextPowerOfTwo(2 * len(x))
	padded := make([]complex128, size)
	for i, v := range x {
		padded[i] = complex(v, 0)
	}

	spectrum := fft.FFT(padded)
	for i, c := range spectrum {
		m := cmplx.Abs(c)
		spectrum[i] = complex(m*m, 0)
	}

	inverse := fft.IFFT(spectrum)
	r := make([]float64, maxLag+1)
	for i := range r {
		r[i] = real(inverse[i])
	}
	return r
}
