package windowing

import (
	"fmt"
	"math"
)

// Hann represents a Hann window function.
// The periodic form (denominator N) is what librosa uses for spectrograms,
// the symmetric form (denominator N-1) is used by the pitch tracker.
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

// NewPeriodicHann is the DFT-even window, equal to scipy's hann(size, sym=False)
func NewPeriodicHann(size int) *Hann {
	return NewHann(size, false)
}

func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)
	if h.size == 1 {
		h.coefficients[0] = 1
		return
	}

	denominator := float64(h.size)
	if h.symmetric {
		denominator = float64(h.size - 1)
	}

	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// Apply returns a windowed copy of the signal, or nil on size mismatch
func (h *Hann) Apply(signal []float64) []float64 {
	if len(signal) != h.size {
		return nil
	}

	windowed := make([]float64, h.size)
	for i := range h.size {
		windowed[i] = signal[i] * h.coefficients[i]
	}
	return windowed
}

// ApplyTo writes the windowed signal into dst without allocating.
// Coefficients are read-only, so one Hann may be shared between goroutines.
func (h *Hann) ApplyTo(dst, signal []float64) error {
	if len(signal) != h.size || len(dst) < h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := range h.size {
		dst[i] = signal[i] * h.coefficients[i]
	}
	return nil
}

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error {
	return h.ApplyTo(signal, signal)
}

// Coefficients returns a copy of the window coefficients
func (h *Hann) Coefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// Size returns the window size
func (h *Hann) Size() int {
	return h.size
}

// Symmetric reports whether the window was built with denominator N-1
func (h *Hann) Symmetric() bool {
	return h.symmetric
}
