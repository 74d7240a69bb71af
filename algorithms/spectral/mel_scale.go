package spectral

import (
	"math"
)

// Slaney mel scale constants: linear below 1 kHz, logarithmic above
const (
	slaneyFSp       = 200.0 / 3.0
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSp
)

var slaneyLogStep = math.Log(6.4) / 27.0

// MelScale provides mel frequency conversion utilities.
// HTK selects the 2595·log10(1+f/700) formula, otherwise the Slaney
// (Auditory Toolbox) formula is used, which is librosa's default.
type MelScale struct {
	HTK bool
}

// NewMelScale creates a Slaney mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if ms.HTK {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}

	if hz >= slaneyMinLogHz {
		return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
	}
	return hz / slaneyFSp
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if ms.HTK {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}

	if mel >= slaneyMinLogMel {
		return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
	}
	return slaneyFSp * mel
}

// CreateMelFilterBank builds numFilters triangular filters over the
// fftSize/2+1 non-negative FFT bins. Filter edges are evaluated at the
// exact bin frequencies and each filter is area normalised (2 / bandwidth),
// matching librosa.filters.mel with norm="slaney".
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil
	}
	if highFreq <= 0 {
		highFreq = float64(sampleRate) / 2
	}

	bins := fftSize/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range bins {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)
	melF := make([]float64, numFilters+2)
	for i := range melF {
		melF[i] = ms.MelToHz(lowMel + float64(i)*(highMel-lowMel)/float64(numFilters+1))
	}

	filterBank := make([][]float64, numFilters)
	for m := range numFilters {
		filterBank[m] = make([]float64, bins)
		lowerWidth := melF[m+1] - melF[m]
		upperWidth := melF[m+2] - melF[m+1]
		enorm := 2.0 / (melF[m+2] - melF[m])

		for k, f := range fftFreqs {
			lower := (f - melF[m]) / lowerWidth
			upper := (melF[m+2] - f) / upperWidth
			w := math.Max(0, math.Min(lower, upper))
			filterBank[m][k] = w * enorm
		}
	}

	return filterBank
}
