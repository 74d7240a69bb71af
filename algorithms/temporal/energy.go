package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-fatigue/algorithms/common"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/spectral"
)

// Energy computes short-time RMS energy
type Energy struct {
	frameSize int
	hopSize   int
	center    bool
}

// NewEnergy creates a new energy calculator. With center set the signal is
// zero padded by frameSize/2 on both sides, as librosa.feature.rms does.
func NewEnergy(frameSize, hopSize int, center bool) *Energy {
	return &Energy{
		frameSize: frameSize,
		hopSize:   hopSize,
		center:    center,
	}
}

// ComputeShortTimeEnergy calculates the RMS of every (unwindowed) frame
func (e *Energy) ComputeShortTimeEnergy(signal []float64) []float64 {
	if e.hopSize <= 0 || e.frameSize <= 0 || len(signal) == 0 {
		return []float64{}
	}
	if e.center {
		signal = spectral.CenterPad(signal, e.frameSize)
	}
	if len(signal) < e.frameSize {
		return []float64{}
	}

	numFrames := (len(signal)-e.frameSize)/e.hopSize + 1
	energies := make([]float64, numFrames)

	for i := range numFrames {
		startIdx := i * e.hopSize
		energies[i] = common.RMS(signal[startIdx : startIdx+e.frameSize])
	}

	return energies
}

// MeanRMS averages the short-time RMS over all frames
func (e *Energy) MeanRMS(signal []float64) float64 {
	energies := e.ComputeShortTimeEnergy(signal)
	if len(energies) == 0 {
		return math.NaN()
	}
	return common.Mean(energies)
}

// ComputeLogEnergy calculates log energy in dB scale
func (e *Energy) ComputeLogEnergy(signal []float64, floor float64) []float64 {
	energies := e.ComputeShortTimeEnergy(signal)
	logEnergies := make([]float64, len(energies))

	for i, energy := range energies {
		logEnergies[i] = 20.0 * math.Log10(math.Max(energy, floor))
	}

	return logEnergies
}
