package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/sonido-fatigue/algorithms/common"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/windowing"
)

// amin is the power floor applied before taking decibels
const amin = 1e-10

// MFCC computes Mel-Frequency Cepstral Coefficients the way
// librosa.feature.mfcc does with its default arguments: centred STFT with a
// periodic Hann window, power mel spectrogram with Slaney-normalised
// filters, power_to_db with a top_db clip and an orthonormal DCT-II.
//
// All tables are built by the constructor and never written afterwards, so
// one MFCC may be used from many goroutines.
type MFCC struct {
	params     MFCCParams
	sampleRate int

	stft       *STFT
	window     *windowing.Hann
	filterBank *mat.Dense // numMelFilters x (fftSize/2+1)
	dctMatrix  *mat.Dense // numCoefficients x numMelFilters
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int     `json:"num_coefficients"` // Number of MFCC coefficients (default: 20)
	NumMelFilters   int     `json:"num_mel_filters"`  // Number of mel filter bank filters (default: 128)
	FFTSize         int     `json:"fft_size"`         // STFT window length (default: 2048)
	HopSize         int     `json:"hop_size"`         // STFT hop (default: 512)
	LowFreq         float64 `json:"low_freq"`         // Low frequency bound (default: 0)
	HighFreq        float64 `json:"high_freq"`        // High frequency bound (default: sampleRate/2)
	TopDB           float64 `json:"top_db"`           // Dynamic range kept below the peak (default: 80)
}

// NewMFCC creates a new MFCC computer with librosa's default parameters
func NewMFCC(sampleRate, numCoefficients int) (*MFCC, error) {
	return NewMFCCWithParams(sampleRate, MFCCParams{NumCoefficients: numCoefficients})
}

// NewMFCCWithParams creates a new MFCC computer with custom parameters
func NewMFCCWithParams(sampleRate int, params MFCCParams) (*MFCC, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	// Set defaults
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 20
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 128
	}
	if params.FFTSize <= 0 {
		params.FFTSize = 2048
	}
	if params.HopSize <= 0 {
		params.HopSize = 512
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}
	if params.TopDB <= 0 {
		params.TopDB = 80
	}
	if params.NumCoefficients > params.NumMelFilters {
		return nil, fmt.Errorf("cannot take %d coefficients from %d mel filters", params.NumCoefficients, params.NumMelFilters)
	}

	bank := NewMelScale().CreateMelFilterBank(params.NumMelFilters, params.FFTSize, sampleRate, params.LowFreq, params.HighFreq)
	if len(bank) == 0 {
		return nil, fmt.Errorf("failed to create mel filter bank")
	}

	bins := params.FFTSize/2 + 1
	filterBank := mat.NewDense(params.NumMelFilters, bins, nil)
	for m, row := range bank {
		filterBank.SetRow(m, row)
	}

	return &MFCC{
		params:     params,
		sampleRate: sampleRate,
		stft:       NewSTFT(1),
		window:     windowing.NewPeriodicHann(params.FFTSize),
		filterBank: filterBank,
		dctMatrix:  createDCTMatrix(params.NumCoefficients, params.NumMelFilters),
	}, nil
}

// Compute returns the MFCC matrix of a signal, one row per STFT frame
func (m *MFCC) Compute(signal []float64) ([][]float64, error) {
	spec, err := m.stft.PowerSpectrogram(signal, m.params.HopSize, m.sampleRate, m.window)
	if err != nil {
		return nil, fmt.Errorf("failed to compute spectrogram: %w", err)
	}

	power := mat.NewDense(spec.TimeFrames, spec.FreqBins, nil)
	for t, row := range spec.Power {
		power.SetRow(t, row)
	}

	// frames x mel
	var mel mat.Dense
	mel.Mul(power, m.filterBank.T())

	logMel := PowerToDB(mel.RawMatrix().Data, m.params.TopDB)
	logMelMatrix := mat.NewDense(spec.TimeFrames, m.params.NumMelFilters, logMel)

	// frames x coefficients
	var cepstrum mat.Dense
	cepstrum.Mul(logMelMatrix, m.dctMatrix.T())

	frames := make([][]float64, spec.TimeFrames)
	for t := range frames {
		frames[t] = mat.Row(nil, t, &cepstrum)
	}
	return frames, nil
}

// ComputeMeans returns the per-coefficient mean over all STFT frames
func (m *MFCC) ComputeMeans(signal []float64) ([]float64, error) {
	frames, err := m.Compute(signal)
	if err != nil {
		return nil, err
	}

	means := common.ColumnMeans(frames)
	if means == nil {
		return nil, fmt.Errorf("no MFCC frames computed")
	}
	return means, nil
}

// PowerToDB converts power values to decibels relative to 1.0, flooring at
// 1e-10 and clipping everything more than topDB below the loudest value.
func PowerToDB(power []float64, topDB float64) []float64 {
	db := make([]float64, len(power))
	for i, p := range power {
		db[i] = 10.0 * math.Log10(math.Max(amin, p))
	}
	if len(db) == 0 || topDB <= 0 {
		return db
	}

	floor := floats.Max(db) - topDB
	for i, v := range db {
		db[i] = math.Max(v, floor)
	}
	return db
}

// createDCTMatrix creates an orthonormal DCT-II matrix
func createDCTMatrix(numCoefficients, numMelFilters int) *mat.Dense {
	dct := mat.NewDense(numCoefficients, numMelFilters, nil)

	for k := range numCoefficients {
		scale := math.Sqrt(2.0 / float64(numMelFilters))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(numMelFilters))
		}
		for n := range numMelFilters {
			dct.Set(k, n, scale*math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/float64(numMelFilters)))
		}
	}
	return dct
}

// Params returns the resolved MFCC parameters
func (m *MFCC) Params() MFCCParams {
	return m.params
}
