package tonal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-fatigue/algorithms/common"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/spectral"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/windowing"
)

// PitchDetectionParams contains parameters for the autocorrelation tracker.
// The defaults are Praat's "To Pitch (ac)" standard settings.
type PitchDetectionParams struct {
	SampleRate int `json:"sample_rate"`

	// Frequency range constraints
	MinFreq float64 `json:"min_freq"` // Pitch floor (Hz), also sets the window length
	MaxFreq float64 `json:"max_freq"` // Pitch ceiling (Hz)

	PeriodsPerWindow float64 `json:"periods_per_window"` // Window length in floor periods
	TimeStep         float64 `json:"time_step"`          // Seconds between frames, 0 = PeriodsPerWindow/MinFreq/4

	VoicingThreshold float64 `json:"voicing_threshold"`
	SilenceThreshold float64 `json:"silence_threshold"`
	OctaveCost       float64 `json:"octave_cost"`
}

// PitchFrame is one analysis frame of a pitch track
type PitchFrame struct {
	Time      float64 `json:"time"`      // Frame centre (s)
	Frequency float64 `json:"frequency"` // F0 (Hz), 0 when unvoiced
	Strength  float64 `json:"strength"`  // Normalised autocorrelation at the chosen lag
	Voiced    bool    `json:"voiced"`
}

// PitchDetector tracks F0 by short-term autocorrelation. Each frame is
// windowed, its autocorrelation is divided by the window's own
// autocorrelation, and the best local maximum between the ceiling and floor
// lags competes against an unvoiced candidate whose strength rises as the
// frame gets quieter relative to the whole signal.
//
// Candidates are chosen per frame. There is no path search across frames,
// so isolated octave errors are not smoothed out.
//
// The detector holds no per-call state and is safe for concurrent use.
type PitchDetector struct {
	params PitchDetectionParams

	windowLength int
	minLag       int
	maxLag       int
	timeStep     float64

	window   *windowing.Hann
	windowAC []float64
	fft      *spectral.FFT
}

// DefaultPitchDetectionParams returns Praat's defaults for the given rate
func DefaultPitchDetectionParams(sampleRate int) PitchDetectionParams {
	return PitchDetectionParams{
		SampleRate:       sampleRate,
		MinFreq:          75,
		MaxFreq:          600,
		PeriodsPerWindow: 3,
		VoicingThreshold: 0.45,
		SilenceThreshold: 0.03,
		OctaveCost:       0.01,
	}
}

// NewPitchDetector creates a detector with Praat's default settings
func NewPitchDetector(sampleRate int) (*PitchDetector, error) {
	return NewPitchDetectorWithParams(DefaultPitchDetectionParams(sampleRate))
}

// NewPitchDetectorWithParams creates a detector with custom parameters
func NewPitchDetectorWithParams(params PitchDetectionParams) (*PitchDetector, error) {
	if params.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", params.SampleRate)
	}
	if params.MinFreq <= 0 || params.MaxFreq <= params.MinFreq {
		return nil, fmt.Errorf("invalid pitch range [%v, %v]", params.MinFreq, params.MaxFreq)
	}
	if params.PeriodsPerWindow <= 0 {
		params.PeriodsPerWindow = 3
	}

	dx := 1.0 / float64(params.SampleRate)
	timeStep := params.TimeStep
	if timeStep <= 0 {
		timeStep = params.PeriodsPerWindow / params.MinFreq / 4
	}

	// Even number of samples covering PeriodsPerWindow floor periods
	half := int(params.PeriodsPerWindow/params.MinFreq/dx)/2 - 1
	if half < 2 {
		return nil, fmt.Errorf("sample rate %d too low for pitch floor %v", params.SampleRate, params.MinFreq)
	}
	windowLength := 2 * half

	minLag := max(2, int(1.0/(dx*params.MaxFreq)))
	maxLag := min(int(float64(windowLength)/params.PeriodsPerWindow)+2, windowLength-2)
	if minLag >= maxLag {
		return nil, fmt.Errorf("pitch ceiling %v leaves no lag range at %d Hz", params.MaxFreq, params.SampleRate)
	}

	window := windowing.NewHann(windowLength, true)
	fft := spectral.NewFFT()
	windowAC := fft.Autocorrelation(window.Coefficients(), maxLag+1)
	normalise(windowAC)

	return &PitchDetector{
		params:       params,
		windowLength: windowLength,
		minLag:       minLag,
		maxLag:       maxLag,
		timeStep:     timeStep,
		window:       window,
		windowAC:     windowAC,
		fft:          fft,
	}, nil
}

// Track returns one PitchFrame per analysis step. Signals shorter than one
// analysis window yield an empty track.
func (pd *PitchDetector) Track(signal []float64) []PitchFrame {
	sr := float64(pd.params.SampleRate)
	dx := 1.0 / sr
	duration := float64(len(signal)) * dx
	windowDuration := float64(pd.windowLength) * dx

	numFrames := int(math.Floor((duration-windowDuration)/pd.timeStep)) + 1
	if duration < windowDuration || numFrames < 1 {
		return []PitchFrame{}
	}

	// Frames are centred on the signal
	t1 := 0.5*duration - 0.5*float64(numFrames)*pd.timeStep + 0.5*pd.timeStep

	globalMean := common.Mean(signal)
	globalPeak := 0.0
	for _, v := range signal {
		globalPeak = math.Max(globalPeak, math.Abs(v-globalMean))
	}

	periodSamples := int(sr / pd.params.MinFreq)
	frame := make([]float64, pd.windowLength)
	track := make([]PitchFrame, numFrames)

	for i := range numFrames {
		t := t1 + float64(i)*pd.timeStep
		track[i] = PitchFrame{Time: t}
		if globalPeak == 0 {
			continue
		}

		centre := int(math.Round(t * sr))
		start := max(0, min(centre-pd.windowLength/2, len(signal)-pd.windowLength))

		// Local mean over one floor period either side of the centre
		lo := max(0, centre-periodSamples)
		hi := min(len(signal), centre+periodSamples)
		localMean := common.Mean(signal[lo:hi])

		localPeak := 0.0
		for j := range pd.windowLength {
			v := signal[start+j] - localMean
			localPeak = math.Max(localPeak, math.Abs(v))
			frame[j] = v
		}
		_ = pd.window.ApplyInPlace(frame)

		track[i] = pd.analyseFrame(frame, t, localPeak/globalPeak)
	}

	return track
}

func (pd *PitchDetector) analyseFrame(frame []float64, t, relativePeak float64) PitchFrame {
	p := pd.params
	result := PitchFrame{Time: t}

	r := pd.fft.Autocorrelation(frame, pd.maxLag+1)
	if r[0] <= 0 {
		return result
	}
	normalise(r)
	for lag := range r {
		r[lag] /= pd.windowAC[lag]
	}

	// Strength of the unvoiced candidate
	bestScore := p.VoicingThreshold + math.Max(0, 2-relativePeak/(p.SilenceThreshold/(1+p.VoicingThreshold)))

	for lag := pd.minLag; lag <= pd.maxLag; lag++ {
		if r[lag] <= 0.5*p.VoicingThreshold || r[lag] <= r[lag-1] || r[lag] < r[lag+1] {
			continue
		}

		offset, strength := common.ParabolicPeak(r, lag)
		if strength > 1 {
			strength = 1 / strength
		}
		frequency := float64(p.SampleRate) / (float64(lag) + offset)
		if frequency < p.MinFreq || frequency > p.MaxFreq {
			continue
		}

		score := strength - p.OctaveCost*math.Log2(p.MaxFreq/frequency)
		if score > bestScore {
			bestScore = score
			result.Frequency = frequency
			result.Strength = strength
			result.Voiced = true
		}
	}

	return result
}

// MeanPitch returns the mean F0 over voiced frames, or NaN when no frame is
// voiced.
func (pd *PitchDetector) MeanPitch(signal []float64) float64 {
	sum, voiced := 0.0, 0
	for _, f := range pd.Track(signal) {
		if f.Voiced {
			sum += f.Frequency
			voiced++
		}
	}
	if voiced == 0 {
		return math.NaN()
	}
	return sum / float64(voiced)
}

// WindowLength returns the analysis window length in samples
func (pd *PitchDetector) WindowLength() int {
	return pd.windowLength
}

// Params returns the detector parameters
func (pd *PitchDetector) Params() PitchDetectionParams {
	return pd.params
}

func normalise(r []float64) {
	if len(r) == 0 || r[0] == 0 {
		return
	}
	scale := 1 / r[0]
	for i := range r {
		r[i] *= scale
	}
}
