package speech

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-fatigue/algorithms/common"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/tonal"
)

// VoiceQualityAnalyzer measures cycle-to-cycle perturbation of the voice.
//
// Glottal pulses are placed Praat-style ("periodic, cc"): inside every voiced
// stretch of the pitch track the first pulse sits on the absolute peak near
// the middle, and further pulses are found one local period away on either
// side by maximising the cross-correlation of one-period windows.
type VoiceQualityAnalyzer struct {
	params        VoiceQualityParams
	pitchDetector *tonal.PitchDetector
}

// VoiceQualityParams configures pulse detection and the perturbation measures
type VoiceQualityParams struct {
	// Pitch tracking used to find voiced stretches and local periods
	Pitch tonal.PitchDetectionParams `json:"pitch"`

	ShortestPeriod     float64 `json:"shortest_period"`      // Periods below this are ignored (s)
	LongestPeriod      float64 `json:"longest_period"`       // Periods above this are ignored (s)
	MaxPeriodFactor    float64 `json:"max_period_factor"`    // Largest ratio of consecutive periods
	MaxAmplitudeFactor float64 `json:"max_amplitude_factor"` // Largest ratio of consecutive amplitudes
}

// VoiceQualityResult contains voice quality measurements
type VoiceQualityResult struct {
	// Perturbation measures, NaN when too few usable periods exist
	Jitter  float64 `json:"jitter"`  // Local jitter as a fraction of the mean period
	Shimmer float64 `json:"shimmer"` // Local shimmer as a fraction of the mean amplitude

	// Analysis metadata
	NumPulses  int     `json:"num_pulses"`
	MeanPeriod float64 `json:"mean_period"` // Mean of the in-range periods (s)
}

// DefaultVoiceQualityParams mirrors Praat's "To PointProcess (periodic, cc)"
// with a 75-500 Hz range and the standard jitter/shimmer arguments.
func DefaultVoiceQualityParams(sampleRate int) VoiceQualityParams {
	pitch := tonal.DefaultPitchDetectionParams(sampleRate)
	pitch.MinFreq = 75
	pitch.MaxFreq = 500

	return VoiceQualityParams{
		Pitch:              pitch,
		ShortestPeriod:     0.0001,
		LongestPeriod:      0.02,
		MaxPeriodFactor:    1.3,
		MaxAmplitudeFactor: 1.6,
	}
}

// NewVoiceQualityAnalyzer creates a new voice quality analyzer
func NewVoiceQualityAnalyzer(sampleRate int) (*VoiceQualityAnalyzer, error) {
	return NewVoiceQualityAnalyzerWithParams(DefaultVoiceQualityParams(sampleRate))
}

// NewVoiceQualityAnalyzerWithParams creates an analyzer with custom parameters
func NewVoiceQualityAnalyzerWithParams(params VoiceQualityParams) (*VoiceQualityAnalyzer, error) {
	if params.ShortestPeriod <= 0 || params.LongestPeriod <= params.ShortestPeriod {
		return nil, fmt.Errorf("invalid period range [%v, %v]", params.ShortestPeriod, params.LongestPeriod)
	}
	if params.MaxPeriodFactor < 1 || params.MaxAmplitudeFactor < 1 {
		return nil, fmt.Errorf("period and amplitude factors must be at least 1")
	}

	pd, err := tonal.NewPitchDetectorWithParams(params.Pitch)
	if err != nil {
		return nil, fmt.Errorf("failed to create pitch detector: %w", err)
	}

	return &VoiceQualityAnalyzer{
		params:        params,
		pitchDetector: pd,
	}, nil
}

// AnalyzeVoiceQuality computes local jitter and shimmer of a signal
func (vqa *VoiceQualityAnalyzer) AnalyzeVoiceQuality(signal []float64) (*VoiceQualityResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	pulses := vqa.Pulses(signal)
	sr := float64(vqa.params.Pitch.SampleRate)

	return &VoiceQualityResult{
		Jitter:     vqa.JitterLocal(pulses),
		Shimmer:    vqa.ShimmerLocal(signal, pulses),
		NumPulses:  len(pulses),
		MeanPeriod: vqa.meanPeriod(pulses) / sr,
	}, nil
}

// Pulses returns glottal pulse positions in (fractional) samples, ascending
func (vqa *VoiceQualityAnalyzer) Pulses(signal []float64) []float64 {
	track := vqa.pitchDetector.Track(signal)
	if len(track) == 0 {
		return []float64{}
	}

	sr := float64(vqa.params.Pitch.SampleRate)
	step := 0.0
	if len(track) > 1 {
		step = track[1].Time - track[0].Time
	}

	pulses := []float64{}
	for first := 0; first < len(track); first++ {
		if !track[first].Voiced {
			continue
		}
		last := first
		for last+1 < len(track) && track[last+1].Voiced {
			last++
		}

		run := track[first : last+1]
		lo := max(0, int((run[0].Time-step/2)*sr))
		hi := min(len(signal), int(math.Ceil((run[len(run)-1].Time+step/2)*sr)))
		pulses = append(pulses, vqa.pulsesInRun(signal, run, lo, hi)...)

		first = last
	}

	return pulses
}

func (vqa *VoiceQualityAnalyzer) pulsesInRun(signal []float64, run []tonal.PitchFrame, lo, hi int) []float64 {
	sr := float64(vqa.params.Pitch.SampleRate)
	periodAt := func(pos float64) float64 {
		t := pos / sr
		best := run[0]
		for _, f := range run[1:] {
			if math.Abs(f.Time-t) < math.Abs(best.Time-t) {
				best = f
			}
		}
		return sr / best.Frequency
	}

	mid := (lo + hi) / 2
	half := int(periodAt(float64(mid)) / 2)
	start := absMaxIndex(signal, max(lo, mid-half), min(hi, mid+half+1))
	if start < 0 {
		return nil
	}

	var left []float64
	pos := float64(start)
	for {
		period := periodAt(pos)
		next, ok := findMaximumCorrelation(signal, pos, period, pos-1.2*period, pos-0.8*period, lo, hi)
		if !ok {
			break
		}
		left = append(left, next)
		pos = next
	}

	pulses := make([]float64, 0, 2*len(left)+1)
	for i := len(left) - 1; i >= 0; i-- {
		pulses = append(pulses, left[i])
	}
	pulses = append(pulses, float64(start))

	pos = float64(start)
	for {
		period := periodAt(pos)
		next, ok := findMaximumCorrelation(signal, pos, period, pos+0.8*period, pos+1.2*period, lo, hi)
		if !ok {
			break
		}
		pulses = append(pulses, next)
		pos = next
	}

	return pulses
}

// findMaximumCorrelation searches [from, to] for the sample whose one-period
// neighbourhood best matches the neighbourhood of centre. Windows must stay
// within [lo, hi).
func findMaximumCorrelation(signal []float64, centre, period, from, to float64, lo, hi int) (float64, bool) {
	halfPeriod := int(period / 2)
	c := int(math.Round(centre))
	if c-halfPeriod < 0 || c+halfPeriod >= len(signal) {
		return 0, false
	}

	first := max(int(math.Ceil(from)), lo+halfPeriod)
	last := min(int(math.Floor(to)), hi-1-halfPeriod)
	if first > last {
		return 0, false
	}

	energyC := 0.0
	for k := -halfPeriod; k <= halfPeriod; k++ {
		energyC += signal[c+k] * signal[c+k]
	}

	correlations := make([]float64, last-first+1)
	best := -1
	for d := first; d <= last; d++ {
		cross, energyD := 0.0, 0.0
		for k := -halfPeriod; k <= halfPeriod; k++ {
			cross += signal[c+k] * signal[d+k]
			energyD += signal[d+k] * signal[d+k]
		}
		corr := 0.0
		if energyC > 0 && energyD > 0 {
			corr = cross / math.Sqrt(energyC*energyD)
		}
		correlations[d-first] = corr
		if best < 0 || corr > correlations[best] {
			best = d - first
		}
	}

	if correlations[best] <= 0 {
		return 0, false
	}

	offset, _ := common.ParabolicPeak(correlations, best)
	// Candidates were measured against the rounded centre
	return float64(first+best) + offset + (centre - float64(c)), true
}

// periods returns the in-range periods (in samples) between consecutive
// pulses, with ok[i] false for periods outside [ShortestPeriod, LongestPeriod].
func (vqa *VoiceQualityAnalyzer) periods(pulses []float64) ([]float64, []bool) {
	if len(pulses) < 2 {
		return nil, nil
	}
	sr := float64(vqa.params.Pitch.SampleRate)

	periods := make([]float64, len(pulses)-1)
	ok := make([]bool, len(periods))
	for i := range periods {
		periods[i] = pulses[i+1] - pulses[i]
		seconds := periods[i] / sr
		ok[i] = seconds >= vqa.params.ShortestPeriod && seconds <= vqa.params.LongestPeriod
	}
	return periods, ok
}

func (vqa *VoiceQualityAnalyzer) meanPeriod(pulses []float64) float64 {
	periods, ok := vqa.periods(pulses)
	sum, n := 0.0, 0
	for i, p := range periods {
		if ok[i] {
			sum += p
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func (vqa *VoiceQualityAnalyzer) periodPairOK(periods []float64, ok []bool, i int) bool {
	if !ok[i-1] || !ok[i] {
		return false
	}
	ratio := periods[i] / periods[i-1]
	return ratio <= vqa.params.MaxPeriodFactor && 1/ratio <= vqa.params.MaxPeriodFactor
}

// JitterLocal is the mean absolute difference between consecutive periods
// divided by the mean period. NaN when no consecutive pair qualifies.
func (vqa *VoiceQualityAnalyzer) JitterLocal(pulses []float64) float64 {
	periods, ok := vqa.periods(pulses)

	sum, pairs := 0.0, 0
	for i := 1; i < len(periods); i++ {
		if vqa.periodPairOK(periods, ok, i) {
			sum += math.Abs(periods[i] - periods[i-1])
			pairs++
		}
	}
	if pairs == 0 {
		return math.NaN()
	}

	return (sum / float64(pairs)) / vqa.meanPeriod(pulses)
}

// ShimmerLocal is the mean absolute difference between the peak amplitudes
// of consecutive periods divided by the mean peak amplitude. NaN when no
// consecutive pair qualifies.
func (vqa *VoiceQualityAnalyzer) ShimmerLocal(signal []float64, pulses []float64) float64 {
	periods, ok := vqa.periods(pulses)
	if len(periods) < 2 {
		return math.NaN()
	}

	amplitudes := make([]float64, len(periods))
	for i := range periods {
		from := max(0, int(math.Round(pulses[i])))
		to := min(len(signal), int(math.Round(pulses[i+1])))
		if idx := absMaxIndex(signal, from, to); idx >= 0 {
			amplitudes[i] = math.Abs(signal[idx])
		}
	}

	sum, pairs := 0.0, 0
	ampSum, ampCount := 0.0, 0
	for i, a := range amplitudes {
		if ok[i] {
			ampSum += a
			ampCount++
		}
		if i == 0 || !vqa.periodPairOK(periods, ok, i) {
			continue
		}
		prev := amplitudes[i-1]
		if prev <= 0 || a <= 0 {
			continue
		}
		ratio := a / prev
		if ratio > vqa.params.MaxAmplitudeFactor || 1/ratio > vqa.params.MaxAmplitudeFactor {
			continue
		}
		sum += math.Abs(a - prev)
		pairs++
	}
	if pairs == 0 || ampSum == 0 {
		return math.NaN()
	}

	return (sum / float64(pairs)) / (ampSum / float64(ampCount))
}

// absMaxIndex returns the index of the largest |x| in signal[from:to], or -1
func absMaxIndex(signal []float64, from, to int) int {
	best := -1
	for i := from; i < to; i++ {
		if best < 0 || math.Abs(signal[i]) > math.Abs(signal[best]) {
			best = i
		}
	}
	return best
}
