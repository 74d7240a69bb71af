package transcode

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Downmix averages interleaved channels into one
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// resampleDelays caches outputDelay per [input, output] rate pair
var resampleDelays sync.Map

// Resample converts a mono signal between rates with a high quality
// polyphase filter. The output holds round(len*out/in) samples and is time
// aligned with the input: an impulse at input sample n lands at output
// sample round(n*out/in).
func Resample(signal []float64, inputRate, outputRate int) ([]float64, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", inputRate, outputRate)
	}
	if inputRate == outputRate || len(signal) == 0 {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out, nil
	}

	delay, err := outputDelay(inputRate, outputRate)
	if err != nil {
		return nil, err
	}

	// Leading silence gives the filter room to settle before the signal
	lead := leadIn(inputRate, outputRate)
	input := make([]float64, lead+len(signal))
	copy(input[lead:], signal)

	output, err := runResampler(input, inputRate, outputRate)
	if err != nil {
		return nil, err
	}

	start := int(math.Round(float64(lead)*float64(outputRate)/float64(inputRate))) - delay
	if start < 0 {
		output = append(make([]float64, -start), output...)
		start = 0
	}
	if start > len(output) {
		start = len(output)
	}
	output = output[start:]

	expected := int(math.Round(float64(len(signal)) * float64(outputRate) / float64(inputRate)))
	if len(output) >= expected {
		return output[:expected], nil
	}
	padded := make([]float64, expected)
	copy(padded, output)
	return padded, nil
}

func runResampler(input []float64, inputRate, outputRate int) ([]float64, error) {
	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	// Trailing silence pushes the filter's tail out in the same call
	padded := make([]float64, len(input)+inputRate/10)
	copy(padded, input)

	output, err := resampler.Process(padded)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	return output, nil
}

// outputDelay is how many output samples early the resampler places its
// output. It is measured once per rate pair by resampling an impulse.
func outputDelay(inputRate, outputRate int) (int, error) {
	key := [2]int{inputRate, outputRate}
	if d, ok := resampleDelays.Load(key); ok {
		return d.(int), nil
	}

	lead := leadIn(inputRate, outputRate)
	impulse := make([]float64, 2*lead)
	impulse[lead] = 1

	output, err := runResampler(impulse, inputRate, outputRate)
	if err != nil {
		return 0, err
	}
	if len(output) == 0 {
		return 0, fmt.Errorf("resampler produced no output for %d -> %d", inputRate, outputRate)
	}

	peak := 0
	for i, v := range output {
		if math.Abs(v) > math.Abs(output[peak]) {
			peak = i
		}
	}
	want := int(math.Round(float64(lead) * float64(outputRate) / float64(inputRate)))

	d := want - peak
	resampleDelays.Store(key, d)
	return d, nil
}

// leadIn is about 100 ms of input, rounded up to land on a whole output
// sample when the rate ratio allows it.
func leadIn(inputRate, outputRate int) int {
	want := max(inputRate/10, 1)
	step := inputRate / gcd(inputRate, outputRate)
	if step > want {
		return want
	}
	return (want + step - 1) / step * step
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
