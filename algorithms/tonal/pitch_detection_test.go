package tonal

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 22050

func tone(freq float64, seconds float64) []float64 {
	out := make([]float64, int(seconds*testRate))
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func TestDefaultDetectorGeometry(t *testing.T) {
	pd, err := NewPitchDetector(testRate)
	require.NoError(t, err)

	// 3 periods of 75 Hz at 22050 Hz, rounded down to an even length
	assert.Equal(t, 880, pd.WindowLength())
	assert.Equal(t, 75.0, pd.Params().MinFreq)
}

func TestMeanPitchOfSine(t *testing.T) {
	pd, err := NewPitchDetector(testRate)
	require.NoError(t, err)

	for _, f0 := range []float64{120, 200, 310} {
		assert.InDelta(t, f0, pd.MeanPitch(tone(f0, 2)), 1.0, "f0 %v", f0)
	}
}

func TestTrackIsVoicedThroughout(t *testing.T) {
	pd, err := NewPitchDetector(testRate)
	require.NoError(t, err)

	track := pd.Track(tone(200, 1))
	require.NotEmpty(t, track)
	for _, frame := range track {
		assert.True(t, frame.Voiced)
		assert.InDelta(t, 1.0, frame.Strength, 0.05)
	}
	// frame centres advance by 10 ms
	assert.InDelta(t, 0.01, track[1].Time-track[0].Time, 1e-12)
}

func TestSilenceIsUnvoiced(t *testing.T) {
	pd, err := NewPitchDetector(testRate)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(pd.MeanPitch(make([]float64, testRate))))
}

func TestNoiseIsMostlyUnvoiced(t *testing.T) {
	pd, err := NewPitchDetector(testRate)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	noise := make([]float64, testRate)
	for i := range noise {
		noise[i] = rng.NormFloat64() * 0.1
	}

	voiced := 0
	track := pd.Track(noise)
	for _, frame := range track {
		if frame.Voiced {
			voiced++
		}
	}
	assert.Less(t, voiced, len(track)/4)
}

func TestShortSignalYieldsEmptyTrack(t *testing.T) {
	pd, err := NewPitchDetector(testRate)
	require.NoError(t, err)

	assert.Empty(t, pd.Track(make([]float64, 100)))
	assert.True(t, math.IsNaN(pd.MeanPitch(nil)))
}

func TestInvalidParams(t *testing.T) {
	_, err := NewPitchDetector(0)
	assert.Error(t, err)

	params := DefaultPitchDetectionParams(testRate)
	params.MaxFreq = 50
	_, err = NewPitchDetectorWithParams(params)
	assert.Error(t, err)
}
