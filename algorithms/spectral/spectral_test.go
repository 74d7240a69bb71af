package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-fatigue/algorithms/windowing"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestPowerSpectrumPeak(t *testing.T) {
	// 8 cycles in 64 samples lands exactly on bin 8
	power := NewFFT().PowerSpectrum(sine(8, 64, 64))
	require.Len(t, power, 33)
	assert.Equal(t, 8, floats.MaxIdx(power))
	assert.InDelta(t, 32*32, power[8], 1e-6)
}

func TestAutocorrelationIsLinear(t *testing.T) {
	x := []float64{1, 2, 3}
	r := NewFFT().Autocorrelation(x, 5)
	require.Len(t, r, 3)
	assert.InDeltaSlice(t, []float64{14, 8, 3}, r, 1e-9)
}

func TestCenteredFrameCount(t *testing.T) {
	assert.Equal(t, 1+44100/512, CenteredFrameCount(44100, 2048, 512))
	assert.Equal(t, 1, CenteredFrameCount(1, 2048, 512))
}

func TestPowerSpectrogramShape(t *testing.T) {
	signal := sine(440, 22050, 22050)
	res, err := NewSTFT(0).PowerSpectrogram(signal, 512, 22050, windowing.NewPeriodicHann(2048))
	require.NoError(t, err)

	assert.Equal(t, 1+22050/512, res.TimeFrames)
	assert.Equal(t, 1025, res.FreqBins)
	assert.Len(t, res.Power[0], 1025)

	// 440 Hz sits near bin 440/(22050/2048) ≈ 40.9
	mid := res.Power[res.TimeFrames/2]
	assert.InDelta(t, 41, floats.MaxIdx(mid), 1)

	_, err = NewSTFT(1).PowerSpectrogram(nil, 512, 22050, windowing.NewPeriodicHann(2048))
	assert.Error(t, err)
}

func TestSlaneyMelScale(t *testing.T) {
	ms := NewMelScale()
	assert.InDelta(t, 15.0, ms.HzToMel(1000), 1e-12)
	assert.InDelta(t, 3.0, ms.HzToMel(200), 1e-12)
	for _, hz := range []float64{0, 100, 999, 1000, 4000, 11025} {
		assert.InDelta(t, hz, ms.MelToHz(ms.HzToMel(hz)), 1e-9)
	}

	htk := &MelScale{HTK: true}
	assert.InDelta(t, 1000.0, htk.HzToMel(1000), 0.1)
}

func TestFilterBankIsAreaNormalised(t *testing.T) {
	bank := NewMelScale().CreateMelFilterBank(40, 2048, 22050, 0, 0)
	require.Len(t, bank, 40)
	for _, filter := range bank {
		require.Len(t, filter, 1025)
		for _, w := range filter {
			assert.GreaterOrEqual(t, w, 0.0)
		}
	}

	// Slaney normalisation scales peak height as 2/bandwidth, so the low
	// (narrow) filters are taller than the high (wide) ones
	assert.Greater(t, floats.Max(bank[0]), floats.Max(bank[39]))
}

func TestPowerToDB(t *testing.T) {
	db := PowerToDB([]float64{1, 1e-3, 0, 1e-12}, 80)
	assert.InDelta(t, 0.0, db[0], 1e-12)
	assert.InDelta(t, -30.0, db[1], 1e-9)
	assert.InDelta(t, -80.0, db[2], 1e-9)
	assert.InDelta(t, -80.0, db[3], 1e-9)
}

func TestMFCCMeans(t *testing.T) {
	m, err := NewMFCCWithParams(22050, MFCCParams{NumCoefficients: 30, NumMelFilters: 128})
	require.NoError(t, err)

	signal := sine(220, 22050, 44100)
	frames, err := m.Compute(signal)
	require.NoError(t, err)
	assert.Len(t, frames, 1+44100/512)
	assert.Len(t, frames[0], 30)

	means, err := m.ComputeMeans(signal)
	require.NoError(t, err)
	require.Len(t, means, 30)
	for _, v := range means {
		assert.False(t, math.IsNaN(v))
	}

	again, err := m.ComputeMeans(signal)
	require.NoError(t, err)
	assert.Equal(t, means, again)
}

func TestMFCCRejectsBadParams(t *testing.T) {
	_, err := NewMFCCWithParams(22050, MFCCParams{NumCoefficients: 40, NumMelFilters: 20})
	assert.Error(t, err)

	_, err = NewMFCC(0, 13)
	assert.Error(t, err)
}

func TestSilenceGivesFlatCepstrum(t *testing.T) {
	m, err := NewMFCC(22050, 13)
	require.NoError(t, err)

	means, err := m.ComputeMeans(make([]float64, 4096))
	require.NoError(t, err)

	// every mel band sits at the -100 dB floor, so only C0 is non-zero
	assert.InDelta(t, -100*math.Sqrt(128), means[0], 1e-6)
	for _, v := range means[1:] {
		assert.InDelta(t, 0.0, v, 1e-6)
	}
}
