// Package fatiguetest provides fixtures for testing code built on the
// fatigue pipeline: synthetic voiced audio, WAV files and small models.
package fatiguetest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-fatigue/fatigue"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/extractors"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/model"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/scaler"
)

// Labels is the class enumeration of the fixture model
var Labels = []string{"Non-Fatigue", "Fatigue", "Ambiguous"}

// Voiced returns n samples of a steady vowel-like tone at f0 Hz: the
// fundamental plus a weaker second harmonic.
func Voiced(n, sampleRate int, f0 float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = 0.4*math.Sin(2*math.Pi*f0*t) + 0.15*math.Sin(2*math.Pi*2*f0*t)
	}
	return out
}

// WriteWAV stores mono samples in [-1, 1] as a 16-bit PCM WAV in a temp dir
func WriteWAV(tb testing.TB, samples []float64, sampleRate int) string {
	tb.Helper()

	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(math.Round(math.Max(-1, math.Min(1, s)) * 32767))
	}

	path := filepath.Join(tb.TempDir(), "speech.wav")
	f, err := os.Create(path)
	require.NoError(tb, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           ints,
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	require.NoError(tb, enc.Write(buf))
	require.NoError(tb, enc.Close())
	return path
}

// fill returns a rows x cols matrix of small deterministic weights
func fill(rows, cols int, seed float64) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := range out[i] {
			out[i][j] = 0.1 * math.Sin(seed+float64(i*cols+j)*0.37)
		}
	}
	return out
}

func lstm(in, units int, seed float64) model.LSTMWeights {
	return model.LSTMWeights{
		Kernel:          fill(in, 4*units, seed),
		RecurrentKernel: fill(units, 4*units, seed+1),
		Bias:            fill(1, 4*units, seed+2)[0],
	}
}

// ModelArtifact returns an untrained network with the production layout:
// [timesteps x 34] input, one BiLSTM of 4+4 units, attention, dense(8->6
// relu) and a softmax over Labels.
func ModelArtifact(timesteps int) model.Artifact {
	return model.Artifact{
		Name:       "fixture",
		InputShape: []int{timesteps, extractors.FeatureDim},
		Labels:     append([]string(nil), Labels...),
		Encoder: []model.BiLSTMWeights{{
			Forward:  lstm(extractors.FeatureDim, 4, 0.3),
			Backward: lstm(extractors.FeatureDim, 4, 1.7),
		}},
		Attention: model.AttentionWeights{
			W: fill(8, 1, 2.1),
			B: fill(timesteps, 1, 3.4),
		},
		Head: []model.DenseWeights{
			{Kernel: fill(8, 6, 4.2), Bias: fill(1, 6, 5.5)[0], Activation: model.ActivationReLU},
			{Kernel: fill(6, len(Labels), 6.3), Bias: fill(1, len(Labels), 7.1)[0], Activation: model.ActivationSoftmax},
		},
	}
}

// ScalerArtifact returns a scaler roughly centred on voiced speech features
func ScalerArtifact() scaler.Artifact {
	mean := make([]float64, extractors.FeatureDim)
	scale := make([]float64, extractors.FeatureDim)
	for i := range scale {
		scale[i] = 10
	}
	mean[0], scale[0] = -200, 100
	mean[extractors.PitchColumn], scale[extractors.PitchColumn] = 150, 50
	scale[extractors.RMSColumn] = 0.1
	scale[extractors.JitterColumn] = 0.01
	scale[extractors.ShimmerColumn] = 0.05

	return scaler.Artifact{
		FeatureNames: extractors.ColumnNames(),
		Mean:         mean,
		Scale:        scale,
	}
}

// Artifacts builds the fixture scaler and classifier in memory
func Artifacts(tb testing.TB, timesteps int) *fatigue.Artifacts {
	tb.Helper()

	s, err := scaler.New(ScalerArtifact(), extractors.FeatureDim)
	require.NoError(tb, err)
	c, err := model.New(ModelArtifact(timesteps), timesteps, extractors.FeatureDim)
	require.NoError(tb, err)
	return &fatigue.Artifacts{Scaler: s, Classifier: c}
}

// WriteArtifacts saves the fixture model and scaler into a temp dir and
// returns their paths.
func WriteArtifacts(tb testing.TB, timesteps int) (modelPath, scalerPath string) {
	tb.Helper()
	dir := tb.TempDir()

	modelPath = filepath.Join(dir, "model.msgpack")
	a := ModelArtifact(timesteps)
	require.NoError(tb, a.Save(modelPath))

	b, err := yaml.Marshal(ScalerArtifact())
	require.NoError(tb, err)

	scalerPath = filepath.Join(dir, "scaler.yaml")
	require.NoError(tb, os.WriteFile(scalerPath, b, 0o644))
	return modelPath, scalerPath
}
