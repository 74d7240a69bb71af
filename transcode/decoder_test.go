package transcode

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV encodes interleaved 16-bit samples to a temp file
func writeWAV(t *testing.T, samples []int, sampleRate, channels int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

func nativeDecoder(rate int) *Decoder {
	cfg := DefaultDecoderConfig()
	cfg.TargetSampleRate = rate
	cfg.EnableFFmpeg = false
	return NewDecoder(cfg)
}

func TestDecodeMonoWAV(t *testing.T) {
	samples := []int{0, 16384, -16384, 32767, -32768}
	path := writeWAV(t, samples, 22050, 1)

	got, err := nativeDecoder(22050).DecodeFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 22050, got.SampleRate)
	assert.Equal(t, 1, got.Channels)
	assert.InDeltaSlice(t, []float64{0, 0.5, -0.5, 32767.0 / 32768.0, -1}, got.PCM, 1e-12)
	assert.Equal(t, "wav", got.Metadata.Decoder)
	assert.Equal(t, path, got.Metadata.Filename)
	assert.False(t, got.Metadata.Resampled)
}

func TestDecodeStereoWAVDownmixes(t *testing.T) {
	// L/R pairs
	samples := []int{16384, 0, -16384, -16384, 32767, -32767}
	path := writeWAV(t, samples, 22050, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err := nativeDecoder(22050).DecodeBytes(context.Background(), data)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, -0.5, 0}, got.PCM, 1e-12)
	assert.Equal(t, 2, got.Metadata.Channels)
}

func TestDecodeWAVResamples(t *testing.T) {
	samples := make([]int, 44100)
	for i := range samples {
		samples[i] = int(10000 * math.Sin(2*math.Pi*220*float64(i)/44100))
	}
	path := writeWAV(t, samples, 44100, 1)

	got, err := nativeDecoder(22050).DecodeFile(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, got.PCM, 22050)
	assert.True(t, got.Metadata.Resampled)
	assert.Equal(t, 44100, got.Metadata.SampleRate)
	assert.Equal(t, time.Second, got.Duration)
}

func TestDecodeMaxDuration(t *testing.T) {
	path := writeWAV(t, make([]int, 22050), 22050, 1)

	dec := nativeDecoder(22050)
	dec.config.MaxDuration = 500 * time.Millisecond

	got, err := dec.DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, got.PCM, 11025)
}

func TestDecodeErrors(t *testing.T) {
	dec := nativeDecoder(22050)
	ctx := context.Background()

	_, err := dec.DecodeBytes(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = dec.DecodeBytes(ctx, []byte("ID3\x03 not a wav file"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = dec.DecodeFile(ctx, filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestIsWAV(t *testing.T) {
	assert.True(t, IsWAV([]byte("RIFF\x00\x00\x00\x00WAVEfmt ")))
	assert.False(t, IsWAV([]byte("RIFF")))
	assert.False(t, IsWAV([]byte("OggS\x00\x02\x00\x00\x00\x00\x00\x00")))
}

func TestBytesToFloat64(t *testing.T) {
	raw := make([]byte, 8*2+3)
	binary.LittleEndian.PutUint64(raw[0:], math.Float64bits(0.25))
	binary.LittleEndian.PutUint64(raw[8:], math.Float64bits(-1))

	assert.Equal(t, []float64{0.25, -1}, bytesToFloat64(raw))
	assert.Nil(t, bytesToFloat64([]byte{1, 2}))
}

func TestParseFFprobeOutput(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3","sample_rate":"44100","channels":2,"duration":"3.5","bit_rate":"128000"}]}`)
	meta, err := parseFFprobeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "mp3", meta.Codec)
	assert.Equal(t, 3.5, meta.Duration)

	_, err = parseFFprobeOutput([]byte(`{"streams":[]}`))
	assert.Error(t, err)
	_, err = parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"video"}]}`))
	assert.Error(t, err)
}

func TestBuildFFmpegArgs(t *testing.T) {
	dec := NewDecoder(nil)
	dec.config.MaxDuration = 90 * time.Second
	args := dec.buildFFmpegArgs()

	assert.Contains(t, args, "f64le")
	assert.Contains(t, args, "22050")
	assert.Contains(t, args, "90.00")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestResampleLength(t *testing.T) {
	signal := make([]float64, 16000)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * 100 * float64(i) / 16000)
	}

	out, err := Resample(signal, 16000, 22050)
	require.NoError(t, err)
	assert.Len(t, out, 22050)

	same, err := Resample(signal, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, signal, same)

	_, err = Resample(signal, 0, 16000)
	assert.Error(t, err)
}

func TestResampleKeepsTiming(t *testing.T) {
	tests := []struct {
		inRate, outRate int
		at, want        int
	}{
		{44100, 22050, 10000, 5000},
		{16000, 22050, 8000, 11025},
		{48000, 22050, 32000, 14700},
	}

	for _, tt := range tests {
		signal := make([]float64, tt.inRate)
		signal[tt.at] = 1

		out, err := Resample(signal, tt.inRate, tt.outRate)
		require.NoError(t, err)

		peak := 0
		for i, v := range out {
			if math.Abs(v) > math.Abs(out[peak]) {
				peak = i
			}
		}
		assert.InDelta(t, tt.want, peak, 1, "%d -> %d", tt.inRate, tt.outRate)
	}
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float64{1.5, 3.5}, Downmix([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{1, 2}, Downmix([]float64{1, 2}, 1))
}
