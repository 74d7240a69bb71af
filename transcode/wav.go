package transcode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag
const wavFormatPCM = 1

// errWAVNeedsFFmpeg marks RIFF files go-audio/wav cannot turn into integer
// PCM (IEEE float, A-law, extensible, ...)
var errWAVNeedsFFmpeg = errors.New("wav encoding requires ffmpeg")

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// decodeWAV decodes integer PCM WAV, averages channels to mono and
// resamples to the target rate.
func (d *Decoder) decodeWAV(data []byte) (*AudioData, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", errWAVNeedsFFmpeg, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrNoSamples
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if channels <= 0 || sampleRate <= 0 || bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("invalid wav format: %d channels, %d bits at %d Hz", channels, bitDepth, sampleRate)
	}

	// A header with no data chunk payload decodes to zero samples
	mono := Downmix(normalizeInts(buf.Data, bitDepth), channels)

	resampled := sampleRate != d.config.TargetSampleRate && len(mono) > 0
	if resampled {
		mono, err = Resample(mono, sampleRate, d.config.TargetSampleRate)
		if err != nil {
			return nil, err
		}
	}

	return d.newAudioData(mono, &SourceMetadata{
		Decoder:    "wav",
		Codec:      fmt.Sprintf("pcm_s%dle", bitDepth),
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
		Resampled:  resampled,
	}), nil
}

// normalizeInts scales integer samples of the given bit depth into [-1, 1).
// 8-bit WAV is unsigned with a 128 offset.
func normalizeInts(data []int, bitDepth int) []float64 {
	out := make([]float64, len(data))
	if bitDepth == 8 {
		for i, v := range data {
			out[i] = float64(v-128) / 128.0
		}
		return out
	}

	scale := float64(int64(1) << (bitDepth - 1))
	for i, v := range data {
		out[i] = float64(v) / scale
	}
	return out
}
