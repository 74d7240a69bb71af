package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-fatigue/logging"
)

var (
	// ErrEmptyInput is returned for zero-length payloads
	ErrEmptyInput = errors.New("empty audio data")
	// ErrUnsupportedFormat is returned when the payload is not WAV and
	// FFmpeg decoding is disabled
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoSamples is returned when decoding succeeds but yields no audio
	ErrNoSamples = errors.New("no audio samples decoded")
)

// AudioData represents decoded mono audio at the target rate
type AudioData struct {
	PCM        []float64       `json:"-"` // Samples in [-1, 1]
	SampleRate int             `json:"sample_rate"`
	Channels   int             `json:"channels"`
	Duration   time.Duration   `json:"duration"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   *SourceMetadata `json:"metadata,omitempty"`
}

// SourceMetadata describes the input before conversion
type SourceMetadata struct {
	Filename   string `json:"filename,omitempty"`
	Decoder    string `json:"decoder"` // "wav" or "ffmpeg"
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth,omitempty"`
	Resampled  bool   `json:"resampled"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	MaxDuration      time.Duration `json:"max_duration"` // 0 = no limit
	EnableFFmpeg     bool          `json:"enable_ffmpeg"`
	FFmpegPath       string        `json:"ffmpeg_path"`  // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path"` // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout"`      // Timeout for ffmpeg operations
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 22050,
		EnableFFmpeg:     true,
		FFmpegPath:       "ffmpeg",  // Assume in PATH
		FFprobePath:      "ffprobe", // Assume in PATH
		Timeout:          30 * time.Second,
	}
}

// Decoder turns uploaded audio into mono float samples at the target rate.
// PCM WAV is decoded natively, everything else goes through FFmpeg.
type Decoder struct {
	config *DecoderConfig
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes an audio file from disk
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	data, err := os.ReadFile(filename)
	if err != nil {
		logger.Error(err, "Failed to read audio file")
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	audio, err := d.DecodeBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	audio.Metadata.Filename = filename
	return audio, nil
}

// DecodeReader decodes audio from an io.Reader
func (d *Decoder) DecodeReader(ctx context.Context, reader io.Reader) (*AudioData, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		logging.WithContext(ctx).Error(err, "Failed to read data from reader", logging.Fields{
			"component": "audio_decoder",
			"function":  "DecodeReader",
		})
		return nil, err
	}

	return d.DecodeBytes(ctx, data)
}

// DecodeBytes decodes audio from a byte slice
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeBytes",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	if IsWAV(data) {
		audio, err := d.decodeWAV(data)
		if err == nil {
			logger.Debug("Decoded WAV natively", logging.Fields{
				"input_sample_rate": audio.Metadata.SampleRate,
				"input_channels":    audio.Metadata.Channels,
				"bit_depth":         audio.Metadata.BitDepth,
				"resampled":         audio.Metadata.Resampled,
				"samples":           len(audio.PCM),
			})
			return audio, nil
		}
		if !d.config.EnableFFmpeg || !errors.Is(err, errWAVNeedsFFmpeg) {
			logger.Error(err, "Failed to decode WAV")
			return nil, err
		}
		logger.Debug("WAV encoding not handled natively, falling back to ffmpeg", logging.Fields{
			"reason": err.Error(),
		})
	}

	if !d.config.EnableFFmpeg {
		return nil, ErrUnsupportedFormat
	}

	metadata, err := d.probeAudioMetadata(ctx, data)
	if err != nil {
		logger.Error(err, "Failed to probe audio metadata")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	return d.decodeWithFFmpeg(ctx, data, metadata)
}

// probeAudioMetadata uses ffprobe to get input audio information from bytes
func (d *Decoder) probeAudioMetadata(ctx context.Context, data []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams",          // Show stream info
		"-select_streams", "a:0", // First audio stream only
		"pipe:0", // Input from stdin
	}

	output, err := d.run(ctx, d.config.FFprobePath, args, data)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %q", stream.SampleRate)
	}

	duration, _ := strconv.ParseFloat(stream.Duration, 64)
	bitrate, _ := strconv.Atoi(stream.BitRate)

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// decodeWithFFmpeg converts any FFmpeg-readable input to mono f64le
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, data []byte, metadata *AudioMetadata) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "decodeWithFFmpeg",
	})

	args := d.buildFFmpegArgs()
	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := d.run(ctx, d.config.FFmpegPath, args, data)
	if err != nil {
		logger.Error(err, "FFmpeg decode failed")
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	return d.newAudioData(samples, &SourceMetadata{
		Decoder:    "ffmpeg",
		Codec:      metadata.Codec,
		SampleRate: metadata.SampleRate,
		Channels:   metadata.Channels,
		Resampled:  metadata.SampleRate != d.config.TargetSampleRate,
	}), nil
}

// buildFFmpegArgs builds the ffmpeg arguments for stdin to stdout decoding
func (d *Decoder) buildFFmpegArgs() []string {
	args := []string{
		"-v", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
		"-af", "aresample=resampler=soxr:precision=28",
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "pipe:1")
}

// run executes an external tool with stdin and the configured timeout
func (d *Decoder) run(ctx context.Context, path string, args []string, stdin []byte) ([]byte, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, err
	}
	return output, nil
}

// newAudioData truncates to MaxDuration and fills in the derived fields
func (d *Decoder) newAudioData(samples []float64, source *SourceMetadata) *AudioData {
	rate := d.config.TargetSampleRate
	if d.config.MaxDuration > 0 {
		limit := int(d.config.MaxDuration.Seconds() * float64(rate))
		if len(samples) > limit {
			samples = samples[:limit]
		}
	}

	return &AudioData{
		PCM:        samples,
		SampleRate: rate,
		Channels:   1,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(rate),
		Timestamp:  time.Now(),
		Metadata:   source,
	}
}

// bytesToFloat64 converts raw float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	// Trim to multiple of 8 bytes
	data = data[:len(data)-(len(data)%8)]
	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}
	if d.config.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative: %v", d.config.MaxDuration)
	}
	return nil
}

// CheckFFmpeg reports whether ffmpeg and ffprobe can be executed
func (d *Decoder) CheckFFmpeg(ctx context.Context) error {
	if !d.config.EnableFFmpeg {
		return nil
	}
	if err := exec.CommandContext(ctx, d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if err := exec.CommandContext(ctx, d.config.FFprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}

// Config returns a copy of the decoder configuration
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}
