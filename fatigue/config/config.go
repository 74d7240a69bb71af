package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-fatigue/logging"
)

// EnvConfigPath names the environment variable consulted when no config path
// is given on the command line.
const EnvConfigPath = "FATIGUE_CONFIG"

// FailurePolicy decides what happens to a frame whose voice measures
// (pitch, jitter, shimmer) cannot be computed.
type FailurePolicy string

const (
	// PolicyDrop removes the frame from the feature matrix
	PolicyDrop FailurePolicy = "drop"
	// PolicyZero keeps the frame and writes 0 for the undefined measures
	PolicyZero FailurePolicy = "zero"
)

// Config is the complete runtime configuration
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Features  FeatureConfig   `yaml:"features"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Server    ServerConfig    `yaml:"server"`
	Log       logging.Options `yaml:"log"`
}

// AudioConfig fixes the sample rate and the framing of the signal
type AudioConfig struct {
	SampleRate   int     `yaml:"sample_rate"`   // target rate after load (Hz)
	FrameSeconds float64 `yaml:"frame_seconds"` // duration of one feature frame
	WindowFrames int     `yaml:"window_frames"` // W: feature rows per classifier window
}

// FrameLength returns the number of samples per frame
func (a AudioConfig) FrameLength() int {
	return int(math.Round(a.FrameSeconds * float64(a.SampleRate)))
}

// FeatureConfig holds the acoustic feature parameters
type FeatureConfig struct {
	// MFCC
	MFCCCoefficients int     `yaml:"mfcc_coefficients"`
	MelBands         int     `yaml:"mel_bands"`
	FFTSize          int     `yaml:"fft_size"`
	HopSize          int     `yaml:"hop_size"`
	TopDB            float64 `yaml:"top_db"`

	// Pitch (mean F0)
	PitchFloor     float64 `yaml:"pitch_floor"`
	PitchCeiling   float64 `yaml:"pitch_ceiling"`
	VoicingThresh  float64 `yaml:"voicing_threshold"`
	SilenceThresh  float64 `yaml:"silence_threshold"`
	OctaveCost     float64 `yaml:"octave_cost"`
	PeriodsPerSpan float64 `yaml:"periods_per_window"`

	// Point process, jitter and shimmer
	PulseFloor         float64 `yaml:"pulse_floor"`
	PulseCeiling       float64 `yaml:"pulse_ceiling"`
	ShortestPeriod     float64 `yaml:"shortest_period"`
	LongestPeriod      float64 `yaml:"longest_period"`
	MaxPeriodFactor    float64 `yaml:"max_period_factor"`
	MaxAmplitudeFactor float64 `yaml:"max_amplitude_factor"`

	FailurePolicy FailurePolicy `yaml:"failure_policy"`
	Workers       int           `yaml:"workers"` // 0 = GOMAXPROCS, 1 = sequential
}

// DecoderConfig configures the audio loader
type DecoderConfig struct {
	EnableFFmpeg bool          `yaml:"enable_ffmpeg"`
	FFmpegPath   string        `yaml:"ffmpeg_path"`
	FFprobePath  string        `yaml:"ffprobe_path"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxDuration  time.Duration `yaml:"max_duration"`
}

// ArtifactConfig points at the offline-trained model and scaler
type ArtifactConfig struct {
	ModelPath  string `yaml:"model_path"`
	ScalerPath string `yaml:"scaler_path"`
}

// ServerConfig configures the HTTP collaborator
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the configuration the shipped model was trained with
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:   22050,
			FrameSeconds: 2,
			WindowFrames: 2,
		},
		Features: DefaultFeatureConfig(),
		Decoder: DecoderConfig{
			EnableFFmpeg: true,
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			Timeout:      30 * time.Second,
		},
		Artifacts: ArtifactConfig{
			ModelPath:  "artifacts/fatigue_bilstm_attention.json",
			ScalerPath: "artifacts/scaler.yaml",
		},
		Server: ServerConfig{
			Addr:           ":5000",
			MaxUploadBytes: 64 << 20,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   120 * time.Second,
		},
		Log: logging.Options{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultFeatureConfig mirrors librosa's MFCC defaults and Praat's standard
// pitch / jitter / shimmer settings.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		MFCCCoefficients: 30,
		MelBands:         128,
		FFTSize:          2048,
		HopSize:          512,
		TopDB:            80,

		PitchFloor:     75,
		PitchCeiling:   600,
		VoicingThresh:  0.45,
		SilenceThresh:  0.03,
		OctaveCost:     0.01,
		PeriodsPerSpan: 3,

		PulseFloor:         75,
		PulseCeiling:       500,
		ShortestPeriod:     0.0001,
		LongestPeriod:      0.02,
		MaxPeriodFactor:    1.3,
		MaxAmplitudeFactor: 1.6,

		FailurePolicy: PolicyDrop,
		Workers:       0,
	}
}

// Load reads a YAML file over the defaults. An empty path falls back to
// $FATIGUE_CONFIG, and to pure defaults when that is unset too.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, cfg.Validate()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	a := c.Audio
	if a.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive: %d", a.SampleRate)
	}
	if a.FrameSeconds <= 0 {
		return fmt.Errorf("audio.frame_seconds must be positive: %v", a.FrameSeconds)
	}
	exact := a.FrameSeconds * float64(a.SampleRate)
	if math.Abs(exact-math.Round(exact)) > 1e-9 {
		return fmt.Errorf("audio.frame_seconds * sample_rate must be a whole number of samples, got %v", exact)
	}
	if a.WindowFrames < 1 {
		return fmt.Errorf("audio.window_frames must be at least 1: %d", a.WindowFrames)
	}

	f := c.Features
	if f.MFCCCoefficients <= 0 || f.MFCCCoefficients > f.MelBands {
		return fmt.Errorf("features.mfcc_coefficients must be in [1, mel_bands]: %d", f.MFCCCoefficients)
	}
	if f.FFTSize <= 0 || f.HopSize <= 0 {
		return fmt.Errorf("features.fft_size and hop_size must be positive")
	}
	if f.PitchFloor <= 0 || f.PitchCeiling <= f.PitchFloor {
		return fmt.Errorf("features: pitch range [%v, %v] is empty", f.PitchFloor, f.PitchCeiling)
	}
	if f.PulseFloor <= 0 || f.PulseCeiling <= f.PulseFloor {
		return fmt.Errorf("features: pulse range [%v, %v] is empty", f.PulseFloor, f.PulseCeiling)
	}
	switch f.FailurePolicy {
	case PolicyDrop, PolicyZero:
	default:
		return fmt.Errorf("features.failure_policy must be %q or %q, got %q", PolicyDrop, PolicyZero, f.FailurePolicy)
	}
	if f.Workers < 0 {
		return fmt.Errorf("features.workers must not be negative: %d", f.Workers)
	}

	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}
	return nil
}
