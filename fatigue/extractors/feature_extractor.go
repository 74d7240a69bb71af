package extractors

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-fatigue/algorithms/common"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/spectral"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/speech"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/temporal"
	"github.com/RyanBlaney/sonido-fatigue/algorithms/tonal"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/analyzers"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/config"
	"github.com/RyanBlaney/sonido-fatigue/logging"
)

// FrameFeatureExtractor turns one audio frame into a 34-value feature row:
// mean MFCCs, mean voiced F0, mean RMS, local jitter and local shimmer.
//
// Every algorithm it holds is immutable after construction, so frames may be
// extracted concurrently.
type FrameFeatureExtractor struct {
	config     config.FeatureConfig
	sampleRate int
	logger     logging.Logger

	mfcc          *spectral.MFCC
	energy        *temporal.Energy
	pitchDetector *tonal.PitchDetector
	voiceQuality  *speech.VoiceQualityAnalyzer
}

// Extraction is the outcome of extracting every frame of a signal
type Extraction struct {
	Rows    []FeatureRow          // Usable rows in frame order
	Results []FrameResult         // One result per input frame
	Dropped map[FailureReason]int // Frames removed, by reason
	Zeroed  map[FailureReason]int // Measures replaced by 0, by reason
}

// NewFrameFeatureExtractor builds the per-frame algorithms for a sample rate
func NewFrameFeatureExtractor(cfg config.FeatureConfig, sampleRate int) (*FrameFeatureExtractor, error) {
	if cfg.MFCCCoefficients != NumMFCC {
		return nil, fmt.Errorf("feature layout needs %d MFCC coefficients, config has %d", NumMFCC, cfg.MFCCCoefficients)
	}

	mfcc, err := spectral.NewMFCCWithParams(sampleRate, spectral.MFCCParams{
		NumCoefficients: cfg.MFCCCoefficients,
		NumMelFilters:   cfg.MelBands,
		FFTSize:         cfg.FFTSize,
		HopSize:         cfg.HopSize,
		TopDB:           cfg.TopDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MFCC: %w", err)
	}

	pitchParams := tonal.PitchDetectionParams{
		SampleRate:       sampleRate,
		MinFreq:          cfg.PitchFloor,
		MaxFreq:          cfg.PitchCeiling,
		PeriodsPerWindow: cfg.PeriodsPerSpan,
		VoicingThreshold: cfg.VoicingThresh,
		SilenceThreshold: cfg.SilenceThresh,
		OctaveCost:       cfg.OctaveCost,
	}
	pitchDetector, err := tonal.NewPitchDetectorWithParams(pitchParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create pitch detector: %w", err)
	}

	pulseParams := pitchParams
	pulseParams.MinFreq = cfg.PulseFloor
	pulseParams.MaxFreq = cfg.PulseCeiling
	voiceQuality, err := speech.NewVoiceQualityAnalyzerWithParams(speech.VoiceQualityParams{
		Pitch:              pulseParams,
		ShortestPeriod:     cfg.ShortestPeriod,
		LongestPeriod:      cfg.LongestPeriod,
		MaxPeriodFactor:    cfg.MaxPeriodFactor,
		MaxAmplitudeFactor: cfg.MaxAmplitudeFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create voice quality analyzer: %w", err)
	}

	return &FrameFeatureExtractor{
		config:     cfg,
		sampleRate: sampleRate,
		logger: logging.WithFields(logging.Fields{
			"component": "frame_feature_extractor",
		}),
		mfcc:          mfcc,
		energy:        temporal.NewEnergy(cfg.FFTSize, cfg.HopSize, true),
		pitchDetector: pitchDetector,
		voiceQuality:  voiceQuality,
	}, nil
}

// ExtractFrame computes the feature row of a single frame
func (e *FrameFeatureExtractor) ExtractFrame(frame analyzers.Frame) FrameResult {
	fail := func(reason FailureReason, err error) FrameResult {
		return FrameResult{Err: &FrameError{Frame: frame.Index, Reason: reason, Err: err}}
	}

	var vector FeatureVector

	means, err := e.mfcc.ComputeMeans(frame.Samples)
	if err != nil {
		return fail(ReasonNonFinite, err)
	}
	copy(vector[:NumMFCC], means)
	vector[RMSColumn] = e.energy.MeanRMS(frame.Samples)

	if !common.AllFinite(vector[:RMSColumn+1]) {
		return fail(ReasonNonFinite, nil)
	}

	zeroPolicy := e.config.FailurePolicy == config.PolicyZero
	var zeroed []FailureReason

	pitch := e.pitchDetector.MeanPitch(frame.Samples)
	if math.IsNaN(pitch) {
		if !zeroPolicy {
			return fail(ReasonUnvoiced, nil)
		}
		pitch = 0
		zeroed = append(zeroed, ReasonUnvoiced)
	}
	vector[PitchColumn] = pitch

	pulses := e.voiceQuality.Pulses(frame.Samples)
	jitter := e.voiceQuality.JitterLocal(pulses)
	shimmer := e.voiceQuality.ShimmerLocal(frame.Samples, pulses)
	if math.IsNaN(jitter) || math.IsNaN(shimmer) {
		if !zeroPolicy {
			return fail(ReasonTooFewPulses, fmt.Errorf("%d pulses", len(pulses)))
		}
		if math.IsNaN(jitter) {
			jitter = 0
		}
		if math.IsNaN(shimmer) {
			shimmer = 0
		}
		zeroed = append(zeroed, ReasonTooFewPulses)
	}
	vector[JitterColumn] = jitter
	vector[ShimmerColumn] = shimmer

	if !common.AllFinite(vector[:]) {
		return fail(ReasonNonFinite, nil)
	}

	return FrameResult{
		Row:    &FeatureRow{Frame: frame.Index, Vector: vector},
		Zeroed: zeroed,
	}
}

// ExtractAll extracts every frame, in parallel when configured, and returns
// the usable rows in frame order. Cancelling ctx stops scheduling new frames.
func (e *FrameFeatureExtractor) ExtractAll(ctx context.Context, frames []analyzers.Frame) (*Extraction, error) {
	logger := e.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "ExtractAll",
		"frames":   len(frames),
	})

	results := make([]FrameResult, len(frames))

	workers := e.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, frame := range frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.ExtractFrame(frame)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	extraction := &Extraction{
		Rows:    make([]FeatureRow, 0, len(frames)),
		Results: results,
		Dropped: make(map[FailureReason]int),
		Zeroed:  make(map[FailureReason]int),
	}
	for _, r := range results {
		for _, reason := range r.Zeroed {
			extraction.Zeroed[reason]++
		}
		if !r.OK() {
			extraction.Dropped[r.Err.Reason]++
			logger.Debug("Frame dropped", logging.Fields{
				"frame":  r.Err.Frame,
				"reason": r.Err.Reason,
			})
			continue
		}
		extraction.Rows = append(extraction.Rows, *r.Row)
	}

	logger.Debug("Feature extraction completed", logging.Fields{
		"rows":    len(extraction.Rows),
		"dropped": len(frames) - len(extraction.Rows),
		"workers": workers,
	})

	return extraction, nil
}
