// Package fatigue classifies vocal fatigue in recorded speech.
//
// A Pipeline decodes the audio, cuts it into fixed frames, extracts 34
// acoustic features per frame, standardises them, groups consecutive rows
// into windows and labels each window with the sequence classifier.
package fatigue

import (
	"context"
	"errors"
	"time"

	"github.com/RyanBlaney/sonido-fatigue/fatigue/analyzers"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/config"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/extractors"
	"github.com/RyanBlaney/sonido-fatigue/fault"
	"github.com/RyanBlaney/sonido-fatigue/logging"
	"github.com/RyanBlaney/sonido-fatigue/metrics"
	"github.com/RyanBlaney/sonido-fatigue/transcode"
)

// Pipeline runs one prediction per call and keeps no per-request state
type Pipeline struct {
	config    *config.Config
	decoder   *transcode.Decoder
	extractor *extractors.FrameFeatureExtractor
	artifacts *Artifacts
	metrics   *metrics.Metrics
	logger    logging.Logger
}

// NewPipeline wires the stages together. m may be nil.
func NewPipeline(cfg *config.Config, artifacts *Artifacts, m *metrics.Metrics) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "invalid configuration")
	}
	if artifacts == nil || artifacts.Scaler == nil || artifacts.Classifier == nil {
		return nil, fault.New(fault.KindInternal, "pipeline needs a scaler and a classifier")
	}
	if w := artifacts.Scaler.Width(); w != extractors.FeatureDim {
		return nil, fault.New(fault.KindScaling, "scaler has %d columns, features have %d", w, extractors.FeatureDim)
	}
	shape := artifacts.Classifier.InputShape()
	if shape[0] != cfg.Audio.WindowFrames || shape[1] != extractors.FeatureDim {
		return nil, fault.New(fault.KindInference, "model input shape %v, want [%d %d]", shape, cfg.Audio.WindowFrames, extractors.FeatureDim)
	}

	extractor, err := extractors.NewFrameFeatureExtractor(cfg.Features, cfg.Audio.SampleRate)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "failed to create feature extractor")
	}

	decoder := transcode.NewDecoder(&transcode.DecoderConfig{
		TargetSampleRate: cfg.Audio.SampleRate,
		MaxDuration:      cfg.Decoder.MaxDuration,
		EnableFFmpeg:     cfg.Decoder.EnableFFmpeg,
		FFmpegPath:       cfg.Decoder.FFmpegPath,
		FFprobePath:      cfg.Decoder.FFprobePath,
		Timeout:          cfg.Decoder.Timeout,
	})

	return &Pipeline{
		config:    cfg,
		decoder:   decoder,
		extractor: extractor,
		artifacts: artifacts,
		metrics:   m,
		logger: logging.WithFields(logging.Fields{
			"component": "fatigue_pipeline",
		}),
	}, nil
}

// Labels returns the class names the pipeline can emit
func (p *Pipeline) Labels() []string {
	return p.artifacts.Classifier.Labels()
}

// Decoder returns the audio loader, for startup checks
func (p *Pipeline) Decoder() *transcode.Decoder {
	return p.decoder
}

// Predict decodes an uploaded file and labels each window
func (p *Pipeline) Predict(ctx context.Context, data []byte) ([]Prediction, error) {
	return p.observe(ctx, func() ([]Prediction, error) {
		audio, err := p.decode(ctx, func() (*transcode.AudioData, error) {
			return p.decoder.DecodeBytes(ctx, data)
		})
		if err != nil {
			return nil, err
		}
		return p.predictAudio(ctx, audio)
	})
}

// PredictFile is Predict for a file on disk
func (p *Pipeline) PredictFile(ctx context.Context, path string) ([]Prediction, error) {
	return p.observe(ctx, func() ([]Prediction, error) {
		audio, err := p.decode(ctx, func() (*transcode.AudioData, error) {
			return p.decoder.DecodeFile(ctx, path)
		})
		if err != nil {
			return nil, err
		}
		return p.predictAudio(ctx, audio)
	})
}

// PredictSignal labels already decoded mono samples at the configured rate
func (p *Pipeline) PredictSignal(ctx context.Context, samples []float64) ([]Prediction, error) {
	return p.observe(ctx, func() ([]Prediction, error) {
		return p.predictSamples(ctx, samples)
	})
}

func (p *Pipeline) observe(ctx context.Context, run func() ([]Prediction, error)) ([]Prediction, error) {
	start := time.Now()
	predictions, err := run()
	p.metrics.ObserveStage(metrics.StageTotal, start)

	if err != nil {
		kind := fault.KindOf(err)
		p.metrics.RecordRequest(string(kind))
		logger := p.logger.WithContext(ctx)
		if kind.Retryable() {
			logger.Error(err, "Prediction failed", logging.Fields{"kind": kind})
		} else {
			logger.Warn("Prediction rejected", logging.Fields{"kind": kind, "error": err.Error()})
		}
		return nil, err
	}

	p.metrics.RecordRequest(metrics.OutcomeSuccess)
	for _, pr := range predictions {
		p.metrics.RecordWindow(pr.Label)
	}
	return predictions, nil
}

func (p *Pipeline) decode(ctx context.Context, decode func() (*transcode.AudioData, error)) (*transcode.AudioData, error) {
	start := time.Now()
	defer p.metrics.ObserveStage(metrics.StageDecode, start)

	audio, err := decode()
	switch {
	case err == nil:
	case errors.Is(err, transcode.ErrEmptyInput):
		return nil, fault.Wrap(fault.KindInput, err, "uploaded file is empty")
	case ctx.Err() != nil:
		return nil, fault.Wrap(fault.KindInternal, ctx.Err(), "request cancelled")
	default:
		return nil, fault.Wrap(fault.KindDecode, err, "failed to decode audio")
	}

	p.logger.WithContext(ctx).Debug("Audio decoded", logging.Fields{
		"samples":     len(audio.PCM),
		"sample_rate": audio.SampleRate,
		"duration":    audio.Duration.String(),
	})
	return audio, nil
}

func (p *Pipeline) predictAudio(ctx context.Context, audio *transcode.AudioData) ([]Prediction, error) {
	if audio.SampleRate != p.config.Audio.SampleRate {
		return nil, fault.New(fault.KindInternal, "decoder produced %d Hz, want %d Hz", audio.SampleRate, p.config.Audio.SampleRate)
	}
	return p.predictSamples(ctx, audio.PCM)
}

// scaledRow is a standardised feature row that remembers its source frame
type scaledRow struct {
	frame  int
	values []float64
}

func (r scaledRow) FrameIndex() int   { return r.frame }
func (r scaledRow) Values() []float64 { return r.values }

func (p *Pipeline) predictSamples(ctx context.Context, samples []float64) ([]Prediction, error) {
	logger := p.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "predictSamples",
	})
	audioCfg := p.config.Audio
	w := audioCfg.WindowFrames

	frames, err := analyzers.SegmentFrames(samples, audioCfg.FrameLength())
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "failed to segment audio")
	}
	// Fewer frames than a window can never produce a prediction
	if len(frames) < w {
		return nil, fault.New(fault.KindInsufficientAudio,
			"audio has %d frames of %gs, a window needs %d", len(frames), audioCfg.FrameSeconds, w)
	}

	start := time.Now()
	extraction, err := p.extractor.ExtractAll(ctx, frames)
	p.metrics.ObserveStage(metrics.StageExtract, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "request cancelled")
		}
		return nil, fault.Wrap(fault.KindExtraction, err, "feature extraction failed")
	}
	for reason, n := range extraction.Dropped {
		p.metrics.RecordDropped(string(reason), n)
	}
	for reason, n := range extraction.Zeroed {
		p.metrics.RecordZeroed(string(reason), n)
	}
	if len(extraction.Rows) == 0 {
		return nil, fault.New(fault.KindExtraction,
			"no frame produced usable features (%d frames, dropped %v)", len(frames), extraction.Dropped)
	}

	start = time.Now()
	raw := make([][]float64, len(extraction.Rows))
	for i, r := range extraction.Rows {
		raw[i] = r.Values()
	}
	scaled, err := p.artifacts.Scaler.TransformRows(raw)
	if err != nil {
		return nil, fault.Wrap(fault.KindScaling, err, "failed to scale features")
	}
	rows := make([]scaledRow, len(scaled))
	for i, values := range scaled {
		rows[i] = scaledRow{frame: extraction.Rows[i].Frame, values: values}
	}
	p.metrics.ObserveStage(metrics.StageScale, start)

	windows, err := analyzers.BuildWindows(rows, w)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "failed to build windows")
	}
	if len(windows) == 0 {
		return nil, fault.New(fault.KindInsufficientAudio,
			"only %d of %d frames had usable features, a window needs %d", len(rows), len(frames), w)
	}

	start = time.Now()
	inputs := make([][][]float64, len(windows))
	for i, win := range windows {
		inputs[i] = win.Rows
	}
	classifier := p.artifacts.Classifier
	dists, err := classifier.Predict(ctx, inputs)
	p.metrics.ObserveStage(metrics.StageClassify, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "request cancelled")
		}
		return nil, fault.Wrap(fault.KindInference, err, "classification failed")
	}

	predictions, err := Aggregate(windows, dists, classifier.Labels(), audioCfg.FrameSeconds)
	if err != nil {
		return nil, err
	}

	logger.Info("Prediction completed", logging.Fields{
		"frames":  len(frames),
		"rows":    len(rows),
		"windows": len(windows),
	})
	return predictions, nil
}
