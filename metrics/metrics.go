// Package metrics exposes Prometheus instruments for the fatigue pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages observed by StageDuration
const (
	StageDecode   = "decode"
	StageExtract  = "extract"
	StageScale    = "scale"
	StageClassify = "classify"
	StageTotal    = "total"
)

// OutcomeSuccess is the request outcome label for a completed prediction.
// Failures use the fault kind.
const OutcomeSuccess = "success"

// Metrics groups the pipeline instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Requests      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	FramesDropped *prometheus.CounterVec
	FramesZeroed  *prometheus.CounterVec
	Windows       *prometheus.CounterVec
}

// New registers the instruments with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fatigue_requests_total",
				Help: "Prediction requests by outcome (success or error kind)",
			},
			[]string{"outcome"},
		),
		// Buckets: 10ms .. 60s
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fatigue_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		FramesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fatigue_frames_dropped_total",
				Help: "Frames removed from the feature matrix by failure reason",
			},
			[]string{"reason"},
		),
		FramesZeroed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fatigue_frames_zeroed_total",
				Help: "Frames kept with zeroed voice measures by failure reason",
			},
			[]string{"reason"},
		),
		Windows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fatigue_windows_classified_total",
				Help: "Classified windows by predicted label",
			},
			[]string{"label"},
		),
	}
}

// RecordRequest counts one finished request
func (m *Metrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

// ObserveStage records the time spent in a stage since start
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordDropped adds n dropped frames for reason
func (m *Metrics) RecordDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordZeroed adds n zero-filled frames for reason
func (m *Metrics) RecordZeroed(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesZeroed.WithLabelValues(reason).Add(float64(n))
}

// RecordWindow counts one classified window
func (m *Metrics) RecordWindow(label string) {
	if m == nil {
		return
	}
	m.Windows.WithLabelValues(label).Inc()
}
