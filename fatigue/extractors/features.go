package extractors

import (
	"fmt"
)

// Column layout of a feature vector
const (
	NumMFCC       = 30
	PitchColumn   = NumMFCC
	RMSColumn     = NumMFCC + 1
	JitterColumn  = NumMFCC + 2
	ShimmerColumn = NumMFCC + 3

	// FeatureDim is the width of every feature row
	FeatureDim = NumMFCC + 4
)

// FeatureVector holds the per-frame acoustic measurements in model order:
// MFCC_0..MFCC_29, Pitch, RMS, Jitter, Shimmer.
type FeatureVector [FeatureDim]float64

// FeatureRow is a feature vector tagged with its source frame
type FeatureRow struct {
	Frame  int           `json:"frame"`
	Vector FeatureVector `json:"vector"`
}

// FrameIndex returns the source frame index
func (r FeatureRow) FrameIndex() int { return r.Frame }

// Values returns the vector as a fresh slice
func (r FeatureRow) Values() []float64 {
	out := make([]float64, FeatureDim)
	copy(out, r.Vector[:])
	return out
}

// ColumnNames returns the feature names in column order
func ColumnNames() []string {
	names := make([]string, 0, FeatureDim)
	for i := range NumMFCC {
		names = append(names, fmt.Sprintf("MFCC_%d", i))
	}
	return append(names, "Pitch", "RMS", "Jitter", "Shimmer")
}

// FailureReason says why a frame produced no usable vector
type FailureReason string

const (
	// ReasonUnvoiced means no analysis frame had a detectable F0
	ReasonUnvoiced FailureReason = "unvoiced"
	// ReasonTooFewPulses means jitter or shimmer had no qualifying period pair
	ReasonTooFewPulses FailureReason = "too_few_pulses"
	// ReasonNonFinite means a spectral or energy measure came out NaN or Inf
	ReasonNonFinite FailureReason = "non_finite"
)

// FrameError is the typed extraction failure of a single frame
type FrameError struct {
	Frame  int
	Reason FailureReason
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame %d: %s: %v", e.Frame, e.Reason, e.Err)
	}
	return fmt.Sprintf("frame %d: %s", e.Frame, e.Reason)
}

func (e *FrameError) Unwrap() error { return e.Err }

// FrameResult is the outcome of extracting one frame: exactly one of Row
// and Err is set. Zeroed lists the voice measures replaced by 0 under the
// zero failure policy.
type FrameResult struct {
	Row    *FeatureRow
	Err    *FrameError
	Zeroed []FailureReason
}

// OK reports whether the frame produced a row
func (r FrameResult) OK() bool { return r.Row != nil }
