package analyzers

import (
	"fmt"
)

// Frame is one fixed-length, non-overlapping slice of the input signal
type Frame struct {
	Index   int       `json:"index"` // Position in the signal, 0-based
	Samples []float64 `json:"-"`     // View into the source PCM, not a copy
	Start   int       `json:"start"` // First sample offset
}

// SegmentFrames cuts the signal into floor(len/frameLength) consecutive
// frames. The tail shorter than a frame is discarded.
func SegmentFrames(signal []float64, frameLength int) ([]Frame, error) {
	if frameLength <= 0 {
		return nil, fmt.Errorf("frame length must be positive: %d", frameLength)
	}

	total := len(signal) / frameLength
	frames := make([]Frame, total)
	for i := range total {
		start := i * frameLength
		frames[i] = Frame{
			Index:   i,
			Samples: signal[start : start+frameLength : start+frameLength],
			Start:   start,
		}
	}
	return frames, nil
}

// Window is a run of consecutive feature rows handed to the classifier
type Window struct {
	Index      int         `json:"index"`
	Rows       [][]float64 `json:"rows"`        // W rows of F features
	FirstFrame int         `json:"first_frame"` // Source frame index of Rows[0]
	LastFrame  int         `json:"last_frame"`  // Source frame index of Rows[W-1]
}

// IndexedRow is a feature row tagged with the frame it came from
type IndexedRow interface {
	FrameIndex() int
	Values() []float64
}

// BuildWindows groups rows into floor(len/size) non-overlapping windows of
// exactly size rows, dropping the remainder.
func BuildWindows[R IndexedRow](rows []R, size int) ([]Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive: %d", size)
	}

	total := len(rows) / size
	windows := make([]Window, total)
	for i := range total {
		group := rows[i*size : (i+1)*size]
		values := make([][]float64, size)
		for j, r := range group {
			values[j] = r.Values()
		}
		windows[i] = Window{
			Index:      i,
			Rows:       values,
			FirstFrame: group[0].FrameIndex(),
			LastFrame:  group[size-1].FrameIndex(),
		}
	}
	return windows, nil
}
