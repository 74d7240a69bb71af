package fatigue

import (
	"strconv"

	"github.com/RyanBlaney/sonido-fatigue/fatigue/analyzers"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/model"
	"github.com/RyanBlaney/sonido-fatigue/fault"
)

// Prediction is the fatigue label of one window of audio
type Prediction struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Label     string `json:"label"`
}

// Aggregate pairs each window with the argmax label of its distribution.
// A window spans its source frames, from the start of the first to the end
// of the last. Times follow that frame span rather than i*window_seconds, so
// a window that skipped a dropped frame reports a longer span.
func Aggregate(windows []analyzers.Window, dists []model.Distribution, labels []string, frameSeconds float64) ([]Prediction, error) {
	if len(windows) != len(dists) {
		return nil, fault.New(fault.KindInference, "got %d distributions for %d windows", len(dists), len(windows))
	}

	out := make([]Prediction, len(windows))
	for i, w := range windows {
		k := dists[i].Argmax()
		if k < 0 || k >= len(labels) || len(dists[i]) != len(labels) {
			return nil, fault.New(fault.KindInference, "window %d: distribution of %d classes for %d labels", i, len(dists[i]), len(labels))
		}
		out[i] = Prediction{
			StartTime: FormatSeconds(float64(w.FirstFrame) * frameSeconds),
			EndTime:   FormatSeconds(float64(w.LastFrame+1) * frameSeconds),
			Label:     labels[k],
		}
	}
	return out, nil
}

// FormatSeconds renders a time offset as "<seconds>s" in the shortest form,
// e.g. "4s" or "2.5s".
func FormatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64) + "s"
}
