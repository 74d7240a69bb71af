package fatigue

import (
	"slices"

	"github.com/RyanBlaney/sonido-fatigue/fatigue/config"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/extractors"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/model"
	"github.com/RyanBlaney/sonido-fatigue/fatigue/scaler"
	"github.com/RyanBlaney/sonido-fatigue/fault"
	"github.com/RyanBlaney/sonido-fatigue/logging"
)

// Artifacts are the offline-trained parts of the pipeline. Both are
// read-only and shared by every request.
type Artifacts struct {
	Scaler     *scaler.Scaler
	Classifier *model.Classifier
}

// LoadArtifacts reads the scaler and the model named in cfg and checks them
// against the feature layout and window size.
func LoadArtifacts(cfg *config.Config) (*Artifacts, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "artifacts",
		"function":  "LoadArtifacts",
	})

	s, err := scaler.Load(cfg.Artifacts.ScalerPath, extractors.FeatureDim)
	if err != nil {
		return nil, fault.Wrap(fault.KindScaling, err, "failed to load scaler")
	}
	if names := s.FeatureNames(); len(names) > 0 && !slices.Equal(names, extractors.ColumnNames()) {
		logger.Warn("Scaler feature names differ from extractor columns", logging.Fields{
			"scaler_columns": names,
		})
	}

	a, err := model.LoadArtifact(cfg.Artifacts.ModelPath)
	if err != nil {
		return nil, fault.Wrap(fault.KindInference, err, "failed to load model")
	}
	c, err := model.New(*a, cfg.Audio.WindowFrames, extractors.FeatureDim)
	if err != nil {
		return nil, fault.Wrap(fault.KindInference, err, "model does not fit the feature layout")
	}
	c.SetWorkers(cfg.Features.Workers)

	logger.Info("Artifacts loaded", logging.Fields{
		"model":       cfg.Artifacts.ModelPath,
		"model_name":  c.Name(),
		"labels":      c.Labels(),
		"input_shape": c.InputShape(),
		"scaler":      cfg.Artifacts.ScalerPath,
	})

	return &Artifacts{Scaler: s, Classifier: c}, nil
}
