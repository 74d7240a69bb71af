package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Artifact is the exported weight file of the trained network: a stack of
// bidirectional LSTMs, an attention pooling layer and a dense head. Matrices
// use Keras layout (kernel[in][out]).
type Artifact struct {
	Name       string           `json:"name,omitempty" msgpack:"name,omitempty"`
	InputShape []int            `json:"input_shape" msgpack:"input_shape"` // [timesteps, features]
	Labels     []string         `json:"labels" msgpack:"labels"`
	Encoder    []BiLSTMWeights  `json:"encoder" msgpack:"encoder"`
	Attention  AttentionWeights `json:"attention" msgpack:"attention"`
	Head       []DenseWeights   `json:"head" msgpack:"head"`
}

// LSTMWeights holds one direction of a recurrent layer, gates ordered i, f, c, o
type LSTMWeights struct {
	Kernel          [][]float64 `json:"kernel" msgpack:"kernel"`                     // [in][4*units]
	RecurrentKernel [][]float64 `json:"recurrent_kernel" msgpack:"recurrent_kernel"` // [units][4*units]
	Bias            []float64   `json:"bias" msgpack:"bias"`                         // [4*units]
}

// BiLSTMWeights holds both directions of a bidirectional layer. Outputs are
// concatenated forward first.
type BiLSTMWeights struct {
	Forward  LSTMWeights `json:"forward" msgpack:"forward"`
	Backward LSTMWeights `json:"backward" msgpack:"backward"`
}

// AttentionWeights parameterises the additive attention pooling
type AttentionWeights struct {
	W [][]float64 `json:"W" msgpack:"W"` // [features][1]
	B [][]float64 `json:"b" msgpack:"b"` // [timesteps][1]
}

// DenseWeights is one fully connected layer
type DenseWeights struct {
	Kernel     [][]float64 `json:"kernel" msgpack:"kernel"` // [in][out]
	Bias       []float64   `json:"bias" msgpack:"bias"`     // [out]
	Activation string      `json:"activation" msgpack:"activation"`
}

// LoadArtifact reads a model from JSON, or from msgpack when the file ends
// in .msgpack or .mpk.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}

	var a Artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		err = msgpack.Unmarshal(data, &a)
	default:
		err = json.Unmarshal(data, &a)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	return &a, nil
}

// Save writes the artifact in the format its extension selects
func (a *Artifact) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		data, err = msgpack.Marshal(a)
	default:
		data, err = json.Marshal(a)
	}
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
