// Package model runs the trained sequence classifier: bidirectional LSTM
// encoder, attention pooling and a dense softmax head.
package model

import (
	"context"
	"fmt"
	"runtime"

	"github.com/RyanBlaney/sonido-fatigue/logging"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Distribution is a probability vector over the class labels
type Distribution []float64

// Argmax returns the index of the most probable class. Ties go to the lower
// index.
func (d Distribution) Argmax() int {
	best := 0
	for i, p := range d {
		if p > d[best] {
			best = i
		}
	}
	return best
}

// Classifier is an immutable, validated network. It is safe for concurrent
// use.
type Classifier struct {
	name      string
	timesteps int
	features  int
	labels    []string
	encoder   []*biLSTM
	attnW     []float64
	attnB     []float64
	head      []*dense
	workers   int
	logger    logging.Logger
}

// WindowPrediction is the full output for one window
type WindowPrediction struct {
	Distribution Distribution
	Attention    []float64
}

// New checks that the artifact expects [timesteps x features] inputs, that
// every layer accepts what the previous one produces and that the head ends
// in a softmax over len(Labels) classes.
func New(a Artifact, timesteps, features int) (*Classifier, error) {
	if len(a.InputShape) != 2 || a.InputShape[0] != timesteps || a.InputShape[1] != features {
		return nil, fmt.Errorf("model input shape %v, want [%d %d]", a.InputShape, timesteps, features)
	}
	if len(a.Labels) == 0 {
		return nil, fmt.Errorf("model has no labels")
	}
	if len(a.Encoder) == 0 {
		return nil, fmt.Errorf("model has no encoder layers")
	}
	if len(a.Head) == 0 {
		return nil, fmt.Errorf("model has no dense head")
	}

	c := &Classifier{
		name:      a.Name,
		timesteps: timesteps,
		features:  features,
		labels:    append([]string(nil), a.Labels...),
		workers:   runtime.GOMAXPROCS(0),
		logger: logging.WithFields(logging.Fields{
			"component": "sequence_classifier",
		}),
	}

	dim := features
	for i, w := range a.Encoder {
		layer, err := newBiLSTM(w, dim)
		if err != nil {
			return nil, fmt.Errorf("encoder layer %d: %w", i, err)
		}
		c.encoder = append(c.encoder, layer)
		dim = layer.outputDim()
	}

	attnW, err := column(a.Attention.W, dim)
	if err != nil {
		return nil, fmt.Errorf("attention W: %w", err)
	}
	attnB, err := column(a.Attention.B, timesteps)
	if err != nil {
		return nil, fmt.Errorf("attention b: %w", err)
	}
	c.attnW, c.attnB = attnW, attnB

	for i, w := range a.Head {
		layer, err := newDense(w, dim)
		if err != nil {
			return nil, fmt.Errorf("head layer %d: %w", i, err)
		}
		c.head = append(c.head, layer)
		dim = layer.outputDim()
	}

	if last := c.head[len(c.head)-1]; last.activation != ActivationSoftmax {
		return nil, fmt.Errorf("final activation is %q, want softmax", last.activation)
	}
	if dim != len(c.labels) {
		return nil, fmt.Errorf("model outputs %d classes for %d labels", dim, len(c.labels))
	}

	return c, nil
}

// Labels returns the class names in output order
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// InputShape returns [timesteps, features]
func (c *Classifier) InputShape() []int {
	return []int{c.timesteps, c.features}
}

// Name returns the artifact name, possibly empty
func (c *Classifier) Name() string { return c.name }

// SetWorkers bounds per-window parallelism in Predict. n <= 0 means
// GOMAXPROCS.
func (c *Classifier) SetWorkers(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	c.workers = n
}

// PredictWindow runs one [timesteps x features] window through the network
func (c *Classifier) PredictWindow(window [][]float64) (*WindowPrediction, error) {
	if len(window) != c.timesteps {
		return nil, fmt.Errorf("window has %d rows, model expects %d", len(window), c.timesteps)
	}

	seq := mat.NewDense(c.timesteps, c.features, nil)
	for t, row := range window {
		if len(row) != c.features {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", t, len(row), c.features)
		}
		seq.SetRow(t, row)
	}

	for _, layer := range c.encoder {
		seq = layer.run(seq)
	}

	pooled, weights, err := Pool(seq, c.attnW, c.attnB)
	if err != nil {
		return nil, err
	}

	x := pooled
	for _, layer := range c.head {
		x = layer.forward(x)
	}

	return &WindowPrediction{Distribution: Distribution(x), Attention: weights}, nil
}

// Predict classifies every window. Output order equals input order.
func (c *Classifier) Predict(ctx context.Context, windows [][][]float64) ([]Distribution, error) {
	out := make([]Distribution, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, w := range windows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p, err := c.PredictWindow(w)
			if err != nil {
				return fmt.Errorf("window %d: %w", i, err)
			}
			out[i] = p.Distribution
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Debug("Classified windows", logging.Fields{"windows": len(windows)})
	return out, nil
}

// column flattens a Keras [n][1] weight into a vector
func column(values [][]float64, n int) ([]float64, error) {
	if len(values) != n {
		return nil, fmt.Errorf("has %d rows, want %d", len(values), n)
	}
	out := make([]float64, n)
	for i, row := range values {
		if len(row) != 1 {
			return nil, fmt.Errorf("row %d has %d columns, want 1", i, len(row))
		}
		out[i] = row[0]
	}
	return out, nil
}
