// Package models builds the code classifiers trained by codeflow.
//
// Every architecture is a body network that turns token rows into feature
// rows, followed by a head network that maps document features to one logit
// per label. When documents arrive split into chunks, the body runs on every
// chunk and each document keeps the elementwise max over its chunks before
// the head sees it.
package models

import (
	"math"

	"codeflow/flow"
	"github.com/pkg/errors"
)

// Model is the capability set the training and evaluation loops rely on.
type Model interface {
	// Forward maps token rows to logits, one row per document. docStarts
	// gives each document's first row when documents were split into
	// chunks, and is nil otherwise.
	Forward(tokens *flow.Tensor, docStarts []int) (*flow.Tensor, error)
	// Backward accumulates parameter gradients for the last Forward.
	Backward(grad *flow.Tensor) error

	Train()
	Eval()
	ZeroGrad()
	ResetState(batchSize int)
	EnforceNormConstraint()

	Parameters() []*flow.Tensor
	Gradients() []*flow.Tensor
	MinInputSize() int
	Name() string
	Spec() Spec
	Summary() string

	State() flow.ModelState
	LoadState(state flow.ModelState) error
}

// Spec describes an architecture and its hyperparameters.
type Spec struct {
	Name           string  `yaml:"name"`
	Labels         int     `yaml:"labels"`
	VocabSize      int     `yaml:"vocab_size"`
	EmbedSize      int     `yaml:"embed_size"`
	FilterSize     int     `yaml:"filter_size,omitempty"`
	MinFilter      int     `yaml:"min_filter,omitempty"`
	MaxFilter      int     `yaml:"max_filter,omitempty"`
	NumFilterMaps  int     `yaml:"num_filter_maps,omitempty"`
	LSTMDim        int     `yaml:"lstm_dim,omitempty"`
	HiddenSize     int     `yaml:"hidden_size,omitempty"`
	Dropout        float64 `yaml:"dropout,omitempty"`
	NormConstraint float64 `yaml:"norm_constraint"`
	Seed           int64   `yaml:"seed"`

	Workers     int  `yaml:"-"`
	CheckFinite bool `yaml:"-"`
}

type classifier struct {
	spec     Spec
	body     *flow.Network
	head     *flow.Network
	training bool

	// document reassembly cache
	rows   int
	argmax []int // body row chosen for each (document, feature)
}

func (c *classifier) Forward(tokens *flow.Tensor, docStarts []int) (*flow.Tensor, error) {
	features, err := c.body.Forward(tokens, c.training)
	if err != nil {
		return nil, errors.Wrapf(err, "%s body", c.spec.Name)
	}

	c.argmax = nil
	if docStarts != nil {
		features, err = c.reassemble(features, docStarts)
		if err != nil {
			return nil, err
		}
	}

	logits, err := c.head.Forward(features, c.training)
	if err != nil {
		return nil, errors.Wrapf(err, "%s head", c.spec.Name)
	}
	return logits, nil
}

// reassemble keeps, per document and feature, the max over its chunk rows.
func (c *classifier) reassemble(features *flow.Tensor, docStarts []int) (*flow.Tensor, error) {
	rows, width := features.Shape[0], features.Shape[1]
	docs := len(docStarts)
	out := flow.NewTensor(docs, width)
	c.rows = rows
	c.argmax = make([]int, docs*width)

	for d, start := range docStarts {
		end := rows
		if d+1 < docs {
			end = docStarts[d+1]
		}
		if start < 0 || start >= end || end > rows {
			return nil, errors.Errorf("bad document start %d for %d chunk rows", start, rows)
		}
		for f := 0; f < width; f++ {
			best, bestRow := math.Inf(-1), start
			for r := start; r < end; r++ {
				if v := features.Data[r*width+f]; v > best {
					best, bestRow = v, r
				}
			}
			out.Data[d*width+f] = best
			c.argmax[d*width+f] = bestRow
		}
	}
	return out, nil
}

func (c *classifier) Backward(grad *flow.Tensor) error {
	gradFeatures, err := c.head.Backward(grad)
	if err != nil {
		return errors.Wrapf(err, "%s head", c.spec.Name)
	}

	if c.argmax != nil {
		width := gradFeatures.Shape[1]
		rowsGrad := flow.NewTensor(c.rows, width)
		for i, row := range c.argmax {
			f := i % width
			rowsGrad.Data[row*width+f] += gradFeatures.Data[i]
		}
		gradFeatures = rowsGrad
	}

	if _, err := c.body.Backward(gradFeatures); err != nil {
		return errors.Wrapf(err, "%s body", c.spec.Name)
	}
	return nil
}

func (c *classifier) Train() { c.training = true }
func (c *classifier) Eval()  { c.training = false }

func (c *classifier) ZeroGrad() {
	c.body.ZeroGrad()
	c.head.ZeroGrad()
}

func (c *classifier) ResetState(batchSize int) {
	c.body.ResetState(batchSize)
}

func (c *classifier) EnforceNormConstraint() {
	c.head.ConstrainNorm(c.spec.NormConstraint)
}

// OutputNorms returns the per-label weight norms of the output layer.
func (c *classifier) OutputNorms() []float64 {
	return c.head.OutputLayer().UnitNorms()
}

func (c *classifier) Parameters() []*flow.Tensor {
	return append(c.body.Parameters(), c.head.Parameters()...)
}

func (c *classifier) Gradients() []*flow.Tensor {
	return append(c.body.Gradients(), c.head.Gradients()...)
}

func (c *classifier) MinInputSize() int { return c.body.MinSeqLen() }
func (c *classifier) Name() string      { return c.spec.Name }
func (c *classifier) Spec() Spec        { return c.spec }

func (c *classifier) State() flow.ModelState {
	body, head := c.body.State(), c.head.State()
	return flow.ModelState{
		Weights: append(body.Weights, head.Weights...),
		Shapes:  append(body.Shapes, head.Shapes...),
	}
}

func (c *classifier) LoadState(state flow.ModelState) error {
	n := len(c.body.Parameters())
	if len(state.Weights) < n || len(state.Shapes) < n {
		return errors.Errorf("%s: state has %d tensors, body alone needs %d", c.spec.Name, len(state.Weights), n)
	}
	if err := c.body.LoadState(flow.ModelState{Weights: state.Weights[:n], Shapes: state.Shapes[:n]}); err != nil {
		return errors.Wrapf(err, "%s body", c.spec.Name)
	}
	if err := c.head.LoadState(flow.ModelState{Weights: state.Weights[n:], Shapes: state.Shapes[n:]}); err != nil {
		return errors.Wrapf(err, "%s head", c.spec.Name)
	}
	return nil
}

func (c *classifier) Summary() string {
	return "body\n" + c.body.Summary() + "head\n" + c.head.Summary()
}
