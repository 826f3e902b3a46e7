package flow

import (
	"fmt"
	"math/rand"
)

// Layer is the base interface for all layers
type Layer interface {
	forward(input *Tensor, training bool) (*Tensor, error)
	backward(gradOutput *Tensor) (*Tensor, error)
	parameters() []*Tensor
	gradients() []*Tensor
	build(inputShape []int, e *env) error
	outputShape() []int
	name() string
}

// env carries the shared build-time resources handed to every layer.
type env struct {
	rng     *rand.Rand
	workers int
}

// DenseLayer - fully connected layer over [batch, features] input
type DenseLayer struct {
	units       int
	activation  Activation
	initializer Initializer
	biasInit    Initializer
	useBias     bool
	weights     *Tensor
	bias        *Tensor
	input       *Tensor
	preAct      *Tensor
	gradW       *Tensor
	gradB       *Tensor
	workers     int
	built       bool
}

// DenseBuilder for fluent API
type DenseBuilder struct {
	layer *DenseLayer
}

func Dense(units int) *DenseBuilder {
	return &DenseBuilder{
		layer: &DenseLayer{
			units: units,
		},
	}
}

func (b *DenseBuilder) WithActivation(act Activation) *DenseBuilder {
	b.layer.activation = act
	return b
}

func (b *DenseBuilder) WithInitializer(init Initializer) *DenseBuilder {
	b.layer.initializer = init
	return b
}

func (b *DenseBuilder) WithBiasInitializer(init Initializer) *DenseBuilder {
	b.layer.biasInit = init
	return b
}

func (b *DenseBuilder) WithBias(useBias bool) *DenseBuilder {
	b.layer.useBias = useBias
	return b
}

func (b *DenseBuilder) Build() Layer {
	return b.layer
}

func (d *DenseLayer) build(inputShape []int, e *env) error {
	if len(inputShape) != 1 {
		return errorf("Dense expects a flat feature shape, got %v", inputShape)
	}
	if d.units <= 0 {
		return errorf("Dense units must be > 0, got %d", d.units)
	}
	if d.initializer == nil {
		return errorf("Dense requires initializer - use WithInitializer()")
	}
	if d.activation == nil {
		return errorf("Dense requires activation - use WithActivation()")
	}
	if d.useBias && d.biasInit == nil {
		return errorf("Dense with bias requires bias initializer - use WithBiasInitializer()")
	}

	fanIn := inputShape[0]

	d.weights = NewTensor(fanIn, d.units)
	d.initializer.initialize(d.weights, fanIn, d.units, e.rng)
	d.gradW = NewTensor(fanIn, d.units)

	if d.useBias {
		d.bias = NewTensor(d.units)
		d.biasInit.initialize(d.bias, fanIn, d.units, e.rng)
		d.gradB = NewTensor(d.units)
	}

	d.workers = e.workers
	d.built = true
	return nil
}

func (d *DenseLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !d.built {
		return nil, errorf("layer not built - call Build() first")
	}
	if len(input.Shape) != 2 || input.Shape[1] != d.weights.Shape[0] {
		return nil, &FlowError{
			Component:    "Dense",
			ErrorType:    "shape mismatch",
			Phase:        "forward",
			InputInfo:    ScanTensor(input),
			ExpectedInfo: fmt.Sprintf("[batch %d]", d.weights.Shape[0]),
			Cause:        "input feature width does not match weights",
		}
	}
	batchSize := input.Shape[0]

	d.input = input
	d.preAct = NewTensor(batchSize, d.units)
	output := NewTensor(batchSize, d.units)

	// Y = X @ W
	matmul(input, d.weights, d.preAct, d.workers)

	// Y = Y + b
	if d.useBias {
		addVec(d.preAct, d.bias)
	}

	// Y = activation(Y)
	d.activation.forward(d.preAct, output)

	return output, nil
}

func (d *DenseLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if d.input == nil {
		return nil, errorf("backward called before forward")
	}

	// Gradient through activation
	gradPreAct := NewTensor(gradOutput.Shape...)
	d.activation.backward(d.preAct, gradOutput, gradPreAct)

	// dL/dW = X^T @ dL/dY
	matmulTransA(d.input, gradPreAct, d.gradW, d.workers)

	// dL/db = sum(dL/dY, axis=0)
	if d.useBias {
		sumAxis0(gradPreAct, d.gradB)
	}

	// dL/dX = dL/dY @ W^T
	gradInput := NewTensor(d.input.Shape...)
	matmulTransB(gradPreAct, d.weights, gradInput, d.workers)

	return gradInput, nil
}

// ConstrainNorm rescales every output unit's weight vector whose L2 norm
// exceeds max so that its norm equals max.
func (d *DenseLayer) ConstrainNorm(max float64) {
	fanIn, units := d.weights.Shape[0], d.weights.Shape[1]
	col := make([]float64, fanIn)
	for j := 0; j < units; j++ {
		for i := 0; i < fanIn; i++ {
			col[i] = d.weights.Data[i*units+j]
		}
		norm := l2Norm(col)
		if norm <= max || norm == 0 {
			continue
		}
		scale := max / norm
		for i := 0; i < fanIn; i++ {
			d.weights.Data[i*units+j] *= scale
		}
	}
}

// UnitNorms returns the L2 norm of each output unit's weight vector.
func (d *DenseLayer) UnitNorms() []float64 {
	fanIn, units := d.weights.Shape[0], d.weights.Shape[1]
	norms := make([]float64, units)
	col := make([]float64, fanIn)
	for j := 0; j < units; j++ {
		for i := 0; i < fanIn; i++ {
			col[i] = d.weights.Data[i*units+j]
		}
		norms[j] = l2Norm(col)
	}
	return norms
}

func (d *DenseLayer) parameters() []*Tensor {
	if d.useBias {
		return []*Tensor{d.weights, d.bias}
	}
	return []*Tensor{d.weights}
}

func (d *DenseLayer) gradients() []*Tensor {
	if d.useBias {
		return []*Tensor{d.gradW, d.gradB}
	}
	return []*Tensor{d.gradW}
}

func (d *DenseLayer) outputShape() []int {
	return []int{d.units}
}

func (d *DenseLayer) name() string { return "dense" }

// DropoutLayer - randomly zeros elements during training
type DropoutLayer struct {
	rate       float64
	mask       *Tensor
	rng        *rand.Rand
	inputShape []int
}

type DropoutBuilder struct {
	layer *DropoutLayer
}

func Dropout(rate float64) *DropoutBuilder {
	return &DropoutBuilder{
		layer: &DropoutLayer{
			rate: rate,
		},
	}
}

func (b *DropoutBuilder) Build() Layer {
	return b.layer
}

func (d *DropoutLayer) build(inputShape []int, e *env) error {
	if d.rate < 0 || d.rate >= 1 {
		return errorf("dropout rate must be in [0, 1), got %f", d.rate)
	}
	d.rng = e.rng
	d.inputShape = inputShape
	return nil
}

func (d *DropoutLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	d.mask = nil
	if !training || d.rate == 0 {
		return input.Clone(), nil
	}

	output := NewTensor(input.Shape...)
	d.mask = NewTensor(input.Shape...)

	scale := 1.0 / (1.0 - d.rate)
	for i := range input.Data {
		if d.rng.Float64() >= d.rate {
			d.mask.Data[i] = scale
			output.Data[i] = input.Data[i] * scale
		}
	}
	return output, nil
}

func (d *DropoutLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if d.mask == nil {
		return gradOutput.Clone(), nil
	}
	gradInput := NewTensor(gradOutput.Shape...)
	elemMul(gradOutput, d.mask, gradInput)
	return gradInput, nil
}

func (d *DropoutLayer) parameters() []*Tensor { return nil }
func (d *DropoutLayer) gradients() []*Tensor  { return nil }
func (d *DropoutLayer) outputShape() []int    { return d.inputShape }
func (d *DropoutLayer) name() string          { return "dropout" }
