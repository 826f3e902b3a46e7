package flow

import (
	"fmt"
	"math"
)

// =============================================================================
// CONV1D LAYER
// Valid 1-D convolution over token sequences: [batch, T, C] -> [batch, T-k+1, F]
// =============================================================================

type Conv1DLayer struct {
	filters     int
	kernelSize  int
	activation  Activation
	initializer Initializer
	biasInit    Initializer
	useBias     bool

	channels int
	weights  *Tensor // [kernelSize*channels, filters]
	bias     *Tensor
	gradW    *Tensor
	gradB    *Tensor
	cols     *Tensor // im2col of the last input
	preAct   *Tensor
	inShape  []int
	workers  int
	built    bool
}

type Conv1DBuilder struct {
	layer *Conv1DLayer
}

func Conv1D(filters, kernelSize int) *Conv1DBuilder {
	return &Conv1DBuilder{
		layer: &Conv1DLayer{
			filters:    filters,
			kernelSize: kernelSize,
			useBias:    true,
		},
	}
}

func (b *Conv1DBuilder) WithActivation(act Activation) *Conv1DBuilder {
	b.layer.activation = act
	return b
}

func (b *Conv1DBuilder) WithInitializer(init Initializer) *Conv1DBuilder {
	b.layer.initializer = init
	return b
}

func (b *Conv1DBuilder) WithBiasInitializer(init Initializer) *Conv1DBuilder {
	b.layer.biasInit = init
	return b
}

func (b *Conv1DBuilder) WithBias(useBias bool) *Conv1DBuilder {
	b.layer.useBias = useBias
	return b
}

func (b *Conv1DBuilder) Build() Layer {
	return b.layer
}

func (c *Conv1DLayer) build(inputShape []int, e *env) error {
	if len(inputShape) != 2 {
		return errorf("Conv1D requires input shape [T, C], got %v", inputShape)
	}
	if c.filters <= 0 || c.kernelSize <= 0 {
		return errorf("Conv1D needs positive filters and kernel, got %d and %d", c.filters, c.kernelSize)
	}
	if c.initializer == nil {
		return errorf("Conv1D requires initializer")
	}
	if c.activation == nil {
		return errorf("Conv1D requires activation")
	}
	if c.useBias && c.biasInit == nil {
		return errorf("Conv1D with bias requires bias initializer")
	}

	c.channels = inputShape[1]
	fanIn := c.kernelSize * c.channels
	fanOut := c.kernelSize * c.filters

	c.weights = NewTensor(fanIn, c.filters)
	c.initializer.initialize(c.weights, fanIn, fanOut, e.rng)
	c.gradW = NewTensor(fanIn, c.filters)

	if c.useBias {
		c.bias = NewTensor(c.filters)
		c.biasInit.initialize(c.bias, fanIn, fanOut, e.rng)
		c.gradB = NewTensor(c.filters)
	}

	c.workers = e.workers
	c.built = true
	return nil
}

func (c *Conv1DLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !c.built {
		return nil, errorf("Conv1D not built")
	}
	if len(input.Shape) != 3 || input.Shape[2] != c.channels {
		return nil, errorf("Conv1D expects [batch, T, %d] input, got %v", c.channels, input.Shape)
	}

	batchSize, seqLen := input.Shape[0], input.Shape[1]
	outLen := seqLen - c.kernelSize + 1
	if outLen < 1 {
		return nil, &FlowError{
			Component:    "Conv1D",
			ErrorType:    "sequence too short",
			Phase:        "forward",
			InputInfo:    ScanTensor(input),
			ExpectedInfo: fmt.Sprintf("T >= %d", c.kernelSize),
			Cause:        fmt.Sprintf("sequence of length %d is shorter than kernel %d", seqLen, c.kernelSize),
		}
	}

	// im2col: each output position becomes one row of k*C values
	window := c.kernelSize * c.channels
	c.cols = NewTensor(batchSize*outLen, window)
	for b := 0; b < batchSize; b++ {
		for t := 0; t < outLen; t++ {
			src := input.Data[(b*seqLen+t)*c.channels : (b*seqLen+t)*c.channels+window]
			copy(c.cols.Data[(b*outLen+t)*window:], src)
		}
	}

	c.inShape = append([]int(nil), input.Shape...)
	c.preAct = NewTensor(batchSize*outLen, c.filters)
	matmul(c.cols, c.weights, c.preAct, c.workers)
	if c.useBias {
		addVec(c.preAct, c.bias)
	}

	output := NewTensor(batchSize, outLen, c.filters)
	c.activation.forward(c.preAct, output)
	return output, nil
}

func (c *Conv1DLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if c.cols == nil {
		return nil, errorf("Conv1D backward called before forward")
	}
	batchSize, seqLen := c.inShape[0], c.inShape[1]
	outLen := seqLen - c.kernelSize + 1
	window := c.kernelSize * c.channels

	gradPreAct := NewTensor(batchSize*outLen, c.filters)
	flat := &Tensor{Data: gradOutput.Data, Shape: gradPreAct.Shape}
	c.activation.backward(c.preAct, flat, gradPreAct)

	matmulTransA(c.cols, gradPreAct, c.gradW, c.workers)
	if c.useBias {
		sumAxis0(gradPreAct, c.gradB)
	}

	gradCols := NewTensor(batchSize*outLen, window)
	matmulTransB(gradPreAct, c.weights, gradCols, c.workers)

	// col2im: overlapping windows add back into the input positions
	gradInput := NewTensor(c.inShape...)
	for b := 0; b < batchSize; b++ {
		for t := 0; t < outLen; t++ {
			dst := gradInput.Data[(b*seqLen+t)*c.channels : (b*seqLen+t)*c.channels+window]
			src := gradCols.Data[(b*outLen+t)*window : (b*outLen+t+1)*window]
			for i := range dst {
				dst[i] += src[i]
			}
		}
	}

	return gradInput, nil
}

func (c *Conv1DLayer) parameters() []*Tensor {
	if c.useBias {
		return []*Tensor{c.weights, c.bias}
	}
	return []*Tensor{c.weights}
}

func (c *Conv1DLayer) gradients() []*Tensor {
	if c.useBias {
		return []*Tensor{c.gradW, c.gradB}
	}
	return []*Tensor{c.gradW}
}

func (c *Conv1DLayer) outputShape() []int { return []int{0, c.filters} }
func (c *Conv1DLayer) name() string       { return "conv1d" }

// KernelSize is the convolution window width.
func (c *Conv1DLayer) KernelSize() int { return c.kernelSize }

// =============================================================================
// SEQUENCE POOLING
// [batch, T, C] -> [batch, C]
// =============================================================================

// GlobalMaxPool1DLayer keeps the maximum of each channel over time
type GlobalMaxPool1DLayer struct {
	channels int
	argmax   []int
	inShape  []int
}

type GlobalMaxPool1DBuilder struct {
	layer *GlobalMaxPool1DLayer
}

func GlobalMaxPool1D() *GlobalMaxPool1DBuilder {
	return &GlobalMaxPool1DBuilder{layer: &GlobalMaxPool1DLayer{}}
}

func (b *GlobalMaxPool1DBuilder) Build() Layer {
	return b.layer
}

func (m *GlobalMaxPool1DLayer) build(inputShape []int, e *env) error {
	if len(inputShape) != 2 {
		return errorf("GlobalMaxPool1D requires input shape [T, C], got %v", inputShape)
	}
	m.channels = inputShape[1]
	return nil
}

func (m *GlobalMaxPool1DLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	batchSize, seqLen, channels := input.Shape[0], input.Shape[1], input.Shape[2]
	m.inShape = append([]int(nil), input.Shape...)
	m.argmax = make([]int, batchSize*channels)

	output := NewTensor(batchSize, channels)
	for b := 0; b < batchSize; b++ {
		for ch := 0; ch < channels; ch++ {
			best := math.Inf(-1)
			bestIdx := 0
			for t := 0; t < seqLen; t++ {
				idx := (b*seqLen+t)*channels + ch
				if input.Data[idx] > best {
					best = input.Data[idx]
					bestIdx = idx
				}
			}
			output.Data[b*channels+ch] = best
			m.argmax[b*channels+ch] = bestIdx
		}
	}
	return output, nil
}

func (m *GlobalMaxPool1DLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	gradInput := NewTensor(m.inShape...)
	for i, idx := range m.argmax {
		gradInput.Data[idx] += gradOutput.Data[i]
	}
	return gradInput, nil
}

func (m *GlobalMaxPool1DLayer) parameters() []*Tensor { return nil }
func (m *GlobalMaxPool1DLayer) gradients() []*Tensor  { return nil }
func (m *GlobalMaxPool1DLayer) outputShape() []int    { return []int{m.channels} }
func (m *GlobalMaxPool1DLayer) name() string          { return "global_max_pool1d" }

// MeanPool1DLayer averages each channel over time
type MeanPool1DLayer struct {
	channels int
	inShape  []int
}

type MeanPool1DBuilder struct {
	layer *MeanPool1DLayer
}

func MeanPool1D() *MeanPool1DBuilder {
	return &MeanPool1DBuilder{layer: &MeanPool1DLayer{}}
}

func (b *MeanPool1DBuilder) Build() Layer {
	return b.layer
}

func (m *MeanPool1DLayer) build(inputShape []int, e *env) error {
	if len(inputShape) != 2 {
		return errorf("MeanPool1D requires input shape [T, C], got %v", inputShape)
	}
	m.channels = inputShape[1]
	return nil
}

func (m *MeanPool1DLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	batchSize, seqLen, channels := input.Shape[0], input.Shape[1], input.Shape[2]
	m.inShape = append([]int(nil), input.Shape...)

	output := NewTensor(batchSize, channels)
	if seqLen == 0 {
		return output, nil
	}
	scale := 1.0 / float64(seqLen)
	for b := 0; b < batchSize; b++ {
		for t := 0; t < seqLen; t++ {
			row := input.Data[(b*seqLen+t)*channels : (b*seqLen+t+1)*channels]
			for ch, v := range row {
				output.Data[b*channels+ch] += v * scale
			}
		}
	}
	return output, nil
}

func (m *MeanPool1DLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	batchSize, seqLen, channels := m.inShape[0], m.inShape[1], m.inShape[2]
	gradInput := NewTensor(m.inShape...)
	if seqLen == 0 {
		return gradInput, nil
	}
	scale := 1.0 / float64(seqLen)
	for b := 0; b < batchSize; b++ {
		for t := 0; t < seqLen; t++ {
			for ch := 0; ch < channels; ch++ {
				gradInput.Data[(b*seqLen+t)*channels+ch] = gradOutput.Data[b*channels+ch] * scale
			}
		}
	}
	return gradInput, nil
}

func (m *MeanPool1DLayer) parameters() []*Tensor { return nil }
func (m *MeanPool1DLayer) gradients() []*Tensor  { return nil }
func (m *MeanPool1DLayer) outputShape() []int    { return []int{m.channels} }
func (m *MeanPool1DLayer) name() string          { return "mean_pool1d" }
