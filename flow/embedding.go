package flow

import (
	"fmt"
)

// =============================================================================
// EMBEDDING LAYER
// Maps integer token indices to dense vectors (lookup table)
// =============================================================================

type EmbeddingLayer struct {
	vocabSize   int
	embedDim    int
	initializer Initializer
	paddingIdx  int // Index kept at zero with no gradient, -1 if none

	weights  *Tensor // [vocabSize, embedDim]
	gradW    *Tensor
	inputIdx []int // Cached input indices for backward
	built    bool
}

type EmbeddingBuilder struct {
	layer *EmbeddingLayer
}

// Embedding creates an embedding layer
// Input: integer indices [batch, seqLen] stored as float64
// Output: dense vectors [batch, seqLen, embedDim]
func Embedding(vocabSize, embedDim int) *EmbeddingBuilder {
	return &EmbeddingBuilder{
		layer: &EmbeddingLayer{
			vocabSize:  vocabSize,
			embedDim:   embedDim,
			paddingIdx: -1,
		},
	}
}

func (b *EmbeddingBuilder) WithInitializer(init Initializer) *EmbeddingBuilder {
	b.layer.initializer = init
	return b
}

func (b *EmbeddingBuilder) WithPaddingIdx(idx int) *EmbeddingBuilder {
	b.layer.paddingIdx = idx
	return b
}

func (b *EmbeddingBuilder) Build() Layer {
	return b.layer
}

func (e *EmbeddingLayer) build(inputShape []int, en *env) error {
	if e.vocabSize <= 0 || e.embedDim <= 0 {
		return errorf("Embedding needs positive vocab and dim, got %d x %d", e.vocabSize, e.embedDim)
	}
	if len(inputShape) != 1 {
		return errorf("Embedding expects [seqLen] input shape, got %v", inputShape)
	}
	if e.initializer == nil {
		e.initializer = RandomNormal(0, 0.02)
	}

	e.weights = NewTensor(e.vocabSize, e.embedDim)
	e.initializer.initialize(e.weights, e.vocabSize, e.embedDim, en.rng)

	if e.paddingIdx >= 0 && e.paddingIdx < e.vocabSize {
		for j := 0; j < e.embedDim; j++ {
			e.weights.Data[e.paddingIdx*e.embedDim+j] = 0
		}
	}

	e.gradW = NewTensor(e.vocabSize, e.embedDim)
	e.built = true
	return nil
}

func (e *EmbeddingLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !e.built {
		return nil, errorf("Embedding layer not built")
	}
	if len(input.Shape) != 2 {
		return nil, errorf("Embedding expects [batch, seqLen] input, got %v", input.Shape)
	}

	batchSize := input.Shape[0]
	seqLen := input.Shape[1]

	e.inputIdx = make([]int, batchSize*seqLen)
	for i := range e.inputIdx {
		idx := int(input.Data[i])
		if idx < 0 || idx >= e.vocabSize {
			return nil, &FlowError{
				Component:    "Embedding",
				ErrorType:    "index out of range",
				Phase:        "forward",
				ExpectedInfo: fmt.Sprintf("[0, %d)", e.vocabSize),
				Cause:        fmt.Sprintf("token index %d at position %d", idx, i),
			}
		}
		e.inputIdx[i] = idx
	}

	output := NewTensor(batchSize, seqLen, e.embedDim)
	for i, idx := range e.inputIdx {
		copy(output.Data[i*e.embedDim:(i+1)*e.embedDim], e.weights.Data[idx*e.embedDim:(idx+1)*e.embedDim])
	}

	return output, nil
}

// backward accumulates into the lookup table and returns nil: there is no
// gradient with respect to integer indices.
func (e *EmbeddingLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if e.inputIdx == nil {
		return nil, errorf("Embedding backward called before forward")
	}
	e.gradW.Zero()
	for i, idx := range e.inputIdx {
		if idx == e.paddingIdx {
			continue
		}
		for d := 0; d < e.embedDim; d++ {
			e.gradW.Data[idx*e.embedDim+d] += gradOutput.Data[i*e.embedDim+d]
		}
	}
	return nil, nil
}

func (e *EmbeddingLayer) parameters() []*Tensor { return []*Tensor{e.weights} }
func (e *EmbeddingLayer) gradients() []*Tensor  { return []*Tensor{e.gradW} }
func (e *EmbeddingLayer) outputShape() []int    { return []int{0, e.embedDim} }
func (e *EmbeddingLayer) name() string          { return "embedding" }
