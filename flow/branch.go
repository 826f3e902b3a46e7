package flow

// =============================================================================
// BRANCHES LAYER
// Runs several layer stacks on the same input and concatenates their flat
// outputs: [batch, ...] -> [batch, sum(F_i)]
// =============================================================================

type BranchesLayer struct {
	branches [][]Layer
	widths   []int
	built    bool
}

type BranchesBuilder struct {
	layer *BranchesLayer
}

// Branches creates a parallel block. Every branch must end in a layer with a
// flat output shape.
func Branches() *BranchesBuilder {
	return &BranchesBuilder{layer: &BranchesLayer{}}
}

// Add appends one branch made of the given layers, applied in order.
func (b *BranchesBuilder) Add(layers ...Layer) *BranchesBuilder {
	b.layer.branches = append(b.layer.branches, layers)
	return b
}

func (b *BranchesBuilder) Build() Layer {
	return b.layer
}

func (br *BranchesLayer) build(inputShape []int, e *env) error {
	if len(br.branches) == 0 {
		return errorf("Branches requires at least one branch")
	}

	br.widths = make([]int, len(br.branches))
	for i, branch := range br.branches {
		if len(branch) == 0 {
			return errorf("branch %d is empty", i)
		}
		currentShape := inputShape
		for _, layer := range branch {
			if err := layer.build(currentShape, e); err != nil {
				return err
			}
			currentShape = layer.outputShape()
		}
		if len(currentShape) != 1 {
			return errorf("branch %d must end flat, got shape %v", i, currentShape)
		}
		br.widths[i] = currentShape[0]
	}

	br.built = true
	return nil
}

func (br *BranchesLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !br.built {
		return nil, errorf("Branches block not built")
	}

	outputs := make([]*Tensor, len(br.branches))
	for i, branch := range br.branches {
		current := input
		for _, layer := range branch {
			var err error
			current, err = layer.forward(current, training)
			if err != nil {
				return nil, err
			}
		}
		outputs[i] = current
	}

	batchSize := input.Shape[0]
	total := br.totalWidth()
	output := NewTensor(batchSize, total)
	offset := 0
	for i, out := range outputs {
		w := br.widths[i]
		for b := 0; b < batchSize; b++ {
			copy(output.Data[b*total+offset:b*total+offset+w], out.Data[b*w:(b+1)*w])
		}
		offset += w
	}
	return output, nil
}

func (br *BranchesLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	batchSize := gradOutput.Shape[0]
	total := br.totalWidth()

	var gradInput *Tensor
	offset := 0
	for i, branch := range br.branches {
		w := br.widths[i]
		grad := NewTensor(batchSize, w)
		for b := 0; b < batchSize; b++ {
			copy(grad.Data[b*w:(b+1)*w], gradOutput.Data[b*total+offset:b*total+offset+w])
		}
		offset += w

		for j := len(branch) - 1; j >= 0 && grad != nil; j-- {
			var err error
			grad, err = branch[j].backward(grad)
			if err != nil {
				return nil, err
			}
		}

		// Sum gradients from every path
		if grad == nil {
			continue
		}
		if gradInput == nil {
			gradInput = grad
			continue
		}
		for k := range gradInput.Data {
			gradInput.Data[k] += grad.Data[k]
		}
	}

	return gradInput, nil
}

func (br *BranchesLayer) totalWidth() int {
	total := 0
	for _, w := range br.widths {
		total += w
	}
	return total
}

func (br *BranchesLayer) parameters() []*Tensor {
	var params []*Tensor
	for _, branch := range br.branches {
		for _, layer := range branch {
			params = append(params, layer.parameters()...)
		}
	}
	return params
}

func (br *BranchesLayer) gradients() []*Tensor {
	var grads []*Tensor
	for _, branch := range br.branches {
		for _, layer := range branch {
			grads = append(grads, layer.gradients()...)
		}
	}
	return grads
}

func (br *BranchesLayer) outputShape() []int { return []int{br.totalWidth()} }
func (br *BranchesLayer) name() string       { return "branches" }

// MinSeqLen is the largest kernel width among the branches' convolutions.
func (br *BranchesLayer) MinSeqLen() int {
	longest := 0
	for _, branch := range br.branches {
		for _, layer := range branch {
			if c, ok := layer.(*Conv1DLayer); ok && c.kernelSize > longest {
				longest = c.kernelSize
			}
		}
	}
	return longest
}
