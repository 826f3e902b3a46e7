package flow

import (
	"fmt"
	"math/rand"
	"strings"
)

// Network is a stack of layers applied in order
type Network struct {
	layers      []Layer
	rng         *rand.Rand
	workers     int
	checkFinite bool
	inputShape  []int
	built       bool
}

// NetworkConfig for network construction
type NetworkConfig struct {
	Seed        int64
	Workers     int  // goroutines for matrix kernels, <= 1 runs inline
	CheckFinite bool // scan every layer output for NaN/Inf
}

// NetworkBuilder for fluent API
type NetworkBuilder struct {
	network *Network
}

// NewNetwork creates a new network builder
func NewNetwork(config NetworkConfig) *NetworkBuilder {
	return &NetworkBuilder{
		network: &Network{
			layers:      make([]Layer, 0),
			rng:         rand.New(rand.NewSource(config.Seed)),
			workers:     config.Workers,
			checkFinite: config.CheckFinite,
		},
	}
}

// AddLayer adds a layer to the network
func (n *NetworkBuilder) AddLayer(layer Layer) *NetworkBuilder {
	n.network.layers = append(n.network.layers, layer)
	return n
}

// Build finalizes the network structure. A zero sequence length in
// inputShape means the length varies per batch.
func (n *NetworkBuilder) Build(inputShape []int) (*Network, error) {
	if len(n.network.layers) == 0 {
		return nil, errorf("network must have at least one layer")
	}
	if len(inputShape) == 0 {
		return nil, errorf("inputShape must be specified")
	}

	n.network.inputShape = inputShape
	e := &env{rng: n.network.rng, workers: n.network.workers}

	currentShape := inputShape
	for i, layer := range n.network.layers {
		if err := layer.build(currentShape, e); err != nil {
			return nil, errorf("layer %d (%s): %v", i, layer.name(), err)
		}
		if outShape := layer.outputShape(); outShape != nil {
			currentShape = outShape
		}
	}

	n.network.built = true
	return n.network, nil
}

// Forward runs every layer on input.
func (n *Network) Forward(input *Tensor, training bool) (*Tensor, error) {
	if !n.built {
		return nil, errorf("network not built")
	}
	output := input
	for i, layer := range n.layers {
		var err error
		output, err = layer.forward(output, training)
		if err != nil {
			if fe, ok := err.(*FlowError); ok {
				fe.LayerIndex = i
				return nil, fe
			}
			return nil, errorf("layer %d (%s): %v", i, layer.name(), err)
		}
		if n.checkFinite {
			if err := ValidateOutput(output, layer.name(), i); err != nil {
				return nil, err
			}
		}
	}
	return output, nil
}

// Backward propagates gradOutput through the layers in reverse and returns
// the gradient with respect to the network input. It stops early at a layer
// that has no input gradient, such as an embedding lookup.
func (n *Network) Backward(gradOutput *Tensor) (*Tensor, error) {
	grad := gradOutput
	for i := len(n.layers) - 1; i >= 0; i-- {
		var err error
		grad, err = n.layers[i].backward(grad)
		if err != nil {
			return nil, errorf("layer %d (%s) backward: %v", i, n.layers[i].name(), err)
		}
		if grad == nil {
			return nil, nil
		}
	}
	return grad, nil
}

// Parameters returns every trainable tensor, in layer order.
func (n *Network) Parameters() []*Tensor {
	var params []*Tensor
	for _, layer := range n.layers {
		params = append(params, layer.parameters()...)
	}
	return params
}

// Gradients returns the gradient tensors matching Parameters.
func (n *Network) Gradients() []*Tensor {
	var grads []*Tensor
	for _, layer := range n.layers {
		grads = append(grads, layer.gradients()...)
	}
	return grads
}

// ZeroGrad clears all gradients.
func (n *Network) ZeroGrad() {
	for _, g := range n.Gradients() {
		g.Zero()
	}
}

// ResetState zeroes recurrent state for a batch of batchSize rows.
func (n *Network) ResetState(batchSize int) {
	for _, layer := range n.layers {
		if l, ok := layer.(*LSTMLayer); ok {
			l.ResetState(batchSize)
		}
	}
}

// OutputLayer returns the last Dense layer, or nil.
func (n *Network) OutputLayer() *DenseLayer {
	for i := len(n.layers) - 1; i >= 0; i-- {
		if d, ok := n.layers[i].(*DenseLayer); ok {
			return d
		}
	}
	return nil
}

// ConstrainNorm clips the per-unit weight norm of the output layer.
func (n *Network) ConstrainNorm(max float64) {
	if d := n.OutputLayer(); d != nil {
		d.ConstrainNorm(max)
	}
}

// MinSeqLen is the shortest sequence every convolution in the network accepts.
func (n *Network) MinSeqLen() int {
	longest := 0
	for _, layer := range n.layers {
		switch l := layer.(type) {
		case *Conv1DLayer:
			if l.kernelSize > longest {
				longest = l.kernelSize
			}
		case *BranchesLayer:
			if k := l.MinSeqLen(); k > longest {
				longest = k
			}
		}
	}
	return longest
}

// ModelState for serialization
type ModelState struct {
	Weights [][]float64 `json:"weights"`
	Shapes  [][]int     `json:"shapes"`
}

// State copies every parameter into a ModelState.
func (n *Network) State() ModelState {
	state := ModelState{
		Weights: make([][]float64, 0),
		Shapes:  make([][]int, 0),
	}
	for _, p := range n.Parameters() {
		data := make([]float64, len(p.Data))
		copy(data, p.Data)
		state.Weights = append(state.Weights, data)
		state.Shapes = append(state.Shapes, append([]int(nil), p.Shape...))
	}
	return state
}

// LoadState restores parameters saved by State. Shapes must match exactly.
func (n *Network) LoadState(state ModelState) error {
	params := n.Parameters()
	if len(state.Weights) != len(params) || len(state.Shapes) != len(params) {
		return errorf("weight count mismatch: network has %d tensors, state has %d", len(params), len(state.Weights))
	}
	for i, p := range params {
		if !sameShape(p.Shape, state.Shapes[i]) || len(state.Weights[i]) != len(p.Data) {
			return errorf("tensor %d shape mismatch: network %v, state %v", i, p.Shape, state.Shapes[i])
		}
	}
	for i, p := range params {
		copy(p.Data, state.Weights[i])
	}
	return nil
}

// Summary describes the network architecture
func (n *Network) Summary() string {
	var b strings.Builder
	b.WriteString("Flow Network Summary\n")
	b.WriteString("====================\n")

	totalParams := 0
	for i, layer := range n.layers {
		layerParams := 0
		for _, p := range layer.parameters() {
			layerParams += p.Size()
		}
		totalParams += layerParams
		fmt.Fprintf(&b, "Layer %d: %s - %d params\n", i+1, layer.name(), layerParams)
	}
	b.WriteString("====================\n")
	fmt.Fprintf(&b, "Total parameters: %d\n", totalParams)

	return b.String()
}
