package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildClassifier(t *testing.T, seed int64) *Network {
	net, err := NewNetwork(NetworkConfig{Seed: seed}).
		AddLayer(Embedding(12, 4).WithPaddingIdx(0).Build()).
		AddLayer(MeanPool1D().Build()).
		AddLayer(Dense(3).WithActivation(Linear()).WithInitializer(XavierUniform(1)).WithBiasInitializer(Zeros()).WithBias(true).Build()).
		Build([]int{0})
	require.NoError(t, err)
	return net
}

func TestStateRoundTrip(t *testing.T) {
	a := buildClassifier(t, 1)
	b := buildClassifier(t, 2)
	require.NotEqual(t, Checksum(a.Parameters()), Checksum(b.Parameters()))

	require.NoError(t, b.LoadState(a.State()))
	assert.Equal(t, Checksum(a.Parameters()), Checksum(b.Parameters()))

	tokens := FromRows([][]float64{{1, 2, 3}})
	outA, err := a.Forward(tokens, false)
	require.NoError(t, err)
	outB, err := b.Forward(tokens, false)
	require.NoError(t, err)
	assert.Equal(t, outA.Data, outB.Data)
}

func TestLoadStateShapeMismatch(t *testing.T) {
	a := buildClassifier(t, 1)
	state := a.State()
	state.Shapes[0] = []int{13, 4}
	err := a.LoadState(state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatch")

	state = a.State()
	state.Weights = state.Weights[:1]
	require.Error(t, a.LoadState(state))
}

func TestAdamStepChangesParameters(t *testing.T) {
	net := buildClassifier(t, 1)
	opt := Adam(DefaultAdamConfig())

	before := Checksum(net.Parameters())
	net.ZeroGrad()
	out, err := net.Forward(FromRows([][]float64{{1, 2, 3}, {4, 5, 0}}), true)
	require.NoError(t, err)
	_, grad := SigmoidBCE(SigmoidBCEConfig{}).Compute(out, FromRows([][]float64{{1, 0, 0}, {0, 1, 1}}))
	_, err = net.Backward(grad)
	require.NoError(t, err)
	opt.Step(net.Parameters(), net.Gradients())

	assert.NotEqual(t, before, Checksum(net.Parameters()))
	assert.Equal(t, "adam", opt.Name())
}

func TestForwardParallelMatchesSerial(t *testing.T) {
	build := func(workers int) *Network {
		net, err := NewNetwork(NetworkConfig{Seed: 7, Workers: workers}).
			AddLayer(Embedding(12, 4).WithPaddingIdx(0).Build()).
			AddLayer(Conv1D(5, 2).WithActivation(Tanh()).WithInitializer(XavierUniform(1)).WithBiasInitializer(Zeros()).Build()).
			AddLayer(GlobalMaxPool1D().Build()).
			AddLayer(Dense(3).WithActivation(Linear()).WithInitializer(XavierUniform(1)).WithBiasInitializer(Zeros()).WithBias(true).Build()).
			Build([]int{0})
		require.NoError(t, err)
		return net
	}
	tokens := FromRows([][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 0}})

	serial, err := build(1).Forward(tokens, false)
	require.NoError(t, err)
	parallel, err := build(4).Forward(tokens, false)
	require.NoError(t, err)
	assert.Equal(t, serial.Data, parallel.Data)
}

func TestSummary(t *testing.T) {
	s := buildClassifier(t, 1).Summary()
	assert.Contains(t, s, "Layer 1: embedding - 48 params")
	assert.Contains(t, s, "Total parameters: 63")
}

func TestSGDMomentum(t *testing.T) {
	p := FromRows([][]float64{{1, -1}})
	g := FromRows([][]float64{{0.5, 0.5}})
	opt := SGD(SGDConfig{LR: 0.1, Momentum: 0.9})
	assert.Equal(t, "sgd", opt.Name())

	opt.Step([]*Tensor{p}, []*Tensor{g})
	assert.InDeltaSlice(t, []float64{0.95, -1.05}, p.Data, 1e-12)

	// velocity 0.9*0.5 + 0.5
	opt.Step([]*Tensor{p}, []*Tensor{g})
	assert.InDeltaSlice(t, []float64{0.855, -1.145}, p.Data, 1e-12)
}
