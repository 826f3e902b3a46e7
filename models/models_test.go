package models

import (
	"testing"

	"codeflow/corpus"
	"codeflow/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec(name string) Spec {
	return Spec{
		Name:           name,
		Labels:         3,
		VocabSize:      20,
		EmbedSize:      4,
		FilterSize:     2,
		MinFilter:      2,
		MaxFilter:      3,
		NumFilterMaps:  5,
		LSTMDim:        3,
		NormConstraint: 1,
		Seed:           11,
	}
}

func testBatch() *corpus.Batch {
	return &corpus.Batch{
		Inputs: [][]int{{1, 2, 3, 4}, {5, 6, 7, 0}},
		Labels: [][]float64{{1, 0, 1}, {0, 1, 0}},
	}
}

func TestArchitecturesTrainStep(t *testing.T) {
	for _, name := range []string{LogReg, MLP, CNNVanilla, CNNMulti, LSTM} {
		t.Run(name, func(t *testing.T) {
			m, err := New(testSpec(name))
			require.NoError(t, err)
			assert.Equal(t, name, m.Name())
			assert.Contains(t, m.Summary(), "Total parameters")

			tokens, targets := CPU.Place(testBatch())
			m.Train()
			m.ZeroGrad()
			m.ResetState(2)
			logits, err := m.Forward(tokens, nil)
			require.NoError(t, err)
			require.Equal(t, []int{2, 3}, logits.Shape)

			_, grad := flow.SigmoidBCE(flow.SigmoidBCEConfig{}).Compute(logits, targets)
			require.NoError(t, m.Backward(grad))

			before := flow.Checksum(m.Parameters())
			flow.Adam(flow.DefaultAdamConfig()).Step(m.Parameters(), m.Gradients())
			assert.NotEqual(t, before, flow.Checksum(m.Parameters()))

			m.EnforceNormConstraint()
			for _, n := range m.(*classifier).OutputNorms() {
				assert.LessOrEqual(t, n, 1.0+1e-9)
			}
		})
	}
}

func TestMinInputSize(t *testing.T) {
	expected := map[string]int{LogReg: 0, MLP: 0, LSTM: 0, CNNVanilla: 2, CNNMulti: 3}
	for name, size := range expected {
		m, err := New(testSpec(name))
		require.NoError(t, err)
		assert.Equal(t, size, m.MinInputSize(), name)
	}
}

func TestUnknownArchitecture(t *testing.T) {
	_, err := New(testSpec("transformer"))
	require.Error(t, err)

	spec := testSpec(CNNVanilla)
	spec.FilterSize = 0
	_, err = New(spec)
	require.Error(t, err)
}

func TestSplitReassembly(t *testing.T) {
	m, err := New(testSpec(CNNVanilla))
	require.NoError(t, err)
	m.Eval()

	whole := &corpus.Batch{
		Inputs: [][]int{{1, 2, 3, 4, 5, 6}},
		Labels: [][]float64{{1, 0, 0}},
	}
	split := &corpus.Batch{
		Inputs:    [][]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 0}},
		Labels:    [][]float64{{1, 0, 0}, {0, 1, 0}},
		Offsets:   []int{0, 3, 0},
		DocStarts: []int{0, 2},
	}
	tokens, _ := CPU.Place(split)
	logits, err := m.Forward(tokens, split.DocStarts)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, logits.Shape)

	tokens, _ = CPU.Place(whole)
	wholeLogits, err := m.Forward(tokens, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, wholeLogits.Shape)

	m.Train()
	tokens, targets := CPU.Place(split)
	logits, err = m.Forward(tokens, split.DocStarts)
	require.NoError(t, err)
	_, grad := flow.SigmoidBCE(flow.SigmoidBCEConfig{}).Compute(logits, targets)
	require.NoError(t, m.Backward(grad))

	_, err = m.Forward(tokens, []int{0, 5})
	require.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	a, err := New(testSpec(CNNMulti))
	require.NoError(t, err)
	spec := testSpec(CNNMulti)
	spec.Seed = 99
	b, err := New(spec)
	require.NoError(t, err)

	require.NoError(t, b.LoadState(a.State()))
	assert.Equal(t, flow.Checksum(a.Parameters()), flow.Checksum(b.Parameters()))

	c, err := New(testSpec(LogReg))
	require.NoError(t, err)
	require.Error(t, c.LoadState(a.State()))
}

func TestDevice(t *testing.T) {
	assert.Equal(t, CPU, ResolveDevice(false, nil))

	d := ResolveDevice(true, nil)
	assert.GreaterOrEqual(t, d.Workers, 1)

	tokens, targets := d.Place(testBatch())
	assert.Equal(t, []int{2, 4}, tokens.Shape)
	assert.Equal(t, 7.0, tokens.At(1, 2))
	assert.Equal(t, []int{2, 3}, targets.Shape)
}
