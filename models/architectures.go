package models

import (
	"codeflow/flow"
	"github.com/pkg/errors"
)

// Architecture names accepted by New.
const (
	CNNVanilla = "cnn_vanilla"
	CNNMulti   = "cnn_multi"
	LSTM       = "lstm"
	MLP        = "mlp"
	LogReg     = "logreg"
)

// New builds the architecture named by spec.Name.
func New(spec Spec) (Model, error) {
	if spec.Labels <= 0 || spec.VocabSize <= 0 || spec.EmbedSize <= 0 {
		return nil, errors.Errorf("%s: labels, vocab size and embed size must be > 0, got %d, %d, %d",
			spec.Name, spec.Labels, spec.VocabSize, spec.EmbedSize)
	}

	var body, head []flow.Layer
	var width int
	switch spec.Name {
	case LogReg:
		body = []flow.Layer{embedding(spec), flow.MeanPool1D().Build()}
		width = spec.EmbedSize
		head = []flow.Layer{output(spec)}

	case MLP:
		if spec.HiddenSize == 0 {
			spec.HiddenSize = spec.EmbedSize
		}
		body = []flow.Layer{embedding(spec), flow.MeanPool1D().Build()}
		width = spec.EmbedSize
		head = []flow.Layer{
			flow.Dense(spec.HiddenSize).
				WithActivation(flow.Tanh()).
				WithInitializer(flow.XavierUniform(1.0)).
				WithBiasInitializer(flow.Zeros()).
				WithBias(true).
				Build(),
			output(spec),
		}

	case CNNVanilla:
		if spec.FilterSize <= 0 || spec.NumFilterMaps <= 0 {
			return nil, errors.Errorf("%s: filter size and filter maps must be > 0", spec.Name)
		}
		if spec.Dropout == 0 {
			spec.Dropout = 0.5
		}
		body = []flow.Layer{
			embedding(spec),
			conv(spec.NumFilterMaps, spec.FilterSize),
			flow.GlobalMaxPool1D().Build(),
		}
		width = spec.NumFilterMaps
		head = []flow.Layer{flow.Dropout(spec.Dropout).Build(), output(spec)}

	case CNNMulti:
		if spec.MinFilter <= 0 || spec.MaxFilter < spec.MinFilter || spec.NumFilterMaps <= 0 {
			return nil, errors.Errorf("%s: need 0 < min_filter <= max_filter and filter maps > 0", spec.Name)
		}
		branches := flow.Branches()
		for k := spec.MinFilter; k <= spec.MaxFilter; k++ {
			branches.Add(conv(spec.NumFilterMaps, k), flow.GlobalMaxPool1D().Build())
		}
		body = []flow.Layer{embedding(spec), branches.Build()}
		width = spec.NumFilterMaps * (spec.MaxFilter - spec.MinFilter + 1)
		head = []flow.Layer{output(spec)}

	case LSTM:
		if spec.LSTMDim <= 0 {
			return nil, errors.Errorf("%s: lstm dim must be > 0", spec.Name)
		}
		body = []flow.Layer{
			embedding(spec),
			flow.LSTM(spec.LSTMDim).
				WithInitializer(flow.XavierUniform(1.0)).
				WithRecurrentInitializer(flow.XavierNormal(1.0)).
				WithBiasInitializer(flow.Zeros()).
				Build(),
		}
		width = spec.LSTMDim
		head = []flow.Layer{output(spec)}

	default:
		return nil, errors.Errorf("unknown architecture %q", spec.Name)
	}

	bodyNet, err := stack(spec, spec.Seed, body).Build([]int{0})
	if err != nil {
		return nil, errors.Wrapf(err, "%s body", spec.Name)
	}
	headNet, err := stack(spec, spec.Seed+1, head).Build([]int{width})
	if err != nil {
		return nil, errors.Wrapf(err, "%s head", spec.Name)
	}
	return &classifier{spec: spec, body: bodyNet, head: headNet}, nil
}

func stack(spec Spec, seed int64, layers []flow.Layer) *flow.NetworkBuilder {
	b := flow.NewNetwork(flow.NetworkConfig{Seed: seed, Workers: spec.Workers, CheckFinite: spec.CheckFinite})
	for _, l := range layers {
		b.AddLayer(l)
	}
	return b
}

func embedding(spec Spec) flow.Layer {
	return flow.Embedding(spec.VocabSize, spec.EmbedSize).
		WithInitializer(flow.RandomNormal(0, 0.1)).
		WithPaddingIdx(0).
		Build()
}

func conv(maps, width int) flow.Layer {
	return flow.Conv1D(maps, width).
		WithActivation(flow.Tanh()).
		WithInitializer(flow.XavierUniform(1.0)).
		WithBiasInitializer(flow.Zeros()).
		Build()
}

func output(spec Spec) flow.Layer {
	return flow.Dense(spec.Labels).
		WithActivation(flow.Linear()).
		WithInitializer(flow.XavierUniform(1.0)).
		WithBiasInitializer(flow.Zeros()).
		WithBias(true).
		Build()
}
