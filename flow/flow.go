// Package flow is the differentiable layer library behind the codeflow
// classifiers.
//
// Every layer is constructed through a builder with its hyperparameters
// spelled out, and a Network is a plain stack of layers with a forward and a
// backward pass. Training policy lives outside this package.
//
// Basic usage:
//
//	net, err := flow.NewNetwork(flow.NetworkConfig{Seed: 42, Workers: 1}).
//		AddLayer(flow.Embedding(vocabSize, 100).WithPaddingIdx(0).Build()).
//		AddLayer(flow.Conv1D(64, 4).
//			WithActivation(flow.Tanh()).
//			WithInitializer(flow.XavierUniform(1.0)).
//			WithBiasInitializer(flow.Zeros()).
//			Build()).
//		AddLayer(flow.GlobalMaxPool1D().Build()).
//		Build([]int{200})
//
//	logits, err := net.Forward(tokens, true)
//	loss, grad := flow.SigmoidBCE(flow.SigmoidBCEConfig{}).Compute(logits, targets)
//	_, err = net.Backward(grad)
//	opt.Step(net.Parameters(), net.Gradients())
package flow

// Version of the Flow library
const Version = "1.1.0"
