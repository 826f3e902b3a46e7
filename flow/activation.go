package flow

import "math"

// Activation represents an activation function
type Activation interface {
	forward(x *Tensor, out *Tensor)
	backward(x *Tensor, gradOut *Tensor, gradIn *Tensor)
	name() string
}

// LinearActivation - identity, used for output logits
type LinearActivation struct{}

func Linear() Activation { return &LinearActivation{} }

func (l *LinearActivation) forward(x *Tensor, out *Tensor) {
	copy(out.Data, x.Data)
}

func (l *LinearActivation) backward(x *Tensor, gradOut *Tensor, gradIn *Tensor) {
	copy(gradIn.Data, gradOut.Data)
}

func (l *LinearActivation) name() string { return "linear" }

// ReLUActivation - Rectified Linear Unit
type ReLUActivation struct{}

func ReLU() Activation { return &ReLUActivation{} }

func (r *ReLUActivation) forward(x *Tensor, out *Tensor) {
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		} else {
			out.Data[i] = 0
		}
	}
}

func (r *ReLUActivation) backward(x *Tensor, gradOut *Tensor, gradIn *Tensor) {
	for i, v := range x.Data {
		if v > 0 {
			gradIn.Data[i] = gradOut.Data[i]
		} else {
			gradIn.Data[i] = 0
		}
	}
}

func (r *ReLUActivation) name() string { return "relu" }

// TanhActivation - hyperbolic tangent
type TanhActivation struct{}

func Tanh() Activation { return &TanhActivation{} }

func (t *TanhActivation) forward(x *Tensor, out *Tensor) {
	for i, v := range x.Data {
		out.Data[i] = math.Tanh(v)
	}
}

func (t *TanhActivation) backward(x *Tensor, gradOut *Tensor, gradIn *Tensor) {
	for i, v := range x.Data {
		th := math.Tanh(v)
		gradIn.Data[i] = gradOut.Data[i] * (1 - th*th)
	}
}

func (t *TanhActivation) name() string { return "tanh" }

// SigmoidActivation - logistic function
type SigmoidActivation struct{}

func Sigmoid() Activation { return &SigmoidActivation{} }

func (s *SigmoidActivation) forward(x *Tensor, out *Tensor) {
	for i, v := range x.Data {
		out.Data[i] = sigmoid(v)
	}
}

func (s *SigmoidActivation) backward(x *Tensor, gradOut *Tensor, gradIn *Tensor) {
	for i, v := range x.Data {
		sv := sigmoid(v)
		gradIn.Data[i] = gradOut.Data[i] * sv * (1 - sv)
	}
}

func (s *SigmoidActivation) name() string { return "sigmoid" }

// ApplySigmoid maps logits to probabilities in a new tensor.
func ApplySigmoid(logits *Tensor) *Tensor {
	out := NewTensor(logits.Shape...)
	Sigmoid().forward(logits, out)
	return out
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1.0 / (1.0 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1.0 + e)
}
