package flow

import "math"

// Optimizer updates parameters in place from their gradients.
// Parameters and gradients are matched by position.
type Optimizer interface {
	Step(params []*Tensor, grads []*Tensor)
	Name() string
}

// SGDOptimizer - Stochastic Gradient Descent
type SGDOptimizer struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
	velocities  []*Tensor
}

type SGDConfig struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
}

func SGD(config SGDConfig) Optimizer {
	return &SGDOptimizer{
		LR:          config.LR,
		Momentum:    config.Momentum,
		WeightDecay: config.WeightDecay,
	}
}

func (s *SGDOptimizer) Step(params []*Tensor, grads []*Tensor) {
	if len(s.velocities) != len(params) {
		s.velocities = make([]*Tensor, len(params))
		for i, p := range params {
			s.velocities[i] = NewTensor(p.Shape...)
		}
	}
	for i, p := range params {
		g := grads[i]
		v := s.velocities[i]

		for j := range p.Data {
			grad := g.Data[j]
			if s.WeightDecay != 0 {
				grad += s.WeightDecay * p.Data[j]
			}
			if s.Momentum != 0 {
				v.Data[j] = s.Momentum*v.Data[j] + grad
				grad = v.Data[j]
			}
			p.Data[j] -= s.LR * grad
		}
	}
}

func (s *SGDOptimizer) Name() string { return "sgd" }

// AdamOptimizer - Adaptive Moment Estimation
type AdamOptimizer struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	m           []*Tensor
	v           []*Tensor
	t           int
}

type AdamConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
}

// DefaultAdamConfig is lr 1e-3, betas 0.9/0.999, eps 1e-8, no decay.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{LR: 1e-3, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

func Adam(config AdamConfig) Optimizer {
	return &AdamOptimizer{
		LR:          config.LR,
		Beta1:       config.Beta1,
		Beta2:       config.Beta2,
		Epsilon:     config.Epsilon,
		WeightDecay: config.WeightDecay,
	}
}

func (a *AdamOptimizer) init(params []*Tensor) {
	a.m = make([]*Tensor, len(params))
	a.v = make([]*Tensor, len(params))
	for i, p := range params {
		a.m[i] = NewTensor(p.Shape...)
		a.v[i] = NewTensor(p.Shape...)
	}
	a.t = 0
}

func (a *AdamOptimizer) Step(params []*Tensor, grads []*Tensor) {
	if len(a.m) != len(params) {
		a.init(params)
	}
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i, p := range params {
		g := grads[i]
		m := a.m[i]
		v := a.v[i]

		for j := range p.Data {
			grad := g.Data[j]
			if a.WeightDecay != 0 {
				grad += a.WeightDecay * p.Data[j]
			}
			m.Data[j] = a.Beta1*m.Data[j] + (1-a.Beta1)*grad
			v.Data[j] = a.Beta2*v.Data[j] + (1-a.Beta2)*grad*grad

			mHat := m.Data[j] / bc1
			vHat := v.Data[j] / bc2

			p.Data[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

func (a *AdamOptimizer) Name() string { return "adam" }
