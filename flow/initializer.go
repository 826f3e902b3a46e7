package flow

import (
	"math"
	"math/rand"
)

// Initializer fills a freshly allocated parameter tensor.
type Initializer interface {
	initialize(t *Tensor, fanIn, fanOut int, rng *rand.Rand)
	name() string
}

// scaledInit draws from a normal or uniform distribution whose spread is
// derived from the fan-in and fan-out of the tensor.
type scaledInit struct {
	label   string
	gain    float64
	uniform bool
	spread  func(fanIn, fanOut int) float64
}

// HeNormal draws from N(0, gain^2 * 2/fanIn). Suited to ReLU layers.
func HeNormal(gain float64) Initializer {
	return &scaledInit{label: "he_normal", gain: gain, spread: func(fanIn, _ int) float64 {
		return math.Sqrt(2.0 / float64(fanIn))
	}}
}

// XavierNormal draws from N(0, gain^2 * 2/(fanIn+fanOut)).
func XavierNormal(gain float64) Initializer {
	return &scaledInit{label: "xavier_normal", gain: gain, spread: func(fanIn, fanOut int) float64 {
		return math.Sqrt(2.0 / float64(fanIn+fanOut))
	}}
}

// XavierUniform draws from U(-l, l) with l = gain * sqrt(6/(fanIn+fanOut)).
func XavierUniform(gain float64) Initializer {
	return &scaledInit{label: "xavier_uniform", gain: gain, uniform: true, spread: func(fanIn, fanOut int) float64 {
		return math.Sqrt(6.0 / float64(fanIn+fanOut))
	}}
}

func (s *scaledInit) initialize(t *Tensor, fanIn, fanOut int, rng *rand.Rand) {
	width := s.gain * s.spread(fanIn, fanOut)
	if s.uniform {
		t.fillRandUniform(-width, width, rng)
		return
	}
	t.fillRandNorm(0, width, rng)
}

func (s *scaledInit) name() string { return s.label }

type normalInit struct {
	mean, std float64
}

// RandomNormal draws from N(mean, std^2) regardless of shape. Embedding
// tables use it.
func RandomNormal(mean, std float64) Initializer {
	return &normalInit{mean: mean, std: std}
}

func (n *normalInit) initialize(t *Tensor, _, _ int, rng *rand.Rand) {
	t.fillRandNorm(n.mean, n.std, rng)
}

func (n *normalInit) name() string { return "random_normal" }

type zerosInit struct{}

// Zeros leaves the tensor at 0.
func Zeros() Initializer { return zerosInit{} }

func (zerosInit) initialize(t *Tensor, _, _ int, _ *rand.Rand) { t.Zero() }
func (zerosInit) name() string                                 { return "zeros" }
