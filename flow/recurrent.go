package flow

import (
	"math"
)

// LSTMLayer - Long Short-Term Memory over [batch, T, C] input, emitting the
// final hidden state [batch, units].
// Gates are fused into one projection in the order input, forget, cell, output.
type LSTMLayer struct {
	units         int
	initializer   Initializer
	recurrentInit Initializer
	biasInit      Initializer

	W  *Tensor // [inputDim, 4*units]
	U  *Tensor // [units, 4*units]
	b  *Tensor // [4*units]
	dW *Tensor
	dU *Tensor
	db *Tensor

	h0, c0 *Tensor

	// Cache
	steps  []*Tensor // x_t, [batch, inputDim]
	gates  []*Tensor // activated gates, [batch, 4*units]
	hidden []*Tensor // h_0..h_T
	cells  []*Tensor // c_0..c_T

	inputDim int
	workers  int
	built    bool
}

type LSTMBuilder struct {
	layer *LSTMLayer
}

func LSTM(units int) *LSTMBuilder {
	return &LSTMBuilder{
		layer: &LSTMLayer{
			units: units,
		},
	}
}

func (b *LSTMBuilder) WithInitializer(init Initializer) *LSTMBuilder {
	b.layer.initializer = init
	return b
}

func (b *LSTMBuilder) WithRecurrentInitializer(init Initializer) *LSTMBuilder {
	b.layer.recurrentInit = init
	return b
}

func (b *LSTMBuilder) WithBiasInitializer(init Initializer) *LSTMBuilder {
	b.layer.biasInit = init
	return b
}

func (b *LSTMBuilder) Build() Layer {
	return b.layer
}

func (l *LSTMLayer) build(inputShape []int, e *env) error {
	if len(inputShape) != 2 {
		return errorf("LSTM requires input shape [T, features], got %v", inputShape)
	}
	if l.units <= 0 {
		return errorf("LSTM units must be > 0, got %d", l.units)
	}
	if l.initializer == nil {
		return errorf("LSTM requires initializer")
	}
	if l.recurrentInit == nil {
		return errorf("LSTM requires recurrent initializer")
	}
	if l.biasInit == nil {
		return errorf("LSTM requires bias initializer")
	}

	l.inputDim = inputShape[1]
	gates := 4 * l.units

	l.W = NewTensor(l.inputDim, gates)
	l.U = NewTensor(l.units, gates)
	l.b = NewTensor(gates)
	l.initializer.initialize(l.W, l.inputDim, l.units, e.rng)
	l.recurrentInit.initialize(l.U, l.units, l.units, e.rng)
	l.biasInit.initialize(l.b, l.inputDim, l.units, e.rng)
	// Forget gate bias = 1
	for u := l.units; u < 2*l.units; u++ {
		l.b.Data[u] = 1.0
	}

	l.dW = NewTensor(l.inputDim, gates)
	l.dU = NewTensor(l.units, gates)
	l.db = NewTensor(gates)

	l.workers = e.workers
	l.built = true
	return nil
}

// ResetState sets zero initial hidden and cell states for batchSize rows.
func (l *LSTMLayer) ResetState(batchSize int) {
	l.h0 = NewTensor(batchSize, l.units)
	l.c0 = NewTensor(batchSize, l.units)
}

func (l *LSTMLayer) forward(input *Tensor, training bool) (*Tensor, error) {
	if !l.built {
		return nil, errorf("LSTM not built")
	}
	if len(input.Shape) != 3 || input.Shape[2] != l.inputDim {
		return nil, errorf("LSTM expects [batch, T, %d] input, got %v", l.inputDim, input.Shape)
	}

	batchSize, seqLen := input.Shape[0], input.Shape[1]
	if l.h0 == nil || l.h0.Shape[0] != batchSize {
		l.ResetState(batchSize)
	}

	u4 := 4 * l.units
	l.steps = make([]*Tensor, seqLen)
	l.gates = make([]*Tensor, seqLen)
	l.hidden = make([]*Tensor, seqLen+1)
	l.cells = make([]*Tensor, seqLen+1)
	l.hidden[0] = l.h0.Clone()
	l.cells[0] = l.c0.Clone()

	recur := NewTensor(batchSize, u4)
	for t := 0; t < seqLen; t++ {
		xt := NewTensor(batchSize, l.inputDim)
		for b := 0; b < batchSize; b++ {
			copy(xt.Data[b*l.inputDim:(b+1)*l.inputDim], input.Data[(b*seqLen+t)*l.inputDim:(b*seqLen+t+1)*l.inputDim])
		}

		z := NewTensor(batchSize, u4)
		matmul(xt, l.W, z, l.workers)
		matmul(l.hidden[t], l.U, recur, l.workers)
		for i := range z.Data {
			z.Data[i] += recur.Data[i]
		}
		addVec(z, l.b)

		cPrev := l.cells[t]
		cNew := NewTensor(batchSize, l.units)
		hNew := NewTensor(batchSize, l.units)
		for b := 0; b < batchSize; b++ {
			row := z.Data[b*u4 : (b+1)*u4]
			for u := 0; u < l.units; u++ {
				ig := sigmoid(row[u])
				fg := sigmoid(row[l.units+u])
				cg := math.Tanh(row[2*l.units+u])
				og := sigmoid(row[3*l.units+u])
				row[u], row[l.units+u], row[2*l.units+u], row[3*l.units+u] = ig, fg, cg, og

				c := fg*cPrev.Data[b*l.units+u] + ig*cg
				cNew.Data[b*l.units+u] = c
				hNew.Data[b*l.units+u] = og * math.Tanh(c)
			}
		}

		l.steps[t] = xt
		l.gates[t] = z
		l.cells[t+1] = cNew
		l.hidden[t+1] = hNew
	}

	return l.hidden[seqLen].Clone(), nil
}

func (l *LSTMLayer) backward(gradOutput *Tensor) (*Tensor, error) {
	if l.steps == nil {
		return nil, errorf("LSTM backward called before forward")
	}
	seqLen := len(l.steps)
	batchSize := gradOutput.Shape[0]
	u4 := 4 * l.units

	l.dW.Zero()
	l.dU.Zero()
	l.db.Zero()

	gradInput := NewTensor(batchSize, seqLen, l.inputDim)
	dh := gradOutput.Clone()
	dc := NewTensor(batchSize, l.units)

	tmpW := NewTensor(l.inputDim, u4)
	tmpU := NewTensor(l.units, u4)
	dx := NewTensor(batchSize, l.inputDim)
	dhPrev := NewTensor(batchSize, l.units)

	for t := seqLen - 1; t >= 0; t-- {
		g := l.gates[t]
		cPrev := l.cells[t]
		cNew := l.cells[t+1]

		dz := NewTensor(batchSize, u4)
		for b := 0; b < batchSize; b++ {
			gr := g.Data[b*u4 : (b+1)*u4]
			dr := dz.Data[b*u4 : (b+1)*u4]
			for u := 0; u < l.units; u++ {
				k := b*l.units + u
				ig, fg, cg, og := gr[u], gr[l.units+u], gr[2*l.units+u], gr[3*l.units+u]
				tanhC := math.Tanh(cNew.Data[k])

				dcVal := dc.Data[k] + dh.Data[k]*og*(1-tanhC*tanhC)

				dr[u] = dcVal * cg * ig * (1 - ig)
				dr[l.units+u] = dcVal * cPrev.Data[k] * fg * (1 - fg)
				dr[2*l.units+u] = dcVal * ig * (1 - cg*cg)
				dr[3*l.units+u] = dh.Data[k] * tanhC * og * (1 - og)

				dc.Data[k] = dcVal * fg
			}
		}

		matmulTransA(l.steps[t], dz, tmpW, l.workers)
		for i := range tmpW.Data {
			l.dW.Data[i] += tmpW.Data[i]
		}
		matmulTransA(l.hidden[t], dz, tmpU, l.workers)
		for i := range tmpU.Data {
			l.dU.Data[i] += tmpU.Data[i]
		}
		for b := 0; b < batchSize; b++ {
			for i := 0; i < u4; i++ {
				l.db.Data[i] += dz.Data[b*u4+i]
			}
		}

		matmulTransB(dz, l.W, dx, l.workers)
		for b := 0; b < batchSize; b++ {
			copy(gradInput.Data[(b*seqLen+t)*l.inputDim:(b*seqLen+t+1)*l.inputDim], dx.Data[b*l.inputDim:(b+1)*l.inputDim])
		}

		matmulTransB(dz, l.U, dhPrev, l.workers)
		copy(dh.Data, dhPrev.Data)
	}

	return gradInput, nil
}

func (l *LSTMLayer) parameters() []*Tensor { return []*Tensor{l.W, l.U, l.b} }
func (l *LSTMLayer) gradients() []*Tensor  { return []*Tensor{l.dW, l.dU, l.db} }
func (l *LSTMLayer) outputShape() []int    { return []int{l.units} }
func (l *LSTMLayer) name() string          { return "lstm" }
