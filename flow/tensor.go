package flow

import (
	"math"
	"math/rand"
)

// Tensor is a dense row-major array. Layers own their parameter and gradient
// tensors; activations are allocated per forward pass.
type Tensor struct {
	Data   []float64
	Shape  []int
	stride []int
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		if s <= 0 {
			s = 1 // Ensure non-zero size
		}
		size *= s
	}
	stride := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		if i == len(shape)-1 {
			stride[i] = 1
		} else {
			stride[i] = stride[i+1] * shape[i+1]
		}
	}
	return &Tensor{
		Data:   make([]float64, size),
		Shape:  append([]int(nil), shape...),
		stride: stride,
	}
}

// FromRows copies a rectangular matrix into a [len(rows), len(rows[0])] tensor.
func FromRows(rows [][]float64) *Tensor {
	if len(rows) == 0 {
		return NewTensor(0, 0)
	}
	cols := len(rows[0])
	t := NewTensor(len(rows), cols)
	for i, row := range rows {
		copy(t.Data[i*cols:(i+1)*cols], row)
	}
	return t
}

// Rows returns a copy of a 2-D tensor as a slice of rows.
func (t *Tensor) Rows() [][]float64 {
	if len(t.Shape) != 2 {
		return nil
	}
	n, cols := t.Shape[0], t.Shape[1]
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, cols)
		copy(out[i], t.Data[i*cols:(i+1)*cols])
	}
	return out
}

// Row returns a view of row i of a 2-D tensor.
func (t *Tensor) Row(i int) []float64 {
	cols := t.Shape[1]
	return t.Data[i*cols : (i+1)*cols]
}

// Size is the number of elements.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float64 {
	idx := 0
	for i, v := range indices {
		idx += v * t.stride[i]
	}
	return t.Data[idx]
}

// Set writes the element at the given indices.
func (t *Tensor) Set(value float64, indices ...int) {
	idx := 0
	for i, v := range indices {
		idx += v * t.stride[i]
	}
	t.Data[idx] = value
}

// Fill sets every element to value.
func (t *Tensor) Fill(value float64) {
	for i := range t.Data {
		t.Data[i] = value
	}
}

// Zero resets every element to 0.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	nt := NewTensor(t.Shape...)
	copy(nt.Data, t.Data)
	return nt
}

func (t *Tensor) fillRandNorm(mean, std float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()*std + mean
	}
}

func (t *Tensor) fillRandUniform(low, high float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = rng.Float64()*(high-low) + low
	}
}

// Checksum folds every value of every tensor into one number. Any single
// parameter update changes it.
func Checksum(tensors []*Tensor) float64 {
	sum := 0.0
	for ti, t := range tensors {
		for i, v := range t.Data {
			sum += v * float64((ti+1)*31+i+1)
		}
	}
	return sum
}

// Matrix operations, rows fanned out over workers. No bounds checking.
func matmul(a, b, out *Tensor, workers int) {
	m := a.Shape[0]
	k := a.Shape[1]
	n := b.Shape[1]

	forEach(m, workers, func(i int) {
		for j := 0; j < n; j++ {
			sum := 0.0
			for l := 0; l < k; l++ {
				sum += a.Data[i*k+l] * b.Data[l*n+j]
			}
			out.Data[i*n+j] = sum
		}
	})
}

// out = a^T @ b
func matmulTransA(a, b, out *Tensor, workers int) {
	m := a.Shape[1]
	k := a.Shape[0]
	n := b.Shape[1]

	forEach(m, workers, func(i int) {
		for j := 0; j < n; j++ {
			sum := 0.0
			for l := 0; l < k; l++ {
				sum += a.Data[l*m+i] * b.Data[l*n+j]
			}
			out.Data[i*n+j] = sum
		}
	})
}

// out = a @ b^T
func matmulTransB(a, b, out *Tensor, workers int) {
	m := a.Shape[0]
	k := a.Shape[1]
	n := b.Shape[0]

	forEach(m, workers, func(i int) {
		for j := 0; j < n; j++ {
			sum := 0.0
			for l := 0; l < k; l++ {
				sum += a.Data[i*k+l] * b.Data[j*k+l]
			}
			out.Data[i*n+j] = sum
		}
	})
}

func addVec(a *Tensor, b *Tensor) {
	for i := range a.Data {
		a.Data[i] += b.Data[i%len(b.Data)]
	}
}

func mulScalar(a *Tensor, s float64) {
	for i := range a.Data {
		a.Data[i] *= s
	}
}

func elemMul(a, b, out *Tensor) {
	for i := range a.Data {
		out.Data[i] = a.Data[i] * b.Data[i]
	}
}

func sumAxis0(a *Tensor, out *Tensor) {
	rows := a.Shape[0]
	cols := a.Shape[1]
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += a.Data[i*cols+j]
		}
		out.Data[j] = sum
	}
}

func l2Norm(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func sameShape(expected, got []int) bool {
	if len(expected) != len(got) {
		return false
	}
	for i := range expected {
		if expected[i] != got[i] {
			return false
		}
	}
	return true
}
