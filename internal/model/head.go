package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Head is the trainable classification head: Dense(ReLU) → Dropout →
// Dense(softmax). Dropout is only active during training and has no
// parameters.
type Head struct {
	W1 *mat.Dense // hidden × features
	B1 []float64  // hidden
	W2 *mat.Dense // classes × hidden
	B2 []float64  // classes
}

// NewHead allocates a head with Glorot-uniform weights and zero biases.
func NewHead(features, hidden, classes int, rng *rand.Rand) *Head {
	return &Head{
		W1: glorotUniform(hidden, features, rng),
		B1: make([]float64, hidden),
		W2: glorotUniform(classes, hidden, rng),
		B2: make([]float64, classes),
	}
}

func glorotUniform(rows, cols int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(rows, cols, data)
}

// Dims returns the feature, hidden and class counts.
func (h *Head) Dims() (features, hidden, classes int) {
	hidden, features = h.W1.Dims()
	classes, _ = h.W2.Dims()
	return features, hidden, classes
}

// Clone returns a deep copy.
func (h *Head) Clone() *Head {
	return &Head{
		W1: mat.DenseCopyOf(h.W1),
		B1: append([]float64(nil), h.B1...),
		W2: mat.DenseCopyOf(h.W2),
		B2: append([]float64(nil), h.B2...),
	}
}

// Forward returns the class distribution for one feature vector.
func (h *Head) Forward(features []float32) []float64 {
	x := make([]float64, len(features))
	for i, v := range features {
		x[i] = float64(v)
	}
	X := mat.NewDense(1, len(x), x)
	return h.ForwardBatch(X).RawRowView(0)
}

// ForwardBatch returns a batch×classes matrix of distributions for the
// batch×features matrix X, with dropout disabled.
func (h *Head) ForwardBatch(X *mat.Dense) *mat.Dense {
	var z1 mat.Dense
	z1.Mul(X, h.W1.T())
	AddRowVector(&z1, h.B1)
	z1.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, &z1)

	var z2 mat.Dense
	z2.Mul(&z1, h.W2.T())
	AddRowVector(&z2, h.B2)
	SoftmaxRows(&z2)
	return &z2
}

// AddRowVector adds v to every row of m.
func AddRowVector(m *mat.Dense, v []float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := range row {
			row[j] += v[j]
		}
	}
}

// SoftmaxRows replaces each row of m with its softmax.
func SoftmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		hi := math.Inf(-1)
		for _, v := range row {
			hi = math.Max(hi, v)
		}
		var sum float64
		for j, v := range row {
			row[j] = math.Exp(v - hi)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
}
