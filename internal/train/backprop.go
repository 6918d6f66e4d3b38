package train

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"kartd/internal/model"
)

// crossEntropyEps clips probabilities before the log.
const crossEntropyEps = 1e-7

// gradients holds dLoss/dParam for every head parameter.
type gradients struct {
	W1 *mat.Dense
	B1 []float64
	W2 *mat.Dense
	B2 []float64
}

// params returns the head's parameters as flat slices, in the order used
// by gradients.flat. The slices alias the head's storage.
func params(h *model.Head) [][]float64 {
	return [][]float64{h.W1.RawMatrix().Data, h.B1, h.W2.RawMatrix().Data, h.B2}
}

func (g *gradients) flat() [][]float64 {
	return [][]float64{g.W1.RawMatrix().Data, g.B1, g.W2.RawMatrix().Data, g.B2}
}

// trainStep runs forward and backward passes over the batch X (batch ×
// features) with one-hot targets Y, applying inverted dropout with rate p
// after the hidden layer. It returns the mean loss, the number of correct
// predictions and the gradients.
func trainStep(h *model.Head, X, Y *mat.Dense, p float64, rng *rand.Rand) (float64, int, *gradients) {
	n, _ := X.Dims()

	var z1 mat.Dense
	z1.Mul(X, h.W1.T())
	model.AddRowVector(&z1, h.B1)

	// a = relu(z1) ∘ mask, where mask entries are 0 or 1/(1-p).
	rows, hidden := z1.Dims()
	mask := mat.NewDense(rows, hidden, nil)
	a := mat.NewDense(rows, hidden, nil)
	keep := 1 - p
	for i := 0; i < rows; i++ {
		for j := 0; j < hidden; j++ {
			m := 1.0
			if p > 0 {
				m = 0
				if rng.Float64() < keep {
					m = 1 / keep
				}
			}
			mask.Set(i, j, m)
			a.Set(i, j, math.Max(0, z1.At(i, j))*m)
		}
	}

	var probs mat.Dense
	probs.Mul(a, h.W2.T())
	model.AddRowVector(&probs, h.B2)
	model.SoftmaxRows(&probs)

	loss, correct := crossEntropy(&probs, Y)

	// dZ2 = (P - Y) / n
	var dz2 mat.Dense
	dz2.Sub(&probs, Y)
	dz2.Scale(1/float64(n), &dz2)

	g := &gradients{}
	g.W2 = &mat.Dense{}
	g.W2.Mul(dz2.T(), a)
	g.B2 = colSums(&dz2)

	var dz1 mat.Dense
	dz1.Mul(&dz2, h.W2)
	dz1.Apply(func(i, j int, v float64) float64 {
		if z1.At(i, j) <= 0 {
			return 0
		}
		return v * mask.At(i, j)
	}, &dz1)

	g.W1 = &mat.Dense{}
	g.W1.Mul(dz1.T(), X)
	g.B1 = colSums(&dz1)
	return loss, correct, g
}

// crossEntropy returns the mean categorical cross-entropy of probs against
// one-hot targets and the number of rows whose argmax matches.
func crossEntropy(probs, Y *mat.Dense) (float64, int) {
	n, c := probs.Dims()
	var loss float64
	correct := 0
	for i := 0; i < n; i++ {
		pred, target := 0, 0
		for j := 0; j < c; j++ {
			p := math.Min(math.Max(probs.At(i, j), crossEntropyEps), 1-crossEntropyEps)
			if y := Y.At(i, j); y != 0 {
				loss -= y * math.Log(p)
			}
			if probs.At(i, j) > probs.At(i, pred) {
				pred = j
			}
			if Y.At(i, target) < Y.At(i, j) {
				target = j
			}
		}
		if pred == target {
			correct++
		}
	}
	return loss / float64(n), correct
}

func colSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i) {
			out[j] += v
		}
	}
	return out
}

// oneHot builds the n × classes target matrix.
func oneHot(classes []int, n int) *mat.Dense {
	Y := mat.NewDense(len(classes), n, nil)
	for i, c := range classes {
		Y.Set(i, c, 1)
	}
	return Y
}

// featureMatrix stacks feature vectors into a batch × features matrix.
func featureMatrix(rows [][]float32) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	X := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		dst := X.RawRowView(i)
		for j, v := range r {
			dst[j] = float64(v)
		}
	}
	return X
}
