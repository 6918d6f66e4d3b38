package model

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"kartd/internal/vision"
	"kartd/pkg/types"
)

type fakeBackbone struct {
	dim    int
	feats  []float32
	err    error
	closed bool
}

func (b *fakeBackbone) Extract(ctx context.Context, t vision.Tensor) ([]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.feats, nil
}
func (b *fakeBackbone) Dim() int     { return b.dim }
func (b *fakeBackbone) Close() error { b.closed = true; return nil }

func testArtifact(rng *rand.Rand) *Artifact {
	return &Artifact{
		Header: ArtifactHeader{
			Labels:    types.DefaultLabels(),
			InputSize: vision.InputSize,
			Backbone:  "resnet50_notop.onnx",
			RunID:     "run-1",
		},
		Head: NewHead(6, 4, 3, rng),
	}
}

func TestArgmax(t *testing.T) {
	idx, v := Argmax([]float32{0.1, 0.7, 0.2})
	assert.Equal(t, 1, idx)
	assert.InDelta(t, 0.7, v, 1e-6)

	idx, _ = Argmax(nil)
	assert.Equal(t, -1, idx)

	idx, _ = Argmax([]float32{0.5, 0.5})
	assert.Equal(t, 0, idx, "ties resolve to the first index")
}

func TestHeadForward_IsADistribution(t *testing.T) {
	h := NewHead(6, 4, 3, rand.New(rand.NewPCG(1, 2)))
	probs := h.Forward([]float32{1, -2, 0.5, 3, 0, 0.25})
	require.Len(t, probs, 3)
	var sum float64
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestHeadForward_KnownWeights(t *testing.T) {
	h := &Head{
		W1: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		B1: []float64{0, 0},
		W2: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		B2: []float64{0, 0},
	}
	// ReLU zeroes the negative feature: logits (1, 0).
	probs := h.Forward([]float32{1, -5})
	want := math.E / (math.E + 1)
	assert.InDelta(t, want, probs[0], 1e-9)
	assert.InDelta(t, 1-want, probs[1], 1e-9)
}

func TestSoftmaxRows_LargeLogitsStayFinite(t *testing.T) {
	m := mat.NewDense(1, 3, []float64{1000, 1001, 999})
	SoftmaxRows(m)
	row := m.RawRowView(0)
	for _, v := range row {
		assert.False(t, math.IsNaN(v))
	}
	assert.Greater(t, row[1], row[0])
}

func TestHeadClone_IsDeep(t *testing.T) {
	h := NewHead(3, 2, 2, rand.New(rand.NewPCG(3, 4)))
	c := h.Clone()
	c.W1.Set(0, 0, 42)
	c.B2[0] = 7
	assert.NotEqual(t, 42.0, h.W1.At(0, 0))
	assert.NotEqual(t, 7.0, h.B2[0])
}

func TestArtifact_RoundTrip(t *testing.T) {
	a := testArtifact(rand.New(rand.NewPCG(5, 6)))
	var buf bytes.Buffer
	require.NoError(t, EncodeArtifact(&buf, a))

	got, err := DecodeArtifact(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, ArtifactVersion, got.Header.Version)
	assert.Equal(t, a.Header.Labels, got.Header.Labels)
	assert.Equal(t, 6, got.Header.FeatureDim)
	assert.Equal(t, 4, got.Header.HiddenDim)
	assert.Equal(t, "run-1", got.Header.RunID)
	// weights are stored as float32
	assert.True(t, mat.EqualApprox(a.Head.W1, got.Head.W1, 1e-6))
	assert.True(t, mat.EqualApprox(a.Head.W2, got.Head.W2, 1e-6))
	assert.InDeltaSlice(t, a.Head.B1, got.Head.B1, 1e-6)
	assert.InDeltaSlice(t, a.Head.B2, got.Head.B2, 1e-6)
}

func TestDecodeArtifact_Rejects(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeArtifact(&buf, testArtifact(rand.New(rand.NewPCG(7, 8)))))
	good := buf.Bytes()

	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("NOPE"), good[4:]...),
		"truncated": good[:len(good)-3],
		"trailing":  append(append([]byte(nil), good...), 0),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeArtifact(bytes.NewReader(b))
			assert.Error(t, err)
		})
	}
}

func TestEncodeArtifact_LabelMismatch(t *testing.T) {
	a := testArtifact(rand.New(rand.NewPCG(9, 10)))
	a.Header.Labels = []string{"only-one"}
	assert.Error(t, EncodeArtifact(&bytes.Buffer{}, a))
}

func TestWriteAndReadArtifact(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model", "kart.kart")
	a := testArtifact(rand.New(rand.NewPCG(11, 12)))
	require.NoError(t, WriteArtifact(p, a))

	got, err := ReadArtifact(p)
	require.NoError(t, err)
	assert.Equal(t, a.Header.Backbone, got.Header.Backbone)
}

func TestHeadClassifier(t *testing.T) {
	a := testArtifact(rand.New(rand.NewPCG(13, 14)))
	bb := &fakeBackbone{dim: 6, feats: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}
	clf, err := NewHeadClassifier(bb, a)
	require.NoError(t, err)

	dist, err := clf.Predict(context.Background(), vision.Tensor{})
	require.NoError(t, err)
	require.Len(t, dist, 3)
	assert.Equal(t, types.KartTypes, clf.Labels())

	bb.feats = []float32{1}
	_, err = clf.Predict(context.Background(), vision.Tensor{})
	assert.Error(t, err, "feature length mismatch")

	bb.err = errors.New("boom")
	_, err = clf.Predict(context.Background(), vision.Tensor{})
	assert.EqualError(t, err, "boom")

	require.NoError(t, clf.Close())
	assert.True(t, bb.closed)
}

func TestNewHeadClassifier_DimMismatch(t *testing.T) {
	a := testArtifact(rand.New(rand.NewPCG(15, 16)))
	_, err := NewHeadClassifier(&fakeBackbone{dim: 2048}, a)
	assert.Error(t, err)
}

func TestGlobalAveragePool(t *testing.T) {
	// 2×1 spatial map, 2 channels
	out := GlobalAveragePool([]float32{1, 10, 3, 30}, 2, 1, 2)
	assert.Equal(t, []float32{2, 20}, out)
}

func TestOpen_Errors(t *testing.T) {
	d := t.TempDir()

	_, err := Open(filepath.Join(d, "missing.kart"), Options{})
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	txt := filepath.Join(d, "model.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = Open(txt, Options{})
	assert.ErrorContains(t, err, "unsupported")

	onnx := filepath.Join(d, "model.onnx")
	require.NoError(t, os.WriteFile(onnx, []byte("x"), 0o644))
	_, err = Open(onnx, Options{})
	assert.ErrorContains(t, err, "no labels")

	corrupt := filepath.Join(d, "corrupt.kart")
	require.NoError(t, os.WriteFile(corrupt, []byte("garbage"), 0o644))
	_, err = Open(corrupt, Options{})
	assert.Error(t, err)

	// a valid artifact whose backbone is missing never reaches onnxruntime
	kart := filepath.Join(d, "kart.kart")
	require.NoError(t, WriteArtifact(kart, testArtifact(rand.New(rand.NewPCG(17, 18)))))
	_, err = Loader(Options{})(kart)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestConcreteShape(t *testing.T) {
	assert.Equal(t, []int64{1, 224, 224, 3}, []int64(concreteShape([]int64{-1, -1, -1, 3}, 224)))
	assert.Equal(t, []int64{1, 3}, []int64(concreteShape([]int64{-1, 3}, 0)))
}

func TestCheckNHWC(t *testing.T) {
	assert.NoError(t, checkNHWC(concreteShape([]int64{-1, -1, -1, 3}, 224)))
	assert.NoError(t, checkNHWC([]int64{1, 224, 224, 3}))

	// A channels-first export has the same element count.
	err := checkNHWC(concreteShape([]int64{-1, 3, 224, 224}, 224))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not NHWC")
	assert.Error(t, checkNHWC([]int64{1, 150528}))
}
