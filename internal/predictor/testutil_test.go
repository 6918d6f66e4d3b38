package predictor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"kartd/internal/model"
	"kartd/internal/vision"
	"kartd/pkg/types"
)

// fakeClassifier returns a fixed distribution.
type fakeClassifier struct {
	labels []string
	dist   []float32
	err    error
	panics bool

	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *fakeClassifier) Predict(ctx context.Context, t vision.Tensor) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Len() != vision.InputSize*vision.InputSize*vision.Channels {
		return nil, errors.New("unexpected tensor size")
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.dist...), nil
}

func (f *fakeClassifier) Labels() []string { return f.labels }

func (f *fakeClassifier) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClassifier) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// countingLoader returns cls (or err) and counts invocations.
type countingLoader struct {
	n   atomic.Int32
	cls model.Classifier
	err error
}

func (l *countingLoader) load(string) (model.Classifier, error) {
	l.n.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.cls, nil
}

func newFake(dist ...float32) *fakeClassifier {
	return &fakeClassifier{labels: types.DefaultLabels(), dist: dist}
}

func seeded() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func testImageB64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 4), B: 10, A: 255})
		}
	}
	s, err := vision.EncodePNGBase64(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return s
}

func float32Nan() float32 { return float32(math.NaN()) }
