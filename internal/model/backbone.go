package model

import (
	"context"
	"fmt"

	"kartd/internal/vision"
)

// FeatureExtractor is a frozen network mapping an image tensor to a flat
// feature vector.
type FeatureExtractor interface {
	Extract(ctx context.Context, t vision.Tensor) ([]float32, error)
	Dim() int
	Close() error
}

// OnnxBackbone is a FeatureExtractor backed by an ONNX graph such as
// ResNet50 without its top. A rank-4 NHWC output is reduced with global
// average pooling; a rank-2 output is used as is.
type OnnxBackbone struct {
	sess  *session
	inLen int64
	// spatial dims of the output map; zero when the output is already flat
	h, w int
	dim  int
}

// OpenBackbone creates a session for the feature extractor at path.
func OpenBackbone(path string, inputSize int) (*OnnxBackbone, error) {
	if inputSize <= 0 {
		inputSize = vision.InputSize
	}
	s, err := newSession(path, inputSize)
	if err != nil {
		return nil, err
	}
	b := &OnnxBackbone{sess: s, inLen: shapeLen(s.inputShape())}
	switch out := s.outputShape(); len(out) {
	case 2:
		b.dim = int(out[1])
	case 4:
		b.h, b.w, b.dim = int(out[1]), int(out[2]), int(out[3])
	default:
		_ = s.close()
		return nil, fmt.Errorf("%s: unsupported backbone output shape %v", path, out)
	}
	return b, nil
}

// Extract runs the backbone and pools its output.
func (b *OnnxBackbone) Extract(ctx context.Context, t vision.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInput(t, b.inLen); err != nil {
		return nil, err
	}
	out, err := b.sess.run(t.Data)
	if err != nil {
		return nil, err
	}
	if b.h == 0 {
		return out, nil
	}
	return GlobalAveragePool(out, b.h, b.w, b.dim), nil
}

// Dim is the length of the feature vector.
func (b *OnnxBackbone) Dim() int { return b.dim }

// Close releases the session.
func (b *OnnxBackbone) Close() error { return b.sess.close() }

// GlobalAveragePool averages an h×w×c (HWC) map over its spatial axes.
func GlobalAveragePool(data []float32, h, w, c int) []float32 {
	out := make([]float32, c)
	acc := make([]float64, c)
	for i := 0; i < h*w; i++ {
		px := data[i*c : (i+1)*c]
		for j, v := range px {
			acc[j] += float64(v)
		}
	}
	n := float64(h * w)
	for j := range acc {
		out[j] = float32(acc[j] / n)
	}
	return out
}
