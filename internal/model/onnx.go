package model

import (
	"context"
	"fmt"

	"kartd/internal/vision"
)

// OnnxClassifier runs a complete classifier graph.
type OnnxClassifier struct {
	sess   *session
	labels []string
	inLen  int64
}

// OpenONNX creates a session for the classifier at path. The output size
// must match len(labels).
func OpenONNX(path string, labels []string) (*OnnxClassifier, error) {
	s, err := newSession(path, vision.InputSize)
	if err != nil {
		return nil, err
	}
	out := shapeLen(s.outputShape())
	if out != int64(len(labels)) {
		_ = s.close()
		return nil, fmt.Errorf("%s: model has %d outputs but %d labels are configured", path, out, len(labels))
	}
	return &OnnxClassifier{
		sess:   s,
		labels: append([]string(nil), labels...),
		inLen:  shapeLen(s.inputShape()),
	}, nil
}

// Predict runs the graph on t.
func (c *OnnxClassifier) Predict(ctx context.Context, t vision.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInput(t, c.inLen); err != nil {
		return nil, err
	}
	return c.sess.run(t.Data)
}

// Labels returns the label set in class-index order.
func (c *OnnxClassifier) Labels() []string { return append([]string(nil), c.labels...) }

// Close releases the session.
func (c *OnnxClassifier) Close() error { return c.sess.close() }

func shapeLen(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
