package model

import (
	"context"
	"errors"
	"fmt"

	"kartd/internal/vision"
)

// HeadClassifier chains a frozen feature extractor with a trained Head.
type HeadClassifier struct {
	backbone FeatureExtractor
	head     *Head
	labels   []string
}

// NewHeadClassifier checks that the backbone and the artifact agree on the
// feature dimension. The classifier takes ownership of backbone.
func NewHeadClassifier(backbone FeatureExtractor, a *Artifact) (*HeadClassifier, error) {
	if backbone == nil || a == nil || a.Head == nil {
		return nil, errors.New("head classifier needs a backbone and an artifact")
	}
	if f, _, _ := a.Head.Dims(); backbone.Dim() != f {
		return nil, fmt.Errorf("backbone produces %d features but head expects %d", backbone.Dim(), f)
	}
	return &HeadClassifier{
		backbone: backbone,
		head:     a.Head,
		labels:   append([]string(nil), a.Header.Labels...),
	}, nil
}

// Predict extracts features from t and runs the head.
func (c *HeadClassifier) Predict(ctx context.Context, t vision.Tensor) ([]float32, error) {
	feats, err := c.backbone.Extract(ctx, t)
	if err != nil {
		return nil, err
	}
	if f, _, _ := c.head.Dims(); len(feats) != f {
		return nil, fmt.Errorf("feature length %d, want %d", len(feats), f)
	}
	probs := c.head.Forward(feats)
	out := make([]float32, len(probs))
	for i, p := range probs {
		out[i] = float32(p)
	}
	return out, nil
}

// Labels returns the label set stored in the artifact.
func (c *HeadClassifier) Labels() []string { return append([]string(nil), c.labels...) }

// Close releases the backbone.
func (c *HeadClassifier) Close() error { return c.backbone.Close() }
