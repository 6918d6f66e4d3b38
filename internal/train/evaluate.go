package train

import (
	"context"
	"errors"
	"fmt"
	"math"

	"kartd/internal/model"
	"kartd/internal/vision"
	"kartd/pkg/types"
)

// Evaluate runs cls over every image in <dir>/<label>/ without augmentation
// and reports mean categorical cross-entropy and accuracy. Failures are
// reported in the result rather than returned.
func Evaluate(ctx context.Context, cls model.Classifier, dir string, labels []string) types.EvaluationResult {
	m, err := evaluate(ctx, cls, dir, labels, LoadImage)
	if err != nil {
		return types.EvaluationResult{Success: false, Error: err.Error()}
	}
	return types.EvaluationResult{Success: true, Metrics: m}
}

func evaluate(ctx context.Context, cls model.Classifier, dir string, labels []string, load ImageLoader) (*types.EvalMetrics, error) {
	if cls == nil {
		return nil, errors.New("no classifier")
	}
	if len(labels) == 0 {
		labels = cls.Labels()
	}
	samples, err := ScanAll(dir, labels)
	if err != nil {
		return nil, err
	}
	var loss float64
	correct := 0
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := load(s.Path)
		if err != nil {
			return nil, err
		}
		dist, err := cls.Predict(ctx, vision.Preprocess(img))
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", s.Path, err)
		}
		if len(dist) != len(labels) {
			return nil, fmt.Errorf("predict %s: got %d scores for %d labels", s.Path, len(dist), len(labels))
		}
		p := math.Min(math.Max(float64(dist[s.Class]), crossEntropyEps), 1-crossEntropyEps)
		loss -= math.Log(p)
		if idx, _ := model.Argmax(dist); idx == s.Class {
			correct++
		}
	}
	n := len(samples)
	return &types.EvalMetrics{
		Loss:     loss / float64(n),
		Accuracy: float64(correct) / float64(n),
		Samples:  n,
	}, nil
}
