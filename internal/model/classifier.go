// Package model loads trained kart classifiers and runs them.
//
// Two artifact formats are supported, selected by file extension:
//
//   - .onnx: a complete classifier graph; its single output is the softmax
//     distribution over the label set.
//   - .kart: the format written by the trainer. It stores the label set and a
//     dense classification head, and points at an ONNX feature extractor
//     (the frozen backbone) relative to the artifact file.
package model

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"kartd/internal/common/fsutil"
	"kartd/internal/vision"
)

// ErrArtifactNotFound is wrapped by Open when the artifact file is missing.
var ErrArtifactNotFound = errors.New("model artifact not found")

// Classifier maps a normalised image tensor to a probability distribution
// over Labels().
type Classifier interface {
	Predict(ctx context.Context, t vision.Tensor) ([]float32, error)
	Labels() []string
	Close() error
}

// LoadFunc opens the classifier stored at path.
type LoadFunc func(path string) (Classifier, error)

// Options configure Open.
type Options struct {
	// Labels used for .onnx artifacts, which carry no label metadata.
	Labels []string
	// RuntimeLibrary is the onnxruntime shared library path. Empty uses the
	// platform default lookup.
	RuntimeLibrary string
}

// Loader returns a LoadFunc bound to opts.
func Loader(opts Options) LoadFunc {
	return func(path string) (Classifier, error) { return Open(path, opts) }
}

// Open loads the artifact at path.
func Open(path string, opts Options) (Classifier, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if !fsutil.IsRegularFile(p) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, p)
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".onnx":
		if len(opts.Labels) == 0 {
			return nil, fmt.Errorf("onnx classifier %s: no labels configured", p)
		}
		if err := InitRuntime(opts.RuntimeLibrary); err != nil {
			return nil, err
		}
		return OpenONNX(p, opts.Labels)
	case ".kart":
		art, err := ReadArtifact(p)
		if err != nil {
			return nil, err
		}
		backbonePath := fsutil.Resolve(filepath.Dir(p), art.Header.Backbone)
		if !fsutil.IsRegularFile(backbonePath) {
			return nil, fmt.Errorf("%w: backbone %s", ErrArtifactNotFound, backbonePath)
		}
		if err := InitRuntime(opts.RuntimeLibrary); err != nil {
			return nil, err
		}
		bb, err := OpenBackbone(backbonePath, art.Header.InputSize)
		if err != nil {
			return nil, err
		}
		clf, err := NewHeadClassifier(bb, art)
		if err != nil {
			_ = bb.Close()
			return nil, err
		}
		return clf, nil
	default:
		return nil, fmt.Errorf("unsupported model artifact extension %q", ext)
	}
}

// Argmax returns the index and value of the largest element of dist.
// It returns -1 for an empty slice.
func Argmax(dist []float32) (int, float32) {
	if len(dist) == 0 {
		return -1, 0
	}
	idx, best := 0, dist[0]
	for i, v := range dist[1:] {
		if v > best {
			idx, best = i+1, v
		}
	}
	return idx, best
}

// checkInput verifies a tensor matches the element count a session expects.
func checkInput(t vision.Tensor, want int64) error {
	if int64(len(t.Data)) != want || int64(t.Len()) != want {
		return fmt.Errorf("input shape mismatch: got %v (%d values), want %d values", t.Shape, len(t.Data), want)
	}
	return nil
}
