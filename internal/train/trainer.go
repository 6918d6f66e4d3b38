// Package train fits the kart classification head on a frozen feature
// extractor and evaluates trained classifiers on labelled directories.
package train

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"kartd/internal/model"
	"kartd/internal/vision"
)

// Config holds the training hyperparameters.
type Config struct {
	Labels       []string
	Epochs       int
	BatchSize    int
	HiddenUnits  int
	Dropout      float64
	LearningRate float64
	// Patience is the early-stopping patience on validation accuracy.
	Patience int
	// InputSize is the square image size fed to the backbone.
	InputSize int
	Augment   Augmenter
	// NoAugment disables Augment.
	NoAugment bool
	// Seed makes shuffling, initialisation, augmentation and dropout
	// reproducible. Zero seeds from the clock.
	Seed   uint64
	Logger *zerolog.Logger
}

// DefaultConfig returns the reference hyperparameters: batch 4, 10 epochs,
// Dense(512) with dropout 0.5, Adam(1e-4) and patience 3.
func DefaultConfig(labels []string) Config {
	return Config{
		Labels:       append([]string(nil), labels...),
		Epochs:       10,
		BatchSize:    4,
		HiddenUnits:  512,
		Dropout:      0.5,
		LearningRate: 1e-4,
		Patience:     3,
		InputSize:    vision.InputSize,
		Augment:      DefaultAugmenter(),
	}
}

func (c Config) validate() error {
	switch {
	case len(c.Labels) == 0:
		return errors.New("no labels")
	case c.Epochs <= 0 || c.BatchSize <= 0 || c.HiddenUnits <= 0:
		return fmt.Errorf("epochs, batch size and hidden units must be positive (%d, %d, %d)", c.Epochs, c.BatchSize, c.HiddenUnits)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0,1), got %v", c.Dropout)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %v", c.LearningRate)
	}
	return nil
}

// ImageLoader reads a sample from disk.
type ImageLoader func(path string) (image.Image, error)

// Trainer fits a model.Head on features from a frozen backbone.
type Trainer struct {
	cfg      Config
	backbone model.FeatureExtractor
	load     ImageLoader
	rng      *rand.Rand
	log      zerolog.Logger
}

// Result is a trained head and its history.
type Result struct {
	Head    *model.Head
	History History
	// TrainSamples and ValSamples count the images seen per epoch.
	TrainSamples int
	ValSamples   int
	Duration     time.Duration
}

// NewTrainer builds a trainer. The backbone stays owned by the caller.
func NewTrainer(cfg Config, backbone model.FeatureExtractor) (*Trainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if backbone == nil {
		return nil, errors.New("nil backbone")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = vision.InputSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	t := &Trainer{
		cfg:      cfg,
		backbone: backbone,
		load:     LoadImage,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:      zerolog.Nop(),
	}
	if cfg.Logger != nil {
		t.log = *cfg.Logger
	}
	return t, nil
}

// SetImageLoader replaces the loader used to read samples.
func (t *Trainer) SetImageLoader(l ImageLoader) { t.load = l }

// Fit trains on ds.Train and monitors ds.Val. Validation features are
// extracted once since the backbone is frozen.
func (t *Trainer) Fit(ctx context.Context, ds *Dataset) (*Result, error) {
	start := time.Now()
	if len(ds.Labels) != len(t.cfg.Labels) {
		return nil, fmt.Errorf("dataset has %d labels, trainer %d", len(ds.Labels), len(t.cfg.Labels))
	}
	if len(ds.Train) == 0 {
		return nil, errors.New("no training samples")
	}
	classes := len(t.cfg.Labels)

	valX, valY, err := t.features(ctx, ds.Val, classes, false)
	if err != nil {
		return nil, fmt.Errorf("validation features: %w", err)
	}

	head := model.NewHead(t.backbone.Dim(), t.cfg.HiddenUnits, classes, t.rng)
	opt := NewAdam(t.cfg.LearningRate)
	stopper := NewEarlyStopping(t.cfg.Patience)
	hist := History{HasValidation: len(ds.Val) > 0}

	order := append([]Sample(nil), ds.Train...)
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		correct := 0
		for _, batch := range Batches(order, t.cfg.BatchSize) {
			X, Y, err := t.features(ctx, batch, classes, !t.cfg.NoAugment)
			if err != nil {
				return nil, err
			}
			loss, c, g := trainStep(head, X, Y, t.cfg.Dropout, t.rng)
			opt.Step(params(head), g.flat())
			lossSum += loss * float64(len(batch))
			correct += c
		}
		m := EpochMetrics{
			Epoch:    epoch + 1,
			Loss:     lossSum / float64(len(order)),
			Accuracy: float64(correct) / float64(len(order)),
		}
		if valX != nil {
			probs := head.ForwardBatch(valX)
			vl, vc := crossEntropy(probs, valY)
			m.ValLoss = vl
			m.ValAccuracy = float64(vc) / float64(len(ds.Val))
		}
		hist.Epochs = append(hist.Epochs, m)
		t.log.Info().
			Int("epoch", m.Epoch).
			Int("epochs", t.cfg.Epochs).
			Float64("loss", m.Loss).
			Float64("accuracy", m.Accuracy).
			Float64("val_loss", m.ValLoss).
			Float64("val_accuracy", m.ValAccuracy).
			Msg("epoch complete")

		if hist.HasValidation && stopper.Observe(epoch, m.ValAccuracy, head) {
			hist.StoppedEarly = true
			t.log.Info().Int("epoch", m.Epoch).Msg("early stopping, restored best weights")
			break
		}
	}
	if hist.HasValidation {
		_, best := stopper.Best()
		hist.BestEpoch = best + 1
	} else {
		hist.BestEpoch = len(hist.Epochs)
	}
	return &Result{
		Head:         head,
		History:      hist,
		TrainSamples: len(ds.Train),
		ValSamples:   len(ds.Val),
		Duration:     time.Since(start),
	}, nil
}

// features loads, optionally augments and embeds samples, returning the
// feature matrix and one-hot targets. Both are nil for no samples.
func (t *Trainer) features(ctx context.Context, samples []Sample, classes int, augment bool) (*mat.Dense, *mat.Dense, error) {
	if len(samples) == 0 {
		return nil, nil, nil
	}
	rows := make([][]float32, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		img, err := t.load(s.Path)
		if err != nil {
			return nil, nil, err
		}
		if augment {
			img = t.cfg.Augment.Apply(img, t.cfg.InputSize, t.rng)
		}
		f, err := t.backbone.Extract(ctx, vision.PreprocessSize(img, t.cfg.InputSize))
		if err != nil {
			return nil, nil, fmt.Errorf("extract %s: %w", s.Path, err)
		}
		if len(f) != t.backbone.Dim() {
			return nil, nil, fmt.Errorf("extract %s: got %d features, want %d", s.Path, len(f), t.backbone.Dim())
		}
		rows[i] = f
		labels[i] = s.Class
	}
	return featureMatrix(rows), oneHot(labels, classes), nil
}

// Batches splits samples into consecutive batches of at most size; the last
// batch may be short.
func Batches(samples []Sample, size int) [][]Sample {
	var out [][]Sample
	for i := 0; i < len(samples); i += size {
		out = append(out, samples[i:min(i+size, len(samples))])
	}
	return out
}
