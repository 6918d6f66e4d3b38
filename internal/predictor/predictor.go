package predictor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kartd/internal/model"
	"kartd/internal/vision"
	"kartd/pkg/types"
)

// State is the lifecycle state of the cached model.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
	StateClosed   State = "closed"
)

// Predictor turns base64 images into kart predictions.
type Predictor struct {
	modelPath string
	labels    []string
	reload    bool
	loader    model.LoadFunc
	events    EventPublisher
	log       zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// mu guards the cached classifier and lifecycle state. It is held for the
	// whole load so concurrent first requests share a single attempt.
	mu      sync.Mutex
	cls     model.Classifier
	state   State
	lastErr string
	closed  bool

	loads        atomic.Uint64
	loadFailures atomic.Uint64
	predictions  atomic.Uint64
	fallbacks    atomic.Uint64

	startTime time.Time
}

// Labels returns a copy of the label set.
func (p *Predictor) Labels() []string { return append([]string(nil), p.labels...) }

// ModelPath returns the configured artifact path.
func (p *Predictor) ModelPath() string { return p.modelPath }

// Predict runs the full pipeline and wraps the outcome in the response
// envelope returned by POST /predict.
func (p *Predictor) Predict(ctx context.Context, image string) types.PredictResponse {
	return respond(p.Classify(ctx, image))
}

// PredictBytes is Predict for raw, already base64-decoded image bytes.
func (p *Predictor) PredictBytes(ctx context.Context, raw []byte) types.PredictResponse {
	return respond(p.ClassifyBytes(ctx, raw))
}

func respond(pred types.Prediction, err error) types.PredictResponse {
	if err != nil {
		return types.PredictResponse{Success: false, Error: err.Error()}
	}
	return types.PredictResponse{Success: true, Predictions: &pred}
}

// Classify decodes a base64 image (a data URL prefix is accepted) and
// classifies it. The only errors returned are invalid images and
// unexpected internal failures; model problems are answered by the fallback.
func (p *Predictor) Classify(ctx context.Context, image string) (pred types.Prediction, err error) {
	defer recoverInto(&err)
	img, derr := vision.DecodeBase64(image)
	if derr != nil {
		invalidImagesTotal.Inc()
		return types.Prediction{}, invalidImageError{cause: derr}
	}
	return p.classifyImage(ctx, img), nil
}

// ClassifyBytes classifies raw encoded image bytes, as received from a
// multipart upload.
func (p *Predictor) ClassifyBytes(ctx context.Context, raw []byte) (pred types.Prediction, err error) {
	defer recoverInto(&err)
	img, derr := vision.DecodeBytes(raw)
	if derr != nil {
		invalidImagesTotal.Inc()
		return types.Prediction{}, invalidImageError{cause: derr}
	}
	return p.classifyImage(ctx, img), nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%v", r)
	}
}

func (p *Predictor) classifyImage(ctx context.Context, img image.Image) types.Prediction {
	pred, err := p.infer(ctx, img)
	if err == nil {
		p.predictions.Add(1)
		predictionsTotal.WithLabelValues("model", pred.KartType).Inc()
		return pred
	}
	p.recordError(err)
	p.log.Warn().Err(err).Str("model_path", p.modelPath).Msg("model unavailable, using random fallback")
	pred = p.fallback()
	p.fallbacks.Add(1)
	predictionsTotal.WithLabelValues("fallback", pred.KartType).Inc()
	p.events.Publish(Event{Name: EventFallback, ModelPath: p.modelPath, Fields: map[string]any{
		"error":      err.Error(),
		"kart_type":  pred.KartType,
		"confidence": pred.Confidence,
	}})
	return pred
}

// infer runs preprocessing and the classifier. Every failure, panics
// included, comes back as a modelUnavailableError. Inference always runs to
// completion: a cancelled request must not turn into a fallback answer.
func (p *Predictor) infer(ctx context.Context, img image.Image) (pred types.Prediction, err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = modelUnavailableError{path: p.modelPath, cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	cls, release, err := p.acquire()
	if err != nil {
		return types.Prediction{}, modelUnavailableError{path: p.modelPath, cause: err}
	}
	defer release()

	start := time.Now()
	t := vision.Preprocess(img)
	dist, err := cls.Predict(ctx, t)
	inferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return types.Prediction{}, modelUnavailableError{path: p.modelPath, cause: err}
	}
	if err := validDistribution(dist, len(p.labels)); err != nil {
		return types.Prediction{}, modelUnavailableError{path: p.modelPath, cause: err}
	}
	idx, conf := model.Argmax(dist)
	return types.Prediction{KartType: p.labels[idx], Confidence: float64(conf)}, nil
}

func validDistribution(dist []float32, n int) error {
	if len(dist) != n {
		return fmt.Errorf("model returned %d scores for %d labels", len(dist), n)
	}
	for i, v := range dist {
		f := float64(v)
		if math.IsNaN(f) || f < 0 || f > 1 {
			return fmt.Errorf("score %d out of range: %v", i, v)
		}
	}
	return nil
}

// acquire returns a classifier and a release func. In cached mode the
// classifier stays open; with ReloadPerRequest it is closed on release.
func (p *Predictor) acquire() (model.Classifier, func(), error) {
	if p.reload {
		cls, err := p.load()
		if err != nil {
			return nil, nil, err
		}
		return cls, func() { _ = cls.Close() }, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, nil, errors.New("predictor closed")
	}
	if p.cls != nil {
		return p.cls, func() {}, nil
	}
	cls, err := p.loadLocked()
	if err != nil {
		return nil, nil, err
	}
	p.cls = cls
	return cls, func() {}, nil
}

func (p *Predictor) load() (model.Classifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("predictor closed")
	}
	return p.loadLocked()
}

// loadLocked opens the artifact. Caller holds p.mu. A failed load leaves no
// cached handle so the next request tries again.
func (p *Predictor) loadLocked() (model.Classifier, error) {
	p.state = StateLoading
	p.events.Publish(Event{Name: EventModelLoadStart, ModelPath: p.modelPath})
	cls, err := p.loader(p.modelPath)
	if err == nil && !sameLabels(cls.Labels(), p.labels) {
		_ = cls.Close()
		err = fmt.Errorf("artifact labels %v do not match configured labels %v", cls.Labels(), p.labels)
	}
	if err != nil {
		p.state = StateError
		p.lastErr = err.Error()
		p.loadFailures.Add(1)
		modelLoadsTotal.WithLabelValues("error").Inc()
		p.events.Publish(Event{Name: EventModelLoadFailed, ModelPath: p.modelPath, Fields: map[string]any{"error": err.Error()}})
		return nil, err
	}
	p.state = StateReady
	p.lastErr = ""
	p.loads.Add(1)
	modelLoadsTotal.WithLabelValues("ok").Inc()
	p.events.Publish(Event{Name: EventModelReady, ModelPath: p.modelPath})
	p.log.Info().Str("model_path", p.modelPath).Strs("labels", p.labels).Msg("model loaded")
	return cls, nil
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p *Predictor) recordError(err error) {
	p.mu.Lock()
	p.lastErr = err.Error()
	p.mu.Unlock()
}

// Warmup loads the model eagerly. The error is informational: requests still
// succeed through the fallback when the model cannot be loaded.
func (p *Predictor) Warmup() error {
	if p.reload {
		cls, err := p.load()
		if err != nil {
			return err
		}
		return cls.Close()
	}
	_, release, err := p.acquire()
	if err != nil {
		return err
	}
	release()
	return nil
}

// Ready reports whether the predictor accepts requests. Because of the
// fallback this is true until Close, regardless of model state.
func (p *Predictor) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Close releases the cached classifier. Subsequent predictions use the
// fallback.
func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.state = StateClosed
	var err error
	if p.cls != nil {
		err = p.cls.Close()
		p.cls = nil
		p.events.Publish(Event{Name: EventModelClosed, ModelPath: p.modelPath})
	}
	return err
}
