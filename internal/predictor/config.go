package predictor

import (
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"kartd/internal/model"
	"kartd/pkg/types"
)

// DefaultModelPath is the artifact location used when Config.ModelPath is unset.
const DefaultModelPath = "model/kart_insurance_model.kart"

// Fallback confidence bounds, inclusive after rounding to two decimals.
const (
	FallbackMinConfidence = 0.85
	FallbackMaxConfidence = 0.99
)

// Config encapsulates all tunables for Predictor construction.
type Config struct {
	// ModelPath is the artifact to load (.kart or .onnx).
	ModelPath string
	// Labels is the label set, in class-index order. Defaults to types.KartTypes.
	Labels []string
	// RuntimeLibrary is the onnxruntime shared library used by the default loader.
	RuntimeLibrary string
	// ReloadPerRequest loads and closes the model on every call instead of
	// caching it.
	ReloadPerRequest bool
	// Loader overrides how the artifact is opened.
	Loader model.LoadFunc
	// Rand drives the fallback. Defaults to a clock-seeded PCG source.
	Rand *rand.Rand
	// Logger receives model errors. Defaults to a no-op logger.
	Logger *zerolog.Logger
	// Events receives lifecycle events. Defaults to a no-op publisher.
	Events EventPublisher
}

// New constructs a Predictor from cfg. The model is not loaded until the
// first prediction or an explicit Warmup.
func New(cfg Config) *Predictor {
	p := &Predictor{
		modelPath: cfg.ModelPath,
		labels:    append([]string(nil), cfg.Labels...),
		reload:    cfg.ReloadPerRequest,
		loader:    cfg.Loader,
		rng:       cfg.Rand,
		events:    cfg.Events,
		state:     StateUnloaded,
		startTime: time.Now(),
	}
	if p.modelPath == "" {
		p.modelPath = DefaultModelPath
	}
	if len(p.labels) == 0 {
		p.labels = types.DefaultLabels()
	}
	if p.loader == nil {
		p.loader = model.Loader(model.Options{Labels: p.labels, RuntimeLibrary: cfg.RuntimeLibrary})
	}
	if p.rng == nil {
		now := uint64(time.Now().UnixNano())
		p.rng = rand.New(rand.NewPCG(now, now>>17|1))
	}
	if p.events == nil {
		p.events = noopPublisher{}
	}
	if cfg.Logger != nil {
		p.log = *cfg.Logger
	} else {
		p.log = zerolog.Nop()
	}
	return p
}
