package predictor

import (
	"math"

	"kartd/pkg/types"
)

// fallback picks a label uniformly at random and a confidence uniformly
// from [FallbackMinConfidence, FallbackMaxConfidence], rounded to two
// decimals.
func (p *Predictor) fallback() types.Prediction {
	p.rngMu.Lock()
	idx := p.rng.IntN(len(p.labels))
	u := p.rng.Float64()
	p.rngMu.Unlock()

	conf := FallbackMinConfidence + u*(FallbackMaxConfidence-FallbackMinConfidence)
	return types.Prediction{
		KartType:   p.labels[idx],
		Confidence: math.Round(conf*100) / 100,
	}
}
