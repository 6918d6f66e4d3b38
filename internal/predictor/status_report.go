package predictor

import (
	"time"

	"kartd/pkg/types"
)

// Status builds a status response for /status.
func (p *Predictor) Status() types.StatusResponse {
	p.mu.Lock()
	state, lastErr := p.state, p.lastErr
	p.mu.Unlock()
	now := time.Now()
	return types.StatusResponse{
		State:             string(state),
		ModelPath:         p.modelPath,
		Labels:            p.Labels(),
		CacheModel:        !p.reload,
		LastError:         lastErr,
		LoadsTotal:        p.loads.Load(),
		LoadFailuresTotal: p.loadFailures.Load(),
		PredictionsTotal:  p.predictions.Load(),
		FallbacksTotal:    p.fallbacks.Load(),
		UptimeSeconds:     int64(now.Sub(p.startTime).Seconds()),
		ServerTimeUnix:    now.Unix(),
	}
}
