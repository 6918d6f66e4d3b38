package train

import (
	"math"

	"kartd/internal/model"
)

// EarlyStopping tracks a monitored metric that should increase (validation
// accuracy) and decides when to stop. Improvements must exceed MinDelta.
//
// Wait counts epochs since the last improvement. Training stops once Wait
// reaches Patience, never on the first epoch. When it stops, the weights of
// the best epoch are restored if RestoreBest is set; if the run instead
// reaches its epoch limit, the final weights are kept.
type EarlyStopping struct {
	Patience    int
	MinDelta    float64
	RestoreBest bool

	best      float64
	bestEpoch int
	bestHead  *model.Head
	wait      int
	stopped   int
	started   bool
}

// NewEarlyStopping returns a monitor with the given patience that restores
// the best weights.
func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience, RestoreBest: true}
}

// Observe records the metric for epoch (0-based) and reports whether
// training should stop. head is the model after the epoch; on stop with
// RestoreBest it is overwritten with the best snapshot.
func (e *EarlyStopping) Observe(epoch int, value float64, head *model.Head) bool {
	if !e.started {
		e.started = true
		e.best = math.Inf(-1)
		if e.RestoreBest {
			e.bestHead = head.Clone()
		}
	}
	e.wait++
	if value-e.MinDelta > e.best {
		e.best = value
		e.bestEpoch = epoch
		if e.RestoreBest {
			e.bestHead = head.Clone()
		}
		e.wait = 0
		return false
	}
	if e.wait >= e.Patience && epoch > 0 {
		e.stopped = epoch + 1
		if e.RestoreBest && e.bestHead != nil {
			copyHead(head, e.bestHead)
		}
		return true
	}
	return false
}

// Best returns the best value seen and its 0-based epoch.
func (e *EarlyStopping) Best() (float64, int) { return e.best, e.bestEpoch }

// StoppedEpoch is the 1-based epoch at which training stopped, or 0.
func (e *EarlyStopping) StoppedEpoch() int { return e.stopped }

func copyHead(dst, src *model.Head) {
	dst.W1.Copy(src.W1)
	copy(dst.B1, src.B1)
	dst.W2.Copy(src.W2)
	copy(dst.B2, src.B2)
}
