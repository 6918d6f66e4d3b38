package train

// EpochMetrics are the metrics of one completed epoch.
type EpochMetrics struct {
	Epoch       int     `json:"epoch"` // 1-based
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// History is the record of a training run.
type History struct {
	Epochs []EpochMetrics `json:"epochs"`
	// BestEpoch is the 1-based epoch with the highest validation accuracy.
	BestEpoch int `json:"best_epoch"`
	// StoppedEarly is set when early stopping ended training before the
	// epoch limit; the best weights were restored.
	StoppedEarly bool `json:"stopped_early"`
	// HasValidation is false when the split left no validation samples, in
	// which case validation metrics are zero and early stopping is off.
	HasValidation bool `json:"has_validation"`
}

// Last returns the metrics of the final epoch.
func (h History) Last() EpochMetrics {
	if len(h.Epochs) == 0 {
		return EpochMetrics{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Best returns the metrics of BestEpoch, or Last when unset.
func (h History) Best() EpochMetrics {
	for _, e := range h.Epochs {
		if e.Epoch == h.BestEpoch {
			return e
		}
	}
	return h.Last()
}
