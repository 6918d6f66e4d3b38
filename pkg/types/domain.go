package types

// KartTypes is the fixed label set the classifier predicts over. The position
// of a name is the class index produced by the model.
var KartTypes = []string{
	"Cheep_Charge", // standard kart
	"B_Dasher",     // performance kart
	"Flame_Flyer",  // special kart
}

// DefaultLabels returns a copy of KartTypes that callers may modify.
func DefaultLabels() []string {
	return append([]string(nil), KartTypes...)
}

// Prediction is the selected kart type and the classifier confidence.
type Prediction struct {
	// Predicted label, one of the configured label set.
	// example: B_Dasher
	KartType string `json:"kartType" example:"B_Dasher"`
	// Probability of the predicted label, in [0,1].
	// example: 0.93
	Confidence float64 `json:"confidence" example:"0.93"`
}

// EvalMetrics summarises a classifier run over a labelled directory.
type EvalMetrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Samples  int     `json:"samples"`
}

// EvaluationResult mirrors PredictResponse for offline evaluation.
type EvaluationResult struct {
	Success bool         `json:"success"`
	Metrics *EvalMetrics `json:"metrics,omitempty"`
	Error   string       `json:"error,omitempty"`
}
