package kartctl

import (
	"kartd/internal/model"
	"kartd/internal/train"
	"kartd/internal/train/ledger"
)

// Indirection layer to allow stubbing in tests

var (
	fnRunTraining    = train.Run
	fnEvaluate       = train.Evaluate
	fnOpenClassifier = model.Open
	fnOpenLedger     = ledger.Open
	fnBackboneOpener = train.OnnxBackboneOpener
	fnModelLoader    = model.Loader
)
