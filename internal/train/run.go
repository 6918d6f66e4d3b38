package train

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"kartd/internal/common/fsutil"
	"kartd/internal/model"
	"kartd/internal/train/ledger"
)

// BackboneOpener opens the frozen feature extractor at path.
type BackboneOpener func(path string, inputSize int) (model.FeatureExtractor, error)

// OnnxBackboneOpener initialises onnxruntime from lib and opens an ONNX
// backbone.
func OnnxBackboneOpener(lib string) BackboneOpener {
	return func(path string, inputSize int) (model.FeatureExtractor, error) {
		if err := model.InitRuntime(lib); err != nil {
			return nil, err
		}
		return model.OpenBackbone(path, inputSize)
	}
}

// RunOptions describe one end-to-end training run.
type RunOptions struct {
	Config          Config
	DataDir         string
	ValidationSplit float64
	// BackbonePath is the ONNX feature extractor. It is recorded in the
	// artifact relative to the artifact's directory when possible.
	BackbonePath string
	OpenBackbone BackboneOpener
	// OutputPath is where the .kart artifact is written.
	OutputPath string
	// PlotPath, when set, receives training curves.
	PlotPath string
	// Ledger, when set, records the run.
	Ledger *ledger.Ledger
}

// RunReport summarises a completed run.
type RunReport struct {
	RunID        string   `json:"run_id"`
	ArtifactPath string   `json:"artifact_path"`
	PlotPaths    []string `json:"plot_paths,omitempty"`
	History      History  `json:"history"`
	TrainSamples int      `json:"train_samples"`
	ValSamples   int      `json:"val_samples"`
	Duration     string   `json:"duration"`
}

// Run scans the dataset, trains the head, writes the artifact and records
// the run.
func Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	started := time.Now()
	runID := uuid.NewString()
	cfg := opts.Config
	log := cfg.Logger

	ds, err := ScanDir(opts.DataDir, cfg.Labels, opts.ValidationSplit)
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Info().
			Str("run_id", runID).
			Str("data_dir", ds.Root).
			Int("train", len(ds.Train)).
			Int("val", len(ds.Val)).
			Ints("train_per_class", ClassCounts(ds.Train, len(ds.Labels))).
			Msg("dataset scanned")
	}

	backbonePath, err := fsutil.ExpandHome(opts.BackbonePath)
	if err != nil {
		return nil, err
	}
	if !fsutil.IsRegularFile(backbonePath) {
		return nil, fmt.Errorf("%w: backbone %s", model.ErrArtifactNotFound, backbonePath)
	}
	open := opts.OpenBackbone
	if open == nil {
		open = OnnxBackboneOpener("")
	}
	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = DefaultConfig(nil).InputSize
	}
	backbone, err := open(backbonePath, inputSize)
	if err != nil {
		return nil, fmt.Errorf("open backbone: %w", err)
	}
	defer backbone.Close()

	tr, err := NewTrainer(cfg, backbone)
	if err != nil {
		return nil, err
	}
	res, err := tr.Fit(ctx, ds)
	if err != nil {
		return nil, err
	}

	out, err := fsutil.ExpandHome(opts.OutputPath)
	if err != nil {
		return nil, err
	}
	features, hidden, _ := res.Head.Dims()
	art := &model.Artifact{
		Header: model.ArtifactHeader{
			Version:    model.ArtifactVersion,
			Labels:     cfg.Labels,
			InputSize:  inputSize,
			Backbone:   relativeTo(filepath.Dir(out), backbonePath),
			FeatureDim: features,
			HiddenDim:  hidden,
			RunID:      runID,
			CreatedAt:  time.Now().Unix(),
		},
		Head: res.Head,
	}
	if err := model.WriteArtifact(out, art); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	report := &RunReport{
		RunID:        runID,
		ArtifactPath: out,
		History:      res.History,
		TrainSamples: res.TrainSamples,
		ValSamples:   res.ValSamples,
		Duration:     time.Since(started).Round(time.Millisecond).String(),
	}
	if opts.PlotPath != "" {
		paths, err := PlotHistory(res.History, opts.PlotPath)
		if err != nil {
			return nil, fmt.Errorf("plot history: %w", err)
		}
		report.PlotPaths = paths
	}
	if opts.Ledger != nil {
		if err := opts.Ledger.RecordRun(ctx, ledgerRun(report, ds, started, cfg.Labels)); err != nil {
			return nil, err
		}
	}
	if log != nil {
		best := res.History.Best()
		log.Info().
			Str("run_id", runID).
			Str("artifact", out).
			Int("epochs_run", len(res.History.Epochs)).
			Int("best_epoch", res.History.BestEpoch).
			Float64("best_val_accuracy", best.ValAccuracy).
			Bool("stopped_early", res.History.StoppedEarly).
			Msg("training complete")
	}
	return report, nil
}

func ledgerRun(r *RunReport, ds *Dataset, started time.Time, labels []string) ledger.Run {
	hist, _ := json.Marshal(r.History)
	last, best := r.History.Last(), r.History.Best()
	return ledger.Run{
		ID:              r.RunID,
		Started:         started,
		Finished:        time.Now(),
		DataDir:         ds.Root,
		ArtifactPath:    r.ArtifactPath,
		Labels:          labels,
		TrainSamples:    r.TrainSamples,
		ValSamples:      r.ValSamples,
		EpochsRun:       len(r.History.Epochs),
		BestEpoch:       r.History.BestEpoch,
		StoppedEarly:    r.History.StoppedEarly,
		FinalLoss:       last.Loss,
		FinalAccuracy:   last.Accuracy,
		BestValLoss:     best.ValLoss,
		BestValAccuracy: best.ValAccuracy,
		History:         hist,
	}
}

// relativeTo expresses target relative to base, falling back to the
// absolute target.
func relativeTo(base, target string) string {
	ab, err1 := filepath.Abs(base)
	at, err2 := filepath.Abs(target)
	if err1 != nil || err2 != nil {
		return target
	}
	if rel, err := filepath.Rel(ab, at); err == nil {
		return filepath.ToSlash(rel)
	}
	return at
}
