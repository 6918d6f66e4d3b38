package kartctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"kartd/internal/model"
	"kartd/internal/predictor"
	"kartd/internal/train"
	"kartd/internal/train/ledger"
)

// exactArgs is cobra.ExactArgs with a usage-class error.
func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s requires %s", errUsage, cmd.Name(), what)
		}
		return nil
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// buildRootCmd constructs the command tree. Output goes to stdout, logs to
// stderr.
func buildRootCmd(opts *Options, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "kartctl",
		Short:         "Train, evaluate and query the kart classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: debug|info|warn|error (defaults KARTD_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "Log format: json|console")
	root.PersistentFlags().StringVar(&opts.ModelPath, "model", "", "Model artifact path (defaults model.path)")
	root.PersistentFlags().StringVar(&opts.ORTLibrary, "ort-library", "", "onnxruntime shared library")

	setup := func() (*env, error) { return loadEnv(opts, stdout, stderr) }

	root.AddCommand(
		trainCmd(setup),
		evaluateCmd(setup),
		predictCmd(setup),
		labelsCmd(setup),
		runsCmd(setup),
	)

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(stdout) }})
	root.AddCommand(completionCmd)

	return root
}

func trainCmd(setup func() (*env, error)) *cobra.Command {
	var (
		dataDir, backbone, plotPath, ledgerPath string
		epochs, batch, patience                 int
		lr, split                               float64
		seed                                    uint64
		noAugment                               bool
	)
	cmd := &cobra.Command{
		Use:     "train",
		Short:   "Fit the classification head and write the model artifact",
		Example: "  kartctl train --data-dir data/karts --epochs 10\n  kartctl train --plot out/history.png --ledger out/runs.db",
		Args:    exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			tc := e.cfg.Train
			flags := cmd.Flags()
			if flags.Changed("data-dir") {
				tc.DataDir = dataDir
			}
			if flags.Changed("backbone") {
				tc.Backbone = backbone
			}
			if flags.Changed("epochs") {
				tc.Epochs = epochs
			}
			if flags.Changed("batch-size") {
				tc.BatchSize = batch
			}
			if flags.Changed("learning-rate") {
				tc.LearningRate = lr
			}
			if flags.Changed("patience") {
				tc.Patience = patience
			}
			if flags.Changed("validation-split") {
				tc.ValidationSplit = split
			}
			if flags.Changed("seed") {
				tc.Seed = seed
			}
			if flags.Changed("plot") {
				tc.PlotPath = plotPath
			}
			if flags.Changed("ledger") {
				tc.LedgerPath = ledgerPath
			}

			tcfg := train.DefaultConfig(e.cfg.Model.Labels)
			tcfg.Epochs = tc.Epochs
			tcfg.BatchSize = tc.BatchSize
			tcfg.HiddenUnits = tc.HiddenUnits
			tcfg.Dropout = tc.Dropout
			tcfg.LearningRate = tc.LearningRate
			tcfg.Patience = tc.Patience
			tcfg.Seed = tc.Seed
			tcfg.NoAugment = noAugment
			tcfg.Logger = &e.log

			opts := train.RunOptions{
				Config:          tcfg,
				DataDir:         tc.DataDir,
				ValidationSplit: tc.ValidationSplit,
				BackbonePath:    tc.Backbone,
				OpenBackbone:    fnBackboneOpener(e.cfg.Model.ORTLibrary),
				OutputPath:      e.cfg.Model.Path,
				PlotPath:        tc.PlotPath,
			}
			if tc.LedgerPath != "" {
				l, err := fnOpenLedger(tc.LedgerPath)
				if err != nil {
					return err
				}
				defer l.Close()
				opts.Ledger = l
			}
			report, err := fnRunTraining(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			return printJSON(e.stdout, report)
		},
	}
	f := cmd.Flags()
	f.StringVar(&dataDir, "data-dir", "", "Labelled image directory, one subfolder per label")
	f.StringVar(&backbone, "backbone", "", "ONNX feature extractor")
	f.IntVar(&epochs, "epochs", 0, "Maximum epochs")
	f.IntVar(&batch, "batch-size", 0, "Batch size")
	f.Float64Var(&lr, "learning-rate", 0, "Adam learning rate")
	f.IntVar(&patience, "patience", 0, "Early-stopping patience on val_accuracy")
	f.Float64Var(&split, "validation-split", 0, "Fraction of each class held out for validation")
	f.Uint64Var(&seed, "seed", 0, "Random seed (0 seeds from the clock)")
	f.StringVar(&plotPath, "plot", "", "Write loss/accuracy curves next to this path")
	f.StringVar(&ledgerPath, "ledger", "", "Record the run in this sqlite ledger")
	f.BoolVar(&noAugment, "no-augment", false, "Disable training-time augmentation")
	return cmd
}

func evaluateCmd(setup func() (*env, error)) *cobra.Command {
	var dataDir, ledgerPath string
	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Report loss and accuracy of the model on a labelled directory",
		Example: "  kartctl evaluate --data-dir data/karts_test",
		Args:    exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			if dataDir == "" {
				dataDir = e.cfg.Train.DataDir
			}
			if ledgerPath == "" {
				ledgerPath = e.cfg.Train.LedgerPath
			}
			cls, err := fnOpenClassifier(e.cfg.Model.Path, model.Options{
				Labels:         e.cfg.Model.Labels,
				RuntimeLibrary: e.cfg.Model.ORTLibrary,
			})
			if err != nil {
				return fmt.Errorf("open model: %w", err)
			}
			defer cls.Close()

			res := fnEvaluate(cmd.Context(), cls, dataDir, e.cfg.Model.Labels)
			if err := printJSON(e.stdout, res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("evaluate: %s", res.Error)
			}
			e.log.Info().
				Str("data_dir", dataDir).
				Int("samples", res.Metrics.Samples).
				Float64("loss", res.Metrics.Loss).
				Float64("accuracy", res.Metrics.Accuracy).
				Msg("evaluation complete")
			if ledgerPath == "" {
				return nil
			}
			l, err := fnOpenLedger(ledgerPath)
			if err != nil {
				return err
			}
			defer l.Close()
			_, err = l.RecordEvaluation(cmd.Context(), ledger.Evaluation{
				At:           time.Now(),
				ArtifactPath: e.cfg.Model.Path,
				DataDir:      dataDir,
				Samples:      res.Metrics.Samples,
				Loss:         res.Metrics.Loss,
				Accuracy:     res.Metrics.Accuracy,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Labelled image directory (defaults train.data_dir)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Record the evaluation in this sqlite ledger")
	return cmd
}

func predictCmd(setup func() (*env, error)) *cobra.Command {
	var b64 bool
	cmd := &cobra.Command{
		Use:     "predict <image-file>",
		Short:   "Classify one image file and print the prediction",
		Example: "  kartctl predict kart.jpg\n  kartctl predict --base64 payload.txt",
		Args:    exactArgs(1, "an image file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			p := predictor.New(predictor.Config{
				ModelPath:        e.cfg.Model.Path,
				Labels:           e.cfg.Model.Labels,
				RuntimeLibrary:   e.cfg.Model.ORTLibrary,
				ReloadPerRequest: true,
				Loader:           fnModelLoader(model.Options{Labels: e.cfg.Model.Labels, RuntimeLibrary: e.cfg.Model.ORTLibrary}),
				Logger:           &e.log,
			})
			defer p.Close()

			var res any
			if b64 {
				res = p.Predict(cmd.Context(), string(raw))
			} else {
				res = p.PredictBytes(cmd.Context(), raw)
			}
			return printJSON(e.stdout, res)
		},
	}
	cmd.Flags().BoolVar(&b64, "base64", false, "The file holds a base64 payload, optionally data-URL prefixed")
	return cmd
}

func labelsCmd(setup func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Print the label set in class-index order",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			for i, l := range e.cfg.Model.Labels {
				fmt.Fprintf(e.stdout, "%d\t%s\n", i, l)
			}
			return nil
		},
	}
}

func runsCmd(setup func() (*env, error)) *cobra.Command {
	var (
		ledgerPath string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs, newest first",
		Args:  exactArgs(0, "no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			if ledgerPath == "" {
				ledgerPath = e.cfg.Train.LedgerPath
			}
			if ledgerPath == "" {
				return fmt.Errorf("%w: runs requires --ledger or train.ledger_path", errUsage)
			}
			l, err := fnOpenLedger(ledgerPath)
			if err != nil {
				return err
			}
			defer l.Close()
			runs, err := l.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(e.stdout, runs)
			}
			tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tEPOCHS\tBEST\tVAL_ACC\tEARLY\tLABELS\tARTIFACT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.3f\t%t\t%s\t%s\n",
					r.ID, r.Started.Format(time.RFC3339), r.EpochsRun, r.BestEpoch,
					r.BestValAccuracy, r.StoppedEarly, strings.Join(r.Labels, ","), r.ArtifactPath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "sqlite ledger (defaults train.ledger_path)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
