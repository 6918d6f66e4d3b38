// Package kartctl implements the kartctl command line: training,
// evaluation and one-off predictions against the kart classifier.
package kartctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"kartd/internal/config"
)

// Options are the persistent flags shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	ModelPath  string
	ORTLibrary string
}

// errUsage marks errors that should exit with status 2.
var errUsage = errors.New("usage")

// env bundles what a command needs once flags are parsed.
type env struct {
	cfg    config.Config
	log    zerolog.Logger
	stdout io.Writer
}

// loadEnv resolves configuration: file, then KARTD_* variables, then flags.
func loadEnv(opts *Options, stdout, stderr io.Writer) (*env, error) {
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(&cfg)
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.ModelPath != "" {
		cfg.Model.Path = opts.ModelPath
	}
	if opts.ORTLibrary != "" {
		cfg.Model.ORTLibrary = opts.ORTLibrary
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := config.NewLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, stdout: stdout}, nil
}

// MainWithArgs runs kartctl with args and returns the process exit code:
// 0 on success, 2 when no command is given, 1 on any other error.
func MainWithArgs(args []string) int {
	return mainWithIO(args, os.Stdout, os.Stderr)
}

func mainWithIO(args []string, stdout, stderr io.Writer) int {
	root := buildRootCmd(&Options{}, stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "kartctl:", err.Error())
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

// Main returns an exit code for use by cmd/kartctl.
func Main() int { return MainWithArgs(os.Args[1:]) }
