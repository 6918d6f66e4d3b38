package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kartd/internal/config"
	"kartd/internal/httpapi"
	"kartd/internal/model"
	"kartd/internal/predictor"
)

// flags are the command-line overrides; empty or unchanged values keep the
// configuration.
type flags struct {
	configPath       string
	addr             string
	modelPath        string
	ortLibrary       string
	logLevel         string
	logFormat        string
	reloadPerRequest bool
	preload          bool
	cors             bool
}

// serveFunc runs the service with a resolved configuration.
type serveFunc func(ctx context.Context, cfg config.Config, log zerolog.Logger) error

func newRootCmd(stderr io.Writer, run serveFunc) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "kartd",
		Short:         "Kart image classification HTTP service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(f, cmd)
			if err != nil {
				return err
			}
			log, err := config.NewLogger(cfg.Log, stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :5000 (defaults KARTD_ADDR or :5000)")
	fl.StringVar(&f.modelPath, "model-path", "", "Model artifact (.kart or .onnx)")
	fl.StringVar(&f.ortLibrary, "ort-library", "", "onnxruntime shared library")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	fl.StringVar(&f.logFormat, "log-format", "", "Log format: json|console")
	fl.BoolVar(&f.reloadPerRequest, "reload-per-request", false, "Load the model on every request instead of caching it")
	fl.BoolVar(&f.preload, "preload", false, "Load the model at startup")
	fl.BoolVar(&f.cors, "cors", true, "Enable CORS for the configured origins")
	return cmd
}

// resolveConfig layers defaults, the config file, KARTD_* variables and
// flags, in that order.
func resolveConfig(f flags, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return cfg, err
	}
	config.ApplyEnv(&cfg)
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.modelPath != "" {
		cfg.Model.Path = f.modelPath
	}
	if f.ortLibrary != "" {
		cfg.Model.ORTLibrary = f.ortLibrary
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	changed := cmd.Flags().Changed
	if changed("reload-per-request") {
		cfg.Model.ReloadPerRequest = f.reloadPerRequest
	}
	if changed("preload") {
		cfg.Model.Preload = f.preload
	}
	if changed("cors") {
		cfg.Server.CORS.Enabled = f.cors
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newPredictor(cfg config.Config, log *zerolog.Logger) *predictor.Predictor {
	return predictor.New(predictor.Config{
		ModelPath:        cfg.Model.Path,
		Labels:           cfg.Model.Labels,
		RuntimeLibrary:   cfg.Model.ORTLibrary,
		ReloadPerRequest: cfg.Model.ReloadPerRequest,
		Loader:           model.Loader(model.Options{Labels: cfg.Model.Labels, RuntimeLibrary: cfg.Model.ORTLibrary}),
		Logger:           log,
		Events:           predictor.LogPublisher{Log: log.With().Str("component", "predictor").Logger()},
	})
}

// serve runs the HTTP server until ctx is done, then shuts down within 5s
// and releases the model.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.Server.MaxBodyBytes)
	c := cfg.Server.CORS
	httpapi.SetCORSOptions(c.Enabled, c.AllowedOrigins, c.AllowedMethods, c.AllowedHeaders)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	pred := newPredictor(cfg, &log)
	defer func() {
		if err := pred.Close(); err != nil {
			log.Warn().Err(err).Msg("closing model")
		}
	}()
	if cfg.Model.Preload {
		if err := pred.Warmup(); err != nil {
			log.Warn().Err(err).Str("model_path", cfg.Model.Path).Msg("model preload failed, serving with fallback")
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewMux(pred),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("model_path", cfg.Model.Path).
			Strs("labels", cfg.Model.Labels).
			Bool("reload_per_request", cfg.Model.ReloadPerRequest).
			Msg("kartd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	cancelBase()
	if err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
		return err
	}
	return nil
}

func main() {
	root := newRootCmd(os.Stderr, serve)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kartd:", err)
		os.Exit(1)
	}
}
