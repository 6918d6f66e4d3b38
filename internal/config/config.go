package config

import (
	"errors"
	"fmt"

	"kartd/pkg/types"
)

// Config holds runtime parameters for the server and the trainer.
// Zero values in a loaded file keep the defaults from Default.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`
	Model  ModelConfig  `json:"model" yaml:"model" toml:"model"`
	Log    LogConfig    `json:"log" yaml:"log" toml:"log"`
	Train  TrainConfig  `json:"train" yaml:"train" toml:"train"`
}

type ServerConfig struct {
	Addr         string     `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes int64      `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORS         CORSConfig `json:"cors" yaml:"cors" toml:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

type ModelConfig struct {
	// Path of the artifact (.kart or .onnx).
	Path string `json:"path" yaml:"path" toml:"path"`
	// ORTLibrary is the onnxruntime shared library. Empty uses the default lookup.
	ORTLibrary       string   `json:"ort_library" yaml:"ort_library" toml:"ort_library"`
	Labels           []string `json:"labels" yaml:"labels" toml:"labels"`
	ReloadPerRequest bool     `json:"reload_per_request" yaml:"reload_per_request" toml:"reload_per_request"`
	// Preload loads the model at startup instead of on the first request.
	Preload bool `json:"preload" yaml:"preload" toml:"preload"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" toml:"level"`
	// Format is json or console.
	Format string `json:"format" yaml:"format" toml:"format"`
}

type TrainConfig struct {
	DataDir         string  `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	Backbone        string  `json:"backbone" yaml:"backbone" toml:"backbone"`
	Epochs          int     `json:"epochs" yaml:"epochs" toml:"epochs"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate" toml:"learning_rate"`
	Patience        int     `json:"patience" yaml:"patience" toml:"patience"`
	ValidationSplit float64 `json:"validation_split" yaml:"validation_split" toml:"validation_split"`
	HiddenUnits     int     `json:"hidden_units" yaml:"hidden_units" toml:"hidden_units"`
	Dropout         float64 `json:"dropout" yaml:"dropout" toml:"dropout"`
	Seed            uint64  `json:"seed" yaml:"seed" toml:"seed"`
	PlotPath        string  `json:"plot_path" yaml:"plot_path" toml:"plot_path"`
	LedgerPath      string  `json:"ledger_path" yaml:"ledger_path" toml:"ledger_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":5000",
			MaxBodyBytes: 10 << 20,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Log-Level"},
			},
		},
		Model: ModelConfig{
			Path:   "model/kart_insurance_model.kart",
			Labels: types.DefaultLabels(),
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Train: TrainConfig{
			DataDir:         "data/karts",
			Backbone:        "model/resnet50_backbone.onnx",
			Epochs:          10,
			BatchSize:       4,
			LearningRate:    1e-4,
			Patience:        3,
			ValidationSplit: 0.2,
			HiddenUnits:     512,
			Dropout:         0.5,
		},
	}
}

// Validate reports every invalid setting, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must be set"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model.path must be set"))
	}
	if len(c.Model.Labels) == 0 {
		errs = append(errs, errors.New("model.labels must not be empty"))
	}
	seen := map[string]bool{}
	for _, l := range c.Model.Labels {
		if l == "" || seen[l] {
			errs = append(errs, fmt.Errorf("model.labels: empty or duplicate label %q", l))
		}
		seen[l] = true
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	t := c.Train
	if t.Epochs <= 0 || t.BatchSize <= 0 || t.HiddenUnits <= 0 {
		errs = append(errs, errors.New("train.epochs, train.batch_size and train.hidden_units must be positive"))
	}
	if t.LearningRate <= 0 {
		errs = append(errs, errors.New("train.learning_rate must be positive"))
	}
	if t.Patience < 0 {
		errs = append(errs, errors.New("train.patience must not be negative"))
	}
	if t.ValidationSplit < 0 || t.ValidationSplit >= 1 {
		errs = append(errs, fmt.Errorf("train.validation_split must be in [0,1), got %v", t.ValidationSplit))
	}
	if t.Dropout < 0 || t.Dropout >= 1 {
		errs = append(errs, fmt.Errorf("train.dropout must be in [0,1), got %v", t.Dropout))
	}
	return errors.Join(errs...)
}
