package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "KARTD_"

// ApplyEnv overlays KARTD_* environment variables on cfg. Unset or
// unparsable variables leave the current value.
func ApplyEnv(cfg *Config) {
	cfg.Server.Addr = envStr("ADDR", cfg.Server.Addr)
	cfg.Server.MaxBodyBytes = int64(envInt("MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))
	cfg.Server.CORS.Enabled = envBool("CORS_ENABLED", cfg.Server.CORS.Enabled)
	cfg.Server.CORS.AllowedOrigins = envList("CORS_ORIGINS", cfg.Server.CORS.AllowedOrigins)

	cfg.Model.Path = envStr("MODEL_PATH", cfg.Model.Path)
	cfg.Model.ORTLibrary = envStr("ORT_LIBRARY", cfg.Model.ORTLibrary)
	cfg.Model.Labels = envList("LABELS", cfg.Model.Labels)
	cfg.Model.ReloadPerRequest = envBool("RELOAD_PER_REQUEST", cfg.Model.ReloadPerRequest)
	cfg.Model.Preload = envBool("PRELOAD", cfg.Model.Preload)

	cfg.Log.Level = envStr("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envStr("LOG_FORMAT", cfg.Log.Format)

	cfg.Train.DataDir = envStr("DATA_DIR", cfg.Train.DataDir)
	cfg.Train.Backbone = envStr("BACKBONE", cfg.Train.Backbone)
	cfg.Train.Epochs = envInt("EPOCHS", cfg.Train.Epochs)
	cfg.Train.LedgerPath = envStr("LEDGER_PATH", cfg.Train.LedgerPath)
}

func envStr(key, def string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envList(key string, def []string) []string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if l := SplitCSV(v); len(l) > 0 {
			return l
		}
	}
	return def
}

// SplitCSV splits a comma separated list, trimming blanks and dropping
// empty items.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
