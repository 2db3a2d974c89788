// Package config loads the forecasting configuration with koanf.
//
// Precedence, lowest first:
//  1. Defaults: defaultConfig()
//  2. Config file: optional YAML (FORECAST_CONFIG, forecast.yaml, config.yaml)
//  3. Environment variables: FORECAST_* (see envMappings)
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/model"
)

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "FORECAST_CONFIG"

// EnvPrefix is stripped from every environment override.
const EnvPrefix = "FORECAST_"

// DefaultConfigPaths lists the config files searched in order of priority.
var DefaultConfigPaths = []string{
	"forecast.yaml",
	"forecast.yml",
	"config.yaml",
	"config.yml",
}

// Config is the full application configuration
type Config struct {
	Logging logging.Config `koanf:"logging"`
	Store   StoreConfig    `koanf:"store"`
	Output  OutputConfig   `koanf:"output"`
	Server  ServerConfig   `koanf:"server"`
	Run     model.RunSpec  `koanf:"run"`
}

// StoreConfig locates the SQLite run registry
type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// OutputConfig is where export files are written, one directory per run
type OutputConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr       string        `koanf:"addr" validate:"required"`
	RunTimeout time.Duration `koanf:"run_timeout" validate:"gt=0"`
}

// DefaultRunSpec returns the default run: both framing modes, lookback 1,
// LSTM(4) for 3 epochs, errors reported in log space.
func DefaultRunSpec() model.RunSpec {
	return model.RunSpec{
		Sources: model.Sources{
			AirReserve:       "data/air/air_reserve.csv",
			HPGReserve:       "data/hpg/hpg_reserve.csv",
			AirStoreInfo:     "data/air/air_store_info.csv",
			HPGStoreInfo:     "data/hpg/hpg_store_info.csv",
			StoreIDRelation:  "data/store_id_relation.csv",
			AirVisitData:     "data/air/air_visit_data.csv",
			DateInfo:         "data/date_info.csv",
			SampleSubmission: "sample_submission.csv",
		},
		Framer: model.FramerSpec{
			Modes:                     []string{model.ModeUnivariate, model.ModeMultivariate},
			Lookback:                  1,
			UnivariateTrainFraction:   0.8,
			MultivariateTrainFraction: 0.7,
			DropCurrentStep:           true,
		},
		Model: model.ModelSpec{
			Units:        4,
			Epochs:       3,
			BatchSize:    100,
			LearningRate: 0.001,
			Seed:         524,
		},
		Evaluate: model.EvaluateSpec{
			Space:  "log",
			Metric: "auto",
		},
		Forecast: model.ForecastSpec{
			Enabled: true,
			Mode:    model.ModeMultivariate,
		},
		Export: model.Export{
			DB: "sqlite",
		},
	}
}

// defaultConfig returns a Config with every default applied.
func defaultConfig() *Config {
	return &Config{
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{
			Path: "forecast.db",
		},
		Output: OutputConfig{
			Dir: "outputs",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			RunTimeout: 30 * time.Minute,
		},
		Run: DefaultRunSpec(),
	}
}

// Load reads defaults, the optional config file and the environment.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path; empty skips the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values
var sliceConfigPaths = []string{
	"run.framer.modes",
	"run.framer.features",
	"run.framer.drop_columns",
}

// processSliceFields converts comma-separated string values to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps FORECAST_* variables (prefix stripped, lowercased) to config paths.
var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"db_path":    "store.path",
	"output_dir": "output.dir",

	"http_addr":   "server.addr",
	"run_timeout": "server.run_timeout",

	"air_reserve":       "run.sources.air_reserve",
	"hpg_reserve":       "run.sources.hpg_reserve",
	"air_store_info":    "run.sources.air_store_info",
	"hpg_store_info":    "run.sources.hpg_store_info",
	"store_id_relation": "run.sources.store_id_relation",
	"air_visit_data":    "run.sources.air_visit_data",
	"date_info":         "run.sources.date_info",
	"sample_submission": "run.sources.sample_submission",

	"include_holiday":       "run.features.include_holiday",
	"hpg_metadata_fallback": "run.features.hpg_metadata_fallback",
	"clamp_negative_lead":   "run.features.clamp_negative_lead",

	"modes":                       "run.framer.modes",
	"lookback":                    "run.framer.lookback",
	"univariate_train_fraction":   "run.framer.univariate_train_fraction",
	"multivariate_train_fraction": "run.framer.multivariate_train_fraction",
	"features":                    "run.framer.features",
	"drop_current_step":           "run.framer.drop_current_step",
	"drop_columns":                "run.framer.drop_columns",

	"units":         "run.model.units",
	"epochs":        "run.model.epochs",
	"batch_size":    "run.model.batch_size",
	"learning_rate": "run.model.learning_rate",
	"seed":          "run.model.seed",

	"error_space": "run.evaluate.space",
	"metric":      "run.evaluate.metric",

	"forecast_enabled": "run.forecast.enabled",
	"forecast_mode":    "run.forecast.mode",

	"export_file": "run.export.file",
	"export_db":   "run.export.db",
}

// envTransformFunc maps an environment variable to its config path. Unknown
// variables, including FORECAST_CONFIG itself, are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}
