package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"visitor-forecast/internal/model"
)

// TestDefaultConfig verifies that defaultConfig() returns the default run
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Run.Framer.Lookback != 1 {
		t.Errorf("Framer.Lookback = %d, want 1", cfg.Run.Framer.Lookback)
	}
	if cfg.Run.Framer.UnivariateTrainFraction != 0.8 {
		t.Errorf("UnivariateTrainFraction = %v, want 0.8", cfg.Run.Framer.UnivariateTrainFraction)
	}
	if cfg.Run.Framer.MultivariateTrainFraction != 0.7 {
		t.Errorf("MultivariateTrainFraction = %v, want 0.7", cfg.Run.Framer.MultivariateTrainFraction)
	}
	if cfg.Run.Model.Units != 4 || cfg.Run.Model.Epochs != 3 || cfg.Run.Model.BatchSize != 100 {
		t.Errorf("Model = %+v, want units 4, epochs 3, batch 100", cfg.Run.Model)
	}
	if cfg.Run.Evaluate.Space != "log" {
		t.Errorf("Evaluate.Space = %q, want log", cfg.Run.Evaluate.Space)
	}
	if cfg.Server.RunTimeout != 30*time.Minute {
		t.Errorf("Server.RunTimeout = %v, want 30m", cfg.Server.RunTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forecast.yaml")
	yamlDoc := `
store:
  path: /tmp/runs.db
run:
  framer:
    lookback: 1
    modes: [univariate]
  forecast:
    mode: univariate
  model:
    epochs: 5
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FORECAST_EPOCHS", "7")
	t.Setenv("FORECAST_ERROR_SPACE", "raw")
	t.Setenv("FORECAST_DB_PATH", "/tmp/env.db")
	t.Setenv("FORECAST_RUN_TIMEOUT", "10m")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Run.Model.Epochs != 7 {
		t.Errorf("Epochs = %d, want 7 (env beats file)", cfg.Run.Model.Epochs)
	}
	if cfg.Run.Evaluate.Space != "raw" {
		t.Errorf("Evaluate.Space = %q, want raw", cfg.Run.Evaluate.Space)
	}
	if cfg.Store.Path != "/tmp/env.db" {
		t.Errorf("Store.Path = %q, want /tmp/env.db", cfg.Store.Path)
	}
	if cfg.Server.RunTimeout != 10*time.Minute {
		t.Errorf("RunTimeout = %v, want 10m", cfg.Server.RunTimeout)
	}
	if len(cfg.Run.Framer.Modes) != 1 || cfg.Run.Framer.Modes[0] != model.ModeUnivariate {
		t.Errorf("Modes = %v, want [univariate]", cfg.Run.Framer.Modes)
	}
	// untouched defaults survive
	if cfg.Run.Model.Units != 4 {
		t.Errorf("Units = %d, want default 4", cfg.Run.Model.Units)
	}
}

func TestLoadFileCommaSeparatedModes(t *testing.T) {
	t.Setenv("FORECAST_MODES", "univariate, multivariate")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(cfg.Run.Framer.Modes) != 2 {
		t.Errorf("Modes = %v, want two modes", cfg.Run.Framer.Modes)
	}
}

func TestValidateRunSpec(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.RunSpec)
		wantErr string
	}{
		{"default", func(*model.RunSpec) {}, ""},
		{"missing visit data", func(s *model.RunSpec) { s.Sources.AirVisitData = "" }, "AirVisitData is required"},
		{"bad mode", func(s *model.RunSpec) { s.Framer.Modes = []string{"weekly"} }, "must be one of"},
		{"zero lookback", func(s *model.RunSpec) { s.Framer.Lookback = 0 }, "Lookback must be at least 1"},
		{"fraction of one", func(s *model.RunSpec) { s.Framer.UnivariateTrainFraction = 1 }, "must be less than 1"},
		{"bad space", func(s *model.RunSpec) { s.Evaluate.Space = "linear" }, "Space must be one of"},
		{"forecast mode not trained", func(s *model.RunSpec) {
			s.Framer.Modes = []string{model.ModeUnivariate}
		}, "is not one of the trained"},
		{"multivariate lookback", func(s *model.RunSpec) { s.Framer.Lookback = 3 }, "must be 1 in multivariate"},
		{"hpg without relation", func(s *model.RunSpec) { s.Sources.StoreIDRelation = "" }, "store_id_relation is required"},
		{"holiday without calendar", func(s *model.RunSpec) {
			s.Features.IncludeHoliday = true
			s.Sources.DateInfo = ""
		}, "include_holiday needs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultRunSpec()
			tt.mutate(&spec)
			err := ValidateRunSpec(spec)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateRunSpec() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidateRunSpec() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
