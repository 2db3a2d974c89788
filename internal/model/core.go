package model

// Framing modes
const (
	ModeUnivariate   = "univariate"
	ModeMultivariate = "multivariate"
)

// Sources locates every input table; each entry is a file path or an http(s) URL
type Sources struct {
	AirReserve       string `json:"air_reserve" koanf:"air_reserve" validate:"required"`
	HPGReserve       string `json:"hpg_reserve" koanf:"hpg_reserve"`
	AirStoreInfo     string `json:"air_store_info" koanf:"air_store_info" validate:"required"`
	HPGStoreInfo     string `json:"hpg_store_info" koanf:"hpg_store_info"`
	StoreIDRelation  string `json:"store_id_relation" koanf:"store_id_relation"`
	AirVisitData     string `json:"air_visit_data" koanf:"air_visit_data" validate:"required"`
	DateInfo         string `json:"date_info" koanf:"date_info"`
	SampleSubmission string `json:"sample_submission" koanf:"sample_submission" validate:"required"`
}

// FeatureSpec toggles the optional feature engineering steps
type FeatureSpec struct {
	IncludeHoliday      bool `json:"include_holiday" koanf:"include_holiday"`
	HPGMetadataFallback bool `json:"hpg_metadata_fallback" koanf:"hpg_metadata_fallback"`
	ClampNegativeLead   bool `json:"clamp_negative_lead" koanf:"clamp_negative_lead"`
}

// FramerSpec defines how the feature matrix becomes supervised windows
type FramerSpec struct {
	Modes                     []string `json:"modes" koanf:"modes" validate:"min=1,dive,oneof=univariate multivariate"`
	Lookback                  int      `json:"lookback" koanf:"lookback" validate:"min=1"`
	UnivariateTrainFraction   float64  `json:"univariate_train_fraction" koanf:"univariate_train_fraction" validate:"gt=0,lt=1"`
	MultivariateTrainFraction float64  `json:"multivariate_train_fraction" koanf:"multivariate_train_fraction" validate:"gt=0,lt=1"`
	// Features selects the multivariate columns; empty means every feature column.
	Features []string `json:"features" koanf:"features"`
	// DropCurrentStep drops every var{j}(t) column except the target var1(t).
	DropCurrentStep bool `json:"drop_current_step" koanf:"drop_current_step"`
	// DropColumns names further reframed columns to drop.
	DropColumns []string `json:"drop_columns" koanf:"drop_columns"`
}

// ModelSpec configures the sequence regressor
type ModelSpec struct {
	Units        int     `json:"units" koanf:"units" validate:"min=1"`
	Epochs       int     `json:"epochs" koanf:"epochs" validate:"min=1"`
	BatchSize    int     `json:"batch_size" koanf:"batch_size" validate:"min=1"`
	LearningRate float64 `json:"learning_rate" koanf:"learning_rate" validate:"gt=0"`
	Seed         uint64  `json:"seed" koanf:"seed"`
}

// EvaluateSpec selects the error metric and the space it is reported in
type EvaluateSpec struct {
	Space  string `json:"space" koanf:"space" validate:"oneof=log raw"`
	Metric string `json:"metric" koanf:"metric" validate:"oneof=auto rmse rmsle"`
}

// ForecastSpec controls prediction of the manifest rows
type ForecastSpec struct {
	Enabled bool   `json:"enabled" koanf:"enabled"`
	Mode    string `json:"mode" koanf:"mode" validate:"oneof=univariate multivariate"`
}

// Export defines export targets
type Export struct {
	File string `json:"file" koanf:"file"` // e.g., predictions.csv, predictions.json
	DB   string `json:"db" koanf:"db" validate:"omitempty,oneof=sqlite"`
}

// RunSpec defines an entire forecasting run
type RunSpec struct {
	Sources  Sources      `json:"sources" koanf:"sources"`
	Features FeatureSpec  `json:"features" koanf:"features"`
	Framer   FramerSpec   `json:"framer" koanf:"framer"`
	Model    ModelSpec    `json:"model" koanf:"model"`
	Evaluate EvaluateSpec `json:"evaluate" koanf:"evaluate"`
	Forecast ForecastSpec `json:"forecast" koanf:"forecast"`
	Export   Export       `json:"export" koanf:"export"`
}

// HasMode reports whether the run trains the given framing mode
func (s RunSpec) HasMode(mode string) bool {
	for _, m := range s.Framer.Modes {
		if m == mode {
			return true
		}
	}
	return false
}
