// Package metrics registers the Prometheus instruments of the forecasting pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_runs_total",
			Help: "Total number of forecasting runs by final status",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecast_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms .. ~164s
		},
		[]string{"stage"},
	)

	StageRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_stage_rows_total",
			Help: "Rows produced by each pipeline stage",
		},
		[]string{"stage"},
	)

	JoinKeyMismatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_join_key_mismatches_total",
			Help: "Rows whose join key had no normalized counterpart",
		},
		[]string{"source"},
	)

	EvaluationError = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecast_evaluation_error",
			Help: "Test error of the last evaluated run",
		},
		[]string{"mode", "metric", "space"},
	)

	TrainingLoss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecast_training_loss",
			Help: "Final epoch loss of the last trained model",
		},
		[]string{"mode", "split"},
	)
)

// ObserveStage records the duration and row count of a finished stage
func ObserveStage(stage string, d time.Duration, rows int) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if rows > 0 {
		StageRows.WithLabelValues(stage).Add(float64(rows))
	}
}
