package pipeline

import (
	"errors"
	"fmt"
	"math"

	"visitor-forecast/internal/model"
)

// Error metrics and spaces
const (
	MetricAuto  = "auto"
	MetricRMSE  = "rmse"
	MetricRMSLE = "rmsle"

	SpaceLog = "log"
	SpaceRaw = "raw"
)

// errEmptyVectors is returned for metrics over empty input
var errEmptyVectors = errors.New("metric over empty vectors")

// RMSE is the root mean squared error of predictions against truth
func RMSE(truth, pred []float64) (float64, error) {
	if err := checkVectors(truth, pred); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range truth {
		d := truth[i] - pred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(truth))), nil
}

// RMSLE is the RMSE of log1p values; negatives are clamped to zero first
func RMSLE(truth, pred []float64) (float64, error) {
	if err := checkVectors(truth, pred); err != nil {
		return 0, err
	}
	lt := make([]float64, len(truth))
	lp := make([]float64, len(pred))
	for i := range truth {
		lt[i] = math.Log1p(math.Max(truth[i], 0))
		lp[i] = math.Log1p(math.Max(pred[i], 0))
	}
	return RMSE(lt, lp)
}

func checkVectors(truth, pred []float64) error {
	if len(truth) == 0 {
		return errEmptyVectors
	}
	if len(truth) != len(pred) {
		return fmt.Errorf("metric over mismatched vectors: %d truth, %d predictions", len(truth), len(pred))
	}
	return nil
}

// ResolveMetric picks the metric for a mode; auto is rmse for univariate and
// rmsle for multivariate runs.
func ResolveMetric(metric, mode string) string {
	if metric != MetricAuto && metric != "" {
		return metric
	}
	if mode == model.ModeMultivariate {
		return MetricRMSLE
	}
	return MetricRMSE
}

// Evaluate inverse-scales scaled predictions and truth of the target column and
// reports the configured metric in the configured space.
func Evaluate(f *Framed, pred []float64, spec model.EvaluateSpec) (model.Evaluation, error) {
	truth := f.Scaler.InverseColumn(targetColumn, f.TestY)
	inv := f.Scaler.InverseColumn(targetColumn, pred)
	if spec.Space == SpaceRaw {
		truth, inv = Expm1(truth), Expm1(inv)
	}

	metric := ResolveMetric(spec.Metric, f.Mode)
	var (
		value float64
		err   error
	)
	switch metric {
	case MetricRMSE:
		value, err = RMSE(truth, inv)
	case MetricRMSLE:
		value, err = RMSLE(truth, inv)
	default:
		err = fmt.Errorf("unknown metric %q", metric)
	}
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate %s: %w", f.Mode, err)
	}

	space := spec.Space
	if space == "" {
		space = SpaceLog
	}
	return model.Evaluation{
		Mode:         f.Mode,
		Metric:       metric,
		Space:        space,
		Value:        value,
		TrainSamples: len(f.TrainY),
		TestSamples:  len(f.TestY),
	}, nil
}
