package pipeline

import (
	"context"
	"math"
	"testing"

	"visitor-forecast/internal/model"
)

// stepRegressor predicts the last step's first feature plus delta and
// records every input it was given.
type stepRegressor struct {
	delta  float64
	inputs []model.Tensor
}

func (r *stepRegressor) Fit(context.Context, model.Tensor, []float64, *model.Validation) (model.TrainingHistory, error) {
	return model.TrainingHistory{}, nil
}

func (r *stepRegressor) Predict(x model.Tensor) ([]float64, error) {
	r.inputs = append(r.inputs, x)
	out := make([]float64, len(x))
	for i, sample := range x {
		out[i] = sample[len(sample)-1][0] + r.delta
	}
	return out, nil
}

func manifestRows(cols []string, rows ...model.FeatureRow) *model.Dataset {
	return &model.Dataset{Columns: cols, Rows: rows}
}

func TestForecastUnivariateRecursion(t *testing.T) {
	span := math.Log1p(100)
	f := &Framed{
		Mode:     model.ModeUnivariate,
		Lookback: 1,
		Scaler:   &MinMaxScaler{Min: []float64{0}, Max: []float64{span}},
		Columns:  []string{ColVisitors},
		History:  [][]float64{{0.2}, {0.3}},
	}
	// out of date order on purpose
	manifest := manifestRows([]string{ColVisitors},
		model.FeatureRow{ID: "air_a_2017-04-25", StoreID: "air_a", VisitDate: day("2017-04-25"), Values: []float64{model.Sentinel}},
		model.FeatureRow{ID: "air_a_2017-04-23", StoreID: "air_a", VisitDate: day("2017-04-23"), Values: []float64{model.Sentinel}},
		model.FeatureRow{ID: "air_a_2017-04-24", StoreID: "air_a", VisitDate: day("2017-04-24"), Values: []float64{model.Sentinel}},
	)

	reg := &stepRegressor{delta: 0.1}
	preds, err := Forecast(context.Background(), f, reg, manifest)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("Forecast() returned %d predictions, want 3", len(preds))
	}

	// the window starts at the last history value and each prediction feeds the next step
	want := map[string]float64{
		"air_a_2017-04-23": 0.4,
		"air_a_2017-04-24": 0.5,
		"air_a_2017-04-25": 0.6,
	}
	for i, p := range preds {
		if p.ID != manifest.Rows[i].ID {
			t.Errorf("preds[%d].ID = %q, want manifest order", i, p.ID)
		}
		if v := math.Expm1(want[p.ID] * span); math.Abs(p.Visitors-v) > 1e-9 {
			t.Errorf("%s visitors = %v, want %v", p.ID, p.Visitors, v)
		}
	}
}

func TestForecastClampsNegative(t *testing.T) {
	f := &Framed{
		Mode:     model.ModeUnivariate,
		Lookback: 1,
		Scaler:   &MinMaxScaler{Min: []float64{0}, Max: []float64{1}},
		Columns:  []string{ColVisitors},
		History:  [][]float64{{0.1}},
	}
	manifest := manifestRows([]string{ColVisitors},
		model.FeatureRow{ID: "air_a_2017-04-23", StoreID: "air_a", VisitDate: day("2017-04-23"), Values: []float64{model.Sentinel}})

	preds, err := Forecast(context.Background(), f, &stepRegressor{delta: -0.6}, manifest)
	if err != nil {
		t.Fatal(err)
	}
	if preds[0].Visitors != 0 {
		t.Errorf("Visitors = %v, want clamped to 0", preds[0].Visitors)
	}
}

func TestForecastMultivariateInputs(t *testing.T) {
	f := &Framed{
		Mode:     model.ModeMultivariate,
		Lookback: 1,
		Scaler:   &MinMaxScaler{Min: []float64{0, 0}, Max: []float64{1, 6}},
		Columns:  []string{ColVisitors, ColDow},
		// var1(t-1), var2(t-1), var2(t)
		InputIndex: []int{0, 1, 3},
		History:    [][]float64{{0.1, 0.5}},
	}
	manifest := manifestRows([]string{ColVisitors, ColDow},
		model.FeatureRow{ID: "b", VisitDate: day("2017-04-24"), Values: []float64{model.Sentinel, 0}},
		model.FeatureRow{ID: "a", VisitDate: day("2017-04-23"), Values: []float64{model.Sentinel, 6}},
	)

	reg := &stepRegressor{delta: 0.2}
	if _, err := Forecast(context.Background(), f, reg, manifest); err != nil {
		t.Fatal(err)
	}
	if len(reg.inputs) != 2 {
		t.Fatalf("Predict() called %d times, want 2", len(reg.inputs))
	}

	first := reg.inputs[0][0][0]
	if first[0] != 0.1 || first[1] != 0.5 || first[2] != 1 {
		t.Errorf("first input = %v, want [0.1 0.5 1]", first)
	}
	second := reg.inputs[1][0][0]
	if math.Abs(second[0]-0.3) > 1e-12 || second[1] != 1 || second[2] != 0 {
		t.Errorf("second input = %v, want [0.3 1 0]", second)
	}
}

func TestForecastCancelled(t *testing.T) {
	f := &Framed{
		Mode:     model.ModeUnivariate,
		Lookback: 1,
		Scaler:   &MinMaxScaler{Min: []float64{0}, Max: []float64{1}},
		Columns:  []string{ColVisitors},
		History:  [][]float64{{0.1}},
	}
	manifest := manifestRows([]string{ColVisitors},
		model.FeatureRow{ID: "a", VisitDate: day("2017-04-23"), Values: []float64{model.Sentinel}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Forecast(ctx, f, &stepRegressor{}, manifest); err == nil {
		t.Error("Forecast() on a cancelled context did not fail")
	}
}
