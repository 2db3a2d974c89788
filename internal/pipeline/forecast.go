package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"visitor-forecast/internal/model"
	"visitor-forecast/internal/regressor"
)

// Forecast predicts the visitors of every manifest row recursively. Rows are
// visited in date order; the first window is seeded from the end of the framed
// history and each prediction becomes the visitors of the following step.
// Predictions are returned in manifest order, in visitor space, never negative.
func Forecast(ctx context.Context, f *Framed, reg regressor.Regressor, manifest *model.Dataset) ([]model.Prediction, error) {
	if len(f.History) < f.Lookback {
		return nil, fmt.Errorf("%w: history of %d rows for lookback %d", ErrDegenerateWindow, len(f.History), f.Lookback)
	}

	order := make([]int, len(manifest.Rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return manifest.Rows[order[a]].VisitDate.Before(manifest.Rows[order[b]].VisitDate)
	})

	sorted := &model.Dataset{Columns: manifest.Columns, Rows: make([]model.FeatureRow, len(order))}
	for i, idx := range order {
		sorted.Rows[i] = manifest.Rows[idx]
	}
	matrix, err := selectMatrix(sorted, f.Columns)
	if err != nil {
		return nil, err
	}
	scaled := f.Scaler.Transform(matrix)

	// window holds the last Lookback scaled rows, oldest first
	window := make([][]float64, f.Lookback)
	for i := range window {
		window[i] = append([]float64(nil), f.History[len(f.History)-f.Lookback+i]...)
	}

	preds := make([]model.Prediction, len(manifest.Rows))
	for step, idx := range order {
		if step%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		x, err := f.stepInput(window, scaled[step])
		if err != nil {
			return nil, err
		}
		out, err := reg.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("forecast step %d: %w", step, err)
		}
		yhat := out[0]

		current := append([]float64(nil), scaled[step]...)
		current[targetColumn] = yhat
		window = append(window[1:], current)

		row := manifest.Rows[idx]
		visitors := math.Expm1(f.Scaler.Inverse(targetColumn, yhat))
		preds[idx] = model.Prediction{
			ID:        row.ID,
			StoreID:   row.StoreID,
			VisitDate: row.VisitDate,
			Visitors:  math.Max(visitors, 0),
		}
	}
	return preds, nil
}

// stepInput builds the single-sample input tensor for the next step
func (f *Framed) stepInput(window [][]float64, current []float64) (model.Tensor, error) {
	switch f.Mode {
	case model.ModeUnivariate:
		steps := make([][]float64, len(window))
		for s, row := range window {
			steps[s] = []float64{row[targetColumn]}
		}
		return model.Tensor{steps}, nil
	case model.ModeMultivariate:
		reframed := append(append([]float64(nil), window[len(window)-1]...), current...)
		return model.Tensor{{pick(reframed, f.InputIndex)}}, nil
	}
	return nil, fmt.Errorf("unknown framing mode %q", f.Mode)
}
