// Package regressor defines the sequence regressor used by the forecasting
// pipeline and provides an LSTM implementation of it.
package regressor

import (
	"context"
	"errors"
	"fmt"

	"visitor-forecast/internal/model"
)

// Regressor maps input windows of shape (samples, steps, features) onto one
// value per sample.
type Regressor interface {
	// Fit trains on x and y; val, when set, is scored after every epoch.
	Fit(ctx context.Context, x model.Tensor, y []float64, val *model.Validation) (model.TrainingHistory, error)
	// Predict returns one value per sample of x.
	Predict(x model.Tensor) ([]float64, error)
}

// ErrNotFitted is returned by Predict before a successful Fit
var ErrNotFitted = errors.New("regressor is not fitted")

// ErrShape is returned for empty or ragged tensors
var ErrShape = errors.New("tensor shape mismatch")

// checkTensor verifies every sample has the same steps and features and returns them
func checkTensor(x model.Tensor) (steps, features int, err error) {
	samples, steps, features := x.Shape()
	if samples == 0 || steps == 0 || features == 0 {
		return 0, 0, fmt.Errorf("%w: empty tensor %dx%dx%d", ErrShape, samples, steps, features)
	}
	for i, sample := range x {
		if len(sample) != steps {
			return 0, 0, fmt.Errorf("%w: sample %d has %d steps, want %d", ErrShape, i, len(sample), steps)
		}
		for s, step := range sample {
			if len(step) != features {
				return 0, 0, fmt.Errorf("%w: sample %d step %d has %d features, want %d", ErrShape, i, s, len(step), features)
			}
		}
	}
	return steps, features, nil
}
