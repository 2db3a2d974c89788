package regressor

import (
	"context"
	"errors"
	"math"
	"testing"

	"visitor-forecast/internal/model"
)

func constantSeries(n int, v float64) (model.Tensor, []float64) {
	x := make(model.Tensor, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = [][]float64{{v}}
		y[i] = v
	}
	return x, y
}

func TestLSTMPredictShape(t *testing.T) {
	x, y := constantSeries(12, 0.3)
	lstm := NewLSTM(DefaultConfig())

	history, err := lstm.Fit(context.Background(), x, y, &model.Validation{X: x[:4], Y: y[:4]})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(history.Loss) != 3 || len(history.ValLoss) != 3 {
		t.Errorf("history = %d loss / %d val_loss entries, want 3 each", len(history.Loss), len(history.ValLoss))
	}

	out, err := lstm.Predict(x[:5])
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(out) != 5 {
		t.Errorf("Predict() returned %d values, want 5", len(out))
	}
}

func TestLSTMDeterministic(t *testing.T) {
	x, y := constantSeries(20, 0.7)
	cfg := DefaultConfig()
	cfg.BatchSize = 5

	a, b := NewLSTM(cfg), NewLSTM(cfg)
	if _, err := a.Fit(context.Background(), x, y, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Fit(context.Background(), x, y, nil); err != nil {
		t.Fatal(err)
	}
	pa, _ := a.Predict(x)
	pb, _ := b.Predict(x)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("prediction %d differs between seeded runs: %v vs %v", i, pa[i], pb[i])
		}
	}
}

func TestLSTMLossDecreases(t *testing.T) {
	x, y := constantSeries(50, 0.5)
	cfg := DefaultConfig()
	cfg.Epochs = 40
	cfg.BatchSize = 10
	cfg.LearningRate = 0.01

	history, err := NewLSTM(cfg).Fit(context.Background(), x, y, nil)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	first, last := history.Loss[0], history.Loss[len(history.Loss)-1]
	if !(last < first) {
		t.Errorf("loss did not decrease: first %v, last %v", first, last)
	}
}

// TestLSTMGradient compares the backward pass with central differences.
func TestLSTMGradient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Units = 3
	lstm := NewLSTM(cfg)
	lstm.init(2)
	sample := [][]float64{{0.2, -0.4}, {0.9, 0.1}, {-0.3, 0.5}}
	target := 0.25

	loss := func() float64 {
		out, _ := lstm.forward(sample)
		return (out - target) * (out - target)
	}

	grad := make([]float64, len(lstm.params))
	out, caches := lstm.forward(sample)
	lstm.backward(caches, 2*(out-target), grad)

	const eps = 1e-6
	for i := range lstm.params {
		orig := lstm.params[i]
		lstm.params[i] = orig + eps
		up := loss()
		lstm.params[i] = orig - eps
		down := loss()
		lstm.params[i] = orig

		numeric := (up - down) / (2 * eps)
		if math.Abs(numeric-grad[i]) > 1e-5+1e-3*math.Abs(numeric) {
			t.Fatalf("param %d: analytic gradient %v, numeric %v", i, grad[i], numeric)
		}
	}
}

func TestLSTMErrors(t *testing.T) {
	lstm := NewLSTM(DefaultConfig())
	x, y := constantSeries(3, 0.1)

	if _, err := lstm.Predict(x); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Predict() before Fit error = %v, want ErrNotFitted", err)
	}

	ragged := model.Tensor{{{0.1}}, {{0.1, 0.2}}}
	if _, err := lstm.Fit(context.Background(), ragged, []float64{1, 2}, nil); !errors.Is(err, ErrShape) {
		t.Errorf("Fit() ragged error = %v, want ErrShape", err)
	}

	if _, err := lstm.Fit(context.Background(), x, y[:2], nil); !errors.Is(err, ErrShape) {
		t.Errorf("Fit() short targets error = %v, want ErrShape", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lstm.Fit(ctx, x, y, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit() cancelled error = %v, want context.Canceled", err)
	}
}
