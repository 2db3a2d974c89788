package regressor

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/model"
)

// Config holds the LSTM hyperparameters
type Config struct {
	Units        int
	Epochs       int
	BatchSize    int
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	Seed         uint64
}

// DefaultConfig returns a single layer of 4 cells trained for 3 epochs with Adam
func DefaultConfig() Config {
	return Config{
		Units:        4,
		Epochs:       3,
		BatchSize:    100,
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		Seed:         524,
	}
}

// ConfigFromSpec builds the LSTM configuration of a run
func ConfigFromSpec(spec model.ModelSpec) Config {
	cfg := DefaultConfig()
	cfg.Units = spec.Units
	cfg.Epochs = spec.Epochs
	cfg.BatchSize = spec.BatchSize
	cfg.LearningRate = spec.LearningRate
	cfg.Seed = spec.Seed
	return cfg
}

// Gate order within the parameter vector
const (
	gateForget = iota
	gateInput
	gateCell
	gateOutput
	numGates
)

// LSTM is one recurrent layer of Units cells feeding a single linear output,
// trained on mean squared error by Adam with backpropagation through time.
//
// Parameters live in one flat vector: for each gate a Units x (features+Units)
// weight matrix over the concatenated [x_t, h_t-1] followed by Units biases,
// then the Units output weights and the output bias.
type LSTM struct {
	cfg      Config
	features int
	params   []float64

	// Adam moments
	m, v []float64
	t    int
}

// NewLSTM returns an untrained LSTM
func NewLSTM(cfg Config) *LSTM {
	return &LSTM{cfg: cfg}
}

func (l *LSTM) combined() int { return l.features + l.cfg.Units }
func (l *LSTM) gateSize() int { return l.cfg.Units*l.combined() + l.cfg.Units }

// weight returns the index of W_gate[k][j]
func (l *LSTM) weight(gate, k, j int) int {
	return gate*l.gateSize() + k*l.combined() + j
}

// bias returns the index of b_gate[k]
func (l *LSTM) bias(gate, k int) int {
	return gate*l.gateSize() + l.cfg.Units*l.combined() + k
}

func (l *LSTM) dense(k int) int { return numGates*l.gateSize() + k }
func (l *LSTM) denseBias() int  { return numGates*l.gateSize() + l.cfg.Units }

// init draws Glorot uniform weights from the seeded source; the forget gate
// bias starts at 1.
func (l *LSTM) init(features int) {
	l.features = features
	units := l.cfg.Units
	n := numGates*l.gateSize() + units + 1
	l.params = make([]float64, n)
	l.m = make([]float64, n)
	l.v = make([]float64, n)
	l.t = 0

	rng := rand.New(rand.NewPCG(l.cfg.Seed, l.cfg.Seed^0x9e3779b97f4a7c15))
	limit := math.Sqrt(6 / float64(l.combined()+numGates*units))
	for g := 0; g < numGates; g++ {
		for k := 0; k < units; k++ {
			for j := 0; j < l.combined(); j++ {
				l.params[l.weight(g, k, j)] = (rng.Float64()*2 - 1) * limit
			}
		}
	}
	for k := 0; k < units; k++ {
		l.params[l.bias(gateForget, k)] = 1
	}
	denseLimit := math.Sqrt(6 / float64(units+1))
	for k := 0; k < units; k++ {
		l.params[l.dense(k)] = (rng.Float64()*2 - 1) * denseLimit
	}
}

// stepCache keeps the activations of one time step for the backward pass
type stepCache struct {
	z          []float64 // [x_t, h_t-1]
	f, i, g, o []float64
	cPrev, c   []float64
	h          []float64
}

// forward runs one sample through the layer and returns the output and caches
func (l *LSTM) forward(sample [][]float64) (float64, []stepCache) {
	units := l.cfg.Units
	h := make([]float64, units)
	c := make([]float64, units)
	caches := make([]stepCache, len(sample))

	for s, x := range sample {
		z := make([]float64, 0, l.combined())
		z = append(z, x...)
		z = append(z, h...)

		sc := stepCache{
			z:     z,
			f:     l.applyGate(gateForget, z, sigmoid),
			i:     l.applyGate(gateInput, z, sigmoid),
			g:     l.applyGate(gateCell, z, math.Tanh),
			o:     l.applyGate(gateOutput, z, sigmoid),
			cPrev: c,
			c:     make([]float64, units),
			h:     make([]float64, units),
		}
		for k := 0; k < units; k++ {
			sc.c[k] = sc.f[k]*c[k] + sc.i[k]*sc.g[k]
			sc.h[k] = sc.o[k] * math.Tanh(sc.c[k])
		}
		caches[s] = sc
		h, c = sc.h, sc.c
	}

	y := l.params[l.denseBias()]
	for k := 0; k < units; k++ {
		y += l.params[l.dense(k)] * h[k]
	}
	return y, caches
}

func (l *LSTM) applyGate(gate int, z []float64, activation func(float64) float64) []float64 {
	out := make([]float64, l.cfg.Units)
	for k := range out {
		sum := l.params[l.bias(gate, k)]
		for j, v := range z {
			sum += l.params[l.weight(gate, k, j)] * v
		}
		out[k] = activation(sum)
	}
	return out
}

// backward accumulates the gradient of dLoss/dy through every time step
func (l *LSTM) backward(caches []stepCache, dy float64, grad []float64) {
	units := l.cfg.Units
	last := caches[len(caches)-1]

	dh := make([]float64, units)
	for k := 0; k < units; k++ {
		grad[l.dense(k)] += dy * last.h[k]
		dh[k] = dy * l.params[l.dense(k)]
	}
	grad[l.denseBias()] += dy

	dcNext := make([]float64, units)
	pre := make([][]float64, numGates)
	for g := range pre {
		pre[g] = make([]float64, units)
	}

	for s := len(caches) - 1; s >= 0; s-- {
		sc := caches[s]
		for k := 0; k < units; k++ {
			tc := math.Tanh(sc.c[k])
			do := dh[k] * tc
			dc := dcNext[k] + dh[k]*sc.o[k]*(1-tc*tc)

			pre[gateForget][k] = dc * sc.cPrev[k] * sc.f[k] * (1 - sc.f[k])
			pre[gateInput][k] = dc * sc.g[k] * sc.i[k] * (1 - sc.i[k])
			pre[gateCell][k] = dc * sc.i[k] * (1 - sc.g[k]*sc.g[k])
			pre[gateOutput][k] = do * sc.o[k] * (1 - sc.o[k])
			dcNext[k] = dc * sc.f[k]
		}

		dz := make([]float64, len(sc.z))
		for g := 0; g < numGates; g++ {
			for k := 0; k < units; k++ {
				p := pre[g][k]
				if p == 0 {
					continue
				}
				grad[l.bias(g, k)] += p
				for j, zj := range sc.z {
					idx := l.weight(g, k, j)
					grad[idx] += p * zj
					dz[j] += l.params[idx] * p
				}
			}
		}
		copy(dh, dz[l.features:])
	}
}

// adam applies one Adam update with the averaged gradient
func (l *LSTM) adam(grad []float64) {
	l.t++
	b1, b2 := l.cfg.Beta1, l.cfg.Beta2
	c1 := 1 - math.Pow(b1, float64(l.t))
	c2 := 1 - math.Pow(b2, float64(l.t))
	for i, g := range grad {
		l.m[i] = b1*l.m[i] + (1-b1)*g
		l.v[i] = b2*l.v[i] + (1-b2)*g*g
		mHat := l.m[i] / c1
		vHat := l.v[i] / c2
		l.params[i] -= l.cfg.LearningRate * mHat / (math.Sqrt(vHat) + l.cfg.Epsilon)
	}
}

// Fit trains the layer in order, batch by batch, without shuffling. The
// context is checked between batches.
func (l *LSTM) Fit(ctx context.Context, x model.Tensor, y []float64, val *model.Validation) (model.TrainingHistory, error) {
	var history model.TrainingHistory
	_, features, err := checkTensor(x)
	if err != nil {
		return history, err
	}
	if len(y) != len(x) {
		return history, fmt.Errorf("%w: %d samples, %d targets", ErrShape, len(x), len(y))
	}
	if val != nil {
		if _, vf, err := checkTensor(val.X); err != nil || vf != features || len(val.Y) != len(val.X) {
			return history, fmt.Errorf("%w: validation set does not match training input", ErrShape)
		}
	}
	if l.params == nil || l.features != features {
		l.init(features)
	}

	batch := l.cfg.BatchSize
	if batch < 1 {
		batch = len(x)
	}
	grad := make([]float64, len(l.params))

	for epoch := 0; epoch < l.cfg.Epochs; epoch++ {
		sumLoss := 0.0
		for start := 0; start < len(x); start += batch {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := min(start+batch, len(x))
			for i := range grad {
				grad[i] = 0
			}
			n := float64(end - start)
			for i := start; i < end; i++ {
				out, caches := l.forward(x[i])
				diff := out - y[i]
				sumLoss += diff * diff
				l.backward(caches, 2*diff/n, grad)
			}
			l.adam(grad)
		}

		history.Loss = append(history.Loss, sumLoss/float64(len(x)))
		if val != nil {
			history.ValLoss = append(history.ValLoss, l.mse(val.X, val.Y))
		}

		loss, valLoss := history.Final()
		logging.Debug().
			Int("epoch", epoch+1).
			Float64("loss", loss).
			Float64("val_loss", valLoss).
			Msg("LSTM epoch finished")
	}
	return history, nil
}

func (l *LSTM) mse(x model.Tensor, y []float64) float64 {
	sum := 0.0
	for i, sample := range x {
		out, _ := l.forward(sample)
		d := out - y[i]
		sum += d * d
	}
	return sum / float64(len(x))
}

// Predict returns the output for every sample
func (l *LSTM) Predict(x model.Tensor) ([]float64, error) {
	if l.params == nil {
		return nil, ErrNotFitted
	}
	_, features, err := checkTensor(x)
	if err != nil {
		return nil, err
	}
	if features != l.features {
		return nil, fmt.Errorf("%w: %d features, model trained on %d", ErrShape, features, l.features)
	}
	out := make([]float64, len(x))
	for i, sample := range x {
		out[i], _ = l.forward(sample)
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	if x < -500 {
		return 0
	}
	if x > 500 {
		return 1
	}
	return 1 / (1 + math.Exp(-x))
}
