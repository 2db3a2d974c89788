package pipeline

import (
	"fmt"
	"math"
	"sort"

	"visitor-forecast/internal/model"
)

// ---- Scaling ----

// MinMaxScaler rescales every column linearly into [0, 1] using the fitted range
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// FitMinMax learns the per-column range of the rows
func FitMinMax(rows [][]float64) *MinMaxScaler {
	if len(rows) == 0 {
		return &MinMaxScaler{}
	}
	width := len(rows[0])
	s := &MinMaxScaler{Min: make([]float64, width), Max: make([]float64, width)}
	for j := 0; j < width; j++ {
		s.Min[j], s.Max[j] = math.Inf(1), math.Inf(-1)
	}
	for _, row := range rows {
		for j, v := range row {
			s.Min[j] = math.Min(s.Min[j], v)
			s.Max[j] = math.Max(s.Max[j], v)
		}
	}
	return s
}

// Scale maps a value of column j into the fitted range. A constant column scales to 0.
func (s *MinMaxScaler) Scale(j int, v float64) float64 {
	span := s.Max[j] - s.Min[j]
	if span == 0 {
		return 0
	}
	return (v - s.Min[j]) / span
}

// Inverse undoes Scale for column j. A constant column inverts to its minimum.
func (s *MinMaxScaler) Inverse(j int, v float64) float64 {
	return v*(s.Max[j]-s.Min[j]) + s.Min[j]
}

// Transform scales every row into a new matrix
func (s *MinMaxScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = s.Scale(j, v)
		}
	}
	return out
}

// InverseColumn inverse-scales values of a single column
func (s *MinMaxScaler) InverseColumn(j int, values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.Inverse(j, v)
	}
	return out
}

// Log1p returns log(1+x) of every value
func Log1p(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Log1p(v)
	}
	return out
}

// Expm1 returns exp(x)-1 of every value
func Expm1(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Expm1(v)
	}
	return out
}

// ---- Windowing ----

// CreateDataset slides a lookback window over the series. Sample i holds
// series[i:i+lookback] and targets series[i+lookback]; N-lookback samples result.
func CreateDataset(series []float64, lookback int) ([][]float64, []float64) {
	n := len(series) - lookback
	if lookback < 1 || n <= 0 {
		return nil, nil
	}
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = append([]float64(nil), series[i:i+lookback]...)
		y[i] = series[i+lookback]
	}
	return x, y
}

// Supervised is a matrix reframed as lagged inputs and current outputs with
// named columns.
type Supervised struct {
	Columns []string
	Rows    [][]float64
}

// SeriesToSupervised reframes a matrix of K variables into columns
// var{j}(t-i) for i = nIn..1 followed by var{j}(t), var{j}(t+i) for i < nOut.
// Rows without a complete window are dropped.
func SeriesToSupervised(matrix [][]float64, nIn, nOut int) *Supervised {
	sup := &Supervised{}
	if len(matrix) == 0 {
		return sup
	}
	k := len(matrix[0])
	for i := nIn; i > 0; i-- {
		for j := 1; j <= k; j++ {
			sup.Columns = append(sup.Columns, fmt.Sprintf("var%d(t-%d)", j, i))
		}
	}
	for i := 0; i < nOut; i++ {
		for j := 1; j <= k; j++ {
			if i == 0 {
				sup.Columns = append(sup.Columns, fmt.Sprintf("var%d(t)", j))
			} else {
				sup.Columns = append(sup.Columns, fmt.Sprintf("var%d(t+%d)", j, i))
			}
		}
	}

	for t := nIn; t+nOut <= len(matrix); t++ {
		row := make([]float64, 0, len(sup.Columns))
		for i := nIn; i > 0; i-- {
			row = append(row, matrix[t-i]...)
		}
		for i := 0; i < nOut; i++ {
			row = append(row, matrix[t+i]...)
		}
		sup.Rows = append(sup.Rows, row)
	}
	return sup
}

// Index returns the position of a reframed column or -1
func (s *Supervised) Index(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ChronologicalSplit returns floor(fraction*n), the number of leading rows in the training split
func ChronologicalSplit(n int, fraction float64) int {
	return int(math.Floor(fraction * float64(n)))
}

// SortByDate returns the dataset rows ordered by visit date; equal dates keep their order
func SortByDate(ds *model.Dataset) *model.Dataset {
	rows := append([]model.FeatureRow(nil), ds.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].VisitDate.Before(rows[j].VisitDate)
	})
	return &model.Dataset{Columns: ds.Columns, Rows: rows}
}

// ---- Framing ----

// Framed is a dataset framed for one mode, with everything needed to invert
// the scaling and to continue the sequence past its end.
type Framed struct {
	Mode     string
	Lookback int

	TrainX model.Tensor
	TrainY []float64
	TestX  model.Tensor
	TestY  []float64

	// Scaler covers the selected columns; column 0 is log1p(visitors).
	Scaler *MinMaxScaler
	// Columns are the dataset columns forming the scaled matrix.
	Columns []string
	// Inputs are the reframed columns fed to the model and InputIndex their positions.
	Inputs     []string
	InputIndex []int
	// History is the scaled matrix of the whole framed dataset in date order.
	History [][]float64
}

// targetColumn is the position of log1p(visitors) in every scaled matrix
const targetColumn = 0

// FrameUnivariate frames log1p(visitors) alone. The scaler is fit on the
// training split only; each split is windowed separately.
func FrameUnivariate(ds *model.Dataset, spec model.FramerSpec) (*Framed, error) {
	sorted := SortByDate(ds)
	matrix, err := selectMatrix(sorted, []string{ColVisitors})
	if err != nil {
		return nil, err
	}

	lookback := spec.Lookback
	nTrain := ChronologicalSplit(len(matrix), spec.UnivariateTrainFraction)
	if nTrain <= lookback || len(matrix)-nTrain <= lookback {
		return nil, fmt.Errorf("%w: %d train and %d test rows for lookback %d",
			ErrDegenerateWindow, nTrain, len(matrix)-nTrain, lookback)
	}

	scaler := FitMinMax(matrix[:nTrain])
	scaled := scaler.Transform(matrix)
	series := column(scaled, targetColumn)

	trainX, trainY := CreateDataset(series[:nTrain], lookback)
	testX, testY := CreateDataset(series[nTrain:], lookback)

	return &Framed{
		Mode:       model.ModeUnivariate,
		Lookback:   lookback,
		TrainX:     windowTensor(trainX),
		TrainY:     trainY,
		TestX:      windowTensor(testX),
		TestY:      testY,
		Scaler:     scaler,
		Columns:    []string{ColVisitors},
		Inputs:     []string{"var1(t-1)"},
		InputIndex: []int{0},
		History:    scaled,
	}, nil
}

// FrameMultivariate frames the selected feature columns as one-step
// supervised pairs. The scaler is fit on the leading training-fraction rows of
// the matrix, the reframed columns are pruned by the drop list and var1(t) is
// the target.
func FrameMultivariate(ds *model.Dataset, spec model.FramerSpec) (*Framed, error) {
	if spec.Lookback != 1 {
		return nil, fmt.Errorf("multivariate framing needs lookback 1, got %d", spec.Lookback)
	}
	cols := MultivariateColumns(ds.Columns, spec.Features)
	sorted := SortByDate(ds)
	matrix, err := selectMatrix(sorted, cols)
	if err != nil {
		return nil, err
	}

	nFit := ChronologicalSplit(len(matrix), spec.MultivariateTrainFraction)
	if nFit < 1 {
		return nil, fmt.Errorf("%w: %d rows leave no training rows", ErrDegenerateWindow, len(matrix))
	}
	scaler := FitMinMax(matrix[:nFit])
	scaled := scaler.Transform(matrix)

	sup := SeriesToSupervised(scaled, 1, 1)
	target := sup.Index("var1(t)")
	inputs, inputIdx, err := selectInputs(sup, len(cols), spec)
	if err != nil {
		return nil, err
	}

	nTrain := ChronologicalSplit(len(sup.Rows), spec.MultivariateTrainFraction)
	if nTrain < 1 || len(sup.Rows)-nTrain < 1 {
		return nil, fmt.Errorf("%w: %d train and %d test pairs",
			ErrDegenerateWindow, nTrain, len(sup.Rows)-nTrain)
	}

	f := &Framed{
		Mode:       model.ModeMultivariate,
		Lookback:   1,
		Scaler:     scaler,
		Columns:    cols,
		Inputs:     inputs,
		InputIndex: inputIdx,
		History:    scaled,
	}
	f.TrainX, f.TrainY = pairTensor(sup.Rows[:nTrain], inputIdx, target)
	f.TestX, f.TestY = pairTensor(sup.Rows[nTrain:], inputIdx, target)
	return f, nil
}

// MultivariateColumns returns the selected feature columns with visitors first.
// An empty selection keeps every dataset column.
func MultivariateColumns(available, selected []string) []string {
	if len(selected) == 0 {
		selected = available
	}
	cols := []string{ColVisitors}
	for _, c := range selected {
		if c != ColVisitors {
			cols = append(cols, c)
		}
	}
	return cols
}

// selectInputs applies the drop list to the reframed columns and returns the
// remaining input columns; the target var1(t) is never an input.
func selectInputs(sup *Supervised, k int, spec model.FramerSpec) ([]string, []int, error) {
	drop := map[string]bool{"var1(t)": true}
	if spec.DropCurrentStep {
		for j := 2; j <= k; j++ {
			drop[fmt.Sprintf("var%d(t)", j)] = true
		}
	}
	for _, name := range spec.DropColumns {
		if sup.Index(name) < 0 {
			return nil, nil, fmt.Errorf("drop column %q is not a reframed column", name)
		}
		drop[name] = true
	}

	var names []string
	var idx []int
	for i, c := range sup.Columns {
		if !drop[c] {
			names = append(names, c)
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, nil, fmt.Errorf("drop list removes every input column")
	}
	return names, idx, nil
}

// selectMatrix extracts the named columns row by row, with visitors as log1p.
// Unknown visitors (the sentinel) are taken as zero.
func selectMatrix(ds *model.Dataset, cols []string) ([][]float64, error) {
	idx := make([]int, len(cols))
	for j, c := range cols {
		if idx[j] = ds.Index(c); idx[j] < 0 {
			return nil, fmt.Errorf("%w: feature column %q not in dataset", ErrSchemaMismatch, c)
		}
	}
	matrix := make([][]float64, len(ds.Rows))
	for i, row := range ds.Rows {
		matrix[i] = make([]float64, len(cols))
		for j := range cols {
			matrix[i][j] = row.Values[idx[j]]
		}
		if cols[0] == ColVisitors {
			matrix[i][0] = math.Log1p(math.Max(matrix[i][0], 0))
		}
	}
	return matrix, nil
}

func column(matrix [][]float64, j int) []float64 {
	out := make([]float64, len(matrix))
	for i, row := range matrix {
		out[i] = row[j]
	}
	return out
}

// windowTensor shapes univariate windows as (samples, lookback, 1)
func windowTensor(windows [][]float64) model.Tensor {
	t := make(model.Tensor, len(windows))
	for i, w := range windows {
		t[i] = make([][]float64, len(w))
		for s, v := range w {
			t[i][s] = []float64{v}
		}
	}
	return t
}

// pairTensor shapes reframed rows as (samples, 1, inputs) plus their targets
func pairTensor(rows [][]float64, inputIdx []int, target int) (model.Tensor, []float64) {
	x := make(model.Tensor, len(rows))
	y := make([]float64, len(rows))
	for i, row := range rows {
		x[i] = [][]float64{pick(row, inputIdx)}
		y[i] = row[target]
	}
	return x, y
}

func pick(row []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = row[j]
	}
	return out
}
