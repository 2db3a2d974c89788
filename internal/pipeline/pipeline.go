package pipeline

import (
	"context"
	"fmt"
	"time"

	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/metrics"
	"visitor-forecast/internal/model"
	"visitor-forecast/internal/regressor"
	"visitor-forecast/internal/store"
	"visitor-forecast/pkg/utils"
)

// RegressorFactory builds the regressor trained for one framing mode
type RegressorFactory func(mode string, spec model.ModelSpec) regressor.Regressor

// NewLSTMRegressor is the default RegressorFactory
func NewLSTMRegressor(_ string, spec model.ModelSpec) regressor.Regressor {
	return regressor.NewLSTM(regressor.ConfigFromSpec(spec))
}

// Runner executes forecasting runs. DB and Outputs may be nil; runs are then
// tracked in memory and default exports go to ./outputs.
type Runner struct {
	DB           *store.DB
	Outputs      *utils.OutputManager
	NewRegressor RegressorFactory
}

// Result is everything a finished run produced
type Result struct {
	RunID       string                `json:"run_id"`
	Evaluations []model.Evaluation    `json:"evaluations"`
	Predictions []model.Prediction    `json:"predictions,omitempty"`
	Exports     []model.ExportResult  `json:"exports,omitempty"`
	Stages      []model.StageProgress `json:"stages"`
	Duration    time.Duration         `json:"duration"`
}

// inputs are the decoded source tables of a run
type inputs struct {
	airReserve []model.Reservation
	hpgReserve []model.Reservation
	airInfo    []model.StoreInfo
	hpgInfo    []model.StoreInfo
	relations  []model.StoreRelation
	visits     []model.Visit
	calendar   []model.CalendarDay
	targets    []model.TargetRow
}

// ------------------- Pipeline Runner -------------------

// Run executes every stage of a run in order. Any stage error aborts the run,
// which is then marked failed with the error recorded.
func (r *Runner) Run(ctx context.Context, runID string, spec model.RunSpec) (res *Result, err error) {
	start := time.Now()
	tracker := NewRunTracker(runID, r.DB)
	logging.Info().Str("run_id", runID).Strs("modes", spec.Framer.Modes).Msg("Starting forecasting run")
	tracker.SetStatus(model.StatusRunning)

	defer func() {
		if err != nil {
			tracker.Fail(err)
		}
	}()

	res = &Result{RunID: runID}

	// --- LOAD ---
	tracker.SetStatus(model.StatusLoading)
	in, err := r.load(ctx, tracker, spec)
	if err != nil {
		return nil, err
	}

	// --- AGGREGATE ---
	tracker.SetStatus(model.StatusAggregating)
	tracker.StartStage(StageAggregate)
	airAgg := AggregateReservations(in.airReserve, spec.Features.ClampNegativeLead)
	hpgNorm, mismatches := NormalizeStoreIDs(in.hpgReserve, in.relations)
	hpgAgg := AggregateReservations(hpgNorm, spec.Features.ClampNegativeLead)
	if mismatches > 0 {
		tracker.Log(StageAggregate, "warn", ErrJoinKeyMismatch.Error(), map[string]interface{}{
			"source": SourceHPGReserve,
			"rows":   mismatches,
		})
	}
	tracker.EndStage(StageAggregate, len(airAgg)+len(hpgAgg), nil)
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	// --- PROFILE ---
	tracker.SetStatus(model.StatusProfiling)
	tracker.StartStage(StageProfile)
	meta := NewStoreMetadata(in.airInfo, in.hpgInfo, in.relations, spec.Features.HPGMetadataFallback)
	enc := FitProfileEncoders(in.visits, meta)
	profiles := BuildStoreProfiles(in.visits, ManifestStores(in.targets), meta, enc)
	tracker.Log(StageProfile, "debug", "Label encoders fitted", map[string]interface{}{
		"genres": len(enc.Genre.Classes()),
		"areas":  len(enc.Area.Classes()),
	})
	tracker.EndStage(StageProfile, len(profiles), nil)

	// --- ASSEMBLE ---
	tracker.SetStatus(model.StatusAssembling)
	tracker.StartStage(StageAssemble)
	join := AssembleInputs{
		Profiles:       profiles,
		AirAggregates:  airAgg,
		HPGAggregates:  hpgAgg,
		Calendar:       in.calendar,
		IncludeHoliday: spec.Features.IncludeHoliday,
	}
	history := AssembleDataset(VisitAnchors(in.visits), join)
	manifest := AssembleDataset(TargetAnchors(in.targets), join)
	tracker.EndStage(StageAssemble, len(history.Rows)+len(manifest.Rows), nil)
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	// --- TRAIN ---
	tracker.SetStatus(model.StatusTraining)
	framed := make(map[string]*Framed, len(spec.Framer.Modes))
	models := make(map[string]regressor.Regressor, len(spec.Framer.Modes))
	histories := make(map[string]model.TrainingHistory, len(spec.Framer.Modes))
	for _, mode := range spec.Framer.Modes {
		stage := StageTrain + "_" + mode
		tracker.StartStage(stage)
		f, reg, hist, e := r.train(ctx, mode, history, spec)
		tracker.EndStage(stage, len(hist.Loss), e)
		if e != nil {
			return nil, fmt.Errorf("train %s: %w", mode, e)
		}
		framed[mode], models[mode], histories[mode] = f, reg, hist
	}

	// --- EVALUATE ---
	tracker.SetStatus(model.StatusEvaluating)
	tracker.StartStage(StageEvaluate)
	for _, mode := range spec.Framer.Modes {
		var eval model.Evaluation
		eval, err = r.evaluate(framed[mode], models[mode], histories[mode], spec.Evaluate)
		if err != nil {
			tracker.EndStage(StageEvaluate, len(res.Evaluations), err)
			return nil, err
		}
		if r.DB != nil {
			if err = r.DB.SaveEvaluation(runID, eval); err != nil {
				tracker.EndStage(StageEvaluate, len(res.Evaluations), err)
				return nil, fmt.Errorf("failed to save evaluation: %w", err)
			}
		}
		tracker.Log(StageEvaluate, "info", "Test error", map[string]interface{}{
			"mode":   eval.Mode,
			"metric": eval.Metric,
			"space":  eval.Space,
			"value":  eval.Value,
		})
		res.Evaluations = append(res.Evaluations, eval)
	}
	tracker.EndStage(StageEvaluate, len(res.Evaluations), nil)

	if spec.Forecast.Enabled {
		// --- FORECAST ---
		tracker.SetStatus(model.StatusForecasting)
		tracker.StartStage(StageForecast)
		mode := spec.Forecast.Mode
		f, ok := framed[mode]
		if !ok {
			err = fmt.Errorf("forecast mode %q was not trained", mode)
			tracker.EndStage(StageForecast, 0, err)
			return nil, err
		}
		res.Predictions, err = Forecast(ctx, f, models[mode], manifest)
		tracker.EndStage(StageForecast, len(res.Predictions), err)
		if err != nil {
			return nil, err
		}

		// --- EXPORT ---
		tracker.SetStatus(model.StatusExporting)
		tracker.StartStage(StageExport)
		em := &ExportManager{RunID: runID, ExportSpec: spec.Export, DB: r.DB, Outputs: r.Outputs}
		res.Exports = em.ExportPredictions(ctx, res.Predictions)
		for _, ex := range res.Exports {
			if !ex.Success {
				err = fmt.Errorf("export to %s %s failed: %s", ex.Type, ex.Path, ex.Error)
				break
			}
		}
		tracker.EndStage(StageExport, len(res.Predictions), err)
		if err != nil {
			return nil, err
		}
	}

	res.Stages = tracker.Stages()
	res.Duration = time.Since(start)
	tracker.Complete()
	logging.Info().Str("run_id", runID).Dur("duration", res.Duration).Msg("Forecasting run completed")
	return res, nil
}

// load reads and decodes every source
func (r *Runner) load(ctx context.Context, tracker *RunTracker, spec model.RunSpec) (*inputs, error) {
	tracker.StartStage(StageLoad)
	in, rows, err := loadInputs(ctx, spec.Sources)
	tracker.EndStage(StageLoad, rows, err)
	return in, err
}

func loadInputs(ctx context.Context, sources model.Sources) (*inputs, int, error) {
	tables, err := LoadAll(ctx, sources)
	if err != nil {
		return nil, 0, err
	}
	rows := tables.AirReserve.Len() + tables.HPGReserve.Len() + tables.AirStoreInfo.Len() +
		tables.HPGStoreInfo.Len() + tables.StoreIDRelation.Len() + tables.AirVisitData.Len() +
		tables.DateInfo.Len() + tables.SampleSubmission.Len()

	in := &inputs{}
	if in.airReserve, err = DecodeReservations(tables.AirReserve, "air_store_id"); err != nil {
		return nil, rows, err
	}
	if in.hpgReserve, err = DecodeReservations(tables.HPGReserve, "hpg_store_id"); err != nil {
		return nil, rows, err
	}
	if in.airInfo, err = DecodeStoreInfo(tables.AirStoreInfo, "air"); err != nil {
		return nil, rows, err
	}
	if in.hpgInfo, err = DecodeStoreInfo(tables.HPGStoreInfo, "hpg"); err != nil {
		return nil, rows, err
	}
	if in.relations, err = DecodeRelations(tables.StoreIDRelation); err != nil {
		return nil, rows, err
	}
	if in.visits, err = DecodeVisits(tables.AirVisitData); err != nil {
		return nil, rows, err
	}
	if in.calendar, err = DecodeCalendar(tables.DateInfo); err != nil {
		return nil, rows, err
	}
	if in.targets, err = DecodeTargets(tables.SampleSubmission); err != nil {
		return nil, rows, err
	}
	return in, rows, nil
}

// train frames the dataset for a mode and fits its regressor, scoring the test
// split after every epoch
func (r *Runner) train(ctx context.Context, mode string, ds *model.Dataset, spec model.RunSpec) (*Framed, regressor.Regressor, model.TrainingHistory, error) {
	var f *Framed
	var err error
	switch mode {
	case model.ModeUnivariate:
		f, err = FrameUnivariate(ds, spec.Framer)
	case model.ModeMultivariate:
		f, err = FrameMultivariate(ds, spec.Framer)
	default:
		err = fmt.Errorf("unknown framing mode %q", mode)
	}
	if err != nil {
		return nil, nil, model.TrainingHistory{}, err
	}

	samples, steps, features := f.TrainX.Shape()
	logging.Debug().
		Str("mode", mode).
		Int("samples", samples).
		Int("steps", steps).
		Int("features", features).
		Int("test_samples", len(f.TestY)).
		Msg("Dataset framed")

	factory := r.NewRegressor
	if factory == nil {
		factory = NewLSTMRegressor
	}
	reg := factory(mode, spec.Model)
	hist, err := reg.Fit(ctx, f.TrainX, f.TrainY, &model.Validation{X: f.TestX, Y: f.TestY})
	if err != nil {
		return nil, nil, hist, err
	}

	loss, valLoss := hist.Final()
	metrics.TrainingLoss.WithLabelValues(mode, "train").Set(loss)
	metrics.TrainingLoss.WithLabelValues(mode, "validation").Set(valLoss)
	return f, reg, hist, nil
}

// evaluate predicts the test split of a mode and scores it
func (r *Runner) evaluate(f *Framed, reg regressor.Regressor, hist model.TrainingHistory, spec model.EvaluateSpec) (model.Evaluation, error) {
	pred, err := reg.Predict(f.TestX)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("predict %s test split: %w", f.Mode, err)
	}
	eval, err := Evaluate(f, pred, spec)
	if err != nil {
		return model.Evaluation{}, err
	}
	eval.TrainLoss, eval.ValLoss = hist.Final()
	eval.CreatedAt = time.Now().UTC()
	metrics.EvaluationError.WithLabelValues(eval.Mode, eval.Metric, eval.Space).Set(eval.Value)
	return eval, nil
}
