package store

import (
	"errors"
	"testing"
	"time"

	"visitor-forecast/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	spec := model.RunSpec{Framer: model.FramerSpec{Modes: []string{model.ModeUnivariate}, Lookback: 1}}

	if err := db.SaveRun("run-1", spec); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := db.UpdateRunStatus("run-1", model.StatusTraining); err != nil {
		t.Fatalf("UpdateRunStatus() error = %v", err)
	}

	run, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != model.StatusTraining {
		t.Errorf("Status = %q, want %q", run.Status, model.StatusTraining)
	}
	if run.Spec == nil || run.Spec.Framer.Modes[0] != model.ModeUnivariate {
		t.Errorf("Spec = %+v, want univariate framer", run.Spec)
	}

	runs, err := db.ListRuns()
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns() = %v, %v; want one run", runs, err)
	}

	if _, err := db.GetRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRunErrorsAndLogs(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveRunError("run-1", nil); err != nil {
		t.Errorf("SaveRunError(nil) = %v, want nil", err)
	}
	if err := db.SaveRunError("run-1", errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	errs, err := db.GetRunErrors("run-1")
	if err != nil || len(errs) != 1 || errs[0].Message != "boom" {
		t.Fatalf("GetRunErrors() = %v, %v", errs, err)
	}

	if err := db.SavePipelineLog("run-1", "load", "info", "Table loaded", map[string]interface{}{"rows": 3}); err != nil {
		t.Fatal(err)
	}
	if err := db.SavePipelineLog("run-1", "load", "warn", "no details", nil); err != nil {
		t.Fatal(err)
	}
	logs, err := db.GetRunLogs("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("GetRunLogs() returned %d entries, want 2", len(logs))
	}
	if rows, _ := logs[0].Details["rows"].(float64); rows != 3 {
		t.Errorf("Details[rows] = %v, want 3", logs[0].Details["rows"])
	}
	if logs[1].Details != nil {
		t.Errorf("Details = %v, want nil", logs[1].Details)
	}
}

func TestStageProgressUpsert(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2017, 4, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)

	if err := db.SaveStageProgress("run-1", "load", "started", &start, nil, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveStageProgress("run-1", "load", "completed", nil, &end, 42, 1); err != nil {
		t.Fatal(err)
	}

	progress, err := db.GetStageProgress("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 1 {
		t.Fatalf("GetStageProgress() returned %d stages, want 1", len(progress))
	}
	p := progress[0]
	if p.Status != "completed" || p.Rows != 42 || p.Errors != 1 {
		t.Errorf("progress = %+v, want completed with 42 rows and 1 error", p)
	}
	if p.StartedAt == nil || !p.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v kept from the first save", p.StartedAt, start)
	}
	if p.EndedAt == nil || !p.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", p.EndedAt, end)
	}
}

func TestEvaluationsAndPredictions(t *testing.T) {
	db := openTestDB(t)

	eval := model.Evaluation{Mode: model.ModeUnivariate, Metric: "rmse", Space: "log", Value: 0.5, TrainSamples: 7, TestSamples: 1}
	if err := db.SaveEvaluation("run-1", eval); err != nil {
		t.Fatal(err)
	}
	evals, err := db.GetEvaluations("run-1")
	if err != nil || len(evals) != 1 || evals[0].Value != 0.5 || evals[0].TrainSamples != 7 {
		t.Fatalf("GetEvaluations() = %+v, %v", evals, err)
	}

	date := time.Date(2017, 4, 23, 0, 0, 0, 0, time.UTC)
	preds := []model.Prediction{
		{ID: "air_b_2017-04-23", StoreID: "air_b", VisitDate: date, Visitors: 3},
		{ID: "air_a_2017-04-23", StoreID: "air_a", VisitDate: date, Visitors: 5},
	}
	if err := db.SavePredictions("run-1", preds); err != nil {
		t.Fatal(err)
	}
	// saving again replaces instead of duplicating
	if err := db.SavePredictions("run-1", preds); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetPredictions("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("GetPredictions() returned %d rows, want 2", len(got))
	}
	if got[0].ID != "air_b_2017-04-23" || got[1].Visitors != 5 {
		t.Errorf("GetPredictions() = %+v, want save order", got)
	}
	if !got[0].VisitDate.Equal(date) {
		t.Errorf("VisitDate = %v, want %v", got[0].VisitDate, date)
	}
}
