package pipeline

import (
	"sync"
	"time"

	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/metrics"
	"visitor-forecast/internal/model"
	"visitor-forecast/internal/store"
)

// Stage names as recorded in stage_progress
const (
	StageLoad      = "load"
	StageAggregate = "aggregate"
	StageProfile   = "profile"
	StageAssemble  = "assemble"
	StageTrain     = "train"
	StageEvaluate  = "evaluate"
	StageForecast  = "forecast"
	StageExport    = "export"
)

// RunTracker records status, stage progress and stage logs of one run in the
// registry, and stage timings in the metrics. A nil DB keeps progress in memory only.
type RunTracker struct {
	RunID string
	DB    *store.DB

	mu     sync.Mutex
	stages map[string]*model.StageProgress
	order  []string
}

// NewRunTracker creates a tracker for a run
func NewRunTracker(runID string, db *store.DB) *RunTracker {
	return &RunTracker{
		RunID:  runID,
		DB:     db,
		stages: make(map[string]*model.StageProgress),
	}
}

// SetStatus moves the run to a new status
func (t *RunTracker) SetStatus(status string) {
	logging.Debug().Str("run_id", t.RunID).Str("status", status).Msg("Run status changed")
	if t.DB == nil {
		return
	}
	if err := t.DB.UpdateRunStatus(t.RunID, status); err != nil {
		logging.Warn().Err(err).Str("run_id", t.RunID).Msg("Failed to update run status")
	}
}

// StartStage marks a stage as started
func (t *RunTracker) StartStage(stage string) {
	now := time.Now().UTC()

	t.mu.Lock()
	p := &model.StageProgress{Stage: stage, Status: "started", StartedAt: &now}
	if _, seen := t.stages[stage]; !seen {
		t.order = append(t.order, stage)
	}
	t.stages[stage] = p
	t.mu.Unlock()

	t.Log(stage, "info", "Stage started", nil)
	if t.DB != nil {
		if err := t.DB.SaveStageProgress(t.RunID, stage, p.Status, &now, nil, 0, 0); err != nil {
			logging.Warn().Err(err).Str("run_id", t.RunID).Str("stage", stage).Msg("Failed to save stage progress")
		}
	}
}

// EndStage marks a stage as completed, or failed when err is set, and records
// its duration and row count.
func (t *RunTracker) EndStage(stage string, rows int, err error) {
	now := time.Now().UTC()

	t.mu.Lock()
	p, ok := t.stages[stage]
	if !ok {
		p = &model.StageProgress{Stage: stage, StartedAt: &now}
		t.stages[stage] = p
		t.order = append(t.order, stage)
	}
	p.Status, p.EndedAt, p.Rows = "completed", &now, rows
	if err != nil {
		p.Status = "failed"
		p.Errors++
	}
	progress := *p
	t.mu.Unlock()

	duration := now.Sub(*progress.StartedAt)
	metrics.ObserveStage(stage, duration, rows)

	details := map[string]interface{}{
		"rows":        rows,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		details["error"] = err.Error()
		t.Log(stage, "error", "Stage failed", details)
	} else {
		t.Log(stage, "info", "Stage completed", details)
	}

	if t.DB != nil {
		if e := t.DB.SaveStageProgress(t.RunID, stage, progress.Status, progress.StartedAt, progress.EndedAt,
			progress.Rows, progress.Errors); e != nil {
			logging.Warn().Err(e).Str("run_id", t.RunID).Str("stage", stage).Msg("Failed to save stage progress")
		}
	}
}

// Log writes a structured log line and persists it as a stage log
func (t *RunTracker) Log(stage, level, msg string, details map[string]interface{}) {
	logger := logging.Logger()
	event := logger.Info()
	switch level {
	case "debug":
		event = logger.Debug()
	case "warn", "warning":
		event = logger.Warn()
	case "error":
		event = logger.Error()
	}
	event.Str("run_id", t.RunID).Str("stage", stage).Fields(details).Msg(msg)

	if t.DB != nil {
		if err := t.DB.SavePipelineLog(t.RunID, stage, level, msg, details); err != nil {
			logging.Warn().Err(err).Str("run_id", t.RunID).Msg("Failed to save pipeline log")
		}
	}
}

// Fail marks the run failed and records the error
func (t *RunTracker) Fail(err error) {
	metrics.RunsTotal.WithLabelValues(model.StatusFailed).Inc()
	logging.Error().Err(err).Str("run_id", t.RunID).Msg("Run failed")
	t.SetStatus(model.StatusFailed)
	if t.DB != nil {
		if e := t.DB.SaveRunError(t.RunID, err); e != nil {
			logging.Warn().Err(e).Str("run_id", t.RunID).Msg("Failed to save run error")
		}
	}
}

// Complete marks the run completed
func (t *RunTracker) Complete() {
	metrics.RunsTotal.WithLabelValues(model.StatusCompleted).Inc()
	t.SetStatus(model.StatusCompleted)
}

// Stages returns the progress of every stage in start order
func (t *RunTracker) Stages() []model.StageProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.StageProgress, 0, len(t.order))
	for _, s := range t.order {
		out = append(out, *t.stages[s])
	}
	return out
}
