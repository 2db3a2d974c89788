package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"visitor-forecast/internal/config"
	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/model"
	"visitor-forecast/internal/pipeline"
	"visitor-forecast/internal/store"
	"visitor-forecast/pkg/router"
	"visitor-forecast/pkg/utils"
)

// RunHandler serves the run registry and starts forecasting runs
type RunHandler struct {
	DB       *store.DB
	Outputs  *utils.OutputManager
	Runner   *pipeline.Runner
	Defaults model.RunSpec
	Timeout  time.Duration

	wg sync.WaitGroup
}

// NewRunHandler creates a handler whose runs share db and outputs
func NewRunHandler(db *store.DB, outputs *utils.OutputManager, defaults model.RunSpec, timeout time.Duration) *RunHandler {
	return &RunHandler{
		DB:       db,
		Outputs:  outputs,
		Runner:   &pipeline.Runner{DB: db, Outputs: outputs},
		Defaults: defaults,
		Timeout:  timeout,
	}
}

// Wait blocks until every started run has returned
func (h *RunHandler) Wait() {
	h.wg.Wait()
}

// CreateRun starts a new forecasting run
// @Summary Create a run
// @Description Start a forecasting run. Fields left out of the body take the configured defaults.
// @Description Sources are fixed by the server configuration and an export file is written into the run's output directory.
// @Tags runs
// @Accept json
// @Produce json
// @Param run body model.RunSpec false "Run settings"
// @Success 202 {object} map[string]interface{} "Run accepted"
// @Failure 400 {object} map[string]interface{} "Invalid run"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [post]
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	spec := cloneSpec(h.Defaults)
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}

	// 1. Validate payload
	if err := config.ValidateRunSpec(spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if spec.Sources != h.Defaults.Sources {
		writeError(w, http.StatusBadRequest, "Sources cannot be set per run")
		return
	}

	// 2. Generate run ID and save it
	runID := uuid.New().String()
	if spec.Export.File != "" {
		base, ok := exportFileName(spec.Export.File)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid export file %q", spec.Export.File))
			return
		}
		path, err := h.Outputs.GetOutputFilePath(runID, base)
		if err != nil {
			logging.Error().Err(err).Str("run_id", runID).Msg("Failed to create run output directory")
			writeError(w, http.StatusInternalServerError, "Failed to create run output directory")
			return
		}
		spec.Export.File = path
	}
	if err := h.DB.SaveRun(runID, spec); err != nil {
		logging.Error().Err(err).Str("run_id", runID).Msg("Failed to save run")
		writeError(w, http.StatusInternalServerError, "Failed to save run")
		return
	}

	// 3. Start the run asynchronously
	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		// failures are recorded on the run by the pipeline itself
		_, _ = h.Runner.Run(ctx, runID, spec)
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "Run created",
		"run_id":     runID,
		"status":     model.StatusPending,
		"created_at": time.Now().UTC(),
	})
}

// ListRuns lists every run
// @Summary List runs
// @Tags runs
// @Produce json
// @Success 200 {array} model.RunRecord
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.DB.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run with its spec and status
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunRecord
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunErrors returns the errors recorded for a run
// @Summary Get run errors
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/errors [get]
func (h *RunHandler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	errs, err := h.DB.GetRunErrors(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve errors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"errors": errs,
		"count":  len(errs),
	})
}

// GetEvaluations returns the test error of every trained mode
// @Summary Get run evaluations
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Evaluations"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/evaluations [get]
func (h *RunHandler) GetEvaluations(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	evals, err := h.DB.GetEvaluations(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve evaluations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      run.ID,
		"evaluations": evals,
		"count":       len(evals),
	})
}

// GetPredictions returns the forecast of every manifest row
// @Summary Get run predictions
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Predictions"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/predictions [get]
func (h *RunHandler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	preds, err := h.DB.GetPredictions(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve predictions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      run.ID,
		"predictions": preds,
		"count":       len(preds),
	})
}

// GetRunLogs returns the stage logs of a run
// @Summary Get run logs
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Logs"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/logs [get]
func (h *RunHandler) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	logs, err := h.DB.GetRunLogs(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"logs":   logs,
		"count":  len(logs),
	})
}

// GetRunProgress returns the progress of every stage of a run
// @Summary Get run progress
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Stage progress"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/progress [get]
func (h *RunHandler) GetRunProgress(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	stages, err := h.DB.GetStageProgress(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve progress")
		return
	}
	completed := 0
	for _, s := range stages {
		if s.Status == "completed" {
			completed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    run.ID,
		"status":    run.Status,
		"stages":    stages,
		"completed": completed,
	})
}

// ListRunFiles lists the output files of a run
// @Summary List run files
// @Tags files
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Files"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/files [get]
func (h *RunHandler) ListRunFiles(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	names, err := h.Outputs.ListRunFiles(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve files")
		return
	}
	files := make([]map[string]string, 0, len(names))
	for _, name := range names {
		files = append(files, map[string]string{
			"name": name,
			"type": h.Outputs.GetFileType(name),
			"url":  h.Outputs.GetDownloadURL(run.ID, name),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"files":  files,
		"count":  len(files),
	})
}

// DownloadFile serves an output file of a run
// @Summary Download file
// @Tags files
// @Produce application/octet-stream
// @Param id path string true "Run ID"
// @Param name path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 404 {object} map[string]interface{} "File not found"
// @Router /runs/{id}/files/{name} [get]
func (h *RunHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	runID, name := router.Param(r, "id"), router.Param(r, "name")
	path, err := h.Outputs.ResolveFile(runID, name)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

// Health reports whether the registry is reachable
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Failure 503 {object} map[string]interface{} "Registry unavailable"
// @Router /health [get]
func (h *RunHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// lookup fetches the run named by the id parameter, writing 404 when unknown
func (h *RunHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.RunRecord, bool) {
	runID := router.Param(r, "id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return nil, false
	}
	run, err := h.DB.GetRun(runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run")
		return nil, false
	}
	return run, true
}

// exportFileName keeps only the base name of a requested export file
func exportFileName(file string) (string, bool) {
	base := filepath.Base(file)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", false
	}
	return base, true
}

// cloneSpec copies the slices of a spec so request bodies never alias the defaults
func cloneSpec(s model.RunSpec) model.RunSpec {
	s.Framer.Modes = append([]string(nil), s.Framer.Modes...)
	s.Framer.Features = append([]string(nil), s.Framer.Features...)
	s.Framer.DropColumns = append([]string(nil), s.Framer.DropColumns...)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
