package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"visitor-forecast/internal/logging"
	"visitor-forecast/internal/model"
	"visitor-forecast/internal/store"
	"visitor-forecast/pkg/utils"
)

// DefaultPredictionsFile is written when no export target is configured
const DefaultPredictionsFile = "predictions.csv"

// ExportManager writes the predictions of a run to its configured targets
type ExportManager struct {
	RunID      string
	ExportSpec model.Export
	DB         *store.DB
	Outputs    *utils.OutputManager
}

// ExportPredictions writes predictions to every configured target and returns
// one result per target. With no target configured a default CSV is written
// into the run's output directory.
func (em *ExportManager) ExportPredictions(ctx context.Context, preds []model.Prediction) []model.ExportResult {
	var results []model.ExportResult

	if em.ExportSpec.File != "" {
		results = append(results, em.exportToFile(em.ExportSpec.File, preds))
	}
	if em.ExportSpec.DB != "" {
		results = append(results, em.exportToDatabase(ctx, preds))
	}
	if em.ExportSpec.File == "" && em.ExportSpec.DB == "" {
		results = append(results, em.exportToDefaultCSV(preds))
	}
	return results
}

// exportToFile exports predictions to a file (CSV or JSON)
func (em *ExportManager) exportToFile(path string, preds []model.Prediction) model.ExportResult {
	var err error
	var recordCount int

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		recordCount, err = em.exportToJSON(path, preds)
	default:
		recordCount, err = em.exportToCSV(path, preds)
	}

	result := model.ExportResult{
		Type:        "file",
		Path:        path,
		RecordCount: recordCount,
		Success:     err == nil,
		Timestamp:   time.Now().UTC(),
	}
	if err != nil {
		result.Error = err.Error()
		logging.Error().Err(err).Str("run_id", em.RunID).Str("path", path).Msg("Export to file failed")
	} else {
		logging.Info().Str("run_id", em.RunID).Str("path", path).Int("records", recordCount).Msg("Predictions exported to file")
	}
	return result
}

// exportToCSV writes the submission format: id,visitors
func (em *ExportManager) exportToCSV(path string, preds []model.Prediction) (int, error) {
	file, err := createFile(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"id", "visitors"}); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	recordCount := 0
	for _, p := range preds {
		if err := writer.Write([]string{p.ID, strconv.FormatFloat(p.Visitors, 'f', -1, 64)}); err != nil {
			return recordCount, fmt.Errorf("failed to write row: %w", err)
		}
		recordCount++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return recordCount, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return recordCount, nil
}

// exportToJSON writes predictions under an export_info header
func (em *ExportManager) exportToJSON(path string, preds []model.Prediction) (int, error) {
	file, err := createFile(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := map[string]interface{}{
		"export_info": map[string]interface{}{
			"run_id":       em.RunID,
			"exported_at":  time.Now().UTC(),
			"record_count": len(preds),
			"export_type":  "predictions",
		},
		"data": preds,
	}
	if err := encoder.Encode(exportData); err != nil {
		return 0, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return len(preds), nil
}

// exportToDatabase saves predictions into the run registry
func (em *ExportManager) exportToDatabase(ctx context.Context, preds []model.Prediction) model.ExportResult {
	result := model.ExportResult{
		Type:      "database",
		Path:      "predictions",
		Timestamp: time.Now().UTC(),
	}

	var err error
	switch {
	case em.DB == nil:
		err = fmt.Errorf("export.db is %q but no registry is open", em.ExportSpec.DB)
	case ctx.Err() != nil:
		err = ctx.Err()
	default:
		err = em.DB.SavePredictions(em.RunID, preds)
	}

	if err != nil {
		result.Error = err.Error()
		logging.Error().Err(err).Str("run_id", em.RunID).Msg("Export to database failed")
		return result
	}
	result.Success = true
	result.RecordCount = len(preds)
	logging.Info().Str("run_id", em.RunID).Int("records", len(preds)).Msg("Predictions exported to registry")
	return result
}

// exportToDefaultCSV writes predictions.csv into the run's output directory
func (em *ExportManager) exportToDefaultCSV(preds []model.Prediction) model.ExportResult {
	om := em.Outputs
	if om == nil {
		om = utils.NewOutputManager("")
	}
	path, err := om.GetOutputFilePath(em.RunID, DefaultPredictionsFile)
	if err != nil {
		return model.ExportResult{Type: "file", Error: err.Error(), Timestamp: time.Now().UTC()}
	}
	return em.exportToFile(path, preds)
}

// createFile creates path and its parent directories
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return file, nil
}
