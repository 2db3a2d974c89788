package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	if baseOutputDir == "" {
		baseOutputDir = "outputs"
	}
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// RunDir returns the directory holding a run's outputs without creating it
func (om *OutputManager) RunDir(runID string) string {
	return filepath.Join(om.BaseOutputDir, filepath.Base(runID))
}

// CreateRunOutputDir creates the per-run directory for a run's outputs
func (om *OutputManager) CreateRunOutputDir(runID string) (string, error) {
	runDir := om.RunDir(runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run output directory: %w", err)
	}

	return runDir, nil
}

// GetOutputFilePath generates a full path for an output file
func (om *OutputManager) GetOutputFilePath(runID, fileName string) (string, error) {
	runDir, err := om.CreateRunOutputDir(runID)
	if err != nil {
		return "", err
	}

	// Clean the filename to remove any path separators
	cleanFileName := filepath.Base(fileName)

	return filepath.Join(runDir, cleanFileName), nil
}

// ResolveFile returns the path of an existing output file of a run
func (om *OutputManager) ResolveFile(runID, fileName string) (string, error) {
	path := filepath.Join(om.RunDir(runID), filepath.Base(fileName))
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", fileName)
	}
	return path, nil
}

// ListRunFiles lists the output files written for a run
func (om *OutputManager) ListRunFiles(runID string) ([]string, error) {
	entries, err := os.ReadDir(om.RunDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// GetDownloadURL generates a download URL for a file
func (om *OutputManager) GetDownloadURL(runID, fileName string) string {
	cleanFileName := filepath.Base(fileName)
	return fmt.Sprintf("/api/v1/runs/%s/files/%s", runID, cleanFileName)
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	default:
		return "unknown"
	}
}
