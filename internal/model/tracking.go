package model

import "time"

// Run statuses, in the order a successful run passes through them
const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusLoading     = "loading"
	StatusAggregating = "aggregating"
	StatusProfiling   = "profiling"
	StatusAssembling  = "assembling"
	StatusTraining    = "training"
	StatusEvaluating  = "evaluating"
	StatusForecasting = "forecasting"
	StatusExporting   = "exporting"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// RunRecord is a run as stored in the registry
type RunRecord struct {
	ID        string    `json:"id"`
	Spec      *RunSpec  `json:"spec,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageProgress tracks one pipeline stage of a run
type StageProgress struct {
	Stage     string     `json:"stage"`
	Status    string     `json:"status"` // "started", "completed", "failed"
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Rows      int        `json:"rows"`
	Errors    int        `json:"errors"`
}

// LogEntry is a stage log line persisted for a run
type LogEntry struct {
	Stage     string                 `json:"stage"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// RunError is a fatal error recorded for a run
type RunError struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
