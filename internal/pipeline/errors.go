package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors of the forecasting pipeline.
var (
	// ErrSourceUnavailable is returned when an input table cannot be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSchemaMismatch is returned when an expected column is absent or unparseable.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrJoinKeyMismatch marks a join key with no normalized counterpart. It is
	// counted and logged, never returned from a run.
	ErrJoinKeyMismatch = errors.New("join key mismatch")

	// ErrDegenerateWindow is returned when a split is too short for the lookback.
	ErrDegenerateWindow = errors.New("degenerate window")
)

// StageError adds the failing stage, source and column to a pipeline error.
type StageError struct {
	Stage  string
	Source string
	Column string
	Cause  error
}

func (e *StageError) Error() string {
	msg := e.Stage
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" (column %s)", e.Column)
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func sourceUnavailable(source string, err error) error {
	return &StageError{Stage: "load", Source: source, Cause: fmt.Errorf("%w: %v", ErrSourceUnavailable, err)}
}

func schemaMismatch(source, column, detail string) error {
	return &StageError{Stage: "load", Source: source, Column: column, Cause: fmt.Errorf("%w: %s", ErrSchemaMismatch, detail)}
}
