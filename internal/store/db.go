package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"visitor-forecast/internal/model"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

// DB is the SQLite run registry
type DB struct {
	conn *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		spec TEXT,
		status TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		error_message TEXT,
		created_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS stage_progress (
		run_id TEXT,
		stage TEXT,
		status TEXT,
		started_at DATETIME,
		ended_at DATETIME,
		rows INTEGER,
		errors INTEGER,
		PRIMARY KEY (run_id, stage)
	);`,
	`CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		stage TEXT,
		level TEXT,
		message TEXT,
		details TEXT,
		created_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		mode TEXT,
		metric TEXT,
		space TEXT,
		value REAL,
		train_samples INTEGER,
		test_samples INTEGER,
		train_loss REAL,
		val_loss REAL,
		created_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS predictions (
		run_id TEXT,
		row_id TEXT,
		store_id TEXT,
		visit_date DATETIME,
		visitors REAL,
		PRIMARY KEY (run_id, row_id)
	);`,
}

// Open connects to the registry at path and creates missing tables
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise get its own empty database
		conn.SetMaxOpenConns(1)
	}
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create registry schema: %w", err)
		}
	}
	return &DB{conn: conn}, nil
}

// Close releases the connection pool
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks the registry connection
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// ---- Runs ----

// SaveRun stores a new run in pending state
func (d *DB) SaveRun(runID string, spec model.RunSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = d.conn.Exec(`INSERT INTO runs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(specJSON), model.StatusPending, now, now)
	return err
}

// UpdateRunStatus updates run status
func (d *DB) UpdateRunStatus(runID string, status string) error {
	now := time.Now().UTC()
	_, err := d.conn.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)
	return err
}

// SaveRunError records an error for a run
func (d *DB) SaveRunError(runID string, err error) error {
	if err == nil {
		return nil
	}
	now := time.Now().UTC()
	_, e := d.conn.Exec(`INSERT INTO run_errors (run_id, error_message, created_at) VALUES (?, ?, ?)`,
		runID, err.Error(), now)
	return e
}

// ListRuns returns all runs, newest first, without their specs
func (d *DB) ListRuns() ([]model.RunRecord, error) {
	rows, err := d.conn.Query(`SELECT id, status, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.RunRecord{}
	for rows.Next() {
		var r model.RunRecord
		if err := rows.Scan(&r.ID, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches a run with its spec
func (d *DB) GetRun(runID string) (*model.RunRecord, error) {
	var specJSON string
	r := &model.RunRecord{ID: runID}

	err := d.conn.QueryRow(`SELECT spec, status, created_at, updated_at FROM runs WHERE id = ?`, runID).
		Scan(&specJSON, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var spec model.RunSpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return nil, fmt.Errorf("failed to decode spec of run %s: %w", runID, err)
	}
	r.Spec = &spec
	return r, nil
}

// GetRunErrors returns the errors recorded for a run, oldest first
func (d *DB) GetRunErrors(runID string) ([]model.RunError, error) {
	rows, err := d.conn.Query(`SELECT error_message, created_at FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.RunError{}
	for rows.Next() {
		var e model.RunError
		if err := rows.Scan(&e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Stage tracking ----

// SaveStageProgress inserts or replaces the progress of one stage
func (d *DB) SaveStageProgress(runID, stage, status string, startedAt, endedAt *time.Time, rows, errs int) error {
	_, err := d.conn.Exec(`
		INSERT INTO stage_progress (run_id, stage, status, started_at, ended_at, rows, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, stage) DO UPDATE SET
			status = excluded.status,
			started_at = COALESCE(excluded.started_at, stage_progress.started_at),
			ended_at = excluded.ended_at,
			rows = excluded.rows,
			errors = excluded.errors`,
		runID, stage, status, nullTime(startedAt), nullTime(endedAt), rows, errs)
	return err
}

// GetStageProgress returns the stages of a run in the order they started
func (d *DB) GetStageProgress(runID string) ([]model.StageProgress, error) {
	rows, err := d.conn.Query(`SELECT stage, status, started_at, ended_at, rows, errors
		FROM stage_progress WHERE run_id = ? ORDER BY started_at, rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.StageProgress{}
	for rows.Next() {
		var p model.StageProgress
		var started, ended sql.NullTime
		if err := rows.Scan(&p.Stage, &p.Status, &started, &ended, &p.Rows, &p.Errors); err != nil {
			return nil, err
		}
		if started.Valid {
			p.StartedAt = &started.Time
		}
		if ended.Valid {
			p.EndedAt = &ended.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePipelineLog persists a stage log line
func (d *DB) SavePipelineLog(runID, stage, level, message string, details map[string]interface{}) error {
	var detailsJSON []byte
	if len(details) > 0 {
		var err error
		if detailsJSON, err = json.Marshal(details); err != nil {
			return err
		}
	}
	_, err := d.conn.Exec(`INSERT INTO run_logs (run_id, stage, level, message, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, stage, level, message, string(detailsJSON), time.Now().UTC())
	return err
}

// GetRunLogs returns the persisted log lines of a run, oldest first
func (d *DB) GetRunLogs(runID string) ([]model.LogEntry, error) {
	rows, err := d.conn.Query(`SELECT stage, level, message, details, created_at FROM run_logs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.LogEntry{}
	for rows.Next() {
		var e model.LogEntry
		var details string
		if err := rows.Scan(&e.Stage, &e.Level, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Results ----

// SaveEvaluation stores the test error of one mode
func (d *DB) SaveEvaluation(runID string, e model.Evaluation) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := d.conn.Exec(`INSERT INTO evaluations
		(run_id, mode, metric, space, value, train_samples, test_samples, train_loss, val_loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, e.Mode, e.Metric, e.Space, e.Value, e.TrainSamples, e.TestSamples, e.TrainLoss, e.ValLoss, e.CreatedAt)
	return err
}

// GetEvaluations returns the evaluations of a run in insertion order
func (d *DB) GetEvaluations(runID string) ([]model.Evaluation, error) {
	rows, err := d.conn.Query(`SELECT mode, metric, space, value, train_samples, test_samples, train_loss, val_loss, created_at
		FROM evaluations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Evaluation{}
	for rows.Next() {
		var e model.Evaluation
		if err := rows.Scan(&e.Mode, &e.Metric, &e.Space, &e.Value, &e.TrainSamples, &e.TestSamples,
			&e.TrainLoss, &e.ValLoss, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SavePredictions replaces the predictions of a run in one transaction
func (d *DB) SavePredictions(runID string, preds []model.Prediction) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM predictions WHERE run_id = ?`, runID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO predictions (run_id, row_id, store_id, visit_date, visitors) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range preds {
		if _, err := stmt.Exec(runID, p.ID, p.StoreID, p.VisitDate, p.Visitors); err != nil {
			return fmt.Errorf("failed to save prediction %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// GetPredictions returns the predictions of a run in the order they were saved
func (d *DB) GetPredictions(runID string) ([]model.Prediction, error) {
	rows, err := d.conn.Query(`SELECT row_id, store_id, visit_date, visitors FROM predictions WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Prediction{}
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.ID, &p.StoreID, &p.VisitDate, &p.Visitors); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
