package database

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dev/bravebird/messenger-e2e/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schema string

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates the tables that do not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(schema) {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// schemaStatements splits the schema file on statement terminators
func schemaStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// ==================== Suite Runs ====================

// CreateSuiteRun creates a new suite run
func (db *DB) CreateSuiteRun(ctx context.Context, run *models.SuiteRun) error {
	query := `
		INSERT INTO suite_runs (id, temporal_run_id, temporal_workflow_id, status, scenarios, update_snapshots)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	scenarios, err := encodeScenarios(run.Scenarios)
	if err != nil {
		return err
	}
	run.ScenariosJSON = scenarios

	_, err = db.conn.ExecContext(ctx, query,
		run.ID,
		run.TemporalRunID,
		run.TemporalWorkflowID,
		run.Status,
		run.ScenariosJSON,
		run.UpdateSnapshots,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

const suiteRunColumns = `id, temporal_run_id, temporal_workflow_id, status, scenarios,
		       update_snapshots, started_at, completed_at, COALESCE(error_message, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanSuiteRun(row scanner) (*models.SuiteRun, error) {
	var run models.SuiteRun
	err := row.Scan(
		&run.ID,
		&run.TemporalRunID,
		&run.TemporalWorkflowID,
		&run.Status,
		&run.ScenariosJSON,
		&run.UpdateSnapshots,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	run.Scenarios = decodeScenarios(run.ScenariosJSON)
	return &run, nil
}

// GetSuiteRun retrieves a suite run by ID. A missing run is (nil, nil).
func (db *DB) GetSuiteRun(ctx context.Context, id string) (*models.SuiteRun, error) {
	query := `SELECT ` + suiteRunColumns + ` FROM suite_runs WHERE id = ?`

	run, err := scanSuiteRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListSuiteRuns retrieves the most recent runs, newest first
func (db *DB) ListSuiteRuns(ctx context.Context, limit int) ([]models.SuiteRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + suiteRunColumns + ` FROM suite_runs ORDER BY started_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SuiteRun
	for rows.Next() {
		run, err := scanSuiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateSuiteRunStatus updates the status of a suite run
func (db *DB) UpdateSuiteRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE suite_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'failed', 'canceled') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// SetTemporalIDs records the workflow execution backing a run
func (db *DB) SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error {
	query := `UPDATE suite_runs SET temporal_workflow_id = ?, temporal_run_id = ? WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, workflowID, runID, id); err != nil {
		return fmt.Errorf("failed to set temporal ids: %w", err)
	}
	return nil
}

// ==================== Scenario Results ====================

// CreateScenarioResult stores a scenario outcome together with its
// verification attempts
func (db *DB) CreateScenarioResult(ctx context.Context, result *models.ScenarioResult) error {
	query := `
		INSERT INTO scenario_results (id, run_id, scenario, status, retry_count, screenshot_path, error_message, executed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, query,
		result.ID,
		result.RunID,
		result.Scenario,
		result.Status,
		result.RetryCount,
		result.ScreenshotPath,
		result.ErrorMessage,
		result.ExecutedAt,
		result.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	if err := insertAttempts(ctx, tx, result.ID, result.Attempts); err != nil {
		return err
	}
	return tx.Commit()
}

// GetScenarioResults retrieves the results of a run, with their attempts
func (db *DB) GetScenarioResults(ctx context.Context, runID string) ([]models.ScenarioResult, error) {
	query := `
		SELECT id, run_id, scenario, status, retry_count, screenshot_path,
		       COALESCE(error_message, ''), executed_at, duration_ms
		FROM scenario_results
		WHERE run_id = ?
		ORDER BY executed_at
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []models.ScenarioResult
	for rows.Next() {
		var result models.ScenarioResult
		err := rows.Scan(
			&result.ID,
			&result.RunID,
			&result.Scenario,
			&result.Status,
			&result.RetryCount,
			&result.ScreenshotPath,
			&result.ErrorMessage,
			&result.ExecutedAt,
			&result.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	rows.Close()

	for i := range results {
		attempts, err := db.GetVerificationAttempts(ctx, results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Attempts = attempts
	}
	return results, nil
}

// ==================== Verification Attempts ====================

// CreateVerificationAttempts appends attempts to a stored result
func (db *DB) CreateVerificationAttempts(ctx context.Context, resultID string, attempts []models.VerificationAttempt) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAttempts(ctx, tx, resultID, attempts); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAttempts(ctx context.Context, tx *sql.Tx, resultID string, attempts []models.VerificationAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	query := `
		INSERT INTO verification_attempts (result_id, verification, attempt_index, elapsed_ms, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		_, err := stmt.ExecContext(ctx,
			resultID,
			a.Verification,
			a.Index,
			a.ElapsedMs,
			a.Success,
			a.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}
	}
	return nil
}

// GetVerificationAttempts retrieves the attempts of a result in order
func (db *DB) GetVerificationAttempts(ctx context.Context, resultID string) ([]models.VerificationAttempt, error) {
	query := `
		SELECT verification, attempt_index, elapsed_ms, success, COALESCE(error_message, '')
		FROM verification_attempts
		WHERE result_id = ?
		ORDER BY verification, attempt_index
	`

	rows, err := db.conn.QueryContext(ctx, query, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.VerificationAttempt
	for rows.Next() {
		var a models.VerificationAttempt
		if err := rows.Scan(&a.Verification, &a.Index, &a.ElapsedMs, &a.Success, &a.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func encodeScenarios(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("failed to encode scenarios: %w", err)
	}
	return string(data), nil
}

func decodeScenarios(raw string) []string {
	var names []string
	if raw == "" {
		return nil
	}
	// rows written by hand may hold anything; an unreadable list is empty
	_ = json.Unmarshal([]byte(raw), &names)
	return names
}
