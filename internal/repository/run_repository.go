package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/loi-backend-go/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// RunRepository handles database operations for pipeline runs
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	id, base_name, status, params_json, total_rows, skipped_rows,
	location_count, start_time, end_time, result_summary, error_message,
	created_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*models.Run, error) {
	run := &models.Run{}
	err := s.Scan(
		&run.ID,
		&run.BaseName,
		&run.Status,
		&run.ParamsJSON,
		&run.TotalRows,
		&run.SkippedRows,
		&run.LocationCount,
		&run.StartTime,
		&run.EndTime,
		&run.ResultSummary,
		&run.ErrorMessage,
		&run.CreatedBy,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	return run, err
}

// Create creates a new run
func (r *RunRepository) Create(run *models.Run) error {
	query := `
		INSERT INTO runs (
			id, base_name, status, params_json, total_rows, skipped_rows,
			location_count, start_time, end_time, result_summary, error_message,
			created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	_, err := r.db.Exec(query,
		run.ID,
		run.BaseName,
		run.Status,
		run.ParamsJSON,
		run.TotalRows,
		run.SkippedRows,
		run.LocationCount,
		run.StartTime,
		run.EndTime,
		run.ResultSummary,
		run.ErrorMessage,
		run.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// List retrieves runs, newest first, optionally filtered by status
func (r *RunRepository) List(status string, limit int, offset int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`

	args := []interface{}{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// MarkAsRunning marks a run as running
func (r *RunRepository) MarkAsRunning(id string) error {
	query := `
		UPDATE runs
		SET status = ?, start_time = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.db.Exec(query, models.RunStatusRunning, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark run as running: %w", err)
	}

	return nil
}

// MarkAsCompleted marks a run as completed with its counts and result summary
func (r *RunRepository) MarkAsCompleted(id string, totalRows, skippedRows, locations int, resultSummary string) error {
	query := `
		UPDATE runs
		SET status = ?, end_time = ?, total_rows = ?, skipped_rows = ?,
			location_count = ?, result_summary = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.db.Exec(query, models.RunStatusCompleted, time.Now().Unix(),
		totalRows, skippedRows, locations, resultSummary, id)
	if err != nil {
		return fmt.Errorf("failed to mark run as completed: %w", err)
	}

	return nil
}

// MarkAsFailed marks a run as failed with an error message
func (r *RunRepository) MarkAsFailed(id string, errorMessage string) error {
	query := `
		UPDATE runs
		SET status = ?, end_time = ?, error_message = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.db.Exec(query, models.RunStatusFailed, time.Now().Unix(), errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to mark run as failed: %w", err)
	}

	return nil
}

// FailInterrupted marks runs left pending or running by a previous process as failed
func (r *RunRepository) FailInterrupted() (int64, error) {
	query := `
		UPDATE runs
		SET status = ?, end_time = ?, error_message = 'interrupted by restart',
			updated_at = CURRENT_TIMESTAMP
		WHERE status IN (?, ?)
	`

	res, err := r.db.Exec(query, models.RunStatusFailed, time.Now().Unix(),
		models.RunStatusPending, models.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted runs: %w", err)
	}

	return res.RowsAffected()
}
