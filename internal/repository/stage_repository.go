package repository

import (
	"database/sql"
	"fmt"

	"github.com/jengzang/loi-backend-go/internal/models"
)

// StageRepository handles database operations for run stages
type StageRepository struct {
	db *sql.DB
}

// NewStageRepository creates a new stage repository
func NewStageRepository(db *sql.DB) *StageRepository {
	return &StageRepository{db: db}
}

// Upsert inserts or replaces the stage row identified by (run_id, seq)
func (r *StageRepository) Upsert(stage *models.RunStage) error {
	query := `
		INSERT INTO run_stages (
			run_id, seq, name, status, input_count, output_count,
			duration_ms, error_message, start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			status = excluded.status,
			input_count = excluded.input_count,
			output_count = excluded.output_count,
			duration_ms = excluded.duration_ms,
			error_message = excluded.error_message,
			end_time = excluded.end_time
	`

	_, err := r.db.Exec(query,
		stage.RunID,
		stage.Seq,
		stage.Name,
		stage.Status,
		stage.InputCount,
		stage.OutputCount,
		stage.DurationMS,
		stage.ErrorMessage,
		stage.StartTime,
		stage.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to save stage %s: %w", stage.Name, err)
	}

	return nil
}

// ListByRun returns the stages of a run in execution order
func (r *StageRepository) ListByRun(runID string) ([]*models.RunStage, error) {
	query := `
		SELECT run_id, seq, name, status, input_count, output_count,
			   duration_ms, error_message, start_time, end_time
		FROM run_stages
		WHERE run_id = ?
		ORDER BY seq
	`

	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	stages := []*models.RunStage{}
	for rows.Next() {
		s := &models.RunStage{}
		err := rows.Scan(
			&s.RunID,
			&s.Seq,
			&s.Name,
			&s.Status,
			&s.InputCount,
			&s.OutputCount,
			&s.DurationMS,
			&s.ErrorMessage,
			&s.StartTime,
			&s.EndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, s)
	}

	return stages, rows.Err()
}
