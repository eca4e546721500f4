package repository

import (
	"database/sql"
	"fmt"

	"github.com/jengzang/loi-backend-go/internal/models"
)

// ArtifactRepository handles database operations for run artifacts
type ArtifactRepository struct {
	db *sql.DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create records an artifact
func (r *ArtifactRepository) Create(a *models.RunArtifact) error {
	query := `
		INSERT INTO run_artifacts (run_id, name, kind, path, feature_count)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query, a.RunID, a.Name, a.Kind, a.Path, a.FeatureCount)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	a.ID = id
	return nil
}

// ListByRun returns the artifacts of a run in the order they were written
func (r *ArtifactRepository) ListByRun(runID string) ([]*models.RunArtifact, error) {
	query := `
		SELECT id, run_id, name, kind, path, feature_count, created_at
		FROM run_artifacts
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*models.RunArtifact{}
	for rows.Next() {
		a := &models.RunArtifact{}
		if err := rows.Scan(&a.ID, &a.RunID, &a.Name, &a.Kind, &a.Path, &a.FeatureCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, rows.Err()
}
