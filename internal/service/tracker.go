package service

import (
	"time"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/metrics"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/repository"
)

// runTracker records pipeline progress in the run store
type runTracker struct {
	stages    *repository.StageRepository
	artifacts *repository.ArtifactRepository
}

func (t *runTracker) StageStarted(runID string, seq int, name string) error {
	return t.stages.Upsert(&models.RunStage{
		RunID:     runID,
		Seq:       seq,
		Name:      name,
		Status:    models.RunStatusRunning,
		StartTime: time.Now().Unix(),
	})
}

func (t *runTracker) StageFinished(runID string, seq int, name string, rep analysis.StageReport, elapsed time.Duration, stageErr error) error {
	stage := &models.RunStage{
		RunID:       runID,
		Seq:         seq,
		Name:        name,
		Status:      models.RunStatusCompleted,
		InputCount:  rep.Input,
		OutputCount: rep.Output,
		DurationMS:  elapsed.Milliseconds(),
		EndTime:     time.Now().Unix(),
	}
	if stageErr != nil {
		stage.Status = models.RunStatusFailed
		stage.ErrorMessage = stageErr.Error()
	}
	metrics.StageObserved(name, stage.Status, rep.Input, rep.Output, elapsed)
	return t.stages.Upsert(stage)
}

func (t *runTracker) ArtifactWritten(runID string, a analysis.Artifact, path string) error {
	return t.artifacts.Create(&models.RunArtifact{
		RunID:        runID,
		Name:         a.Name,
		Kind:         models.ArtifactKindIntermediate,
		Path:         path,
		FeatureCount: len(a.Features),
	})
}
