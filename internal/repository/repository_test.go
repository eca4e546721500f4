package repository

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/jengzang/loi-backend-go/internal/database"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "loi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createRun(t *testing.T, repo *RunRepository, id string) *models.Run {
	t.Helper()
	run := &models.Run{ID: id, BaseName: "loi_" + id, ParamsJSON: `{"buffer_distance":50}`}
	require.NoError(t, repo.Create(run))
	return run
}

func TestRunRepository_Lifecycle(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	createRun(t, repo, "run-1")

	run, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, "loi_run-1", run.BaseName)
	assert.False(t, run.CreatedAt.IsZero())

	require.NoError(t, repo.MarkAsRunning("run-1"))
	run, err = repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.NotZero(t, run.StartTime)

	require.NoError(t, repo.MarkAsCompleted("run-1", 10, 2, 3, `{"locations":3}`))
	run, err = repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 10, run.TotalRows)
	assert.Equal(t, 2, run.SkippedRows)
	assert.Equal(t, 3, run.LocationCount)
	assert.Equal(t, `{"locations":3}`, run.ResultSummary)
	assert.NotZero(t, run.EndTime)
}

func TestRunRepository_GetByIDNotFound(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	_, err := repo.GetByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepository_ListAndFailInterrupted(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	createRun(t, repo, "a")
	createRun(t, repo, "b")
	createRun(t, repo, "c")
	require.NoError(t, repo.MarkAsFailed("a", "boom"))
	require.NoError(t, repo.MarkAsRunning("b"))

	all, err := repo.List("", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	failed, err := repo.List(models.RunStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].ErrorMessage)

	page, err := repo.List("", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	n, err := repo.FailInterrupted()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	failed, err = repo.List(models.RunStatusFailed, 10, 0)
	require.NoError(t, err)
	assert.Len(t, failed, 3)
}

func TestStageRepository_Upsert(t *testing.T) {
	db := newTestDB(t)
	createRun(t, NewRunRepository(db), "run-1")
	repo := NewStageRepository(db)

	require.NoError(t, repo.Upsert(&models.RunStage{RunID: "run-1", Seq: 2, Name: "filter", Status: models.RunStatusRunning, StartTime: 100}))
	require.NoError(t, repo.Upsert(&models.RunStage{RunID: "run-1", Seq: 1, Name: "geocode", Status: models.RunStatusCompleted, InputCount: 5, OutputCount: 4}))
	require.NoError(t, repo.Upsert(&models.RunStage{
		RunID: "run-1", Seq: 2, Name: "filter", Status: models.RunStatusFailed,
		InputCount: 4, DurationMS: 12, ErrorMessage: "bad", StartTime: 999, EndTime: 112,
	}))

	stages, err := repo.ListByRun("run-1")
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "geocode", stages[0].Name)
	assert.Equal(t, 4, stages[0].OutputCount)
	assert.Equal(t, models.RunStatusFailed, stages[1].Status)
	assert.Equal(t, "bad", stages[1].ErrorMessage)
	assert.EqualValues(t, 100, stages[1].StartTime, "start time kept from the first write")
	assert.EqualValues(t, 112, stages[1].EndTime)
}

func TestStageRepository_UnknownRun(t *testing.T) {
	repo := NewStageRepository(newTestDB(t))
	err := repo.Upsert(&models.RunStage{RunID: "nope", Seq: 1, Name: "geocode", Status: models.RunStatusRunning})
	assert.Error(t, err)
}

func TestArtifactRepository(t *testing.T) {
	db := newTestDB(t)
	createRun(t, NewRunRepository(db), "run-1")
	repo := NewArtifactRepository(db)

	first := &models.RunArtifact{RunID: "run-1", Name: "IP_Locations", Kind: models.ArtifactKindIntermediate, Path: "/tmp/a.geojson", FeatureCount: 3}
	second := &models.RunArtifact{RunID: "run-1", Name: "loi.shp", Kind: models.ArtifactKindOutput, Path: "/tmp/loi.shp", FeatureCount: 1}
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))
	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	artifacts, err := repo.ListByRun("run-1")
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "IP_Locations", artifacts[0].Name)
	assert.Equal(t, models.ArtifactKindOutput, artifacts[1].Kind)

	none, err := repo.ListByRun("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocationRepository_SaveBatch(t *testing.T) {
	db := newTestDB(t)
	createRun(t, NewRunRepository(db), "run-1")
	repo := NewLocationRepository(db)

	engine := spatial.NewEngine(0)
	shape, err := engine.Shape(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}})
	require.NoError(t, err)

	station := "CITY WEST"
	locs := []models.Location{
		{ID: 1, Shape: shape, IncidentCount: 5, IdentityCount: 2, IncidentIndex: 1, IdentityIndex: 1, CompositeScore: 1, Rank: 1, PoliceJurisdiction: &station, Geohash: "r1r0fsn"},
		{ID: 0, IncidentCount: 1, IdentityCount: 1, CompositeScore: math.NaN(), Rank: 2},
	}
	require.NoError(t, repo.SaveBatch("run-1", locs))

	records, err := repo.ListByRun("run-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	top := records[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 1, top.LocationID)
	require.NotNil(t, top.PoliceJurisdiction)
	assert.Equal(t, "CITY WEST", *top.PoliceJurisdiction)
	require.NotNil(t, top.CompositeScore)
	assert.Equal(t, 1.0, *top.CompositeScore)
	require.NotNil(t, top.Geometry)
	assert.Equal(t, "Polygon", top.Geometry.GeoJSONType())

	assert.Nil(t, records[1].CompositeScore, "NaN stored as NULL")
	assert.Nil(t, records[1].PoliceJurisdiction)
	assert.Nil(t, records[1].Geometry)

	// saving again replaces rather than duplicates
	require.NoError(t, repo.SaveBatch("run-1", locs[:1]))
	records, err = repo.ListByRun("run-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
