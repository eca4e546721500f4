package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/config"
	"github.com/jengzang/loi-backend-go/internal/database"
	"github.com/jengzang/loi-backend-go/internal/layers"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc *RunService
	cfg *config.Config
	req RunRequest
	dir string
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

// newFixture writes a small planar scenario: two events near the origin, one
// far east, and one row with an unparseable latitude.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Pipeline.SourceCRS = spatial.EPSGUTMZone55S
	cfg.Pipeline.TargetCRS = spatial.EPSGUTMZone55S
	cfg.Pipeline.InputDir = dir
	cfg.Pipeline.WorkDir = filepath.Join(dir, "work")
	cfg.Pipeline.OutputDir = filepath.Join(dir, "out")
	cfg.Pipeline.ReportFormat = "csv"

	events := "IP LAT,IP LON,CUSTOMER I,CUSTOMER N,IP ADDRESS\n" +
		"0,0,A1,Alice,10.0.0.1\n" +
		"0,30,A2,Bob,10.0.0.2\n" +
		"0,1000,A3,Carol,10.0.0.3\n" +
		"abc,5,A4,Dan,10.0.0.4\n"
	eventsPath := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(eventsPath, []byte(events), 0o644))

	jurisdictionPath := filepath.Join(dir, "jurisdiction.geojson")
	require.NoError(t, layers.WriteGeoJSON(jurisdictionPath, []models.Feature{
		{Geometry: square(-5000, -5000, 5000, 5000), Properties: map[string]interface{}{"NAME": "CITY"}},
	}))

	policePath := filepath.Join(dir, "police.geojson")
	require.NoError(t, layers.WriteGeoJSON(policePath, []models.Feature{
		{Geometry: square(-5000, -5000, 500, 5000), Properties: map[string]interface{}{"VicPolSTN": "WEST"}},
		{Geometry: square(500, -5000, 5000, 5000), Properties: map[string]interface{}{"VicPolSTN": "EAST"}},
	}))

	addressPath := filepath.Join(dir, "addresses.geojson")
	require.NoError(t, layers.WriteGeoJSON(addressPath, []models.Feature{
		{Geometry: orb.Point{10, 0}, Properties: map[string]interface{}{"EZI_ADD": "1 MAIN ST"}},
		{Geometry: orb.Point{3000, 3000}, Properties: map[string]interface{}{"EZI_ADD": "99 FAR RD"}},
	}))

	db, err := database.Open(filepath.Join(dir, "loi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewRunService(cfg, db, zap.NewNop())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	return &fixture{
		svc: svc,
		cfg: cfg,
		dir: dir,
		req: RunRequest{
			EventsPath:       eventsPath,
			JurisdictionPath: jurisdictionPath,
			PolicePath:       policePath,
			AddressPath:      addressPath,
			BaseName:         "loi_test",
		},
	}
}

func TestExecute_WritesOutputsAndRecordsRun(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Execute(context.Background(), f.req)
	require.NoError(t, err)

	run := out.Run
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, run.TotalRows)
	assert.Equal(t, 1, run.SkippedRows)
	assert.Equal(t, 2, run.LocationCount)
	assert.Contains(t, run.ResultSummary, `"locations":2`)
	assert.Contains(t, run.ResultSummary, `"crs":32755`)

	outDir := filepath.Join(f.dir, "out")
	require.Len(t, out.Outputs, 3)
	for _, name := range []string{"loi_test.shp", "loi_test.prj", "loi_test_Address.csv", "loi_test_Accounts.csv"} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}

	res := out.Result
	require.Len(t, res.Locations, 2)
	top := res.Locations[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 2, top.IncidentCount)
	assert.Equal(t, "WEST", top.Jurisdiction())
	assert.Equal(t, "EAST", res.Locations[1].Jurisdiction())
	assert.Len(t, res.AddressRows, 2, "the eastern location keeps one row without an address")
	assert.Len(t, res.AccountRows, 3)

	stages, err := f.svc.ListStages(run.ID)
	require.NoError(t, err)
	require.Len(t, stages, len(analysis.DefaultStages()))
	for i, st := range stages {
		assert.Equal(t, i+1, st.Seq)
		assert.Equal(t, models.RunStatusCompleted, st.Status, st.Name)
	}
	assert.Equal(t, analysis.StageGeocode, stages[0].Name)
	assert.Equal(t, 4, stages[0].InputCount)
	assert.Equal(t, 3, stages[0].OutputCount)

	artifacts, err := f.svc.ListArtifacts(run.ID)
	require.NoError(t, err)
	var intermediate, output int
	for _, a := range artifacts {
		switch a.Kind {
		case models.ArtifactKindIntermediate:
			intermediate++
			assert.FileExists(t, a.Path)
		case models.ArtifactKindOutput:
			output++
		}
	}
	assert.Greater(t, intermediate, 0)
	assert.Equal(t, 3, output)

	locs, err := f.svc.ListLocations(run.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	require.NotNil(t, locs[0].PoliceJurisdiction)
	assert.Equal(t, "WEST", *locs[0].PoliceJurisdiction)
	assert.NotNil(t, locs[0].Geometry)
}

func TestExecute_FailOnInvalidRows(t *testing.T) {
	f := newFixture(t)
	strict := true
	f.req.FailOnInvalidRows = &strict

	_, err := f.svc.Execute(context.Background(), f.req)
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrInvalidInput)

	failed, err := f.svc.ListRuns(models.RunStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].ErrorMessage)
}

func TestExecute_MissingColumnFailsRun(t *testing.T) {
	f := newFixture(t)
	bad := filepath.Join(f.dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("LAT,LON\n1,2\n"), 0o644))
	f.req.EventsPath = bad

	_, err := f.svc.Execute(context.Background(), f.req)
	assert.ErrorIs(t, err, analysis.ErrInvalidInput)

	runs, err := f.svc.ListRuns("", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}

func TestResolve_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(r *RunRequest)
		want   error
	}{
		{"negative buffer", func(r *RunRequest) { r.BufferDistance = float64Ptr(-1) }, analysis.ErrConfiguration},
		{"zero buffer", func(r *RunRequest) { r.BufferDistance = float64Ptr(0) }, analysis.ErrConfiguration},
		{"bad policy", func(r *RunRequest) { r.DegeneratePolicy = "skip" }, analysis.ErrConfiguration},
		{"missing police path", func(r *RunRequest) { r.PolicePath = "" }, analysis.ErrConfiguration},
		{"unknown report format", func(r *RunRequest) { r.ReportFormat = "ods" }, analysis.ErrConfiguration},
		{"base name with directory", func(r *RunRequest) { r.BaseName = "../escape" }, analysis.ErrConfiguration},
		{"nonexistent events", func(r *RunRequest) { r.EventsPath = filepath.Join(f.dir, "nope.csv") }, analysis.ErrInvalidInput},
		{"events not a table", func(r *RunRequest) { r.EventsPath = filepath.Join(f.dir, "police.geojson") }, layers.ErrUnsupportedFormat},
		{"layer not a shapefile", func(r *RunRequest) { r.PolicePath = filepath.Join(f.dir, "events.csv") }, analysis.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.req
			tt.mutate(&req)
			_, err := f.svc.resolve(req, false)
			assert.ErrorIs(t, err, tt.want)

			_, err = f.svc.resolve(req, true)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolve_Defaults(t *testing.T) {
	f := newFixture(t)
	req := f.req
	req.BaseName = "report.shp"
	req.PoliceCRS = 4326

	plan, err := f.svc.resolve(req, false)
	require.NoError(t, err)
	assert.Equal(t, "report", plan.BaseName)
	assert.Equal(t, 50.0, plan.Params.BufferDistance)
	assert.Equal(t, spatial.EPSGUTMZone55S, plan.JurisdictionCRS, "layer CRS defaults to the events CRS")
	assert.Equal(t, 4326, plan.PoliceCRS)
	assert.Equal(t, "csv", plan.ReportFormat)
	assert.Equal(t, f.cfg.Pipeline.OutputDir, plan.OutputDir)

	req.BufferDistance = float64Ptr(12.5)
	plan, err = f.svc.resolve(req, false)
	require.NoError(t, err)
	assert.Equal(t, 12.5, plan.Params.BufferDistance)
}

func TestResolve_ConfinedPaths(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(outside, []byte("IP LAT,IP LON,CUSTOMER I\n"), 0o644))

	relative := f.req
	relative.EventsPath = "events.csv"
	relative.OutputDir = "nested"
	plan, err := f.svc.resolve(relative, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "events.csv"), plan.EventsPath)
	assert.Equal(t, filepath.Join(f.cfg.Pipeline.OutputDir, "nested"), plan.OutputDir)

	tests := []struct {
		name   string
		mutate func(r *RunRequest)
		want   error
	}{
		{"absolute events outside input root", func(r *RunRequest) { r.EventsPath = outside }, analysis.ErrInvalidInput},
		{"relative escape", func(r *RunRequest) { r.AddressPath = "../addresses.geojson" }, analysis.ErrInvalidInput},
		{"missing inside root", func(r *RunRequest) { r.PolicePath = "missing.geojson" }, analysis.ErrInvalidInput},
		{"absolute output dir", func(r *RunRequest) { r.OutputDir = filepath.Dir(outside) }, analysis.ErrConfiguration},
		{"output dir escape", func(r *RunRequest) { r.OutputDir = "../elsewhere" }, analysis.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.req
			tt.mutate(&req)
			_, err := f.svc.resolve(req, true)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.NotContains(t, err.Error(), "no such file", "filesystem errors stay server side")
		})
	}

	local := f.req
	local.EventsPath = outside
	local.OutputDir = filepath.Dir(outside)
	plan, err = f.svc.resolve(local, false)
	require.NoError(t, err, "local runs use paths as given")
	assert.Equal(t, outside, plan.EventsPath)
}

func TestSubmit_RejectsPathsOutsideRoots(t *testing.T) {
	f := newFixture(t)
	req := f.req
	req.OutputDir = filepath.Join(t.TempDir(), "elsewhere")

	_, err := f.svc.Submit(req)
	assert.ErrorIs(t, err, analysis.ErrConfiguration)
	_, statErr := os.Stat(req.OutputDir)
	assert.True(t, os.IsNotExist(statErr))

	runs, err := f.svc.ListRuns("", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected submits record no run")
}

func float64Ptr(v float64) *float64 { return &v }

func TestSubmit_SingleActiveRun(t *testing.T) {
	f := newFixture(t)

	plan, err := f.svc.resolve(f.req, true)
	require.NoError(t, err)
	held, err := f.svc.begin(plan, "")
	require.NoError(t, err)

	_, err = f.svc.Submit(f.req)
	assert.ErrorIs(t, err, ErrRunInProgress)

	f.svc.release(held.ID)

	run, err := f.svc.Submit(f.req)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)

	require.Eventually(t, func() bool {
		got, err := f.svc.GetRun(run.ID)
		return err == nil && got.Status == models.RunStatusCompleted
	}, 30*time.Second, 50*time.Millisecond)
}

func TestRecoverInterrupted(t *testing.T) {
	f := newFixture(t)
	plan, err := f.svc.resolve(f.req, false)
	require.NoError(t, err)
	run, err := f.svc.begin(plan, "")
	require.NoError(t, err)
	f.svc.release(run.ID)

	require.NoError(t, f.svc.RecoverInterrupted())

	got, err := f.svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
}
