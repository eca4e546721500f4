package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/config"
	"github.com/jengzang/loi-backend-go/internal/layers"
	"github.com/jengzang/loi-backend-go/internal/metrics"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/repository"
	"github.com/jengzang/loi-backend-go/internal/stats"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run is submitted while another is executing
var ErrRunInProgress = errors.New("another run is in progress")

// DefaultBaseName is the output file stem used when a request names none
const DefaultBaseName = "LOI"

// RunRequest describes the inputs and overrides of one run. Zero values fall
// back to the configured pipeline defaults; BufferDistance and
// FailOnInvalidRows are pointers so an explicit zero is kept.
type RunRequest struct {
	EventsPath       string `json:"events_path"`
	JurisdictionPath string `json:"jurisdiction_path"`
	PolicePath       string `json:"police_path"`
	AddressPath      string `json:"address_path"`

	// CRS of each layer file; 0 means the events CRS
	SourceCRS       int `json:"source_crs,omitempty"`
	JurisdictionCRS int `json:"jurisdiction_crs,omitempty"`
	PoliceCRS       int `json:"police_crs,omitempty"`
	AddressCRS      int `json:"address_crs,omitempty"`

	TargetCRS         int      `json:"target_crs,omitempty"`
	BufferDistance    *float64 `json:"buffer_distance,omitempty"`
	DegeneratePolicy  string   `json:"degenerate_policy,omitempty"`
	FailOnInvalidRows *bool    `json:"fail_on_invalid_rows,omitempty"`

	OutputDir    string `json:"output_dir,omitempty"`
	BaseName     string `json:"base_name,omitempty"`
	ReportFormat string `json:"report_format,omitempty"`

	CreatedBy string `json:"-"`
}

// runPlan is a RunRequest resolved against the configuration
type runPlan struct {
	Params analysis.Params `json:"params"`

	EventsPath       string `json:"events_path"`
	JurisdictionPath string `json:"jurisdiction_path"`
	PolicePath       string `json:"police_path"`
	AddressPath      string `json:"address_path"`
	JurisdictionCRS  int    `json:"jurisdiction_crs"`
	PoliceCRS        int    `json:"police_crs"`
	AddressCRS       int    `json:"address_crs"`

	WorkDir      string `json:"work_dir"`
	OutputDir    string `json:"output_dir"`
	BaseName     string `json:"base_name"`
	ReportFormat string `json:"report_format"`
}

// RunOutcome is what a synchronous run returns
type RunOutcome struct {
	Run     *models.Run
	Result  *analysis.Result
	Outputs []string
}

// RunService handles LOI run business logic
type RunService struct {
	cfg       *config.Config
	runs      *repository.RunRepository
	stages    *repository.StageRepository
	artifacts *repository.ArtifactRepository
	locations *repository.LocationRepository
	log       *zap.Logger

	mu     sync.Mutex
	active string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunService creates a new run service
func NewRunService(cfg *config.Config, db *sql.DB, log *zap.Logger) *RunService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunService{
		cfg:       cfg,
		runs:      repository.NewRunRepository(db),
		stages:    repository.NewStageRepository(db),
		artifacts: repository.NewArtifactRepository(db),
		locations: repository.NewLocationRepository(db),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit validates req, records a pending run and executes it in the background.
// It serves remote callers: relative input paths resolve against
// pipeline.input_dir, output_dir against pipeline.output_dir, and paths that
// leave those roots are rejected.
func (s *RunService) Submit(req RunRequest) (*models.Run, error) {
	plan, err := s.resolve(req, true)
	if err != nil {
		return nil, err
	}

	run, err := s.begin(plan, req.CreatedBy)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(run.ID)
		if _, err := s.execute(s.ctx, run, plan); err != nil {
			s.log.Error("Run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	return run, nil
}

// Execute runs req synchronously and returns the completed run. Paths are
// used as given.
func (s *RunService) Execute(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	plan, err := s.resolve(req, false)
	if err != nil {
		return nil, err
	}

	run, err := s.begin(plan, req.CreatedBy)
	if err != nil {
		return nil, err
	}
	defer s.release(run.ID)

	out, err := s.execute(ctx, run, plan)
	if err != nil {
		return nil, err
	}

	if run, err = s.runs.GetByID(run.ID); err == nil {
		out.Run = run
	}
	return out, nil
}

// Shutdown cancels background runs and waits for them to finish recording
func (s *RunService) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve merges req with the configured defaults and checks the inputs exist.
// confine keeps every path inside the configured input and output roots.
func (s *RunService) resolve(req RunRequest, confine bool) (*runPlan, error) {
	pc := s.cfg.Pipeline
	f := s.cfg.Fields

	params := analysis.Params{
		BufferDistance:    pc.BufferDistance,
		SourceCRS:         pc.SourceCRS,
		TargetCRS:         pc.TargetCRS,
		QuadSegments:      pc.QuadSegments,
		DegeneratePolicy:  analysis.DegeneratePolicy(pc.DegeneratePolicy),
		FailOnInvalidRows: pc.FailOnInvalidRows,
		Fields: models.FieldNames{
			Latitude:      f.Latitude,
			Longitude:     f.Longitude,
			AccountID:     f.AccountID,
			AccountName:   f.AccountName,
			SourceAddress: f.SourceAddress,
			PoliceStation: f.PoliceStation,
			Address:       f.Address,
		},
	}
	if req.BufferDistance != nil {
		params.BufferDistance = *req.BufferDistance
	}
	if req.SourceCRS != 0 {
		params.SourceCRS = req.SourceCRS
	}
	if req.TargetCRS != 0 {
		params.TargetCRS = req.TargetCRS
	}
	if req.DegeneratePolicy != "" {
		params.DegeneratePolicy = analysis.DegeneratePolicy(req.DegeneratePolicy)
	}
	if req.FailOnInvalidRows != nil {
		params.FailOnInvalidRows = *req.FailOnInvalidRows
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	plan := &runPlan{
		Params:           params,
		EventsPath:       req.EventsPath,
		JurisdictionPath: req.JurisdictionPath,
		PolicePath:       req.PolicePath,
		AddressPath:      req.AddressPath,
		JurisdictionCRS:  layerCRS(req.JurisdictionCRS, params.SourceCRS),
		PoliceCRS:        layerCRS(req.PoliceCRS, params.SourceCRS),
		AddressCRS:       layerCRS(req.AddressCRS, params.SourceCRS),
		WorkDir:          pc.WorkDir,
		OutputDir:        firstNonEmpty(req.OutputDir, pc.OutputDir),
		BaseName:         strings.TrimSuffix(firstNonEmpty(req.BaseName, DefaultBaseName), ".shp"),
		ReportFormat:     strings.ToLower(firstNonEmpty(req.ReportFormat, pc.ReportFormat)),
	}

	if plan.BaseName == "" || filepath.Base(plan.BaseName) != plan.BaseName {
		return nil, fmt.Errorf("%w: base name %q must be a plain file name", analysis.ErrConfiguration, plan.BaseName)
	}
	switch plan.ReportFormat {
	case "xlsx", "csv":
	default:
		return nil, fmt.Errorf("%w: unknown report format %q", analysis.ErrConfiguration, plan.ReportFormat)
	}

	if confine && req.OutputDir != "" {
		dir, err := within(pc.OutputDir, req.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("%w: output_dir: %v", analysis.ErrConfiguration, err)
		}
		plan.OutputDir = dir
	}

	inputs := []struct {
		name   string
		path   *string
		format func(string) error
	}{
		{"events", &plan.EventsPath, layers.CheckEventsFormat},
		{"jurisdiction", &plan.JurisdictionPath, layers.CheckLayerFormat},
		{"police", &plan.PolicePath, layers.CheckLayerFormat},
		{"address", &plan.AddressPath, layers.CheckLayerFormat},
	}
	for _, in := range inputs {
		given := *in.path
		if strings.TrimSpace(given) == "" {
			return nil, fmt.Errorf("%w: %s path is required", analysis.ErrConfiguration, in.name)
		}
		if err := in.format(given); err != nil {
			return nil, fmt.Errorf("%s input: %w", in.name, err)
		}
		if !confine {
			if _, err := os.Stat(given); err != nil {
				return nil, fmt.Errorf("%w: %s input: %v", analysis.ErrInvalidInput, in.name, err)
			}
			continue
		}

		path, err := within(pc.InputDir, given)
		if err != nil {
			return nil, fmt.Errorf("%w: %s input: %v", analysis.ErrInvalidInput, in.name, err)
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: %s input %q not found", analysis.ErrInvalidInput, in.name, given)
		}
		*in.path = path
	}

	return plan, nil
}

// within resolves p against root and returns the absolute path, failing when
// the result lies outside root.
func within(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	abs := filepath.Clean(p)
	if !filepath.IsAbs(p) {
		abs = filepath.Join(absRoot, p)
	}

	rel, err := filepath.Rel(absRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the allowed directory", p)
	}
	return abs, nil
}

// begin claims the single run slot and records a pending run
func (s *RunService) begin(plan *runPlan, createdBy string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, s.active)
	}

	paramsJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize params: %w", err)
	}

	run := &models.Run{
		ID:         uuid.NewString(),
		BaseName:   plan.BaseName,
		Status:     models.RunStatusPending,
		ParamsJSON: string(paramsJSON),
		CreatedBy:  createdBy,
	}
	if err := s.runs.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.active = run.ID
	return run, nil
}

func (s *RunService) release(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == runID {
		s.active = ""
	}
}

// execute loads the inputs, runs the pipeline and writes the outputs,
// recording the outcome on run
func (s *RunService) execute(ctx context.Context, run *models.Run, plan *runPlan) (out *RunOutcome, err error) {
	log := s.log.With(zap.String("run_id", run.ID))

	if err := s.runs.MarkAsRunning(run.ID); err != nil {
		return nil, err
	}
	metrics.RunStarted()

	defer func() {
		if err == nil {
			return
		}
		metrics.RunFinished(models.RunStatusFailed, -1, 0)
		if markErr := s.runs.MarkAsFailed(run.ID, err.Error()); markErr != nil {
			log.Error("Failed to mark run as failed", zap.Error(markErr))
		}
	}()

	in, err := loadInput(plan)
	if err != nil {
		return nil, err
	}

	pipeline := analysis.NewPipeline(
		analysis.WithArtifactSink(layers.NewGeoJSONSink(plan.WorkDir)),
		analysis.WithTracker(&runTracker{stages: s.stages, artifacts: s.artifacts}),
		analysis.WithLogger(s.log),
	)

	res, err := pipeline.Run(ctx, run.ID, plan.Params, in)
	if err != nil {
		return nil, err
	}
	if res.InvalidRows != nil {
		log.Warn("Rows skipped", zap.Int("count", len(res.InvalidRows.Rows)), zap.String("detail", res.InvalidRows.Error()))
	}

	outputs, err := s.writeOutputs(run.ID, plan, res)
	if err != nil {
		return nil, err
	}

	if err := s.locations.SaveBatch(run.ID, res.Locations); err != nil {
		return nil, err
	}

	skipped := 0
	if res.InvalidRows != nil {
		skipped = len(res.InvalidRows.Rows)
	}
	summary, err := json.Marshal(summarize(res, plan.Params.TargetCRS, outputs))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize summary: %w", err)
	}
	if err := s.runs.MarkAsCompleted(run.ID, res.Events, skipped, len(res.Locations), string(summary)); err != nil {
		return nil, err
	}
	metrics.RunFinished(models.RunStatusCompleted, len(res.Locations), skipped)

	log.Info("Run completed",
		zap.Int("locations", len(res.Locations)),
		zap.Int("skipped_rows", skipped),
		zap.Strings("outputs", outputs),
	)
	return &RunOutcome{Run: run, Result: res, Outputs: outputs}, nil
}

func loadInput(plan *runPlan) (analysis.Input, error) {
	events, err := layers.ReadEvents(plan.EventsPath, plan.Params.Fields)
	if err != nil {
		return analysis.Input{}, fmt.Errorf("load events: %w", err)
	}
	jurisdiction, err := layers.ReadLayer(plan.JurisdictionPath, plan.JurisdictionCRS)
	if err != nil {
		return analysis.Input{}, fmt.Errorf("load jurisdiction: %w", err)
	}
	police, err := layers.ReadLayer(plan.PolicePath, plan.PoliceCRS)
	if err != nil {
		return analysis.Input{}, fmt.Errorf("load police areas: %w", err)
	}
	addresses, err := layers.ReadLayer(plan.AddressPath, plan.AddressCRS)
	if err != nil {
		return analysis.Input{}, fmt.Errorf("load addresses: %w", err)
	}

	return analysis.Input{
		Events:       events,
		Jurisdiction: jurisdiction,
		Police:       police,
		Addresses:    addresses,
	}, nil
}

// writeOutputs writes the primary layer and both reports and records them
func (s *RunService) writeOutputs(runID string, plan *runPlan, res *analysis.Result) ([]string, error) {
	if err := os.MkdirAll(plan.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	fields := plan.Params.Fields

	shpPath := filepath.Join(plan.OutputDir, plan.BaseName+".shp")
	crs := plan.Params.TargetCRS
	if err := layers.WriteLocations(shpPath, res.Locations, fields, crs); err != nil {
		return nil, fmt.Errorf("write %s: %w", shpPath, err)
	}
	if _, ok := layers.ProjectionWKT(crs); !ok {
		s.log.Warn("No .prj written for the working CRS", zap.String("run_id", runID), zap.Int("epsg", crs))
	}

	reports := []struct {
		suffix string
		table  layers.Table
	}{
		{layers.AddressReport, layers.AddressTable(res.AddressRows, fields)},
		{layers.AccountReport, layers.AccountTable(res.AccountRows, fields)},
	}

	outputs := []string{shpPath}
	counts := []int{len(res.Locations)}
	for _, r := range reports {
		path := layers.ReportPath(plan.OutputDir, plan.BaseName, r.suffix, plan.ReportFormat)
		if err := layers.WriteTable(path, r.table); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		outputs = append(outputs, path)
		counts = append(counts, len(r.table.Rows))
	}

	for i, path := range outputs {
		a := &models.RunArtifact{
			RunID:        runID,
			Name:         filepath.Base(path),
			Kind:         models.ArtifactKindOutput,
			Path:         path,
			FeatureCount: counts[i],
		}
		if err := s.artifacts.Create(a); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func summarize(res *analysis.Result, crs int, outputs []string) models.RunSummary {
	scores := make([]float64, 0, len(res.Locations))
	sum := models.RunSummary{
		Events:         res.Events,
		Points:         res.Points,
		FilteredPoints: res.Filtered,
		Locations:      len(res.Locations),
		CRS:            crs,
		AddressRows:    len(res.AddressRows),
		AccountRows:    len(res.AccountRows),
		Outputs:        outputs,
		Warnings:       res.Warnings(),
	}
	for _, l := range res.Locations {
		scores = append(scores, l.CompositeScore)
		if l.IncidentCount > sum.MaxIncidents {
			sum.MaxIncidents = l.IncidentCount
		}
		if l.IdentityCount > sum.MaxIdentities {
			sum.MaxIdentities = l.IdentityCount
		}
	}
	if s := stats.Summarize(scores); s.Count > 0 {
		sum.MeanScore = s.Mean
		sum.MedianScore = s.Median
	}
	return sum
}

// GetRun retrieves a run by ID
func (s *RunService) GetRun(id string) (*models.Run, error) {
	return s.runs.GetByID(id)
}

// ListRuns retrieves runs with an optional status filter
func (s *RunService) ListRuns(status string, limit int, offset int) ([]*models.Run, error) {
	limit, offset = page(limit, offset)
	return s.runs.List(status, limit, offset)
}

// ListStages returns the stage progress of a run
func (s *RunService) ListStages(runID string) ([]*models.RunStage, error) {
	if _, err := s.runs.GetByID(runID); err != nil {
		return nil, err
	}
	return s.stages.ListByRun(runID)
}

// ListArtifacts returns the files written by a run
func (s *RunService) ListArtifacts(runID string) ([]*models.RunArtifact, error) {
	if _, err := s.runs.GetByID(runID); err != nil {
		return nil, err
	}
	return s.artifacts.ListByRun(runID)
}

// ListLocations returns the ranked locations of a run
func (s *RunService) ListLocations(runID string, limit int, offset int) ([]*models.LocationRecord, error) {
	if _, err := s.runs.GetByID(runID); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	return s.locations.ListByRun(runID, limit, offset)
}

// RecoverInterrupted fails runs that a previous process left unfinished
func (s *RunService) RecoverInterrupted() error {
	n, err := s.runs.FailInterrupted()
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Warn("Marked interrupted runs as failed", zap.Int64("count", n))
	}
	return nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func layerCRS(crs, source int) int {
	if crs == 0 {
		return source
	}
	return crs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
