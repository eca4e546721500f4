package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/jengzang/loi-backend-go/internal/logger"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"go.uber.org/zap"
)

// Stage is one step of the LOI pipeline. A stage reads the artifacts of the
// stages before it from State and stores its own output there.
type Stage interface {
	// Name returns the stage name used for tracking and logs
	Name() string

	// Run executes the stage. The returned report may be nil on error.
	Run(ctx context.Context, st *State) (*StageReport, error)
}

// StageReport describes what a stage consumed and produced
type StageReport struct {
	Input     int        // items read
	Output    int        // items produced
	Artifacts []Artifact // named layers for operator review
}

// Artifact is a named intermediate layer in the working CRS
type Artifact struct {
	Name     string
	Features []models.Feature
}

// ArtifactSink persists intermediate artifacts and returns where they went
type ArtifactSink interface {
	WriteArtifact(ctx context.Context, runID string, a Artifact) (string, error)
}

// Tracker records stage progress. Tracking failures are logged and do not
// abort the run.
type Tracker interface {
	StageStarted(runID string, seq int, name string) error
	StageFinished(runID string, seq int, name string, rep StageReport, elapsed time.Duration, stageErr error) error
	ArtifactWritten(runID string, a Artifact, path string) error
}

// Stage names
const (
	StageGeocode     = "geocode"
	StageFilter      = "filter"
	StageCluster     = "cluster"
	StageAggregate   = "aggregate"
	StageScore       = "score"
	StagePoliceJoin  = "police_join"
	StageAddressJoin = "address_join"
	StageAccountJoin = "account_join"
)

// DefaultStages returns the stages of a full run in execution order
func DefaultStages() []Stage {
	return []Stage{
		GeocodeStage{},
		FilterStage{},
		ClusterStage{},
		AggregateStage{},
		ScoreStage{},
		PoliceJoinStage{},
		AddressJoinStage{},
		AccountJoinStage{},
	}
}

// Pipeline runs stages strictly in sequence. Each stage fully materialises
// its output before the next one starts; the first failure aborts the run.
type Pipeline struct {
	stages  []Stage
	sink    ArtifactSink
	tracker Tracker
	log     *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithStages replaces the default stage list
func WithStages(stages ...Stage) Option {
	return func(p *Pipeline) { p.stages = stages }
}

// WithArtifactSink persists every stage artifact through sink
func WithArtifactSink(sink ArtifactSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithTracker reports stage progress to t
func WithTracker(t Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithLogger sets the pipeline logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline creates a pipeline with the default stages
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{stages: DefaultStages()}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get()
	}
	return p
}

// Run validates params and input, then executes every stage
func (p *Pipeline) Run(ctx context.Context, runID string, params Params, in Input) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	log := p.log.With(zap.String("run_id", runID))
	st := &State{
		RunID:  runID,
		Params: params,
		Input:  in,
		Engine: spatial.NewEngine(params.QuadSegments),
		Log:    log,
	}

	log.Info("Pipeline started",
		zap.Int("events", len(in.Events)),
		zap.Float64("buffer_distance", params.BufferDistance),
		zap.Int("target_crs", params.TargetCRS),
	)
	started := time.Now()

	for i, stage := range p.stages {
		seq := i + 1
		name := stage.Name()

		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: name, Err: err}
		}

		p.track(log, func(t Tracker) error { return t.StageStarted(runID, seq, name) })

		t0 := time.Now()
		rep, err := stage.Run(ctx, st)
		elapsed := time.Since(t0)
		if rep == nil {
			rep = &StageReport{}
		}

		p.track(log, func(t Tracker) error { return t.StageFinished(runID, seq, name, *rep, elapsed, err) })

		if err != nil {
			log.Error("Stage failed", zap.String("stage", name), zap.Duration("elapsed", elapsed), zap.Error(err))
			return nil, &StageError{Stage: name, Err: err}
		}

		log.Info("Stage completed",
			zap.String("stage", name),
			zap.Int("input", rep.Input),
			zap.Int("output", rep.Output),
			zap.Duration("elapsed", elapsed),
		)

		if p.sink == nil {
			continue
		}
		for _, a := range rep.Artifacts {
			path, err := p.sink.WriteArtifact(ctx, runID, a)
			if err != nil {
				return nil, &StageError{Stage: name, Err: fmt.Errorf("write artifact %s: %w", a.Name, err)}
			}
			log.Debug("Artifact written", zap.String("artifact", a.Name), zap.String("path", path), zap.Int("features", len(a.Features)))

			a := a
			p.track(log, func(t Tracker) error { return t.ArtifactWritten(runID, a, path) })
		}
	}

	res := st.result()
	if res.Empty() {
		log.Warn("Run produced no locations", zap.Error(ErrEmptyResult))
	}
	log.Info("Pipeline completed",
		zap.Int("locations", len(res.Locations)),
		zap.Int("address_rows", len(res.AddressRows)),
		zap.Int("account_rows", len(res.AccountRows)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (p *Pipeline) track(log *zap.Logger, fn func(Tracker) error) {
	if p.tracker == nil {
		return
	}
	if err := fn(p.tracker); err != nil {
		log.Warn("Failed to record stage progress", zap.Error(err))
	}
}
