package analysis

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// planarParams works directly in UTM metres so tests can place points by hand.
func planarParams() Params {
	p := DefaultParams()
	p.SourceCRS = spatial.EPSGUTMZone55S
	p.TargetCRS = spatial.EPSGUTMZone55S
	return p
}

func event(row int, x, y float64, account string) models.RawEvent {
	return models.RawEvent{
		Row:           row,
		Latitude:      strconv.FormatFloat(y, 'f', -1, 64),
		Longitude:     strconv.FormatFloat(x, 'f', -1, 64),
		AccountID:     account,
		AccountName:   "Name " + account,
		SourceAddress: fmt.Sprintf("10.0.0.%d", row),
	}
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

func feature(g orb.Geometry, props map[string]interface{}) models.Feature {
	return models.Feature{Geometry: g, Properties: props}
}

func layer(name string, features ...models.Feature) *models.Layer {
	return &models.Layer{Name: name, CRS: spatial.EPSGUTMZone55S, Features: features}
}

// wideInput covers every test coordinate with one jurisdiction polygon and
// leaves the police and address layers empty.
func wideInput(events ...models.RawEvent) Input {
	return Input{
		Events:       events,
		Jurisdiction: layer("jurisdiction", feature(square(-50000, -50000, 50000, 50000), nil)),
		Police:       layer("police"),
		Addresses:    layer("addresses"),
	}
}

func runPipeline(t *testing.T, params Params, in Input, opts ...Option) (*Result, error) {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return NewPipeline(opts...).Run(context.Background(), "test-run", params, in)
}

func mustRun(t *testing.T, params Params, in Input, opts ...Option) *Result {
	t.Helper()
	res, err := runPipeline(t, params, in, opts...)
	require.NoError(t, err)
	return res
}

// clusterEvents places n points on a circle of radius r around (cx, cy),
// cycling through the given accounts.
func clusterEvents(startRow int, cx, cy, r float64, n int, accounts ...string) []models.RawEvent {
	out := make([]models.RawEvent, 0, n)
	for k := 0; k < n; k++ {
		a := 2 * math.Pi * float64(k) / float64(n)
		out = append(out, event(startRow+k, cx+r*math.Cos(a), cy+r*math.Sin(a), accounts[k%len(accounts)]))
	}
	return out
}

type recordingTracker struct {
	mu        sync.Mutex
	started   []string
	finished  []string
	failed    []string
	artifacts []string
}

func (r *recordingTracker) StageStarted(_ string, _ int, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, name)
	return nil
}

func (r *recordingTracker) StageFinished(_ string, _ int, name string, _ StageReport, _ time.Duration, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, name)
	if err != nil {
		r.failed = append(r.failed, name)
	}
	return nil
}

func (r *recordingTracker) ArtifactWritten(_ string, a Artifact, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, a.Name)
	return nil
}

type memorySink struct {
	written map[string]int
	fail    error
}

func (m *memorySink) WriteArtifact(_ context.Context, runID string, a Artifact) (string, error) {
	if m.fail != nil {
		return "", m.fail
	}
	if m.written == nil {
		m.written = make(map[string]int)
	}
	m.written[a.Name] = len(a.Features)
	return runID + "/" + a.Name + ".geojson", nil
}
