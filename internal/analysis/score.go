package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/stats"
	"go.uber.org/zap"
)

// Composite score weights
const (
	IncidentWeight = 0.5
	IdentityWeight = 0.5
)

// IndexStats holds the count ranges used for min-max normalisation
type IndexStats struct {
	Incidents  stats.Range
	Identities stats.Range
}

// ComputeStats scans the counts of every Location. ok is false when locs is empty.
func ComputeStats(locs []models.Location) (s IndexStats, ok bool) {
	incidents := make([]float64, len(locs))
	identities := make([]float64, len(locs))
	for i, l := range locs {
		incidents[i] = float64(l.IncidentCount)
		identities[i] = float64(l.IdentityCount)
	}

	s.Incidents, ok = stats.MinMax(incidents)
	if !ok {
		return IndexStats{}, false
	}
	s.Identities, _ = stats.MinMax(identities)
	return s, true
}

// Normalize returns copies of locs with both indices and the composite score
// set. A degenerate range is either zeroed or rejected according to policy;
// the returned notes name the degenerate counts.
func Normalize(locs []models.Location, s IndexStats, policy DegeneratePolicy) ([]models.Location, []string, error) {
	var notes []string
	check := func(name string, r stats.Range) error {
		if !r.Degenerate() {
			return nil
		}
		if policy == DegenerateFail {
			return fmt.Errorf("%w: %s min == max == %v", ErrDegenerateRange, name, r.Min)
		}
		notes = append(notes, fmt.Sprintf("%s are all %v; index set to 0", name, r.Min))
		return nil
	}
	if err := check("incident counts", s.Incidents); err != nil {
		return nil, nil, err
	}
	if err := check("identity counts", s.Identities); err != nil {
		return nil, nil, err
	}

	out := make([]models.Location, len(locs))
	for i, l := range locs {
		l.IncidentIndex = s.Incidents.Scale(float64(l.IncidentCount))
		l.IdentityIndex = s.Identities.Scale(float64(l.IdentityCount))
		l.CompositeScore = CompositeScore(l.IncidentIndex, l.IdentityIndex)
		out[i] = l
	}
	return out, notes, nil
}

// CompositeScore combines both indices into a score in [0,100]
func CompositeScore(incidentIndex, identityIndex float64) float64 {
	return (incidentIndex*IncidentWeight + identityIndex*IdentityWeight) * 100
}

// Rank returns copies of locs sorted by descending composite score with
// rank = position + 1. Ties keep input order and NaN scores sort last.
func Rank(locs []models.Location) []models.Location {
	out := append([]models.Location(nil), locs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CompositeScore, out[j].CompositeScore
		if math.IsNaN(a) || math.IsNaN(b) {
			return !math.IsNaN(a) && math.IsNaN(b)
		}
		return a > b
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// ScoreStage normalises the counts, computes composite scores and ranks
// the Locations.
type ScoreStage struct{}

func (ScoreStage) Name() string { return StageScore }

func (ScoreStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	rep := &StageReport{Input: len(st.Counted)}

	s, ok := ComputeStats(st.Counted)
	if !ok {
		st.Ranked = []models.Location{}
		rep.Artifacts = []Artifact{{Name: ArtifactRanked}}
		return rep, nil
	}

	normalized, notes, err := Normalize(st.Counted, s, st.Params.DegeneratePolicy)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		st.warn("Degenerate normalisation range: "+n, zap.String("policy", string(st.Params.DegeneratePolicy)))
	}

	st.Ranked = Rank(normalized)

	rep.Output = len(st.Ranked)
	rep.Artifacts = []Artifact{
		{Name: ArtifactRanked, Features: locationFeatures(st.Ranked, st.Params.Fields)},
	}
	return rep, nil
}
