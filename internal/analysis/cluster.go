package analysis

import (
	"context"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/paulmach/orb"
)

// ClusterStage buffers every filtered point, dissolves the disks and explodes
// the union into one Location per connected component. Points whose buffers
// overlap, directly or through a chain of other points, share a Location.
type ClusterStage struct{}

func (ClusterStage) Name() string { return StageCluster }

func (ClusterStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	rep := &StageReport{Input: len(st.Filtered)}

	if len(st.Filtered) == 0 {
		st.Locations = []models.Location{}
		rep.Artifacts = []Artifact{{Name: ArtifactBuffer}, {Name: ArtifactLocations}}
		return rep, nil
	}

	pts := make([]orb.Point, len(st.Filtered))
	for i, p := range st.Filtered {
		pts[i] = p.Geometry
	}

	merged, err := st.Engine.BufferDissolve(pts, st.Params.BufferDistance)
	if err != nil {
		return nil, err
	}
	parts, err := st.Engine.Explode(merged)
	if err != nil {
		return nil, err
	}

	locs := make([]models.Location, len(parts))
	for i, part := range parts {
		locs[i] = models.Location{ID: i, Shape: part}
	}
	st.Merged = merged
	st.Locations = locs

	rep.Output = len(locs)
	rep.Artifacts = []Artifact{
		{Name: ArtifactBuffer, Features: []models.Feature{{
			Geometry:   merged.Geom,
			Properties: map[string]interface{}{"parts": len(parts)},
		}}},
		{Name: ArtifactLocations, Features: locationFeatures(locs, st.Params.Fields)},
	}
	return rep, nil
}
