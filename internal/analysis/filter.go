package analysis

import (
	"context"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
)

// FilterStage keeps the points that intersect at least one jurisdiction
// polygon, in input order. Boundary points are kept.
type FilterStage struct{}

func (FilterStage) Name() string { return StageFilter }

func (FilterStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	idx := spatial.NewIndex(featureShapes(st.Jurisdiction))

	filtered := make([]models.LocationPoint, 0, len(st.Points))
	for _, p := range st.Points {
		hit, err := firstIntersecting(st.Engine, idx, p.Shape, func(i int) *spatial.Shape {
			return st.Jurisdiction[i].Shape
		})
		if err != nil {
			return nil, err
		}
		if hit >= 0 {
			filtered = append(filtered, p)
		}
	}
	st.Filtered = filtered

	return &StageReport{
		Input:  len(st.Points),
		Output: len(filtered),
		Artifacts: []Artifact{
			{Name: ArtifactClippedPoints, Features: pointFeatures(filtered, st.Params.Fields, true)},
		},
	}, nil
}

func featureShapes(features []ProjectedFeature) []*spatial.Shape {
	out := make([]*spatial.Shape, len(features))
	for i, f := range features {
		out[i] = f.Shape
	}
	return out
}

// firstIntersecting returns the lowest indexed candidate intersecting s, or -1.
func firstIntersecting(e *spatial.Engine, idx *spatial.Index, s *spatial.Shape, shapeAt func(int) *spatial.Shape) (int, error) {
	for _, c := range idx.Candidates(s.Bound()) {
		ok, err := e.Intersects(s, shapeAt(c))
		if err != nil {
			return -1, err
		}
		if ok {
			return c, nil
		}
	}
	return -1, nil
}

// allIntersecting returns every candidate intersecting s, in ascending order.
func allIntersecting(e *spatial.Engine, idx *spatial.Index, s *spatial.Shape, shapeAt func(int) *spatial.Shape) ([]int, error) {
	var out []int
	for _, c := range idx.Candidates(s.Bound()) {
		ok, err := e.Intersects(s, shapeAt(c))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}
