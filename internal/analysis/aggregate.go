package analysis

import (
	"context"
	"fmt"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
)

// AggregateStage counts incidents and distinct identities per Location.
// Every filtered point must fall in exactly one Location.
type AggregateStage struct{}

func (AggregateStage) Name() string { return StageAggregate }

func (AggregateStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	assign, err := AssignPoints(st.Engine, st.Locations, st.Filtered)
	if err != nil {
		return nil, err
	}

	incidents := CountIncidents(assign, len(st.Locations))
	identities := CountIdentities(st.Filtered, assign, len(st.Locations))

	members := make([][]int, len(st.Locations))
	for pi, li := range assign {
		members[li] = append(members[li], pi)
	}

	geographic := st.Params.SourceCRS == spatial.EPSGLonLat
	counted := make([]models.Location, len(st.Locations))
	for i, loc := range st.Locations {
		loc.IncidentCount = incidents[i]
		loc.IdentityCount = identities[i]
		loc.Members = members[i]
		if geographic {
			describe(&loc, st.Filtered)
		}
		counted[i] = loc
	}
	st.Counted = counted

	return &StageReport{
		Input:  len(st.Filtered),
		Output: len(counted),
		Artifacts: []Artifact{
			{Name: ArtifactCounts, Features: locationFeatures(counted, st.Params.Fields)},
		},
	}, nil
}

// AssignPoints returns, for every point, the position of the Location that
// contains it. A point outside every Location, or inside more than one,
// breaks the partition and is reported as a spatial failure.
func AssignPoints(e *spatial.Engine, locs []models.Location, points []models.LocationPoint) ([]int, error) {
	shapes := make([]*spatial.Shape, len(locs))
	for i, l := range locs {
		shapes[i] = l.Shape
	}
	idx := spatial.NewIndex(shapes)
	shapeAt := func(i int) *spatial.Shape { return shapes[i] }

	assign := make([]int, len(points))
	for i, p := range points {
		hits, err := allIntersecting(e, idx, p.Shape, shapeAt)
		if err != nil {
			return nil, err
		}
		if len(hits) != 1 {
			return nil, fmt.Errorf("%w: point from row %d falls in %d locations", ErrSpatialOperation, p.Row, len(hits))
		}
		assign[i] = hits[0]
	}
	return assign, nil
}

// CountIncidents counts the points assigned to each of n Locations.
func CountIncidents(assign []int, n int) []int {
	counts := make([]int, n)
	for _, li := range assign {
		counts[li]++
	}
	return counts
}

// CountIdentities counts the distinct account identifiers among the points
// assigned to each of n Locations.
func CountIdentities(points []models.LocationPoint, assign []int, n int) []int {
	seen := make([]map[string]struct{}, n)
	for pi, li := range assign {
		if seen[li] == nil {
			seen[li] = make(map[string]struct{})
		}
		seen[li][points[pi].AccountID] = struct{}{}
	}

	counts := make([]int, n)
	for i, s := range seen {
		counts[i] = len(s)
	}
	return counts
}

// describe fills the centroid, geohash and spread of a Location from the
// lon/lat of its member points.
func describe(loc *models.Location, points []models.LocationPoint) {
	if len(loc.Members) == 0 {
		return
	}
	pts := make([]spatial.Point, len(loc.Members))
	for i, pi := range loc.Members {
		pts[i] = spatial.Point{Lat: points[pi].Latitude, Lon: points[pi].Longitude}
	}
	c := spatial.Centroid(pts)
	loc.CentroidLat = c.Lat
	loc.CentroidLon = c.Lon
	loc.Geohash = spatial.EncodeGeohash(c.Lat, c.Lon, spatial.LocationGeohashPrecision)
	loc.Spread = spatial.RadiusOfGyration(pts)
}
