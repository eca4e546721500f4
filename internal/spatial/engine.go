package spatial

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// ErrSpatialOperation is returned when the geometry engine rejects an input or
// fails while computing a result.
var ErrSpatialOperation = errors.New("spatial operation failed")

// DefaultQuadSegments is the number of segments used per quarter circle when
// buffering points.
const DefaultQuadSegments = 5

// Shape pairs a planar orb geometry with its GEOS handle. Shapes produced by
// one Engine may only be compared with shapes of the same Engine.
type Shape struct {
	Geom orb.Geometry
	g    *geos.Geom
}

// Bound returns the planar bounding box of the shape.
func (s *Shape) Bound() orb.Bound {
	return s.Geom.Bound()
}

// Engine is the geometry collaborator used by the LOI pipeline. It owns a GEOS
// context and is not safe for concurrent use.
type Engine struct {
	ctx          *geos.Context
	quadSegments int
}

// NewEngine creates an engine. quadSegments <= 0 selects DefaultQuadSegments.
func NewEngine(quadSegments int) *Engine {
	if quadSegments <= 0 {
		quadSegments = DefaultQuadSegments
	}
	return &Engine{
		ctx:          geos.NewContext(),
		quadSegments: quadSegments,
	}
}

// Shape converts an orb geometry into a Shape bound to this engine.
func (e *Engine) Shape(geom orb.Geometry) (s *Shape, err error) {
	defer recoverGEOS("shape", &err)

	data, err := wkb.Marshal(geom)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrSpatialOperation, geom.GeoJSONType(), err)
	}
	g, err := e.ctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSpatialOperation, geom.GeoJSONType(), err)
	}
	return &Shape{Geom: geom, g: g}, nil
}

// BufferDissolve buffers every point by distance with round caps and joins and
// unions the disks into one (possibly multi-part) geometry.
func (e *Engine) BufferDissolve(points []orb.Point, distance float64) (s *Shape, err error) {
	if distance <= 0 {
		return nil, fmt.Errorf("%w: buffer distance must be > 0, got %v", ErrSpatialOperation, distance)
	}
	if len(points) == 0 {
		return nil, nil
	}
	defer recoverGEOS("buffer", &err)

	mp, err := e.Shape(orb.MultiPoint(points))
	if err != nil {
		return nil, err
	}

	// Buffering a multipoint yields the union of the per-point disks.
	buffered := mp.g.Buffer(distance, e.quadSegments)
	if buffered == nil || buffered.IsEmpty() {
		return nil, fmt.Errorf("%w: buffer produced an empty geometry", ErrSpatialOperation)
	}
	return e.fromGEOS(buffered)
}

// Explode splits a multi-part geometry into its single-part components, in the
// order GEOS reports them. A single polygon yields itself.
func (e *Engine) Explode(s *Shape) (parts []*Shape, err error) {
	if s == nil {
		return nil, nil
	}
	defer recoverGEOS("explode", &err)

	n := s.g.NumGeometries()
	parts = make([]*Shape, 0, n)
	for i := 0; i < n; i++ {
		part, err := e.fromGEOS(s.g.Geometry(i))
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// Intersects reports whether the two shapes share at least one point.
func (e *Engine) Intersects(a, b *Shape) (ok bool, err error) {
	defer recoverGEOS("intersects", &err)
	return a.g.Intersects(b.g), nil
}

// OverlapArea returns the planar area of the intersection of a and b.
func (e *Engine) OverlapArea(a, b *Shape) (area float64, err error) {
	defer recoverGEOS("intersection", &err)

	inter := a.g.Intersection(b.g)
	if inter == nil {
		return 0, nil
	}
	return inter.Area(), nil
}

func (e *Engine) fromGEOS(g *geos.Geom) (*Shape, error) {
	geom, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("%w: decode GEOS result: %v", ErrSpatialOperation, err)
	}
	return &Shape{Geom: geom, g: g}, nil
}

// recoverGEOS turns a panic raised by the GEOS bindings into ErrSpatialOperation.
func recoverGEOS(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrSpatialOperation, op, r)
	}
}
