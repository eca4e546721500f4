package spatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

// EPSG codes used as defaults by the LOI tool.
const (
	EPSGLonLat     = 4326  // WGS 84 geographic, lon/lat degrees
	EPSGUTMZone55S = 32755 // WGS 84 / UTM zone 55S, meters
)

// Projection transforms coordinates from one EPSG reference system to another.
// The zero-cost identity projection is used when both codes are equal.
type Projection struct {
	From int
	To   int
	fn   wgs84.Func
}

// NewProjection looks both codes up in the EPSG registry. An unknown code, or a
// pair the registry cannot transform, is reported as an error.
func NewProjection(from, to int) (p *Projection, err error) {
	p = &Projection{From: from, To: to}
	if from == to {
		return p, nil
	}

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("unsupported projection EPSG:%d -> EPSG:%d: %v", from, to, r)
		}
	}()

	epsg := wgs84.EPSG()
	p.fn = wgs84.Transform(epsg.Code(from), epsg.Code(to))

	// Probe with a coordinate valid in geographic and projected systems alike.
	x, y, _ := p.fn(0, 0, 0)
	if math.IsNaN(x) || math.IsNaN(y) {
		return nil, fmt.Errorf("unsupported projection EPSG:%d -> EPSG:%d", from, to)
	}
	return p, nil
}

// Identity reports whether the projection leaves coordinates unchanged.
func (p *Projection) Identity() bool {
	return p.fn == nil
}

// Point projects a single point.
func (p *Projection) Point(pt orb.Point) orb.Point {
	if p.fn == nil {
		return pt
	}
	x, y, _ := p.fn(pt[0], pt[1], 0)
	return orb.Point{x, y}
}

// Geometry returns a projected copy of g; g itself is not modified.
func (p *Projection) Geometry(g orb.Geometry) orb.Geometry {
	if p.fn == nil {
		return g
	}
	return project.Geometry(orb.Clone(g), p.Point)
}
