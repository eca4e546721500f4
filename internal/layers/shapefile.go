package layers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

func readShapefile(path string) ([]models.Feature, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open shapefile: %v", analysis.ErrInvalidInput, err)
	}
	defer r.Close()

	fields := r.Fields()
	var features []models.Feature
	for r.Next() {
		n, s := r.Shape()
		g, err := shapeToGeometry(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s record %d: %v", analysis.ErrInvalidInput, filepath.Base(path), n, err)
		}

		props := make(map[string]interface{}, len(fields))
		for k, f := range fields {
			props[f.String()] = strings.TrimSpace(r.ReadAttribute(n, k))
		}
		features = append(features, models.Feature{Geometry: g, Properties: props})
	}
	return features, nil
}

func shapeToGeometry(s shp.Shape) (orb.Geometry, error) {
	switch v := s.(type) {
	case *shp.Point:
		return orb.Point{v.X, v.Y}, nil
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(v.Points))
		for i, p := range v.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp, nil
	case *shp.PolyLine:
		parts := splitParts(v.Parts, v.Points)
		if len(parts) == 1 {
			return orb.LineString(parts[0]), nil
		}
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls, nil
	case *shp.Polygon:
		return ringsToPolygons(splitParts(v.Parts, v.Points)), nil
	default:
		return nil, fmt.Errorf("unsupported shape type %T", s)
	}
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

// ringsToPolygons groups shapefile rings: a clockwise ring starts a polygon,
// counter-clockwise rings are holes of the polygon before them.
func ringsToPolygons(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range parts {
		ring := orb.Ring(p)
		if len(mp) == 0 || ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

func polygonToShape(g orb.Geometry) (*shp.Polygon, error) {
	var mp orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		mp = v
	default:
		return nil, fmt.Errorf("cannot write %s as a polygon", g.GeoJSONType())
	}

	var parts [][]shp.Point
	for _, poly := range mp {
		for i, ring := range poly {
			r := ring.Clone()
			// outer rings clockwise, holes counter-clockwise
			if (r.Orientation() == orb.CW) != (i == 0) {
				r.Reverse()
			}
			pts := make([]shp.Point, len(r))
			for j, p := range r {
				pts[j] = shp.Point{X: p.X(), Y: p.Y()}
			}
			parts = append(parts, pts)
		}
	}

	pl := shp.NewPolyLine(parts)
	poly := shp.Polygon(*pl)
	return &poly, nil
}

// WriteLocations writes the ranked locations as the primary polygon layer in
// the working CRS epsg, with a .prj sidecar when ProjectionWKT knows the code.
// Attributes: LOI, INCIDENTS, IDENTITIES, InCd_Indx, Id_Indx, IndexCalc and
// the police station field.
func WriteLocations(path string, locs []models.Location, fields models.FieldNames, epsg int) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}
	defer w.Close()

	if err := writePRJ(path, epsg); err != nil {
		return err
	}

	schema := []shp.Field{
		shp.NumberField(analysis.FieldRank, 10),
		shp.NumberField(analysis.FieldIncidents, 10),
		shp.NumberField(analysis.FieldIdentities, 10),
		shp.FloatField(analysis.FieldIncidentIx, 12, 6),
		shp.FloatField(analysis.FieldIdentityIx, 12, 6),
		shp.FloatField(analysis.FieldScore, 12, 4),
		shp.StringField(fields.PoliceStation, 80),
	}
	if err := w.SetFields(schema); err != nil {
		return fmt.Errorf("failed to set shapefile fields: %w", err)
	}

	for _, loc := range locs {
		poly, err := polygonToShape(loc.Shape.Geom)
		if err != nil {
			return fmt.Errorf("location %d: %w", loc.Rank, err)
		}
		row := int(w.Write(poly))

		values := []interface{}{
			loc.Rank,
			loc.IncidentCount,
			loc.IdentityCount,
			loc.IncidentIndex,
			loc.IdentityIndex,
			loc.CompositeScore,
			loc.Jurisdiction(),
		}
		for k, v := range values {
			if err := w.WriteAttribute(row, k, v); err != nil {
				return fmt.Errorf("location %d: failed to write %s: %w", loc.Rank, schema[k].String(), err)
			}
		}
	}
	return nil
}
