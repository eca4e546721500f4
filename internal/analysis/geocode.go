package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

var (
	errMissingValue = errors.New("missing value")
	errNotNumeric   = errors.New("not a number")
	errOutOfRange   = errors.New("coordinate out of range")
)

// GeocodeStage turns event rows into points in the working CRS and
// reprojects the three context layers into the same frame.
type GeocodeStage struct{}

func (GeocodeStage) Name() string { return StageGeocode }

func (GeocodeStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	proj, err := spatial.NewProjection(st.Params.SourceCRS, st.Params.TargetCRS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	fields := st.Params.Fields
	points := make([]models.LocationPoint, 0, len(st.Input.Events))
	var rowErrs []RowError

	for _, ev := range st.Input.Events {
		lon, lat, rerr := parseCoordinates(ev, fields, st.Params.SourceCRS)
		if rerr != nil {
			rowErrs = append(rowErrs, *rerr)
			continue
		}

		geom := proj.Point(orb.Point{lon, lat})
		if math.IsNaN(geom.X()) || math.IsNaN(geom.Y()) || math.IsInf(geom.X(), 0) || math.IsInf(geom.Y(), 0) {
			rowErrs = append(rowErrs, RowError{
				Row:   ev.Row,
				Field: fields.Longitude,
				Value: ev.Longitude,
				Err:   fmt.Errorf("%w: outside EPSG:%d", errOutOfRange, st.Params.TargetCRS),
			})
			continue
		}

		shape, err := st.Engine.Shape(geom)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", ev.Row, err)
		}

		points = append(points, models.LocationPoint{
			Row:           ev.Row,
			Longitude:     lon,
			Latitude:      lat,
			Geometry:      geom,
			AccountID:     strings.TrimSpace(ev.AccountID),
			AccountName:   strings.TrimSpace(ev.AccountName),
			SourceAddress: strings.TrimSpace(ev.SourceAddress),
			Shape:         shape,
		})
	}

	st.Points = points
	st.RowErrors = rowErrs

	if len(rowErrs) > 0 {
		agg := &InvalidRowsError{Rows: rowErrs}
		if st.Params.FailOnInvalidRows || len(points) == 0 {
			return nil, agg
		}
		st.warn("Skipped invalid event rows", zap.Int("skipped", len(rowErrs)), zap.String("detail", agg.Error()))
	}

	if st.Jurisdiction, err = projectLayer(st, st.Input.Jurisdiction); err != nil {
		return nil, err
	}
	if st.Police, err = projectLayer(st, st.Input.Police); err != nil {
		return nil, err
	}
	if st.Addresses, err = projectLayer(st, st.Input.Addresses); err != nil {
		return nil, err
	}

	return &StageReport{
		Input:  len(st.Input.Events),
		Output: len(points),
		Artifacts: []Artifact{
			{Name: ArtifactPoints, Features: pointFeatures(points, fields, false)},
			{Name: ArtifactProjectedPoints, Features: pointFeatures(points, fields, true)},
			{Name: ArtifactJurisdiction, Features: projectedFeatures(st.Jurisdiction)},
		},
	}, nil
}

// parseCoordinates reads lon/lat from an event. Geographic sources are also
// range checked.
func parseCoordinates(ev models.RawEvent, fields models.FieldNames, sourceCRS int) (lon, lat float64, rerr *RowError) {
	parse := func(field, raw string) (float64, *RowError) {
		s := strings.TrimSpace(raw)
		if s == "" {
			return 0, &RowError{Row: ev.Row, Field: field, Value: raw, Err: fmt.Errorf("%w: %v", ErrInvalidInput, errMissingValue)}
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &RowError{Row: ev.Row, Field: field, Value: raw, Err: fmt.Errorf("%w: %v", ErrInvalidInput, errNotNumeric)}
		}
		return v, nil
	}

	if lat, rerr = parse(fields.Latitude, ev.Latitude); rerr != nil {
		return 0, 0, rerr
	}
	if lon, rerr = parse(fields.Longitude, ev.Longitude); rerr != nil {
		return 0, 0, rerr
	}
	if sourceCRS == spatial.EPSGLonLat && !spatial.ValidLatLon(lat, lon) {
		return 0, 0, &RowError{
			Row:   ev.Row,
			Field: fields.Latitude + "/" + fields.Longitude,
			Value: fmt.Sprintf("%s,%s", ev.Latitude, ev.Longitude),
			Err:   fmt.Errorf("%w: %v", ErrInvalidInput, errOutOfRange),
		}
	}
	return lon, lat, nil
}

// projectLayer reprojects a layer into the working CRS. A layer without a CRS
// is taken to be in the source CRS of the events.
func projectLayer(st *State, layer *models.Layer) ([]ProjectedFeature, error) {
	crs := layer.CRS
	if crs == 0 {
		crs = st.Params.SourceCRS
	}
	proj, err := spatial.NewProjection(crs, st.Params.TargetCRS)
	if err != nil {
		return nil, fmt.Errorf("%w: layer %s: %v", ErrConfiguration, layer.Name, err)
	}

	out := make([]ProjectedFeature, 0, len(layer.Features))
	for i, f := range layer.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("%w: layer %s: feature %d has no geometry", ErrInvalidInput, layer.Name, i)
		}
		g := proj.Geometry(f.Geometry)
		shape, err := st.Engine.Shape(g)
		if err != nil {
			return nil, fmt.Errorf("layer %s: feature %d: %w", layer.Name, i, err)
		}
		out = append(out, ProjectedFeature{
			Feature: models.Feature{Geometry: g, Properties: f.Properties},
			Shape:   shape,
		})
	}
	return out, nil
}
