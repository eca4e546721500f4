package layers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLocations_RoundTrip(t *testing.T) {
	e := spatial.NewEngine(spatial.DefaultQuadSegments)
	disk, err := e.BufferDissolve([]orb.Point{{1000, 1000}}, 50)
	require.NoError(t, err)
	sq, err := e.Shape(orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}})
	require.NoError(t, err)

	station := "MELBOURNE EAST"
	locs := []models.Location{
		{ID: 0, Shape: disk, Rank: 1, IncidentCount: 20, IdentityCount: 3, IncidentIndex: 1, IdentityIndex: 0.5, CompositeScore: 75, PoliceJurisdiction: &station},
		{ID: 1, Shape: sq, Rank: 2, IncidentCount: 1, IdentityCount: 1},
	}

	fields := analysis.DefaultParams().Fields
	path := filepath.Join(t.TempDir(), "LOI.shp")
	require.NoError(t, WriteLocations(path, locs, fields, spatial.EPSGUTMZone55S))

	prj, err := os.ReadFile(filepath.Join(filepath.Dir(path), "LOI.prj"))
	require.NoError(t, err)
	assert.Contains(t, string(prj), `PROJCS["WGS_1984_UTM_Zone_55S"`)
	assert.Contains(t, string(prj), `PARAMETER["Central_Meridian",147.0]`)
	assert.Contains(t, string(prj), `PARAMETER["False_Northing",10000000.0]`)

	layer, err := ReadLayer(path, spatial.EPSGUTMZone55S)
	require.NoError(t, err)
	assert.Equal(t, "LOI", layer.Name)
	assert.Equal(t, spatial.EPSGUTMZone55S, layer.CRS)
	require.Len(t, layer.Features, 2)

	first := layer.Features[0]
	rank, _ := first.Attr("LOI")
	assert.Equal(t, "1", rank)
	inc, _ := first.Attr("INCIDENTS")
	assert.Equal(t, "20", inc)
	ids, _ := first.Attr("IDENTITIES")
	assert.Equal(t, "3", ids)
	ix, _ := first.Attr("Id_Indx")
	assert.Equal(t, "0.500000", ix)
	score, _ := first.Attr("IndexCalc")
	assert.Equal(t, "75.0000", score)
	stn, _ := first.Attr("VicPolSTN")
	assert.Equal(t, station, stn)

	poly, ok := first.Geometry.(orb.Polygon)
	require.True(t, ok, "got %T", first.Geometry)
	assert.Equal(t, orb.CW, poly[0].Orientation(), "outer ring is written clockwise")
	assert.InDelta(t, 1000, poly.Bound().Center().X(), 1e-6)

	second := layer.Features[1]
	stn, _ = second.Attr("VicPolSTN")
	assert.Empty(t, stn)
	_, ok = second.Geometry.(orb.Polygon)
	assert.True(t, ok)
}

func TestWriteLocations_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.shp")
	require.NoError(t, WriteLocations(path, nil, analysis.DefaultParams().Fields, 3857))
	assert.NoFileExists(t, filepath.Join(dir, "empty.prj"), "no WKT is known for EPSG:3857")

	layer, err := ReadLayer(path, 0)
	require.NoError(t, err)
	assert.Empty(t, layer.Features)
}

func TestReadLayer_PointShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("EZI_ADD", 50)}))
	for i, addr := range []string{"1 HIGH ST", "2 HIGH ST"} {
		row := w.Write(&shp.Point{X: float64(i), Y: float64(i * 2)})
		require.NoError(t, w.WriteAttribute(int(row), 0, addr))
	}
	w.Close()

	layer, err := ReadLayer(path, 4326)
	require.NoError(t, err)
	require.Len(t, layer.Features, 2)
	assert.Equal(t, orb.Point{1, 2}, layer.Features[1].Geometry)
	addr, ok := layer.Features[1].Attr("EZI_ADD")
	assert.True(t, ok)
	assert.Equal(t, "2 HIGH ST", addr)
}

func TestRingsToPolygons(t *testing.T) {
	outerA := []orb.Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}} // clockwise
	hole := []orb.Point{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}}       // counter-clockwise
	outerB := []orb.Point{{20, 0}, {20, 5}, {25, 5}, {25, 0}, {20, 0}}

	g := ringsToPolygons([][]orb.Point{outerA, hole, outerB})
	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 2)
	assert.Len(t, mp[1], 1)
}

func TestProjectionWKT(t *testing.T) {
	tests := []struct {
		epsg int
		want []string
	}{
		{4326, []string{`GEOGCS["GCS_WGS_1984"`}},
		{32633, []string{`"WGS_1984_UTM_Zone_33N"`, `"False_Northing",0.0`, `"Central_Meridian",15.0`}},
		{28355, []string{`"GDA_1994_MGA_Zone_55"`, `D_GDA_1994`, `"Central_Meridian",147.0`}},
		{7855, []string{`"GDA2020_MGA_Zone_55"`, `D_GDA2020`}},
	}
	for _, tt := range tests {
		wkt, ok := ProjectionWKT(tt.epsg)
		require.True(t, ok, tt.epsg)
		for _, w := range tt.want {
			assert.Contains(t, wkt, w, tt.epsg)
		}
	}

	_, ok := ProjectionWKT(3857)
	assert.False(t, ok)
}
