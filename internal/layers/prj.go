package layers

import (
	"fmt"
	"os"
	"strings"
)

const (
	geogWGS84   = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	geogGDA94   = `GEOGCS["GCS_GDA_1994",DATUM["D_GDA_1994",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	geogGDA2020 = `GEOGCS["GCS_GDA2020",DATUM["D_GDA2020",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
)

// ProjectionWKT returns the ESRI WKT written to .prj files for epsg.
// Known codes: 4326, WGS 84 UTM zones (326xx, 327xx), GDA94 MGA zones
// 48-58 (283xx) and GDA2020 MGA zones 46-59 (78xx).
func ProjectionWKT(epsg int) (string, bool) {
	switch {
	case epsg == 4326:
		return geogWGS84, true
	case epsg >= 32601 && epsg <= 32660:
		return utmWKT(fmt.Sprintf("WGS_1984_UTM_Zone_%dN", epsg-32600), geogWGS84, epsg-32600, 0), true
	case epsg >= 32701 && epsg <= 32760:
		return utmWKT(fmt.Sprintf("WGS_1984_UTM_Zone_%dS", epsg-32700), geogWGS84, epsg-32700, 10000000), true
	case epsg >= 28348 && epsg <= 28358:
		return utmWKT(fmt.Sprintf("GDA_1994_MGA_Zone_%d", epsg-28300), geogGDA94, epsg-28300, 10000000), true
	case epsg >= 7846 && epsg <= 7859:
		return utmWKT(fmt.Sprintf("GDA2020_MGA_Zone_%d", epsg-7800), geogGDA2020, epsg-7800, 10000000), true
	}
	return "", false
}

func utmWKT(name, geog string, zone int, falseNorthing float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `PROJCS["%s",%s,PROJECTION["Transverse_Mercator"],`, name, geog)
	sb.WriteString(`PARAMETER["False_Easting",500000.0],`)
	fmt.Fprintf(&sb, `PARAMETER["False_Northing",%.1f],`, falseNorthing)
	fmt.Fprintf(&sb, `PARAMETER["Central_Meridian",%.1f],`, float64(zone*6-183))
	sb.WriteString(`PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`)
	return sb.String()
}

// writePRJ writes the .prj sidecar of the shapefile at shpPath. Codes without
// a known WKT leave no sidecar.
func writePRJ(shpPath string, epsg int) error {
	wkt, ok := ProjectionWKT(epsg)
	if !ok {
		return nil
	}
	path := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	if err := os.WriteFile(path, []byte(wkt), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
