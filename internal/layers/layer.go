package layers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/models"
)

// ReadLayer reads a context layer from a shapefile or GeoJSON file.
// crs is the EPSG code of the file; 0 means the run's source CRS.
func ReadLayer(path string, crs int) (*models.Layer, error) {
	var (
		features []models.Feature
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		features, err = readShapefile(path)
	case ".geojson", ".json":
		features, err = readGeoJSON(path)
	default:
		return nil, CheckLayerFormat(path)
	}
	if err != nil {
		return nil, err
	}

	return &models.Layer{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		CRS:      crs,
		Features: features,
	}, nil
}

// CheckLayerFormat reports whether ReadLayer can read path, by extension.
func CheckLayerFormat(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp", ".geojson", ".json":
		return nil
	}
	return fmt.Errorf("%w: %s (want .shp or .geojson)", ErrUnsupportedFormat, filepath.Base(path))
}
