package layers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/paulmach/orb/geojson"
)

func readGeoJSON(path string) ([]models.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", analysis.ErrInvalidInput, filepath.Base(path), err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", analysis.ErrInvalidInput, filepath.Base(path), err)
	}

	features := make([]models.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		features = append(features, models.Feature{
			Geometry:   f.Geometry,
			Properties: map[string]interface{}(f.Properties),
		})
	}
	return features, nil
}

// WriteGeoJSON writes features as a FeatureCollection. The file is written
// to a temporary path first and renamed into place.
func WriteGeoJSON(path string, features []models.Feature) error {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// GeoJSONSink writes pipeline artifacts to <Dir>/<run id>/<name>.geojson.
// Files are left in place after the run.
type GeoJSONSink struct {
	Dir string
}

// NewGeoJSONSink creates a sink rooted at dir
func NewGeoJSONSink(dir string) *GeoJSONSink {
	return &GeoJSONSink{Dir: dir}
}

// WriteArtifact implements analysis.ArtifactSink
func (s *GeoJSONSink) WriteArtifact(ctx context.Context, runID string, a analysis.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.Dir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	path := filepath.Join(dir, a.Name+".geojson")
	if err := WriteGeoJSON(path, a.Features); err != nil {
		return "", err
	}
	return path, nil
}
