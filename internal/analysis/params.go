package analysis

import (
	"fmt"
	"strings"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
)

// DegeneratePolicy selects how normalisation treats min == max
type DegeneratePolicy string

const (
	// DegenerateZero sets every index to 0 and records a warning.
	DegenerateZero DegeneratePolicy = "zero"
	// DegenerateFail aborts the run with ErrDegenerateRange.
	DegenerateFail DegeneratePolicy = "fail"
)

// DefaultBufferDistance is the buffer radius in working CRS units (metres for UTM)
const DefaultBufferDistance = 50.0

// Params are the validated settings of one run
type Params struct {
	BufferDistance    float64           `json:"buffer_distance"`
	SourceCRS         int               `json:"source_crs"`
	TargetCRS         int               `json:"target_crs"`
	QuadSegments      int               `json:"quad_segments"`
	DegeneratePolicy  DegeneratePolicy  `json:"degenerate_policy"`
	FailOnInvalidRows bool              `json:"fail_on_invalid_rows"`
	Fields            models.FieldNames `json:"fields"`
}

// DefaultParams returns the settings of the original tool
func DefaultParams() Params {
	return Params{
		BufferDistance:   DefaultBufferDistance,
		SourceCRS:        spatial.EPSGLonLat,
		TargetCRS:        spatial.EPSGUTMZone55S,
		QuadSegments:     spatial.DefaultQuadSegments,
		DegeneratePolicy: DegenerateZero,
		Fields: models.FieldNames{
			Latitude:      "IP LAT",
			Longitude:     "IP LON",
			AccountID:     "CUSTOMER I",
			AccountName:   "CUSTOMER N",
			SourceAddress: "IP ADDRESS",
			PoliceStation: "VicPolSTN",
			Address:       "EZI_ADD",
		},
	}
}

// Validate rejects parameters that must never reach a stage
func (p Params) Validate() error {
	if !(p.BufferDistance > 0) {
		return fmt.Errorf("%w: buffer distance must be > 0, got %v", ErrConfiguration, p.BufferDistance)
	}
	if p.SourceCRS <= 0 || p.TargetCRS <= 0 {
		return fmt.Errorf("%w: source and target CRS must be EPSG codes", ErrConfiguration)
	}
	if p.QuadSegments < 0 {
		return fmt.Errorf("%w: quad segments must not be negative", ErrConfiguration)
	}
	switch p.DegeneratePolicy {
	case DegenerateZero, DegenerateFail:
	default:
		return fmt.Errorf("%w: unknown degenerate policy %q", ErrConfiguration, p.DegeneratePolicy)
	}

	required := []struct {
		name, value string
	}{
		{"latitude", p.Fields.Latitude},
		{"longitude", p.Fields.Longitude},
		{"account_id", p.Fields.AccountID},
		{"account_name", p.Fields.AccountName},
		{"source_address", p.Fields.SourceAddress},
		{"police_station", p.Fields.PoliceStation},
		{"address", p.Fields.Address},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: field name %s is required", ErrConfiguration, f.name)
		}
	}
	return nil
}
