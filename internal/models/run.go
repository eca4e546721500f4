package models

import (
	"time"

	"github.com/paulmach/orb"
)

// Run represents one execution of the LOI pipeline
type Run struct {
	ID string `json:"id" db:"id"` // uuid

	BaseName string `json:"base_name" db:"base_name"` // output file stem, no extension
	Status   string `json:"status" db:"status"`       // pending, running, completed, failed

	// Input parameters
	ParamsJSON string `json:"params_json,omitempty" db:"params_json"`

	// Execution info
	TotalRows     int   `json:"total_rows" db:"total_rows"`
	SkippedRows   int   `json:"skipped_rows" db:"skipped_rows"`
	LocationCount int   `json:"location_count" db:"location_count"`
	StartTime     int64 `json:"start_time,omitempty" db:"start_time"` // Unix timestamp
	EndTime       int64 `json:"end_time,omitempty" db:"end_time"`     // Unix timestamp

	// Results
	ResultSummary string `json:"result_summary,omitempty" db:"result_summary"` // JSON RunSummary
	ErrorMessage  string `json:"error_message,omitempty" db:"error_message"`

	// Metadata
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RunStatus constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunSummary is stored as JSON in Run.ResultSummary
type RunSummary struct {
	Events         int      `json:"events"`
	Points         int      `json:"points"`
	FilteredPoints int      `json:"filtered_points"`
	Locations      int      `json:"locations"`
	CRS            int      `json:"crs"`
	AddressRows    int      `json:"address_rows"`
	AccountRows    int      `json:"account_rows"`
	MeanScore      float64  `json:"mean_score"`
	MedianScore    float64  `json:"median_score"`
	MaxIncidents   int      `json:"max_incidents"`
	MaxIdentities  int      `json:"max_identities"`
	Outputs        []string `json:"outputs"`
	Warnings       []string `json:"warnings,omitempty"`
}

// RunStage tracks one pipeline stage of a run
type RunStage struct {
	RunID        string `json:"run_id" db:"run_id"`
	Seq          int    `json:"seq" db:"seq"`
	Name         string `json:"name" db:"name"`
	Status       string `json:"status" db:"status"`
	InputCount   int    `json:"input_count" db:"input_count"`
	OutputCount  int    `json:"output_count" db:"output_count"`
	DurationMS   int64  `json:"duration_ms" db:"duration_ms"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
	StartTime    int64  `json:"start_time,omitempty" db:"start_time"`
	EndTime      int64  `json:"end_time,omitempty" db:"end_time"`
}

// RunArtifact is a file written by a run, either an intermediate layer or a final output
type RunArtifact struct {
	ID           int64     `json:"id" db:"id"`
	RunID        string    `json:"run_id" db:"run_id"`
	Name         string    `json:"name" db:"name"`
	Kind         string    `json:"kind" db:"kind"` // intermediate, output
	Path         string    `json:"path" db:"path"`
	FeatureCount int       `json:"feature_count" db:"feature_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ArtifactKind constants
const (
	ArtifactKindIntermediate = "intermediate"
	ArtifactKindOutput       = "output"
)

// LocationRecord is a scored location as stored for a run
type LocationRecord struct {
	RunID              string       `json:"run_id" db:"run_id"`
	Rank               int          `json:"rank" db:"rank"`
	LocationID         int          `json:"location_id" db:"location_id"`
	IncidentCount      int          `json:"incident_count" db:"incident_count"`
	IdentityCount      int          `json:"identity_count" db:"identity_count"`
	IncidentIndex      float64      `json:"incident_index" db:"incident_index"`
	IdentityIndex      float64      `json:"identity_index" db:"identity_index"`
	CompositeScore     *float64     `json:"composite_score" db:"composite_score"` // nil when not a number
	PoliceJurisdiction *string      `json:"police_jurisdiction" db:"police_jurisdiction"`
	CentroidLat        float64      `json:"centroid_lat" db:"centroid_lat"`
	CentroidLon        float64      `json:"centroid_lon" db:"centroid_lon"`
	Geohash            string       `json:"geohash" db:"geohash"`
	Spread             float64      `json:"spread_m" db:"spread_m"`
	Geometry           orb.Geometry `json:"-" db:"geometry_wkb"` // working CRS
}
