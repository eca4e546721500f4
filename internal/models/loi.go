package models

import (
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"github.com/paulmach/orb"
)

// FieldNames binds the pipeline to the column and attribute names of its inputs
type FieldNames struct {
	Latitude      string `json:"latitude"`
	Longitude     string `json:"longitude"`
	AccountID     string `json:"account_id"`
	AccountName   string `json:"account_name"`
	SourceAddress string `json:"source_address"`
	PoliceStation string `json:"police_station"`
	Address       string `json:"address"`
}

// RawEvent is one row of the login event table. Coordinates stay as text
// until geocoding parses them.
type RawEvent struct {
	Row           int               `json:"row"` // 1-based, header excluded
	Latitude      string            `json:"latitude"`
	Longitude     string            `json:"longitude"`
	AccountID     string            `json:"account_id"`
	AccountName   string            `json:"account_name"`
	SourceAddress string            `json:"source_address"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// LocationPoint is a geocoded event
type LocationPoint struct {
	Row       int       `json:"row"`
	Longitude float64   `json:"longitude"` // source frame, degrees
	Latitude  float64   `json:"latitude"`
	Geometry  orb.Point `json:"-"` // working CRS

	AccountID     string `json:"account_id"`
	AccountName   string `json:"account_name"`
	SourceAddress string `json:"source_address"`

	Shape *spatial.Shape `json:"-"`
}

// Location is one connected component of the dissolved point buffers
type Location struct {
	ID    int            `json:"id"` // explode order
	Shape *spatial.Shape `json:"-"`

	IncidentCount  int     `json:"incident_count"`
	IdentityCount  int     `json:"identity_count"`
	IncidentIndex  float64 `json:"incident_index"`
	IdentityIndex  float64 `json:"identity_index"`
	CompositeScore float64 `json:"composite_score"`
	Rank           int     `json:"rank"`

	PoliceJurisdiction *string `json:"police_jurisdiction"`

	// Context derived from the member points
	CentroidLat float64 `json:"centroid_lat"`
	CentroidLon float64 `json:"centroid_lon"`
	Geohash     string  `json:"geohash"`
	Spread      float64 `json:"spread_m"`

	Members []int `json:"-"` // indices into the filtered points
}

// Jurisdiction returns the police jurisdiction or "" when none overlaps
func (l Location) Jurisdiction() string {
	if l.PoliceJurisdiction == nil {
		return ""
	}
	return *l.PoliceJurisdiction
}

// AddressJoinRow pairs a ranked location with an address inside it
type AddressJoinRow struct {
	Rank               int     `json:"rank"`
	IncidentCount      int     `json:"incident_count"`
	IdentityCount      int     `json:"identity_count"`
	IncidentIndex      float64 `json:"incident_index"`
	IdentityIndex      float64 `json:"identity_index"`
	CompositeScore     float64 `json:"composite_score"`
	PoliceJurisdiction string  `json:"police_jurisdiction"`
	Address            string  `json:"address"` // empty when no address falls inside

	LocationID int `json:"-"`
}

// AccountJoinRow pairs a ranked location with an account seen inside it
type AccountJoinRow struct {
	Rank               int     `json:"rank"`
	IncidentCount      int     `json:"incident_count"`
	IdentityCount      int     `json:"identity_count"`
	IncidentIndex      float64 `json:"incident_index"`
	IdentityIndex      float64 `json:"identity_index"`
	CompositeScore     float64 `json:"composite_score"`
	PoliceJurisdiction string  `json:"police_jurisdiction"`
	AccountID          string  `json:"account_id"`
	AccountName        string  `json:"account_name"`
	SourceAddress      string  `json:"source_address"`

	LocationID int `json:"-"`
}
