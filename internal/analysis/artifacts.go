package analysis

import (
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/paulmach/orb"
)

// Intermediate artifact names, as left behind by the original tool
const (
	ArtifactJurisdiction    = "JDictionPGNWGSz55"
	ArtifactPoints          = "IPLocations"
	ArtifactProjectedPoints = "IPLocsWGSz55"
	ArtifactClippedPoints   = "IPLocsClip"
	ArtifactBuffer          = "IPLocsBuffer"
	ArtifactLocations       = "IpBuffClean"
	ArtifactCounts          = "LocIdentities"
	ArtifactRanked          = "LOIOrder"
	ArtifactAddresses       = "AddrInterest"
	ArtifactAccounts        = "JoinAccts"
)

// Output attribute names of the primary layer
const (
	FieldRank       = "LOI"
	FieldIncidents  = "INCIDENTS"
	FieldIdentities = "IDENTITIES"
	FieldIncidentIx = "InCd_Indx"
	FieldIdentityIx = "Id_Indx"
	FieldScore      = "IndexCalc"
)

// pointFeatures converts points to features. projected selects the working
// CRS geometry instead of the source lon/lat.
func pointFeatures(points []models.LocationPoint, fields models.FieldNames, projected bool) []models.Feature {
	out := make([]models.Feature, 0, len(points))
	for _, p := range points {
		var g orb.Geometry = orb.Point{p.Longitude, p.Latitude}
		if projected {
			g = p.Geometry
		}
		out = append(out, models.Feature{
			Geometry: g,
			Properties: map[string]interface{}{
				fields.Latitude:      p.Latitude,
				fields.Longitude:     p.Longitude,
				fields.AccountID:     p.AccountID,
				fields.AccountName:   p.AccountName,
				fields.SourceAddress: p.SourceAddress,
			},
		})
	}
	return out
}

func projectedFeatures(features []ProjectedFeature) []models.Feature {
	out := make([]models.Feature, 0, len(features))
	for _, f := range features {
		out = append(out, f.Feature)
	}
	return out
}

// LocationAttributes returns the primary layer attributes of a location
func LocationAttributes(l models.Location, fields models.FieldNames) map[string]interface{} {
	return map[string]interface{}{
		FieldRank:            l.Rank,
		FieldIncidents:       l.IncidentCount,
		FieldIdentities:      l.IdentityCount,
		FieldIncidentIx:      l.IncidentIndex,
		FieldIdentityIx:      l.IdentityIndex,
		FieldScore:           l.CompositeScore,
		fields.PoliceStation: l.Jurisdiction(),
	}
}

func locationFeatures(locs []models.Location, fields models.FieldNames) []models.Feature {
	out := make([]models.Feature, 0, len(locs))
	for _, l := range locs {
		props := LocationAttributes(l, fields)
		props["id"] = l.ID
		out = append(out, models.Feature{Geometry: l.Shape.Geom, Properties: props})
	}
	return out
}

func addressFeatures(rows []models.AddressJoinRow, byID map[int]models.Location, fields models.FieldNames) []models.Feature {
	out := make([]models.Feature, 0, len(rows))
	for _, r := range rows {
		props := LocationAttributes(byID[r.LocationID], fields)
		props[fields.Address] = r.Address
		out = append(out, models.Feature{Geometry: byID[r.LocationID].Shape.Geom, Properties: props})
	}
	return out
}

func accountFeatures(rows []models.AccountJoinRow, byID map[int]models.Location, fields models.FieldNames) []models.Feature {
	out := make([]models.Feature, 0, len(rows))
	for _, r := range rows {
		props := LocationAttributes(byID[r.LocationID], fields)
		props[fields.AccountID] = r.AccountID
		props[fields.AccountName] = r.AccountName
		props[fields.SourceAddress] = r.SourceAddress
		out = append(out, models.Feature{Geometry: byID[r.LocationID].Shape.Geom, Properties: props})
	}
	return out
}

func locationsByID(locs []models.Location) map[int]models.Location {
	m := make(map[int]models.Location, len(locs))
	for _, l := range locs {
		m[l.ID] = l
	}
	return m
}
