package repository

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/jengzang/loi-backend-go/internal/database"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/paulmach/orb/encoding/wkb"
)

// LocationRepository stores the ranked locations of a run
type LocationRepository struct {
	db *sql.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// SaveBatch replaces the stored locations of runID with locs in one transaction
func (r *LocationRepository) SaveBatch(runID string, locs []models.Location) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM locations WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear locations: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO locations (
				run_id, rank, location_id, incident_count, identity_count,
				incident_index, identity_index, composite_score, police_jurisdiction,
				centroid_lat, centroid_lon, geohash, spread_m, geometry_wkb
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, l := range locs {
			var geom []byte
			if l.Shape != nil {
				geom, err = wkb.Marshal(l.Shape.Geom)
				if err != nil {
					return fmt.Errorf("failed to encode location %d: %w", l.ID, err)
				}
			}

			var score sql.NullFloat64
			if !math.IsNaN(l.CompositeScore) && !math.IsInf(l.CompositeScore, 0) {
				score = sql.NullFloat64{Float64: l.CompositeScore, Valid: true}
			}
			var police sql.NullString
			if l.PoliceJurisdiction != nil {
				police = sql.NullString{String: *l.PoliceJurisdiction, Valid: true}
			}

			_, err = stmt.Exec(
				runID,
				l.Rank,
				l.ID,
				l.IncidentCount,
				l.IdentityCount,
				l.IncidentIndex,
				l.IdentityIndex,
				score,
				police,
				l.CentroidLat,
				l.CentroidLon,
				l.Geohash,
				l.Spread,
				geom,
			)
			if err != nil {
				return fmt.Errorf("failed to insert location %d: %w", l.ID, err)
			}
		}
		return nil
	})
}

// ListByRun returns the stored locations of a run ordered by rank
func (r *LocationRepository) ListByRun(runID string, limit int, offset int) ([]*models.LocationRecord, error) {
	query := `
		SELECT run_id, rank, location_id, incident_count, identity_count,
			   incident_index, identity_index, composite_score, police_jurisdiction,
			   centroid_lat, centroid_lon, geohash, spread_m, geometry_wkb
		FROM locations
		WHERE run_id = ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Query(query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	records := []*models.LocationRecord{}
	for rows.Next() {
		rec := &models.LocationRecord{}
		var score sql.NullFloat64
		var police sql.NullString
		var geom []byte
		err := rows.Scan(
			&rec.RunID,
			&rec.Rank,
			&rec.LocationID,
			&rec.IncidentCount,
			&rec.IdentityCount,
			&rec.IncidentIndex,
			&rec.IdentityIndex,
			&score,
			&police,
			&rec.CentroidLat,
			&rec.CentroidLon,
			&rec.Geohash,
			&rec.Spread,
			&geom,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		if score.Valid {
			rec.CompositeScore = &score.Float64
		}
		if police.Valid {
			rec.PoliceJurisdiction = &police.String
		}
		if len(geom) > 0 {
			rec.Geometry, err = wkb.Unmarshal(geom)
			if err != nil {
				return nil, fmt.Errorf("failed to decode location %d: %w", rec.LocationID, err)
			}
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
