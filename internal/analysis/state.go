package analysis

import (
	"fmt"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"go.uber.org/zap"
)

// Input holds the event table and the three context layers of a run
type Input struct {
	Events       []models.RawEvent
	Jurisdiction *models.Layer
	Police       *models.Layer
	Addresses    *models.Layer
}

// Validate checks that every layer is present. Empty layers are allowed.
func (in Input) Validate() error {
	layers := []struct {
		name  string
		layer *models.Layer
	}{
		{"jurisdiction", in.Jurisdiction},
		{"police", in.Police},
		{"address", in.Addresses},
	}
	for _, l := range layers {
		if l.layer == nil {
			return fmt.Errorf("%w: %s layer is required", ErrInvalidInput, l.name)
		}
	}
	return nil
}

// ProjectedFeature is a layer feature reprojected into the working CRS
type ProjectedFeature struct {
	models.Feature
	Shape *spatial.Shape
}

// State carries the named artifacts between stages. Every field is written
// by exactly one stage and only read afterwards.
type State struct {
	RunID  string
	Params Params
	Input  Input
	Engine *spatial.Engine
	Log    *zap.Logger

	// geocode
	Points       []models.LocationPoint
	RowErrors    []RowError
	Jurisdiction []ProjectedFeature
	Police       []ProjectedFeature
	Addresses    []ProjectedFeature

	// filter
	Filtered []models.LocationPoint

	// cluster
	Merged    *spatial.Shape
	Locations []models.Location

	// aggregate
	Counted []models.Location

	// score
	Ranked []models.Location

	// police_join
	Final []models.Location

	// address_join, account_join
	AddressRows []models.AddressJoinRow
	AccountRows []models.AccountJoinRow

	Warnings []string
}

func (st *State) warn(msg string, fields ...zap.Field) {
	st.Warnings = append(st.Warnings, msg)
	st.Log.Warn(msg, fields...)
}

func (st *State) result() *Result {
	res := &Result{
		RunID:       st.RunID,
		Params:      st.Params,
		Events:      len(st.Input.Events),
		Points:      len(st.Points),
		Filtered:    len(st.Filtered),
		Locations:   st.Final,
		AddressRows: st.AddressRows,
		AccountRows: st.AccountRows,
		warnings:    st.Warnings,
	}
	if len(st.RowErrors) > 0 {
		res.InvalidRows = &InvalidRowsError{Rows: st.RowErrors}
	}
	return res
}

// Result is the outcome of a completed run
type Result struct {
	RunID  string
	Params Params

	Events   int // rows read
	Points   int // rows geocoded
	Filtered int // points inside the jurisdiction

	Locations   []models.Location // ranked, with police jurisdiction
	AddressRows []models.AddressJoinRow
	AccountRows []models.AccountJoinRow

	InvalidRows *InvalidRowsError // nil when every row geocoded

	warnings []string
}

// Empty reports whether the run found no locations
func (r *Result) Empty() bool {
	return len(r.Locations) == 0
}

// Warnings lists the non-fatal conditions of the run
func (r *Result) Warnings() []string {
	out := append([]string(nil), r.warnings...)
	if r.Empty() {
		out = append(out, ErrEmptyResult.Error())
	}
	return out
}
