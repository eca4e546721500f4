package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/loi-backend-go/internal/analysis"
	"github.com/jengzang/loi-backend-go/internal/middleware"
	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/repository"
	"github.com/jengzang/loi-backend-go/internal/service"
	"github.com/jengzang/loi-backend-go/pkg/response"
	"github.com/paulmach/orb/geojson"
)

// RunService is the part of service.RunService the handler needs
type RunService interface {
	Submit(req service.RunRequest) (*models.Run, error)
	GetRun(id string) (*models.Run, error)
	ListRuns(status string, limit int, offset int) ([]*models.Run, error)
	ListStages(runID string) ([]*models.RunStage, error)
	ListArtifacts(runID string) ([]*models.RunArtifact, error)
	ListLocations(runID string, limit int, offset int) ([]*models.LocationRecord, error)
}

// RunHandler handles HTTP requests for LOI runs
type RunHandler struct {
	service RunService
}

// NewRunHandler creates a new run handler
func NewRunHandler(service RunService) *RunHandler {
	return &RunHandler{service: service}
}

// CreateRun submits a new run
// POST /api/v1/runs
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req service.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	req.CreatedBy = c.GetString(middleware.UserKey)

	run, err := h.service.Submit(req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Accepted(c, run)
}

// GetRun retrieves a run by ID
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, run)
}

// ListRuns retrieves runs
// GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit, offset := pagination(c)

	runs, err := h.service.ListRuns(c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// GetStages retrieves the stage progress of a run
// GET /api/v1/runs/:id/stages
func (h *RunHandler) GetStages(c *gin.Context) {
	stages, err := h.service.ListStages(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"stages": stages})
}

// GetArtifacts retrieves the files written by a run
// GET /api/v1/runs/:id/artifacts
func (h *RunHandler) GetArtifacts(c *gin.Context) {
	artifacts, err := h.service.ListArtifacts(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"artifacts": artifacts})
}

// GetLocations retrieves the ranked locations of a run. format=geojson
// returns a bare FeatureCollection in the working CRS.
// GET /api/v1/runs/:id/locations
func (h *RunHandler) GetLocations(c *gin.Context) {
	limit, offset := pagination(c)

	locs, err := h.service.ListLocations(c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, locationCollection(locs))
		return
	}

	response.Success(c, gin.H{
		"locations": locs,
		"limit":     limit,
		"offset":    offset,
	})
}

func locationCollection(locs []*models.LocationRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range locs {
		if l.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(l.Geometry)
		f.Properties["rank"] = l.Rank
		f.Properties["incident_count"] = l.IncidentCount
		f.Properties["identity_count"] = l.IdentityCount
		f.Properties["incident_index"] = l.IncidentIndex
		f.Properties["identity_index"] = l.IdentityIndex
		f.Properties["composite_score"] = l.CompositeScore
		f.Properties["police_jurisdiction"] = l.PoliceJurisdiction
		f.Properties["geohash"] = l.Geohash
		f.Properties["spread_m"] = l.Spread
		fc.Append(f)
	}
	return fc
}

func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		offset = 0
	}
	return limit, offset
}

// respondError maps service errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrRunInProgress):
		response.Conflict(c, err.Error())
	case errors.Is(err, analysis.ErrConfiguration), errors.Is(err, analysis.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}
