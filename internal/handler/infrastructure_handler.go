package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/response"
)

type infrastructureManager interface {
	Create(ctx context.Context, req dto.CreateInfrastructureRequest) (*models.Infrastructure, error)
	AddMaintenance(ctx context.Context, infrastructureID string, req dto.AddMaintenanceRequest) (*models.MaintenanceWindow, error)
	Get(ctx context.Context, id string) (*models.Infrastructure, error)
	List(ctx context.Context, filter models.InfrastructureFilter) ([]models.Infrastructure, *models.Pagination, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// InfrastructureHandler exposes room catalog endpoints.
type InfrastructureHandler struct {
	service infrastructureManager
}

// NewInfrastructureHandler constructs the handler.
func NewInfrastructureHandler(svc infrastructureManager) *InfrastructureHandler {
	return &InfrastructureHandler{service: svc}
}

// Create godoc
// @Summary Register a schedulable infrastructure
// @Tags Infrastructure
// @Accept json
// @Produce json
// @Param payload body dto.CreateInfrastructureRequest true "Infrastructure payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /infrastructure [post]
func (h *InfrastructureHandler) Create(c *gin.Context) {
	var req dto.CreateInfrastructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid infrastructure payload"))
		return
	}
	infra, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, infra)
}

// AddMaintenance godoc
// @Summary Block an infrastructure for a maintenance window
// @Tags Infrastructure
// @Accept json
// @Produce json
// @Param id path string true "Infrastructure ID"
// @Param payload body dto.AddMaintenanceRequest true "Maintenance payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /infrastructure/{id}/maintenance [post]
func (h *InfrastructureHandler) AddMaintenance(c *gin.Context) {
	var req dto.AddMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid maintenance payload"))
		return
	}
	window, err := h.service.AddMaintenance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, window)
}

// Get godoc
// @Summary Fetch an infrastructure with maintenance windows
// @Tags Infrastructure
// @Produce json
// @Param id path string true "Infrastructure ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /infrastructure/{id} [get]
func (h *InfrastructureHandler) Get(c *gin.Context) {
	infra, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, infra, nil)
}

// List godoc
// @Summary List infrastructure
// @Tags Infrastructure
// @Produce json
// @Param type query string false "Type filter"
// @Param minCapacity query int false "Minimum capacity"
// @Param active query bool false "Active filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /infrastructure [get]
func (h *InfrastructureHandler) List(c *gin.Context) {
	filter := models.InfrastructureFilter{
		MinCapacity: queryInt(c, "minCapacity"),
		Page:        queryInt(c, "page"),
		PageSize:    queryInt(c, "pageSize"),
	}
	if infraType := c.Query("type"); infraType != "" {
		parsed := models.InfrastructureType(infraType)
		filter.Type = &parsed
	}
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err == nil {
			filter.Active = &parsed
		}
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// SetActive godoc
// @Summary Activate or deactivate an infrastructure
// @Tags Infrastructure
// @Accept json
// @Param id path string true "Infrastructure ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /infrastructure/{id}/active [put]
func (h *InfrastructureHandler) SetActive(c *gin.Context) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.SetActive(c.Request.Context(), c.Param("id"), req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
