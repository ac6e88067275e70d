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

type formationManager interface {
	Create(ctx context.Context, req dto.CreateFormationRequest) (*models.FormationOffer, error)
	Get(ctx context.Context, id string) (*models.FormationOffer, error)
	List(ctx context.Context, filter models.FormationFilter) ([]models.FormationOffer, *models.Pagination, error)
	Delete(ctx context.Context, id string) error
	CreateSubject(ctx context.Context, req dto.CreateSubjectRequest) (*models.Subject, error)
	DeleteSubject(ctx context.Context, id string) error
}

// FormationHandler exposes formation and subject catalog endpoints.
type FormationHandler struct {
	service formationManager
}

// NewFormationHandler constructs the handler.
func NewFormationHandler(svc formationManager) *FormationHandler {
	return &FormationHandler{service: svc}
}

// Create godoc
// @Summary Register a formation offer with its partition tree
// @Tags Formations
// @Accept json
// @Produce json
// @Param payload body dto.CreateFormationRequest true "Formation payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /formations [post]
func (h *FormationHandler) Create(c *gin.Context) {
	var req dto.CreateFormationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid formation payload"))
		return
	}
	formation, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, formation)
}

// Get godoc
// @Summary Fetch a formation with sections, groups and subgroups
// @Tags Formations
// @Produce json
// @Param id path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /formations/{id} [get]
func (h *FormationHandler) Get(c *gin.Context) {
	formation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formation, nil)
}

// List godoc
// @Summary List formation offers
// @Tags Formations
// @Produce json
// @Param level query string false "Level filter"
// @Param search query string false "Name search"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /formations [get]
func (h *FormationHandler) List(c *gin.Context) {
	filter := models.FormationFilter{
		Search:   c.Query("search"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "pageSize"),
	}
	if level := c.Query("level"); level != "" {
		parsed := models.FormationLevel(level)
		filter.Level = &parsed
	}
	formations, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, formations, pagination)
}

// Delete godoc
// @Summary Delete a formation offer
// @Tags Formations
// @Param id path string true "Formation ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /formations/{id} [delete]
func (h *FormationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateSubject godoc
// @Summary Register a subject with its teaching modules
// @Tags Formations
// @Accept json
// @Produce json
// @Param id path string true "Formation ID"
// @Param payload body dto.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /formations/{id}/subjects [post]
func (h *FormationHandler) CreateSubject(c *gin.Context) {
	var req dto.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject payload"))
		return
	}
	req.FormationID = c.Param("id")
	subject, err := h.service.CreateSubject(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// DeleteSubject godoc
// @Summary Delete a subject and its modules
// @Tags Formations
// @Param id path string true "Formation ID"
// @Param subjectID path string true "Subject ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /formations/{id}/subjects/{subjectID} [delete]
func (h *FormationHandler) DeleteSubject(c *gin.Context) {
	if err := h.service.DeleteSubject(c.Request.Context(), c.Param("subjectID")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
