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

type teacherManager interface {
	Create(ctx context.Context, req dto.CreateTeacherRequest) (*models.TeacherProfile, error)
	Get(ctx context.Context, id string) (*models.TeacherProfile, error)
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, *models.Pagination, error)
	UpdateTimeWindows(ctx context.Context, id string, windows []models.TimeConstraint) (*models.TeacherProfile, error)
}

// TeacherHandler exposes teacher catalog endpoints.
type TeacherHandler struct {
	service teacherManager
}

// NewTeacherHandler constructs the handler.
func NewTeacherHandler(svc teacherManager) *TeacherHandler {
	return &TeacherHandler{service: svc}
}

// Create godoc
// @Summary Register a teacher profile
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body dto.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /teachers [post]
func (h *TeacherHandler) Create(c *gin.Context) {
	var req dto.CreateTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}
	teacher, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// Get godoc
// @Summary Fetch a teacher profile
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// List godoc
// @Summary List teacher profiles
// @Tags Teachers
// @Produce json
// @Param search query string false "Name or email search"
// @Param active query bool false "Active filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	filter := models.TeacherFilter{
		Search:   c.Query("search"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "pageSize"),
	}
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err == nil {
			filter.Active = &parsed
		}
	}
	teachers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, pagination)
}

// UpdateTimeWindows godoc
// @Summary Replace a teacher's availability windows
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teachers/{id}/time-windows [put]
func (h *TeacherHandler) UpdateTimeWindows(c *gin.Context) {
	var req struct {
		TimeWindows []models.TimeConstraint `json:"timeWindows" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid time windows payload"))
		return
	}
	teacher, err := h.service.UpdateTimeWindows(c.Request.Context(), c.Param("id"), req.TimeWindows)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}
