package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/internal/service"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/response"
)

type timetableBuilder interface {
	Build(ctx context.Context, req dto.BuildTimetableRequest) (*dto.BuildTimetableResponse, error)
}

type timetableOptimizer interface {
	Optimize(ctx context.Context, req dto.OptimizeTimetableRequest) (*dto.OptimizeResult, error)
}

type timetableValidator interface {
	Validate(ctx context.Context, timetableID string) (*models.ValidationStatus, error)
	ResolveIssue(ctx context.Context, timetableID, issueID, actor string) (*models.ValidationStatus, error)
	Recheck(ctx context.Context, timetableID string) (*models.ValidationStatus, error)
	Approve(ctx context.Context, timetableID string, level models.ApprovalLevel, actor models.UserInfo) (*models.ValidationStatus, error)
}

type timetableReader interface {
	Get(ctx context.Context, id string) (*models.GeneratedTimetable, error)
	List(ctx context.Context, query dto.TimetableQuery) ([]models.GeneratedTimetable, *models.Pagination, error)
	Statistics(ctx context.Context, id string) (*models.TimetableStatistics, error)
	InvalidateStatistics(ctx context.Context, id string)
	Archive(ctx context.Context, id string) error
}

// TimetableHandler exposes the scheduling engine over HTTP.
type TimetableHandler struct {
	builder   timetableBuilder
	optimizer timetableOptimizer
	validator timetableValidator
	reader    timetableReader
	metrics   *service.MetricsService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(builder timetableBuilder, optimizer timetableOptimizer, validator timetableValidator, reader timetableReader, metrics *service.MetricsService) *TimetableHandler {
	return &TimetableHandler{
		builder:   builder,
		optimizer: optimizer,
		validator: validator,
		reader:    reader,
		metrics:   metrics,
	}
}

// Build godoc
// @Summary Build an initial timetable for a formation and semester
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.BuildTimetableRequest true "Build payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/build [post]
func (h *TimetableHandler) Build(c *gin.Context) {
	var req dto.BuildTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid build payload"))
		return
	}
	result, err := h.builder.Build(c.Request.Context(), req)
	if h.metrics != nil {
		h.metrics.ObserveBuild(err == nil)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Optimize godoc
// @Summary Refine a timetable with simulated annealing
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.OptimizeTimetableRequest true "Optimization parameters"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/optimize [post]
func (h *TimetableHandler) Optimize(c *gin.Context) {
	var req dto.OptimizeTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid optimize payload"))
		return
	}
	req.TimetableID = c.Param("id")
	started := time.Now()
	result, err := h.optimizer.Optimize(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveOptimize(time.Since(started))
	}
	h.reader.InvalidateStatistics(c.Request.Context(), req.TimetableID)
	response.JSON(c, http.StatusOK, result, nil)
}

// Validate godoc
// @Summary Run the conflict validation suite over a timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	status, err := h.validator.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveValidation(status.IsValidated)
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ResolveIssue godoc
// @Summary Manually resolve a non-critical validation issue
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param issueID path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/issues/{issueID}/resolve [post]
func (h *TimetableHandler) ResolveIssue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.validator.ResolveIssue(c.Request.Context(), c.Param("id"), c.Param("issueID"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Recheck godoc
// @Summary Recompute the validation verdict from stored issues
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/recheck [post]
func (h *TimetableHandler) Recheck(c *gin.Context) {
	status, err := h.validator.Recheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Approve godoc
// @Summary Advance the approval ladder by one level
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.ApproveTimetableRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/approve [post]
func (h *TimetableHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApproveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}
	status, err := h.validator.Approve(c.Request.Context(), c.Param("id"), req.Level, userFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Get godoc
// @Summary Fetch a timetable with its entries and validation state
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, err := h.reader.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// List godoc
// @Summary List timetables
// @Tags Timetables
// @Produce json
// @Param formationId query string false "Formation filter"
// @Param semesterId query string false "Semester filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	timetables, pagination, err := h.reader.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetables, pagination)
}

// Statistics godoc
// @Summary Aggregate load and utilization statistics for a timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/statistics [get]
func (h *TimetableHandler) Statistics(c *gin.Context) {
	stats, err := h.reader.Statistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Archive godoc
// @Summary Archive a timetable
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Archive(c *gin.Context) {
	if err := h.reader.Archive(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
