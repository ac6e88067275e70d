package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/response"
)

type reservationManager interface {
	CreateBatch(ctx context.Context, timetableID string) (*models.ReservationBatch, error)
	Process(ctx context.Context, batchID string) (*dto.BatchProgress, error)
	CancelBatch(ctx context.Context, batchID string, req dto.CancelBatchRequest) (*models.ReservationBatch, error)
	GetBatch(ctx context.Context, batchID string) (*dto.BatchDetailResponse, error)
	Progress(ctx context.Context, batchID string) (*dto.BatchProgress, error)
}

// ReservationHandler exposes dated booking batches over HTTP.
type ReservationHandler struct {
	service reservationManager
}

// NewReservationHandler constructs the handler.
func NewReservationHandler(svc reservationManager) *ReservationHandler {
	return &ReservationHandler{service: svc}
}

// CreateBatch godoc
// @Summary Expand a validated timetable into a reservation batch
// @Tags Reservations
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /timetables/{id}/reservations [post]
func (h *ReservationHandler) CreateBatch(c *gin.Context) {
	batch, err := h.service.CreateBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Process godoc
// @Summary Start asynchronous processing of a reservation batch
// @Tags Reservations
// @Produce json
// @Param id path string true "Batch ID"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /reservation-batches/{id}/process [post]
func (h *ReservationHandler) Process(c *gin.Context) {
	progress, err := h.service.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, progress)
}

// Cancel godoc
// @Summary Cancel a reservation batch and its live bookings
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.CancelBatchRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reservation-batches/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	var req dto.CancelBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
		return
	}
	batch, err := h.service.CancelBatch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Get godoc
// @Summary Fetch a reservation batch with its reservations
// @Tags Reservations
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reservation-batches/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	detail, err := h.service.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Progress godoc
// @Summary Poll processing progress of a reservation batch
// @Tags Reservations
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reservation-batches/{id}/progress [get]
func (h *ReservationHandler) Progress(c *gin.Context) {
	progress, err := h.service.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
