package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadplan/timetable-api/pkg/response"
)

type timetableExporter interface {
	ExportCSV(ctx context.Context, timetableID string) ([]byte, string, error)
	ExportPDF(ctx context.Context, timetableID string) ([]byte, string, error)
}

// ExportHandler streams timetable exports.
type ExportHandler struct {
	service timetableExporter
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc timetableExporter) *ExportHandler {
	return &ExportHandler{service: svc}
}

// CSV godoc
// @Summary Export a timetable as CSV
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Timetable ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /timetables/{id}/export/csv [get]
func (h *ExportHandler) CSV(c *gin.Context) {
	data, filename, err := h.service.ExportCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

// PDF godoc
// @Summary Export a timetable as PDF
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Timetable ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /timetables/{id}/export/pdf [get]
func (h *ExportHandler) PDF(c *gin.Context) {
	data, filename, err := h.service.ExportPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
