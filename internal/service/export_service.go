package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/export"
)

var dayNames = map[int]string{
	1: "Monday", 2: "Tuesday", 3: "Wednesday", 4: "Thursday", 5: "Friday", 6: "Saturday", 7: "Sunday",
}

type exportTimetableReader interface {
	Get(ctx context.Context, id string) (*models.GeneratedTimetable, error)
}

// ExportService renders timetables as CSV or PDF documents.
type ExportService struct {
	timetables  exportTimetableReader
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	institution string
	enabled     bool
	logger      *zap.Logger
}

// NewExportService wires export dependencies.
func NewExportService(timetables exportTimetableReader, csv *export.CSVExporter, pdf *export.PDFExporter, institution string, enabled bool, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("A4")
	}
	return &ExportService{
		timetables:  timetables,
		csv:         csv,
		pdf:         pdf,
		institution: institution,
		enabled:     enabled,
		logger:      logger,
	}
}

// ExportCSV renders the timetable's entries as CSV.
func (s *ExportService) ExportCSV(ctx context.Context, timetableID string) ([]byte, string, error) {
	dataset, timetable, err := s.dataset(ctx, timetableID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(*dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "csv rendering failed")
	}
	filename := fmt.Sprintf("timetable_%s_v%d.csv", timetable.FormationID, timetable.Version)
	return payload, filename, nil
}

// ExportPDF renders the timetable's entries as a tabular PDF.
func (s *ExportService) ExportPDF(ctx context.Context, timetableID string) ([]byte, string, error) {
	dataset, timetable, err := s.dataset(ctx, timetableID)
	if err != nil {
		return nil, "", err
	}
	title := fmt.Sprintf("%s - timetable v%d", s.institution, timetable.Version)
	payload, err := s.pdf.Render(*dataset, title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "pdf rendering failed")
	}
	filename := fmt.Sprintf("timetable_%s_v%d.pdf", timetable.FormationID, timetable.Version)
	return payload, filename, nil
}

func (s *ExportService) dataset(ctx context.Context, timetableID string) (*export.Dataset, *models.GeneratedTimetable, error) {
	if !s.enabled {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}
	timetable, err := s.timetables.Get(ctx, timetableID)
	if err != nil {
		return nil, nil, err
	}

	dataset := &export.Dataset{
		Headers: []string{"Day", "Start", "End", "Subject", "Module", "Audience", "Teacher", "Room", "Parity", "Status"},
	}
	for _, entry := range timetable.Entries {
		if entry.Status == models.EntryStatusCancelled {
			continue
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Day":      dayNames[entry.DayOfWeek],
			"Start":    formatMinute(entry.StartMinute),
			"End":      formatMinute(entry.EndMinute),
			"Subject":  entry.SubjectID,
			"Module":   entry.ModuleID,
			"Audience": entry.AudienceID,
			"Teacher":  entry.TeacherID,
			"Room":     entry.InfrastructureID,
			"Parity":   string(entry.WeekParity),
			"Status":   string(entry.Status),
		})
	}
	return dataset, timetable, nil
}

func formatMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
