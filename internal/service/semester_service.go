package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type semesterRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, semester *models.Semester) error
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	List(ctx context.Context) ([]models.Semester, error)
}

// SemesterService manages semester calendars.
type SemesterService struct {
	semesters semesterRepository
	tx        catalogTxProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService wires semester catalogue dependencies.
func NewSemesterService(semesters semesterRepository, tx catalogTxProvider, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{semesters: semesters, tx: tx, validator: validate, logger: logger}
}

// Create registers a semester with its holidays and exam periods.
func (s *SemesterService) Create(ctx context.Context, req dto.CreateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}

	semester := &models.Semester{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	for _, period := range req.Holidays {
		semester.Holidays = append(semester.Holidays, models.DateRange{Label: period.Label, Start: period.Start, End: period.End})
	}
	for _, period := range req.ExamPeriods {
		semester.ExamPeriods = append(semester.ExamPeriods, models.DateRange{Label: period.Label, Start: period.Start, End: period.End})
	}

	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.semesters.Create(ctx, tx, semester)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("semester created", zap.String("semester_id", semester.ID), zap.String("name", semester.Name))
	return semester, nil
}

// Get loads a semester with its calendar ranges.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.semesters.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "semester not found")
	}
	return semester, nil
}

// List returns all semesters.
func (s *SemesterService) List(ctx context.Context) ([]models.Semester, error) {
	return s.semesters.List(ctx)
}
