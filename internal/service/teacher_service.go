package service

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type teacherRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, teacher *models.TeacherProfile) error
	FindByID(ctx context.Context, id string) (*models.TeacherProfile, error)
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, int, error)
	UpdateTimeWindows(ctx context.Context, id string, windows types.JSONText) error
}

// TeacherService manages teacher profiles consumed by the engine.
type TeacherService struct {
	teachers  teacherRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService wires teacher catalogue dependencies.
func NewTeacherService(teachers teacherRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{teachers: teachers, validator: validate, logger: logger}
}

// Create registers a teacher profile.
func (s *TeacherService) Create(ctx context.Context, req dto.CreateTeacherRequest) (*models.TeacherProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	qualifications, err := json.Marshal(req.Qualifications)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode qualifications")
	}
	windows, err := json.Marshal(req.TimeWindows)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode time windows")
	}

	maxWeekly := req.MaxWeeklyHours
	if maxWeekly <= 0 {
		maxWeekly = 20
	}
	teacher := &models.TeacherProfile{
		FullName:       req.FullName,
		Email:          req.Email,
		Qualifications: types.JSONText(qualifications),
		MaxWeeklyHours: maxWeekly,
		TimeWindows:    types.JSONText(windows),
		Active:         true,
	}
	if err := s.teachers.Create(ctx, nil, teacher); err != nil {
		return nil, err
	}
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID))
	return teacher, nil
}

// Get loads a teacher profile.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.TeacherProfile, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "teacher not found")
	}
	return teacher, nil
}

// List returns teachers matching the filter.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, *models.Pagination, error) {
	teachers, total, err := s.teachers.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	return teachers, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UpdateTimeWindows replaces a teacher's availability constraints.
func (s *TeacherService) UpdateTimeWindows(ctx context.Context, id string, windows []models.TimeConstraint) (*models.TeacherProfile, error) {
	encoded, err := json.Marshal(windows)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode time windows")
	}
	if err := s.teachers.UpdateTimeWindows(ctx, id, types.JSONText(encoded)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "teacher not found")
	}
	return s.teachers.FindByID(ctx, id)
}
