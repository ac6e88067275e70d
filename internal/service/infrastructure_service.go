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

type infrastructureRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, infra *models.Infrastructure) error
	AddMaintenance(ctx context.Context, exec sqlx.ExtContext, window *models.MaintenanceWindow) error
	FindByID(ctx context.Context, id string) (*models.Infrastructure, error)
	List(ctx context.Context, filter models.InfrastructureFilter) ([]models.Infrastructure, int, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// InfrastructureService manages the room catalogue and maintenance
// windows.
type InfrastructureService struct {
	infras    infrastructureRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInfrastructureService wires room catalogue dependencies.
func NewInfrastructureService(infras infrastructureRepository, validate *validator.Validate, logger *zap.Logger) *InfrastructureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InfrastructureService{infras: infras, validator: validate, logger: logger}
}

// Create registers a schedulable room.
func (s *InfrastructureService) Create(ctx context.Context, req dto.CreateInfrastructureRequest) (*models.Infrastructure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid infrastructure payload")
	}

	equipment, err := json.Marshal(req.Equipment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode equipment")
	}
	infra := &models.Infrastructure{
		Code:      req.Code,
		Name:      req.Name,
		Type:      req.Type,
		Capacity:  req.Capacity,
		Equipment: types.JSONText(equipment),
		Active:    true,
	}
	if err := s.infras.Create(ctx, nil, infra); err != nil {
		return nil, err
	}
	s.logger.Info("infrastructure created", zap.String("infrastructure_id", infra.ID), zap.String("code", infra.Code))
	return infra, nil
}

// AddMaintenance blocks a room for a dated window.
func (s *InfrastructureService) AddMaintenance(ctx context.Context, infrastructureID string, req dto.AddMaintenanceRequest) (*models.MaintenanceWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid maintenance payload")
	}
	if _, err := s.infras.FindByID(ctx, infrastructureID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "infrastructure not found")
	}

	window := &models.MaintenanceWindow{
		InfrastructureID: infrastructureID,
		StartsAt:         req.StartsAt,
		EndsAt:           req.EndsAt,
		Reason:           req.Reason,
	}
	if err := s.infras.AddMaintenance(ctx, nil, window); err != nil {
		return nil, err
	}
	return window, nil
}

// Get loads one room with maintenance attached.
func (s *InfrastructureService) Get(ctx context.Context, id string) (*models.Infrastructure, error) {
	infra, err := s.infras.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "infrastructure not found")
	}
	return infra, nil
}

// List returns rooms matching the filter.
func (s *InfrastructureService) List(ctx context.Context, filter models.InfrastructureFilter) ([]models.Infrastructure, *models.Pagination, error) {
	infras, total, err := s.infras.List(ctx, filter)
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
	return infras, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// SetActive toggles whether a room participates in scheduling.
func (s *InfrastructureService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.infras.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "infrastructure not found")
	}
	return nil
}
