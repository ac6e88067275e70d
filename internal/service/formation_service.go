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

type formationRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, formation *models.FormationOffer) error
	CreateSection(ctx context.Context, exec sqlx.ExtContext, section *models.Section) error
	CreateGroup(ctx context.Context, exec sqlx.ExtContext, group *models.Group) error
	CreateSubGroup(ctx context.Context, exec sqlx.ExtContext, subGroup *models.SubGroup) error
	FindByID(ctx context.Context, id string) (*models.FormationOffer, error)
	LoadPartition(ctx context.Context, id string) (*models.FormationOffer, error)
	List(ctx context.Context, filter models.FormationFilter) ([]models.FormationOffer, int, error)
	Delete(ctx context.Context, id string) error
}

type subjectRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, subject *models.Subject) error
	CreateModule(ctx context.Context, exec sqlx.ExtContext, module *models.Module) error
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	Delete(ctx context.Context, id string) error
}

type catalogTxProvider interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// FormationService manages the formation catalogue: offers, their
// partition tree and subjects.
type FormationService struct {
	formations formationRepository
	subjects   subjectRepository
	tx         catalogTxProvider
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewFormationService wires formation catalogue dependencies.
func NewFormationService(formations formationRepository, subjects subjectRepository, tx catalogTxProvider, validate *validator.Validate, logger *zap.Logger) *FormationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormationService{formations: formations, subjects: subjects, tx: tx, validator: validate, logger: logger}
}

// Create registers a formation with its full partition tree in one
// transaction.
func (s *FormationService) Create(ctx context.Context, req dto.CreateFormationRequest) (*models.FormationOffer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid formation payload")
	}

	constraints, err := json.Marshal(req.Constraints)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode constraints")
	}

	formation := &models.FormationOffer{
		Name:              req.Name,
		Level:             req.Level,
		DurationSemesters: req.DurationSemesters,
		TotalStudents:     req.TotalStudents,
		Constraints:       types.JSONText(constraints),
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.formations.Create(ctx, tx, formation); err != nil {
			return err
		}
		for _, sectionPayload := range req.Sections {
			section := &models.Section{
				FormationID: formation.ID,
				Name:        sectionPayload.Name,
				Capacity:    sectionPayload.Capacity,
			}
			if err := s.formations.CreateSection(ctx, tx, section); err != nil {
				return err
			}
			for _, groupPayload := range sectionPayload.Groups {
				group := &models.Group{
					SectionID: section.ID,
					Name:      groupPayload.Name,
					Type:      groupPayload.Type,
					Capacity:  groupPayload.Capacity,
				}
				if err := s.formations.CreateGroup(ctx, tx, group); err != nil {
					return err
				}
				for _, subGroupPayload := range groupPayload.SubGroups {
					subGroup := &models.SubGroup{
						GroupID: group.ID,
						Name:    subGroupPayload.Name,
						Size:    subGroupPayload.Size,
					}
					if err := s.formations.CreateSubGroup(ctx, tx, subGroup); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("formation created", zap.String("formation_id", formation.ID), zap.String("name", formation.Name))
	return s.formations.LoadPartition(ctx, formation.ID)
}

// Get loads a formation with its partition tree.
func (s *FormationService) Get(ctx context.Context, id string) (*models.FormationOffer, error) {
	formation, err := s.formations.LoadPartition(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "formation not found")
	}
	return formation, nil
}

// List returns formations matching the filter.
func (s *FormationService) List(ctx context.Context, filter models.FormationFilter) ([]models.FormationOffer, *models.Pagination, error) {
	formations, total, err := s.formations.List(ctx, filter)
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
	return formations, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Delete removes a formation with its partition tree.
func (s *FormationService) Delete(ctx context.Context, id string) error {
	if err := s.formations.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "formation not found")
	}
	return nil
}

// CreateSubject attaches a subject with its modules to a formation.
func (s *FormationService) CreateSubject(ctx context.Context, req dto.CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if _, err := s.formations.FindByID(ctx, req.FormationID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "formation not found")
	}

	subject := &models.Subject{
		FormationID:   req.FormationID,
		Code:          req.Code,
		Name:          req.Name,
		SemesterIndex: req.SemesterIndex,
	}
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.subjects.Create(ctx, tx, subject); err != nil {
			return err
		}
		for _, modulePayload := range req.Modules {
			module := &models.Module{
				SubjectID:             subject.ID,
				Type:                  modulePayload.Type,
				DurationMinutes:       modulePayload.DurationMinutes,
				Frequency:             modulePayload.Frequency,
				RequiredInfraType:     modulePayload.RequiredInfraType,
				RequiredQualification: modulePayload.RequiredQualification,
			}
			if err := s.subjects.CreateModule(ctx, tx, module); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.subjects.FindByID(ctx, subject.ID)
}

// DeleteSubject removes a subject and its modules.
func (s *FormationService) DeleteSubject(ctx context.Context, id string) error {
	if err := s.subjects.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "subject not found")
	}
	return nil
}
