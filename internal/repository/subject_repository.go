package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// SubjectRepository persists subjects and their modules.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a subject row.
func (r *SubjectRepository) Create(ctx context.Context, exec sqlx.ExtContext, subject *models.Subject) error {
	if subject == nil {
		return fmt.Errorf("subject payload is nil")
	}
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now

	const query = `
INSERT INTO subjects (id, formation_id, code, name, semester_index, created_at, updated_at)
VALUES (:id, :formation_id, :code, :name, :semester_index, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, subject); err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

// CreateModule inserts one teaching unit of a subject.
func (r *SubjectRepository) CreateModule(ctx context.Context, exec sqlx.ExtContext, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	module.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO modules (id, subject_id, type, duration_minutes, frequency, required_infra_type, required_qualification, created_at)
VALUES (:id, :subject_id, :type, :duration_minutes, :frequency, :required_infra_type, :required_qualification, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, module); err != nil {
		return fmt.Errorf("insert module: %w", err)
	}
	return nil
}

// FindByID loads a subject with its modules.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, formation_id, code, name, semester_index, created_at, updated_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	const modulesQuery = `SELECT id, subject_id, type, duration_minutes, frequency, required_infra_type, required_qualification, created_at FROM modules WHERE subject_id = $1 ORDER BY type`
	if err := r.db.SelectContext(ctx, &subject.Modules, modulesQuery, id); err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}
	return &subject, nil
}

// FindModule loads one module by identifier.
func (r *SubjectRepository) FindModule(ctx context.Context, id string) (*models.Module, error) {
	const query = `SELECT id, subject_id, type, duration_minutes, frequency, required_infra_type, required_qualification, created_at FROM modules WHERE id = $1`
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}

// ListByFormationSemester returns the subjects of a formation for one
// semester index, modules attached. This is the builder's demand input.
func (r *SubjectRepository) ListByFormationSemester(ctx context.Context, formationID string, semesterIndex int) ([]models.Subject, error) {
	const query = `SELECT id, formation_id, code, name, semester_index, created_at, updated_at
FROM subjects WHERE formation_id = $1 AND semester_index = $2 ORDER BY code`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, formationID, semesterIndex); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	if len(subjects) == 0 {
		return subjects, nil
	}

	subjectIDs := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		subjectIDs = append(subjectIDs, subject.ID)
	}
	modulesQuery, args, err := sqlx.In(`SELECT id, subject_id, type, duration_minutes, frequency, required_infra_type, required_qualification, created_at
FROM modules WHERE subject_id IN (?) ORDER BY type`, subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("build modules query: %w", err)
	}
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, r.db.Rebind(modulesQuery), args...); err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}

	bySubject := make(map[string][]models.Module, len(subjects))
	for _, module := range modules {
		bySubject[module.SubjectID] = append(bySubject[module.SubjectID], module)
	}
	for i := range subjects {
		subjects[i].Modules = bySubject[subjects[i].ID]
	}
	return subjects, nil
}

// Delete removes a subject and its modules.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM subjects WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("subject rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
