package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/acadplan/timetable-api/internal/models"
)

// TeacherRepository persists teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a teacher profile row.
func (r *TeacherRepository) Create(ctx context.Context, exec sqlx.ExtContext, teacher *models.TeacherProfile) error {
	if teacher == nil {
		return fmt.Errorf("teacher payload is nil")
	}
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	if len(teacher.Qualifications) == 0 {
		teacher.Qualifications = types.JSONText(`[]`)
	}
	if len(teacher.TimeWindows) == 0 {
		teacher.TimeWindows = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now

	const query = `
INSERT INTO teachers (id, full_name, email, qualifications, max_weekly_hours, time_windows, active, created_at, updated_at)
VALUES (:id, :full_name, :email, :qualifications, :max_weekly_hours, :time_windows, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, teacher); err != nil {
		return fmt.Errorf("insert teacher: %w", err)
	}
	return nil
}

// FindByID loads a teacher profile.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	const query = `SELECT id, full_name, email, qualifications, max_weekly_hours, time_windows, active, created_at, updated_at FROM teachers WHERE id = $1`
	var teacher models.TeacherProfile
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListActive returns every active teacher. The engine's assignment pool.
func (r *TeacherRepository) ListActive(ctx context.Context) ([]models.TeacherProfile, error) {
	const query = `SELECT id, full_name, email, qualifications, max_weekly_hours, time_windows, active, created_at, updated_at FROM teachers WHERE active = TRUE ORDER BY full_name`
	var teachers []models.TeacherProfile
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list active teachers: %w", err)
	}
	return teachers, nil
}

// List returns teachers matching the filter with a total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherProfile, int, error) {
	baseQuery := `FROM teachers WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	query := fmt.Sprintf(`SELECT id, full_name, email, qualifications, max_weekly_hours, time_windows, active, created_at, updated_at %s ORDER BY full_name LIMIT $%d OFFSET $%d`,
		baseQuery, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var teachers []models.TeacherProfile
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, total, nil
}

// UpdateTimeWindows replaces a teacher's availability document.
func (r *TeacherRepository) UpdateTimeWindows(ctx context.Context, id string, windows types.JSONText) error {
	const query = `UPDATE teachers SET time_windows = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, windows, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update teacher time windows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("teacher rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
