package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// Semester period kinds stored in semester_periods.kind.
const (
	periodKindHoliday = "HOLIDAY"
	periodKindExam    = "EXAM"
)

// SemesterRepository persists semester calendars with holiday and exam
// period ranges.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

func (r *SemesterRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a semester with its periods in one pass.
func (r *SemesterRepository) Create(ctx context.Context, exec sqlx.ExtContext, semester *models.Semester) error {
	if semester == nil {
		return fmt.Errorf("semester payload is nil")
	}
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	semester.CreatedAt = time.Now().UTC()

	target := r.exec(exec)

	const query = `
INSERT INTO semesters (id, name, start_date, end_date, created_at)
VALUES (:id, :name, :start_date, :end_date, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, semester); err != nil {
		return fmt.Errorf("insert semester: %w", err)
	}

	for i := range semester.Holidays {
		if err := r.insertPeriod(ctx, target, semester.ID, periodKindHoliday, &semester.Holidays[i]); err != nil {
			return err
		}
	}
	for i := range semester.ExamPeriods {
		if err := r.insertPeriod(ctx, target, semester.ID, periodKindExam, &semester.ExamPeriods[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *SemesterRepository) insertPeriod(ctx context.Context, target sqlx.ExtContext, semesterID, kind string, period *models.DateRange) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	const query = `
INSERT INTO semester_periods (id, semester_id, kind, label, start_date, end_date)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := target.ExecContext(ctx, query, period.ID, semesterID, kind, period.Label, period.Start, period.End); err != nil {
		return fmt.Errorf("insert semester period: %w", err)
	}
	return nil
}

// FindByID loads a semester with its holiday and exam ranges.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, created_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}

	const periodsQuery = `SELECT id, kind, label, start_date, end_date FROM semester_periods WHERE semester_id = $1 ORDER BY start_date`
	rows, err := r.db.QueryxContext(ctx, periodsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("load semester periods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			period models.DateRange
			kind   string
		)
		if err := rows.Scan(&period.ID, &kind, &period.Label, &period.Start, &period.End); err != nil {
			return nil, fmt.Errorf("scan semester period: %w", err)
		}
		switch kind {
		case periodKindHoliday:
			semester.Holidays = append(semester.Holidays, period)
		case periodKindExam:
			semester.ExamPeriods = append(semester.ExamPeriods, period)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate semester periods: %w", err)
	}
	return &semester, nil
}

// List returns all semesters ordered by start date, periods omitted.
func (r *SemesterRepository) List(ctx context.Context) ([]models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, created_at FROM semesters ORDER BY start_date DESC`
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query); err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}
