package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadplan/timetable-api/internal/models"
)

// TimetableRepository persists versioned generated timetables and their
// entries.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// WithTx runs fn inside a transaction, committing on nil error.
func (r *TimetableRepository) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AcquireMutationLock takes a transaction-scoped advisory lock for the
// timetable. Concurrent builder/optimizer runs against the same timetable
// serialize on it; the lock releases with the transaction.
func (r *TimetableRepository) AcquireMutationLock(ctx context.Context, tx *sqlx.Tx, timetableID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := tx.ExecContext(ctx, query, timetableID); err != nil {
		return fmt.Errorf("acquire timetable lock: %w", err)
	}
	return nil
}

// CreateVersioned inserts a timetable assigning the next version for the
// formation+semester tuple.
func (r *TimetableRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.GeneratedTimetable) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if timetable.FormationID == "" || timetable.SemesterID == "" {
		return fmt.Errorf("formation_id and semester_id are required")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if timetable.Status == "" {
		timetable.Status = models.TimetableStatusDraft
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetables WHERE formation_id = $1 AND semester_id = $2`
	if err := sqlx.GetContext(ctx, target, &timetable.Version, nextVersionQuery, timetable.FormationID, timetable.SemesterID); err != nil {
		return fmt.Errorf("compute next timetable version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetables (id, formation_id, semester_id, version, status, created_at, updated_at)
VALUES (:id, :formation_id, :semester_id, :version, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, timetable); err != nil {
		return fmt.Errorf("insert timetable: %w", err)
	}
	return nil
}

// InsertEntries bulk-inserts timetable entries.
func (r *TimetableRepository) InsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_entries (id, timetable_id, module_id, subject_id, audience_id, teacher_id, infrastructure_id,
	day_of_week, start_minute, end_minute, week_parity, status, conflict_level, created_at, updated_at)
VALUES (:id, :timetable_id, :module_id, :subject_id, :audience_id, :teacher_id, :infrastructure_id,
	:day_of_week, :start_minute, :end_minute, :week_parity, :status, :conflict_level, :created_at, :updated_at)`
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
		entries[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, entries[i]); err != nil {
			return fmt.Errorf("insert timetable entry: %w", err)
		}
	}
	return nil
}

// ReplaceEntries swaps the full entry set of a timetable. The optimizer
// persists its accepted candidate this way.
func (r *TimetableRepository) ReplaceEntries(ctx context.Context, exec sqlx.ExtContext, timetableID string, entries []models.TimetableEntry) error {
	target := r.exec(exec)

	const deleteQuery = `DELETE FROM timetable_entries WHERE timetable_id = $1`
	if _, err := target.ExecContext(ctx, deleteQuery, timetableID); err != nil {
		return fmt.Errorf("clear timetable entries: %w", err)
	}
	return r.InsertEntries(ctx, target, entries)
}

// UpdateEntry persists placement and status changes of one entry.
func (r *TimetableRepository) UpdateEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error {
	entry.UpdatedAt = time.Now().UTC()

	const query = `
UPDATE timetable_entries
SET teacher_id = :teacher_id, infrastructure_id = :infrastructure_id, day_of_week = :day_of_week,
	start_minute = :start_minute, end_minute = :end_minute, week_parity = :week_parity,
	status = :status, conflict_level = :conflict_level, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry)
	if err != nil {
		return fmt.Errorf("update timetable entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable entry rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateEntryStatuses moves every entry of a timetable to the status,
// skipping cancelled entries.
func (r *TimetableRepository) UpdateEntryStatuses(ctx context.Context, exec sqlx.ExtContext, timetableID string, status models.EntryStatus) error {
	const query = `UPDATE timetable_entries SET status = $2, updated_at = $3 WHERE timetable_id = $1 AND status <> $4`
	if _, err := r.exec(exec).ExecContext(ctx, query, timetableID, status, time.Now().UTC(), models.EntryStatusCancelled); err != nil {
		return fmt.Errorf("update timetable entry statuses: %w", err)
	}
	return nil
}

// UpdateStatus updates a timetable's lifecycle status.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	const query = `UPDATE timetables SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID loads a timetable without entries.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.GeneratedTimetable, error) {
	const query = `SELECT id, formation_id, semester_id, version, status, created_at, updated_at FROM timetables WHERE id = $1`
	var timetable models.GeneratedTimetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// LoadWithEntries loads a timetable with its full entry set.
func (r *TimetableRepository) LoadWithEntries(ctx context.Context, id string) (*models.GeneratedTimetable, error) {
	timetable, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := r.ListEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	timetable.Entries = entries
	return timetable, nil
}

// ListEntries returns every entry of a timetable ordered by day and time.
func (r *TimetableRepository) ListEntries(ctx context.Context, timetableID string) ([]models.TimetableEntry, error) {
	const query = `
SELECT id, timetable_id, module_id, subject_id, audience_id, teacher_id, infrastructure_id,
	day_of_week, start_minute, end_minute, week_parity, status, conflict_level, created_at, updated_at
FROM timetable_entries WHERE timetable_id = $1 ORDER BY day_of_week, start_minute`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// List returns timetables matching the filter with a total count.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.GeneratedTimetable, int, error) {
	baseQuery := `FROM timetables WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.FormationID != "" {
		conditions = append(conditions, fmt.Sprintf("formation_id = $%d", len(args)+1))
		args = append(args, filter.FormationID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	query := fmt.Sprintf(`SELECT id, formation_id, semester_id, version, status, created_at, updated_at %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		baseQuery, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var timetables []models.GeneratedTimetable
	if err := r.db.SelectContext(ctx, &timetables, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}
	return timetables, total, nil
}

// Delete removes a stored timetable version and cascades over entries.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM timetables WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
