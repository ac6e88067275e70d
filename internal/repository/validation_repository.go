package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/acadplan/timetable-api/internal/models"
)

// ValidationRepository persists validation statuses, issues and approval
// records for generated timetables.
type ValidationRepository struct {
	db *sqlx.DB
}

// NewValidationRepository constructs repository.
func NewValidationRepository(db *sqlx.DB) *ValidationRepository {
	return &ValidationRepository{db: db}
}

func (r *ValidationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// issueRow mirrors validation_issues with entry_ids as a JSON document.
type issueRow struct {
	models.ValidationIssue
	EntryIDsDoc types.JSONText `db:"entry_ids"`
}

// UpsertStatus writes the validation verdict for a timetable.
func (r *ValidationRepository) UpsertStatus(ctx context.Context, exec sqlx.ExtContext, status *models.ValidationStatus) error {
	if status == nil {
		return fmt.Errorf("validation status payload is nil")
	}
	status.CheckedAt = time.Now().UTC()
	if status.ApprovalLevel == "" {
		status.ApprovalLevel = models.ApprovalNone
	}

	const query = `
INSERT INTO validation_statuses (timetable_id, is_validated, approval_level, checked_at)
VALUES (:timetable_id, :is_validated, :approval_level, :checked_at)
ON CONFLICT (timetable_id) DO UPDATE SET is_validated = EXCLUDED.is_validated,
	approval_level = EXCLUDED.approval_level, checked_at = EXCLUDED.checked_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, status); err != nil {
		return fmt.Errorf("upsert validation status: %w", err)
	}
	return nil
}

// GetStatus loads the validation status with issues and approvals.
func (r *ValidationRepository) GetStatus(ctx context.Context, timetableID string) (*models.ValidationStatus, error) {
	const query = `SELECT timetable_id, is_validated, approval_level, checked_at FROM validation_statuses WHERE timetable_id = $1`
	var status models.ValidationStatus
	if err := r.db.GetContext(ctx, &status, query, timetableID); err != nil {
		return nil, err
	}

	issues, err := r.ListIssues(ctx, timetableID)
	if err != nil {
		return nil, err
	}
	status.Issues = issues

	const approvalsQuery = `SELECT id, timetable_id, level, actor, approved_at FROM timetable_approvals WHERE timetable_id = $1 ORDER BY approved_at`
	if err := r.db.SelectContext(ctx, &status.Approvals, approvalsQuery, timetableID); err != nil {
		return nil, fmt.Errorf("load approvals: %w", err)
	}
	return &status, nil
}

// InsertIssues bulk-inserts freshly detected issues.
func (r *ValidationRepository) InsertIssues(ctx context.Context, exec sqlx.ExtContext, issues []models.ValidationIssue) error {
	if len(issues) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO validation_issues (id, timetable_id, type, severity, code, message, entry_ids, suggested_fix, resolved, created_at)
VALUES (:id, :timetable_id, :type, :severity, :code, :message, :entry_ids, :suggested_fix, :resolved, :created_at)`
	for i := range issues {
		if issues[i].ID == "" {
			issues[i].ID = uuid.NewString()
		}
		issues[i].CreatedAt = now

		doc, err := json.Marshal(issues[i].EntryIDs)
		if err != nil {
			return fmt.Errorf("marshal issue entry ids: %w", err)
		}
		row := issueRow{ValidationIssue: issues[i], EntryIDsDoc: types.JSONText(doc)}
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("insert validation issue: %w", err)
		}
	}
	return nil
}

// ListIssues returns every issue for a timetable, open ones first.
func (r *ValidationRepository) ListIssues(ctx context.Context, timetableID string) ([]models.ValidationIssue, error) {
	const query = `
SELECT id, timetable_id, type, severity, code, message, entry_ids, suggested_fix, resolved, resolved_by, resolved_at, created_at
FROM validation_issues WHERE timetable_id = $1 ORDER BY resolved, severity DESC, created_at`
	var rows []issueRow
	if err := r.db.SelectContext(ctx, &rows, query, timetableID); err != nil {
		return nil, fmt.Errorf("list validation issues: %w", err)
	}

	issues := make([]models.ValidationIssue, 0, len(rows))
	for _, row := range rows {
		issue := row.ValidationIssue
		if len(row.EntryIDsDoc) > 0 {
			if err := json.Unmarshal(row.EntryIDsDoc, &issue.EntryIDs); err != nil {
				return nil, fmt.Errorf("unmarshal issue entry ids: %w", err)
			}
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// FindIssue loads one issue by identifier.
func (r *ValidationRepository) FindIssue(ctx context.Context, id string) (*models.ValidationIssue, error) {
	const query = `
SELECT id, timetable_id, type, severity, code, message, entry_ids, suggested_fix, resolved, resolved_by, resolved_at, created_at
FROM validation_issues WHERE id = $1`
	var row issueRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	issue := row.ValidationIssue
	if len(row.EntryIDsDoc) > 0 {
		if err := json.Unmarshal(row.EntryIDsDoc, &issue.EntryIDs); err != nil {
			return nil, fmt.Errorf("unmarshal issue entry ids: %w", err)
		}
	}
	return &issue, nil
}

// ResolveIssue marks an issue resolved by an actor.
func (r *ValidationRepository) ResolveIssue(ctx context.Context, exec sqlx.ExtContext, id, actor string) error {
	const query = `UPDATE validation_issues SET resolved = TRUE, resolved_by = $2, resolved_at = $3 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve validation issue: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("validation issue rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOpenIssues removes unresolved issues before a revalidation pass.
// Resolved issues are kept for the audit trail.
func (r *ValidationRepository) DeleteOpenIssues(ctx context.Context, exec sqlx.ExtContext, timetableID string) error {
	const query = `DELETE FROM validation_issues WHERE timetable_id = $1 AND resolved = FALSE`
	if _, err := r.exec(exec).ExecContext(ctx, query, timetableID); err != nil {
		return fmt.Errorf("delete open validation issues: %w", err)
	}
	return nil
}

// RecordApproval appends one approval-level transition.
func (r *ValidationRepository) RecordApproval(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.ApprovedAt = time.Now().UTC()

	const query = `
INSERT INTO timetable_approvals (id, timetable_id, level, actor, approved_at)
VALUES (:id, :timetable_id, :level, :actor, :approved_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record); err != nil {
		return fmt.Errorf("insert approval record: %w", err)
	}
	return nil
}
