package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

// Validation issue codes beyond the evaluator's hard constraint codes.
const (
	IssueConsecutiveHours = "CONSECUTIVE_HOURS_EXCEEDED"
	IssueInsufficientGap  = "INSUFFICIENT_BREAK"
	IssueNonPreferredSlot = "NON_PREFERRED_SLOT"
)

type validationStore interface {
	UpsertStatus(ctx context.Context, exec sqlx.ExtContext, status *models.ValidationStatus) error
	GetStatus(ctx context.Context, timetableID string) (*models.ValidationStatus, error)
	InsertIssues(ctx context.Context, exec sqlx.ExtContext, issues []models.ValidationIssue) error
	ListIssues(ctx context.Context, timetableID string) ([]models.ValidationIssue, error)
	FindIssue(ctx context.Context, id string) (*models.ValidationIssue, error)
	ResolveIssue(ctx context.Context, exec sqlx.ExtContext, id, actor string) error
	DeleteOpenIssues(ctx context.Context, exec sqlx.ExtContext, timetableID string) error
	RecordApproval(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error
}

type validatedTimetableStore interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	LoadWithEntries(ctx context.Context, id string) (*models.GeneratedTimetable, error)
	UpdateEntryStatuses(ctx context.Context, exec sqlx.ExtContext, timetableID string, status models.EntryStatus) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
}

// TimetableValidatorService detects, records and rechecks validation
// issues and drives the approval ladder.
type TimetableValidatorService struct {
	formations formationPartitionLoader
	subjects   subjectDemandLister
	rooms      infrastructurePoolLister
	teachers   teacherPoolLister
	semesters  semesterReader
	timetables validatedTimetableStore
	store      validationStore
	evaluator  *ConstraintEvaluator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewTimetableValidatorService wires validator dependencies.
func NewTimetableValidatorService(
	formations formationPartitionLoader,
	subjects subjectDemandLister,
	rooms infrastructurePoolLister,
	teachers teacherPoolLister,
	semesters semesterReader,
	timetables validatedTimetableStore,
	store validationStore,
	evaluator *ConstraintEvaluator,
	validate *validator.Validate,
	logger *zap.Logger,
) *TimetableValidatorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if evaluator == nil {
		evaluator = NewConstraintEvaluator()
	}
	return &TimetableValidatorService{
		formations: formations,
		subjects:   subjects,
		rooms:      rooms,
		teachers:   teachers,
		semesters:  semesters,
		timetables: timetables,
		store:      store,
		evaluator:  evaluator,
		validator:  validate,
		logger:     logger,
	}
}

// Validate runs a full detection pass over the timetable. When no
// blocking issue remains, the timetable and its entries transition to
// validated/confirmed states.
func (s *TimetableValidatorService) Validate(ctx context.Context, timetableID string) (*models.ValidationStatus, error) {
	timetable, err := s.timetables.LoadWithEntries(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable not found")
	}
	if timetable.Status == models.TimetableStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "archived timetables cannot be validated")
	}

	inputs, err := buildEngineInputs(ctx, s.formations, s.subjects, s.rooms, s.teachers, s.semesters, timetable.FormationID, timetable.SemesterID)
	if err != nil {
		return nil, err
	}

	fresh := s.detect(timetableID, timetable.Entries, inputs)

	status := &models.ValidationStatus{
		TimetableID:   timetableID,
		ApprovalLevel: models.ApprovalNone,
	}
	if existing, err := s.store.GetStatus(ctx, timetableID); err == nil {
		status.ApprovalLevel = existing.ApprovalLevel
	}

	blocking := 0
	for _, issue := range fresh {
		if issue.Severity.Blocking() {
			blocking++
		}
	}
	status.IsValidated = blocking == 0

	err = s.timetables.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.store.DeleteOpenIssues(ctx, tx, timetableID); err != nil {
			return err
		}
		if err := s.store.InsertIssues(ctx, tx, fresh); err != nil {
			return err
		}
		if err := s.store.UpsertStatus(ctx, tx, status); err != nil {
			return err
		}
		if status.IsValidated {
			if err := s.timetables.UpdateEntryStatuses(ctx, tx, timetableID, models.EntryStatusConfirmed); err != nil {
				return err
			}
			return s.timetables.UpdateStatus(ctx, tx, timetableID, models.TimetableStatusValidated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	status.Issues = fresh
	s.logger.Info("timetable validated",
		zap.String("timetable_id", timetableID),
		zap.Int("issues", len(fresh)),
		zap.Int("blocking", blocking),
		zap.Bool("is_validated", status.IsValidated))
	return status, nil
}

// ResolveIssue marks a non-critical issue as manually resolved.
// Critical conflicts have to be fixed in the schedule itself.
func (s *TimetableValidatorService) ResolveIssue(ctx context.Context, timetableID, issueID, actor string) (*models.ValidationStatus, error) {
	issue, err := s.store.FindIssue(ctx, issueID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "issue not found")
	}
	if issue.TimetableID != timetableID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "issue does not belong to this timetable")
	}
	if issue.Severity == models.SeverityCritical {
		return nil, appErrors.Clone(appErrors.ErrConflict, "critical conflicts cannot be waived, fix the schedule")
	}
	if !issue.Resolved {
		if err := s.store.ResolveIssue(ctx, nil, issueID, actor); err != nil {
			return nil, err
		}
	}
	return s.Recheck(ctx, timetableID)
}

// Recheck refreshes the validation verdict from stored issues without a
// new detection pass.
func (s *TimetableValidatorService) Recheck(ctx context.Context, timetableID string) (*models.ValidationStatus, error) {
	status, err := s.store.GetStatus(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "no validation run recorded")
	}

	wasValidated := status.IsValidated
	status.IsValidated = status.UnresolvedBlocking() == 0

	err = s.timetables.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.store.UpsertStatus(ctx, tx, status); err != nil {
			return err
		}
		if status.IsValidated && !wasValidated {
			if err := s.timetables.UpdateEntryStatuses(ctx, tx, timetableID, models.EntryStatusConfirmed); err != nil {
				return err
			}
			return s.timetables.UpdateStatus(ctx, tx, timetableID, models.TimetableStatusValidated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Approve advances the approval ladder by exactly one level. The ladder
// is monotone: levels never move down and never skip steps.
func (s *TimetableValidatorService) Approve(ctx context.Context, timetableID string, level models.ApprovalLevel, actor models.UserInfo) (*models.ValidationStatus, error) {
	status, err := s.store.GetStatus(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "no validation run recorded")
	}
	if !status.IsValidated {
		return nil, appErrors.ErrNotValidated
	}
	if level.Rank() != status.ApprovalLevel.Rank()+1 {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("approval must advance one level at a time, current %s", status.ApprovalLevel))
	}
	if !roleMayApprove(actor.Role, level) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot grant this approval level")
	}

	status.ApprovalLevel = level
	record := &models.ApprovalRecord{TimetableID: timetableID, Level: level, Actor: actor.ID}

	err = s.timetables.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.store.RecordApproval(ctx, tx, record); err != nil {
			return err
		}
		if err := s.store.UpsertStatus(ctx, tx, status); err != nil {
			return err
		}
		if level == models.ApprovalAdmin {
			return s.timetables.UpdateStatus(ctx, tx, timetableID, models.TimetableStatusPublished)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("timetable approval advanced",
		zap.String("timetable_id", timetableID),
		zap.String("level", string(level)),
		zap.String("actor", actor.ID))
	return status, nil
}

// roleMayApprove caps the approval levels a role can grant.
func roleMayApprove(role models.UserRole, level models.ApprovalLevel) bool {
	var ceiling models.ApprovalLevel
	switch role {
	case models.RoleAdmin:
		ceiling = models.ApprovalAdmin
	case models.RoleFaculty:
		ceiling = models.ApprovalFaculty
	case models.RoleDepartment:
		ceiling = models.ApprovalDepartment
	case models.RolePlanner:
		ceiling = models.ApprovalPartial
	default:
		return false
	}
	return level.Rank() <= ceiling.Rank()
}

// detect runs every check over the entry set and produces deduplicated
// issues: a conflicting pair yields one issue, not two.
func (s *TimetableValidatorService) detect(timetableID string, entries []models.TimetableEntry, inputs *engineInputs) []models.ValidationIssue {
	evalCtx := inputs.evaluation()
	active := activeEntries(entries)

	var issues []models.ValidationIssue
	seen := make(map[string]struct{})

	appendIssue := func(issue models.ValidationIssue) {
		key := issue.Code
		for _, id := range issue.EntryIDs {
			key += ":" + id
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		issue.TimetableID = timetableID
		issues = append(issues, issue)
	}

	for _, entry := range active {
		result := s.evaluator.Evaluate(entry, active, evalCtx)
		for _, violation := range result.Hard {
			issueType, severity := classifyViolation(violation.Code)
			fix := suggestedFix(violation.Code)
			appendIssue(models.ValidationIssue{
				Type:         issueType,
				Severity:     severity,
				Code:         violation.Code,
				Message:      violation.Message,
				EntryIDs:     violation.EntryIDs,
				SuggestedFix: fix,
			})
		}

		maxConsecutive := inputs.Constraints.MaxConsecutiveHours * 60
		if maxConsecutive > 0 && consecutiveRun(entry, active, byAudience) > maxConsecutive {
			appendIssue(models.ValidationIssue{
				Type:     models.IssueTypeConstraint,
				Severity: models.SeverityWarning,
				Code:     IssueConsecutiveHours,
				Message:  fmt.Sprintf("audience %s exceeds %dh consecutive teaching on day %d", entry.AudienceID, inputs.Constraints.MaxConsecutiveHours, entry.DayOfWeek),
				EntryIDs: []string{entry.ID},
			})
		}
		if inputs.Constraints.MinBreakMinutes > 0 {
			if gap, ok := shortestAdjacentGap(entry, active); ok && gap > 0 && gap < inputs.Constraints.MinBreakMinutes {
				appendIssue(models.ValidationIssue{
					Type:     models.IssueTypeConstraint,
					Severity: models.SeverityWarning,
					Code:     IssueInsufficientGap,
					Message:  fmt.Sprintf("only %d minutes of break before or after session on day %d", gap, entry.DayOfWeek),
					EntryIDs: []string{entry.ID},
				})
			}
		}
		if len(inputs.Constraints.PreferredSlots) > 0 && !inPreferred(entry.Slot(), inputs.Constraints.PreferredSlots) {
			appendIssue(models.ValidationIssue{
				Type:     models.IssueTypeQuality,
				Severity: models.SeverityInfo,
				Code:     IssueNonPreferredSlot,
				Message:  fmt.Sprintf("session on day %d at %d sits outside the formation's preferred slots", entry.DayOfWeek, entry.StartMinute),
				EntryIDs: []string{entry.ID},
			})
		}
	}
	return issues
}

func classifyViolation(code string) (models.IssueType, models.IssueSeverity) {
	switch code {
	case ViolationInfraDoubleBooking, ViolationTeacherDoubleBooking:
		return models.IssueTypeConflict, models.SeverityCritical
	case ViolationCapacityExceeded, ViolationInfraTypeMismatch, ViolationMaintenanceOverlap:
		return models.IssueTypeResource, models.SeverityError
	case ViolationTeacherBlocked:
		return models.IssueTypeConstraint, models.SeverityError
	default:
		return models.IssueTypeQuality, models.SeverityWarning
	}
}

func suggestedFix(code string) *string {
	var fix string
	switch code {
	case ViolationInfraDoubleBooking:
		fix = "move one of the sessions to a free room or slot"
	case ViolationTeacherDoubleBooking:
		fix = "reassign one session to another qualified teacher or slot"
	case ViolationCapacityExceeded:
		fix = "move the session to a larger room"
	case ViolationInfraTypeMismatch:
		fix = "move the session to a room of the required type"
	case ViolationMaintenanceOverlap:
		fix = "move the session outside the maintenance window"
	case ViolationTeacherBlocked:
		fix = "move the session inside the teacher's availability"
	default:
		return nil
	}
	return &fix
}
