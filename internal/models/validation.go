package models

import "time"

// IssueType classifies a detected validation problem.
type IssueType string

const (
	IssueTypeConflict   IssueType = "CONFLICT"
	IssueTypeConstraint IssueType = "CONSTRAINT"
	IssueTypeQuality    IssueType = "QUALITY"
	IssueTypeResource   IssueType = "RESOURCE"
)

// IssueSeverity grades a validation issue.
type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "INFO"
	SeverityWarning  IssueSeverity = "WARNING"
	SeverityError    IssueSeverity = "ERROR"
	SeverityCritical IssueSeverity = "CRITICAL"
)

// Blocking reports whether the severity prevents validation.
func (s IssueSeverity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// ApprovalLevel is the monotone approval ladder for validated timetables.
type ApprovalLevel string

const (
	ApprovalNone       ApprovalLevel = "NONE"
	ApprovalPartial    ApprovalLevel = "PARTIAL"
	ApprovalDepartment ApprovalLevel = "DEPARTMENT"
	ApprovalFaculty    ApprovalLevel = "FACULTY"
	ApprovalAdmin      ApprovalLevel = "ADMIN"
)

var approvalRank = map[ApprovalLevel]int{
	ApprovalNone:       0,
	ApprovalPartial:    1,
	ApprovalDepartment: 2,
	ApprovalFaculty:    3,
	ApprovalAdmin:      4,
}

// Rank returns the numeric position of the level on the ladder.
func (l ApprovalLevel) Rank() int {
	return approvalRank[l]
}

// ValidationIssue records one detected problem, deduplicated per
// conflicting pair of entries.
type ValidationIssue struct {
	ID           string        `db:"id" json:"id"`
	TimetableID  string        `db:"timetable_id" json:"timetable_id"`
	Type         IssueType     `db:"type" json:"type"`
	Severity     IssueSeverity `db:"severity" json:"severity"`
	Code         string        `db:"code" json:"code"`
	Message      string        `db:"message" json:"message"`
	EntryIDs     []string      `db:"-" json:"entry_ids"`
	SuggestedFix *string       `db:"suggested_fix" json:"suggested_fix,omitempty"`
	Resolved     bool          `db:"resolved" json:"resolved"`
	ResolvedBy   *string       `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// ApprovalRecord captures one approval-level transition.
type ApprovalRecord struct {
	ID          string        `db:"id" json:"id"`
	TimetableID string        `db:"timetable_id" json:"timetable_id"`
	Level       ApprovalLevel `db:"level" json:"level"`
	Actor       string        `db:"actor" json:"actor"`
	ApprovedAt  time.Time     `db:"approved_at" json:"approved_at"`
}

// ValidationStatus is owned by a GeneratedTimetable and aggregates its
// issues and approval state.
type ValidationStatus struct {
	TimetableID   string            `db:"timetable_id" json:"timetable_id"`
	IsValidated   bool              `db:"is_validated" json:"is_validated"`
	ApprovalLevel ApprovalLevel     `db:"approval_level" json:"approval_level"`
	Issues        []ValidationIssue `db:"-" json:"issues"`
	Approvals     []ApprovalRecord  `db:"-" json:"approvals,omitempty"`
	CheckedAt     time.Time         `db:"checked_at" json:"checked_at"`
}

// UnresolvedBlocking counts open issues of error or critical severity.
func (v ValidationStatus) UnresolvedBlocking() int {
	count := 0
	for _, issue := range v.Issues {
		if !issue.Resolved && issue.Severity.Blocking() {
			count++
		}
	}
	return count
}
