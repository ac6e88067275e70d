package models

import "time"

// EntryStatus tracks the lifecycle of a timetable entry.
type EntryStatus string

const (
	EntryStatusPlanned   EntryStatus = "PLANNED"
	EntryStatusConfirmed EntryStatus = "CONFIRMED"
	EntryStatusCancelled EntryStatus = "CANCELLED"
	EntryStatusModified  EntryStatus = "MODIFIED"
)

// ConflictLevel grades how contested an entry's placement is.
type ConflictLevel string

const (
	ConflictNone     ConflictLevel = "NONE"
	ConflictMinor    ConflictLevel = "MINOR"
	ConflictMajor    ConflictLevel = "MAJOR"
	ConflictCritical ConflictLevel = "CRITICAL"
)

// WeekParity distinguishes weekly entries from biweekly alternations.
type WeekParity string

const (
	ParityEvery WeekParity = "EVERY"
	ParityOdd   WeekParity = "ODD"
	ParityEven  WeekParity = "EVEN"
)

// TimetableStatus tracks the lifecycle of a generated timetable.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusOptimized TimetableStatus = "OPTIMIZED"
	TimetableStatusValidated TimetableStatus = "VALIDATED"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// TimetableEntry is one concrete weekly assignment of a module occurrence
// to a teacher, infrastructure and slot. The atomic unit the builder and
// optimizer manipulate.
type TimetableEntry struct {
	ID               string        `db:"id" json:"id"`
	TimetableID      string        `db:"timetable_id" json:"timetable_id"`
	ModuleID         string        `db:"module_id" json:"module_id"`
	SubjectID        string        `db:"subject_id" json:"subject_id"`
	AudienceID       string        `db:"audience_id" json:"audience_id"`
	TeacherID        string        `db:"teacher_id" json:"teacher_id"`
	InfrastructureID string        `db:"infrastructure_id" json:"infrastructure_id"`
	DayOfWeek        int           `db:"day_of_week" json:"day_of_week"`
	StartMinute      int           `db:"start_minute" json:"start_minute"`
	EndMinute        int           `db:"end_minute" json:"end_minute"`
	WeekParity       WeekParity    `db:"week_parity" json:"week_parity"`
	Status           EntryStatus   `db:"status" json:"status"`
	ConflictLevel    ConflictLevel `db:"conflict_level" json:"conflict_level"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// Slot returns the entry's weekly slot.
func (e TimetableEntry) Slot() WeeklySlot {
	return WeeklySlot{DayOfWeek: e.DayOfWeek, StartMinute: e.StartMinute, EndMinute: e.EndMinute}
}

// OverlapsWeekly reports whether two entries share time on the weekly grid,
// accounting for biweekly parity.
func (e TimetableEntry) OverlapsWeekly(other TimetableEntry) bool {
	if e.WeekParity != ParityEvery && other.WeekParity != ParityEvery && e.WeekParity != other.WeekParity {
		return false
	}
	return e.Slot().Overlaps(other.Slot())
}

// DurationHours returns the weekly contact time in hours.
func (e TimetableEntry) DurationHours() float64 {
	return float64(e.EndMinute-e.StartMinute) / 60.0
}

// GeneratedTimetable aggregates the entries for a formation+semester.
// It exclusively owns its entries and validation status.
type GeneratedTimetable struct {
	ID          string              `db:"id" json:"id"`
	FormationID string              `db:"formation_id" json:"formation_id"`
	SemesterID  string              `db:"semester_id" json:"semester_id"`
	Version     int                 `db:"version" json:"version"`
	Status      TimetableStatus     `db:"status" json:"status"`
	Entries     []TimetableEntry    `db:"-" json:"entries,omitempty"`
	Statistics  TimetableStatistics `db:"-" json:"statistics"`
	Validation  *ValidationStatus   `db:"-" json:"validation,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// Immutable reports whether the timetable can still be mutated by the
// builder or optimizer.
func (t GeneratedTimetable) Immutable() bool {
	if t.Status == TimetableStatusPublished || t.Status == TimetableStatusArchived {
		return true
	}
	return t.Validation != nil && t.Validation.IsValidated && t.Validation.ApprovalLevel == ApprovalAdmin
}

// TimetableStatistics summarises a generated timetable.
type TimetableStatistics struct {
	EntryCount          int                `json:"entry_count"`
	TotalHours          float64            `json:"total_hours"`
	UtilizationRate     float64            `json:"utilization_rate"`
	ConflictCount       int                `json:"conflict_count"`
	TeacherLoadHours    map[string]float64 `json:"teacher_load_hours"`
	InfrastructureHours map[string]float64 `json:"infrastructure_hours"`
	ComputedAt          time.Time          `json:"computed_at"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	FormationID string
	SemesterID  string
	Status      *TimetableStatus
	Page        int
	PageSize    int
}
