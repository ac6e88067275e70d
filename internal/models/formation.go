package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// FormationLevel enumerates the academic levels a formation can target.
type FormationLevel string

const (
	FormationLevelLicence   FormationLevel = "LICENCE"
	FormationLevelMaster    FormationLevel = "MASTER"
	FormationLevelDoctorate FormationLevel = "DOCTORATE"
)

// FormationOffer represents a degree program owning sections and subjects.
type FormationOffer struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Level             FormationLevel `db:"level" json:"level"`
	DurationSemesters int            `db:"duration_semesters" json:"duration_semesters"`
	TotalStudents     int            `db:"total_students" json:"total_students"`
	Constraints       types.JSONText `db:"constraints" json:"constraints"`
	Sections          []Section      `db:"-" json:"sections,omitempty"`
	Subjects          []Subject      `db:"-" json:"subjects,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// FormationConstraints captures the scheduling rules attached to a formation.
// Stored as a JSON document on the formation row.
type FormationConstraints struct {
	MaxDailyHours       int          `json:"max_daily_hours"`
	MaxWeeklyHours      int          `json:"max_weekly_hours"`
	MaxConsecutiveHours int          `json:"max_consecutive_hours"`
	MinBreakMinutes     int          `json:"min_break_minutes"`
	PreferredSlots      []WeeklySlot `json:"preferred_slots,omitempty"`
	BlockedSlots        []WeeklySlot `json:"blocked_slots,omitempty"`
}

// WeeklySlot identifies a recurring day/time window on the teaching grid.
type WeeklySlot struct {
	DayOfWeek   int `json:"day_of_week"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Overlaps reports whether two weekly slots intersect in time.
func (s WeeklySlot) Overlaps(other WeeklySlot) bool {
	if s.DayOfWeek != other.DayOfWeek {
		return false
	}
	return s.StartMinute < other.EndMinute && other.StartMinute < s.EndMinute
}

// GroupType marks the pedagogical purpose of a student group.
type GroupType string

const (
	GroupTypeLecture  GroupType = "LECTURE"
	GroupTypeTutorial GroupType = "TUTORIAL"
	GroupTypeLabMixed GroupType = "LAB_MIXED"
)

// Section partitions a formation-year cohort.
type Section struct {
	ID          string    `db:"id" json:"id"`
	FormationID string    `db:"formation_id" json:"formation_id"`
	Name        string    `db:"name" json:"name"`
	Capacity    int       `db:"capacity" json:"capacity"`
	Groups      []Group   `db:"-" json:"groups,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Group is a pedagogical subdivision of a section.
type Group struct {
	ID        string     `db:"id" json:"id"`
	SectionID string     `db:"section_id" json:"section_id"`
	Name      string     `db:"name" json:"name"`
	Type      GroupType  `db:"type" json:"type"`
	Capacity  int        `db:"capacity" json:"capacity"`
	SubGroups []SubGroup `db:"-" json:"sub_groups,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// SubGroup is a disjoint membership partition inside a group.
type SubGroup struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Name      string    `db:"name" json:"name"`
	Size      int       `db:"size" json:"size"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FormationFilter narrows formation listings.
type FormationFilter struct {
	Level    *FormationLevel
	Search   string
	Page     int
	PageSize int
}
