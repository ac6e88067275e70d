package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TeacherProfile stores qualification and availability data consumed
// read-only by the engine.
type TeacherProfile struct {
	ID             string         `db:"id" json:"id"`
	FullName       string         `db:"full_name" json:"full_name"`
	Email          string         `db:"email" json:"email"`
	Qualifications types.JSONText `db:"qualifications" json:"qualifications"`
	MaxWeeklyHours int            `db:"max_weekly_hours" json:"max_weekly_hours"`
	TimeWindows    types.JSONText `db:"time_windows" json:"time_windows"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// TimeConstraint is one preferred or blocked weekly window for a teacher.
// Serialized into TeacherProfile.TimeWindows.
type TimeConstraint struct {
	DayOfWeek   int  `json:"day_of_week"`
	StartMinute int  `json:"start_minute"`
	EndMinute   int  `json:"end_minute"`
	IsBlocked   bool `json:"is_blocked"`
}

// Blocks reports whether the constraint forbids the given weekly slot.
func (t TimeConstraint) Blocks(dayOfWeek, startMinute, endMinute int) bool {
	if !t.IsBlocked || t.DayOfWeek != dayOfWeek {
		return false
	}
	return startMinute < t.EndMinute && t.StartMinute < endMinute
}

// Prefers reports whether the slot falls inside a preferred window.
func (t TimeConstraint) Prefers(dayOfWeek, startMinute, endMinute int) bool {
	if t.IsBlocked || t.DayOfWeek != dayOfWeek {
		return false
	}
	return startMinute >= t.StartMinute && endMinute <= t.EndMinute
}

// TeacherFilter narrows teacher listings.
type TeacherFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}
