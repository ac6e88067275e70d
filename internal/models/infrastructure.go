package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// InfrastructureType enumerates bookable room categories.
type InfrastructureType string

const (
	InfraTypeLectureHall  InfrastructureType = "LECTURE_HALL"
	InfraTypeClassroom    InfrastructureType = "CLASSROOM"
	InfraTypeLaboratory   InfrastructureType = "LABORATORY"
	InfraTypeAmphitheater InfrastructureType = "AMPHITHEATER"
)

// Infrastructure is a schedulable room or laboratory.
type Infrastructure struct {
	ID          string              `db:"id" json:"id"`
	Code        string              `db:"code" json:"code"`
	Name        string              `db:"name" json:"name"`
	Type        InfrastructureType  `db:"type" json:"type"`
	Capacity    int                 `db:"capacity" json:"capacity"`
	Equipment   types.JSONText      `db:"equipment" json:"equipment"`
	Active      bool                `db:"active" json:"active"`
	Maintenance []MaintenanceWindow `db:"-" json:"maintenance,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// MaintenanceWindow blocks an infrastructure for a dated interval.
// Maintenance is managed administratively, independent of scheduling.
type MaintenanceWindow struct {
	ID               string    `db:"id" json:"id"`
	InfrastructureID string    `db:"infrastructure_id" json:"infrastructure_id"`
	StartsAt         time.Time `db:"starts_at" json:"starts_at"`
	EndsAt           time.Time `db:"ends_at" json:"ends_at"`
	Reason           string    `db:"reason" json:"reason"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// BlocksWeekly reports whether the window covers the given weekly slot on
// at least one concrete date. Used by the evaluator, which reasons on the
// recurring grid rather than on dated occurrences.
func (w MaintenanceWindow) BlocksWeekly(dayOfWeek, startMinute, endMinute int) bool {
	day := w.StartsAt
	for !day.After(w.EndsAt) {
		if weekdayIndex(day.Weekday()) == dayOfWeek {
			windowStart := minuteOfDay(w.StartsAt, day)
			windowEnd := minuteOfDayEnd(w.EndsAt, day)
			if startMinute < windowEnd && windowStart < endMinute {
				return true
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

// Covers reports whether the window overlaps the concrete interval.
func (w MaintenanceWindow) Covers(startsAt, endsAt time.Time) bool {
	return startsAt.Before(w.EndsAt) && w.StartsAt.Before(endsAt)
}

// InfrastructureFilter narrows room listings.
type InfrastructureFilter struct {
	Type        *InfrastructureType
	MinCapacity int
	Active      *bool
	Page        int
	PageSize    int
}

// weekdayIndex maps time.Weekday to the engine grid where Monday is 1.
func weekdayIndex(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func minuteOfDay(bound, day time.Time) int {
	if bound.Year() == day.Year() && bound.YearDay() == day.YearDay() {
		return bound.Hour()*60 + bound.Minute()
	}
	return 0
}

func minuteOfDayEnd(bound, day time.Time) int {
	if bound.Year() == day.Year() && bound.YearDay() == day.YearDay() {
		return bound.Hour()*60 + bound.Minute()
	}
	return 24 * 60
}
