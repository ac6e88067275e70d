package models

import "time"

// DateRange is an inclusive calendar interval.
type DateRange struct {
	ID    string    `db:"id" json:"id"`
	Label string    `db:"label" json:"label"`
	Start time.Time `db:"start_date" json:"start_date"`
	End   time.Time `db:"end_date" json:"end_date"`
}

// Contains reports whether the date falls inside the range.
func (r DateRange) Contains(date time.Time) bool {
	day := date.Truncate(24 * time.Hour)
	return !day.Before(r.Start.Truncate(24*time.Hour)) && !day.After(r.End.Truncate(24*time.Hour))
}

// Semester bounds the concrete calendar window a timetable materializes into.
type Semester struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	StartDate   time.Time   `db:"start_date" json:"start_date"`
	EndDate     time.Time   `db:"end_date" json:"end_date"`
	Holidays    []DateRange `db:"-" json:"holidays,omitempty"`
	ExamPeriods []DateRange `db:"-" json:"exam_periods,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// IsHoliday reports whether teaching is suspended on the date.
func (s Semester) IsHoliday(date time.Time) bool {
	for _, r := range s.Holidays {
		if r.Contains(date) {
			return true
		}
	}
	return false
}

// InExamPeriod reports whether the date falls inside an exam window.
func (s Semester) InExamPeriod(date time.Time) bool {
	for _, r := range s.ExamPeriods {
		if r.Contains(date) {
			return true
		}
	}
	return false
}
