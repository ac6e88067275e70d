package dto

import (
	"time"

	"github.com/acadplan/timetable-api/internal/models"
)

// CreateFormationRequest registers a formation offer with its partition.
type CreateFormationRequest struct {
	Name              string                      `json:"name" validate:"required"`
	Level             models.FormationLevel       `json:"level" validate:"required,oneof=LICENCE MASTER DOCTORATE"`
	DurationSemesters int                         `json:"durationSemesters" validate:"required,min=1,max=12"`
	TotalStudents     int                         `json:"totalStudents" validate:"required,min=1"`
	Constraints       models.FormationConstraints `json:"constraints"`
	Sections          []SectionPayload            `json:"sections" validate:"required,min=1,dive"`
}

// SectionPayload describes one section with its groups.
type SectionPayload struct {
	Name     string         `json:"name" validate:"required"`
	Capacity int            `json:"capacity" validate:"required,min=1"`
	Groups   []GroupPayload `json:"groups" validate:"omitempty,dive"`
}

// GroupPayload describes one group with its subgroups.
type GroupPayload struct {
	Name      string            `json:"name" validate:"required"`
	Type      models.GroupType  `json:"type" validate:"required,oneof=LECTURE TUTORIAL LAB_MIXED"`
	Capacity  int               `json:"capacity" validate:"required,min=1"`
	SubGroups []SubGroupPayload `json:"subGroups" validate:"omitempty,dive"`
}

// SubGroupPayload describes one subgroup.
type SubGroupPayload struct {
	Name string `json:"name" validate:"required"`
	Size int    `json:"size" validate:"required,min=1"`
}

// CreateSubjectRequest registers a subject with its modules.
type CreateSubjectRequest struct {
	FormationID   string          `json:"formationId" validate:"required"`
	Code          string          `json:"code" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	SemesterIndex int             `json:"semesterIndex" validate:"required,min=1"`
	Modules       []ModulePayload `json:"modules" validate:"required,min=1,dive"`
}

// ModulePayload describes one teaching unit of a subject.
type ModulePayload struct {
	Type                  models.ModuleType         `json:"type" validate:"required,oneof=LECTURE TUTORIAL LAB EXAM"`
	DurationMinutes       int                       `json:"durationMinutes" validate:"required,min=30,max=480"`
	Frequency             models.ModuleFrequency    `json:"frequency" validate:"required,oneof=WEEKLY BIWEEKLY"`
	RequiredInfraType     models.InfrastructureType `json:"requiredInfraType" validate:"required"`
	RequiredQualification string                    `json:"requiredQualification"`
}

// CreateInfrastructureRequest registers a schedulable room.
type CreateInfrastructureRequest struct {
	Code      string                    `json:"code" validate:"required"`
	Name      string                    `json:"name" validate:"required"`
	Type      models.InfrastructureType `json:"type" validate:"required"`
	Capacity  int                       `json:"capacity" validate:"required,min=1"`
	Equipment []string                  `json:"equipment"`
}

// AddMaintenanceRequest blocks an infrastructure for a dated window.
type AddMaintenanceRequest struct {
	StartsAt time.Time `json:"startsAt" validate:"required"`
	EndsAt   time.Time `json:"endsAt" validate:"required,gtfield=StartsAt"`
	Reason   string    `json:"reason"`
}

// CreateTeacherRequest registers a teacher profile.
type CreateTeacherRequest struct {
	FullName       string                  `json:"fullName" validate:"required"`
	Email          string                  `json:"email" validate:"required,email"`
	Qualifications []string                `json:"qualifications"`
	MaxWeeklyHours int                     `json:"maxWeeklyHours" validate:"omitempty,min=1,max=40"`
	TimeWindows    []models.TimeConstraint `json:"timeWindows"`
}

// CreateSemesterRequest registers a semester calendar window.
type CreateSemesterRequest struct {
	Name        string             `json:"name" validate:"required"`
	StartDate   time.Time          `json:"startDate" validate:"required"`
	EndDate     time.Time          `json:"endDate" validate:"required,gtfield=StartDate"`
	Holidays    []DateRangePayload `json:"holidays" validate:"omitempty,dive"`
	ExamPeriods []DateRangePayload `json:"examPeriods" validate:"omitempty,dive"`
}

// DateRangePayload is an inclusive calendar interval.
type DateRangePayload struct {
	Label string    `json:"label"`
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}
