package models

import "time"

// ModuleType enumerates the session kinds a subject can require.
type ModuleType string

const (
	ModuleTypeLecture  ModuleType = "LECTURE"
	ModuleTypeTutorial ModuleType = "TUTORIAL"
	ModuleTypeLab      ModuleType = "LAB"
	ModuleTypeExam     ModuleType = "EXAM"
)

// ModuleFrequency controls how often a module occurrence recurs.
type ModuleFrequency string

const (
	FrequencyWeekly   ModuleFrequency = "WEEKLY"
	FrequencyBiweekly ModuleFrequency = "BIWEEKLY"
)

// Subject belongs to one formation and owns its modules.
type Subject struct {
	ID            string    `db:"id" json:"id"`
	FormationID   string    `db:"formation_id" json:"formation_id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	SemesterIndex int       `db:"semester_index" json:"semester_index"`
	Modules       []Module  `db:"-" json:"modules,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Module is one teaching unit of a subject requiring recurring slots.
type Module struct {
	ID                    string             `db:"id" json:"id"`
	SubjectID             string             `db:"subject_id" json:"subject_id"`
	Type                  ModuleType         `db:"type" json:"type"`
	DurationMinutes       int                `db:"duration_minutes" json:"duration_minutes"`
	Frequency             ModuleFrequency    `db:"frequency" json:"frequency"`
	RequiredInfraType     InfrastructureType `db:"required_infra_type" json:"required_infra_type"`
	RequiredQualification string             `db:"required_qualification" json:"required_qualification"`
	CreatedAt             time.Time          `db:"created_at" json:"created_at"`
}

// IsExam reports whether the module schedules examination sessions.
func (m Module) IsExam() bool {
	return m.Type == ModuleTypeExam
}
