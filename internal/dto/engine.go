package dto

import "github.com/acadplan/timetable-api/internal/models"

// BuildTimetableRequest instructs the builder to construct an initial
// timetable for a formation+semester.
type BuildTimetableRequest struct {
	FormationID string `json:"formationId" validate:"required"`
	SemesterID  string `json:"semesterId" validate:"required"`
}

// BuildIssue reports a placement the builder could not make conflict-free.
type BuildIssue struct {
	ModuleID   string `json:"moduleId"`
	AudienceID string `json:"audienceId"`
	EntryID    string `json:"entryId,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// BuildTimetableResponse returns the constructed timetable plus
// build-time issues. Partial infeasibility is reported, never dropped.
type BuildTimetableResponse struct {
	Timetable *models.GeneratedTimetable `json:"timetable"`
	Issues    []BuildIssue               `json:"issues"`
}

// ObjectiveWeights tunes the optimizer's multi-objective function.
// Zero-valued weights fall back to configured defaults.
type ObjectiveWeights struct {
	Conflicts    float64 `json:"conflicts" validate:"omitempty,min=0,max=1"`
	Utilization  float64 `json:"utilization" validate:"omitempty,min=0,max=1"`
	Balance      float64 `json:"balance" validate:"omitempty,min=0,max=1"`
	Satisfaction float64 `json:"satisfaction" validate:"omitempty,min=0,max=1"`
	Compactness  float64 `json:"compactness" validate:"omitempty,min=0,max=1"`
}

// OptimizeBudget bounds an optimizer run.
type OptimizeBudget struct {
	MaxIterations    int `json:"maxIterations" validate:"omitempty,min=1"`
	TimeLimitSeconds int `json:"timeLimitSeconds" validate:"omitempty,min=1"`
}

// OptimizeTimetableRequest refines an existing timetable.
type OptimizeTimetableRequest struct {
	TimetableID string           `json:"-"`
	Weights     ObjectiveWeights `json:"weights"`
	Budget      OptimizeBudget   `json:"budget"`
	Seed        int64            `json:"seed"`
	AllowUnval  bool             `json:"allowUnvalidated"`
}

// OptimizeResult summarises one optimizer run for observability.
type OptimizeResult struct {
	Timetable      *models.GeneratedTimetable `json:"timetable"`
	InitialScore   float64                    `json:"initialScore"`
	FinalScore     float64                    `json:"finalScore"`
	HardViolations int                        `json:"hardViolations"`
	Iterations     int                        `json:"iterations"`
	ElapsedMillis  int64                      `json:"elapsedMillis"`
	Converged      bool                       `json:"converged"`
	Cancelled      bool                       `json:"cancelled"`
}

// ResolveIssueRequest marks an issue as manually resolved.
type ResolveIssueRequest struct {
	Note string `json:"note"`
}

// ApproveTimetableRequest advances the approval ladder by one level.
type ApproveTimetableRequest struct {
	Level models.ApprovalLevel `json:"level" validate:"required"`
}

// TimetableQuery filters timetable listings.
type TimetableQuery struct {
	FormationID string `form:"formationId" json:"formationId"`
	SemesterID  string `form:"semesterId" json:"semesterId"`
	Status      string `form:"status" json:"status"`
	Page        int    `form:"page" json:"page"`
	PageSize    int    `form:"pageSize" json:"pageSize"`
}
