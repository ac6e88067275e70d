package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/acadplan/timetable-api/internal/models"
)

// Shared in-memory stubs for the engine services. Each test builds its
// own fixture so mutations never leak between cases.

type stubFormations struct {
	formation *models.FormationOffer
	err       error
}

func (s *stubFormations) LoadPartition(_ context.Context, _ string) (*models.FormationOffer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.formation, nil
}

type stubSubjects struct {
	subjects      []models.Subject
	semesterIndex int
}

func (s *stubSubjects) ListByFormationSemester(_ context.Context, _ string, semesterIndex int) ([]models.Subject, error) {
	s.semesterIndex = semesterIndex
	return s.subjects, nil
}

type stubRooms struct {
	rooms []models.Infrastructure
}

func (s *stubRooms) ListActive(_ context.Context) ([]models.Infrastructure, error) {
	return s.rooms, nil
}

type stubTeachers struct {
	teachers []models.TeacherProfile
}

func (s *stubTeachers) ListActive(_ context.Context) ([]models.TeacherProfile, error) {
	return s.teachers, nil
}

type stubSemesters struct {
	semester *models.Semester
}

func (s *stubSemesters) FindByID(_ context.Context, _ string) (*models.Semester, error) {
	if s.semester == nil {
		return nil, sql.ErrNoRows
	}
	return s.semester, nil
}

// stubTimetableStore satisfies timetableWriter, timetableMutator and
// validatedTimetableStore.
type stubTimetableStore struct {
	timetable     *models.GeneratedTimetable
	entries       []models.TimetableEntry
	statusHistory []models.TimetableStatus
	entryStatus   models.EntryStatus
	locked        bool
}

func (s *stubTimetableStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (s *stubTimetableStore) AcquireMutationLock(_ context.Context, _ *sqlx.Tx, _ string) error {
	s.locked = true
	return nil
}

func (s *stubTimetableStore) CreateVersioned(_ context.Context, _ sqlx.ExtContext, timetable *models.GeneratedTimetable) error {
	timetable.ID = "tt-1"
	timetable.Version = 1
	s.timetable = timetable
	return nil
}

func (s *stubTimetableStore) InsertEntries(_ context.Context, _ sqlx.ExtContext, entries []models.TimetableEntry) error {
	s.entries = entries
	return nil
}

func (s *stubTimetableStore) ReplaceEntries(_ context.Context, _ sqlx.ExtContext, _ string, entries []models.TimetableEntry) error {
	s.entries = entries
	return nil
}

func (s *stubTimetableStore) UpdateEntryStatuses(_ context.Context, _ sqlx.ExtContext, _ string, status models.EntryStatus) error {
	s.entryStatus = status
	return nil
}

func (s *stubTimetableStore) UpdateStatus(_ context.Context, _ sqlx.ExtContext, _ string, status models.TimetableStatus) error {
	s.statusHistory = append(s.statusHistory, status)
	if s.timetable != nil {
		s.timetable.Status = status
	}
	return nil
}

func (s *stubTimetableStore) FindByID(_ context.Context, _ string) (*models.GeneratedTimetable, error) {
	if s.timetable == nil {
		return nil, sql.ErrNoRows
	}
	return s.timetable, nil
}

func (s *stubTimetableStore) LoadWithEntries(_ context.Context, _ string) (*models.GeneratedTimetable, error) {
	if s.timetable == nil {
		return nil, sql.ErrNoRows
	}
	loaded := *s.timetable
	loaded.Entries = append([]models.TimetableEntry(nil), s.entries...)
	return &loaded, nil
}

// stubValidationStore satisfies validationStore and validationStatusReader.
type stubValidationStore struct {
	status    *models.ValidationStatus
	issues    []models.ValidationIssue
	approvals []models.ApprovalRecord
}

func (s *stubValidationStore) UpsertStatus(_ context.Context, _ sqlx.ExtContext, status *models.ValidationStatus) error {
	clone := *status
	s.status = &clone
	return nil
}

func (s *stubValidationStore) GetStatus(_ context.Context, _ string) (*models.ValidationStatus, error) {
	if s.status == nil {
		return nil, sql.ErrNoRows
	}
	clone := *s.status
	clone.Issues = append([]models.ValidationIssue(nil), s.issues...)
	return &clone, nil
}

func (s *stubValidationStore) InsertIssues(_ context.Context, _ sqlx.ExtContext, issues []models.ValidationIssue) error {
	for i := range issues {
		if issues[i].ID == "" {
			issues[i].ID = issues[i].Code + "-" + issues[i].TimetableID
		}
	}
	s.issues = append(s.issues, issues...)
	return nil
}

func (s *stubValidationStore) ListIssues(_ context.Context, _ string) ([]models.ValidationIssue, error) {
	return s.issues, nil
}

func (s *stubValidationStore) FindIssue(_ context.Context, id string) (*models.ValidationIssue, error) {
	for i := range s.issues {
		if s.issues[i].ID == id {
			clone := s.issues[i]
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubValidationStore) ResolveIssue(_ context.Context, _ sqlx.ExtContext, id, actor string) error {
	for i := range s.issues {
		if s.issues[i].ID == id {
			now := time.Now()
			s.issues[i].Resolved = true
			s.issues[i].ResolvedBy = &actor
			s.issues[i].ResolvedAt = &now
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubValidationStore) DeleteOpenIssues(_ context.Context, _ sqlx.ExtContext, _ string) error {
	kept := s.issues[:0]
	for _, issue := range s.issues {
		if issue.Resolved {
			kept = append(kept, issue)
		}
	}
	s.issues = kept
	return nil
}

func (s *stubValidationStore) RecordApproval(_ context.Context, _ sqlx.ExtContext, record *models.ApprovalRecord) error {
	s.approvals = append(s.approvals, *record)
	return nil
}

func fixtureFormation() *models.FormationOffer {
	return &models.FormationOffer{
		ID:            "form-1",
		Name:          "Computer Science L3",
		Level:         models.FormationLevelLicence,
		TotalStudents: 30,
		Sections: []models.Section{
			{
				ID: "sec-1", FormationID: "form-1", Name: "Section A", Capacity: 30,
				Groups: []models.Group{
					{ID: "grp-1", SectionID: "sec-1", Name: "G1", Type: models.GroupTypeLabMixed, Capacity: 15},
				},
			},
		},
	}
}

func fixtureSubjects() []models.Subject {
	return []models.Subject{
		{
			ID: "sub-1", FormationID: "form-1", Code: "ALG1", Name: "Algorithms", SemesterIndex: 1,
			Modules: []models.Module{
				{ID: "mod-lec", SubjectID: "sub-1", Type: models.ModuleTypeLecture, DurationMinutes: 90,
					Frequency: models.FrequencyWeekly, RequiredInfraType: models.InfraTypeClassroom},
				{ID: "mod-lab", SubjectID: "sub-1", Type: models.ModuleTypeLab, DurationMinutes: 120,
					Frequency: models.FrequencyWeekly, RequiredInfraType: models.InfraTypeLaboratory,
					RequiredQualification: "lab-supervision"},
				{ID: "mod-exam", SubjectID: "sub-1", Type: models.ModuleTypeExam, DurationMinutes: 120,
					Frequency: models.FrequencyWeekly, RequiredInfraType: models.InfraTypeAmphitheater},
			},
		},
	}
}

func fixtureRooms() []models.Infrastructure {
	return []models.Infrastructure{
		{ID: "room-class", Code: "B-101", Type: models.InfraTypeClassroom, Capacity: 40, Active: true},
		{ID: "room-lab", Code: "LAB-2", Type: models.InfraTypeLaboratory, Capacity: 20, Active: true},
	}
}

func fixtureTeachers() []models.TeacherProfile {
	return []models.TeacherProfile{
		{ID: "t-1", FullName: "Amel Haddad", Qualifications: types.JSONText(`["lab-supervision"]`), Active: true},
		{ID: "t-2", FullName: "Karim Bensalem", Active: true},
	}
}

func fixtureSemester() *models.Semester {
	return &models.Semester{
		ID:        "sem-1",
		Name:      "2026/2027 S1",
		StartDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 13, 0, 0, 0, 0, time.UTC),
	}
}
