package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
)

func newBuilderFixture() (*TimetableBuilderService, *stubTimetableStore, *stubSubjects) {
	store := &stubTimetableStore{}
	subjects := &stubSubjects{subjects: fixtureSubjects()}
	builder := NewTimetableBuilderService(
		&stubFormations{formation: fixtureFormation()},
		subjects,
		&stubRooms{rooms: fixtureRooms()},
		&stubTeachers{teachers: fixtureTeachers()},
		&stubSemesters{semester: fixtureSemester()},
		store,
		nil, nil, nil,
		config.EngineConfig{},
	)
	return builder, store, subjects
}

func TestBuildPlacesAllOccurrencesConflictFree(t *testing.T) {
	builder, store, subjects := newBuilderFixture()

	result, err := builder.Build(context.Background(), dto.BuildTimetableRequest{
		FormationID: "form-1",
		SemesterID:  "sem-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Timetable)

	// September start resolves to the formation's first semester.
	assert.Equal(t, 1, subjects.semesterIndex)

	// One lecture for the section, one lab for the mixed group. The exam
	// module never reaches the weekly grid.
	require.Len(t, result.Timetable.Entries, 2)
	assert.Empty(t, result.Issues)
	assert.Equal(t, "tt-1", result.Timetable.ID)
	assert.Equal(t, models.TimetableStatusDraft, result.Timetable.Status)

	byModule := make(map[string]models.TimetableEntry)
	for _, entry := range store.entries {
		assert.Equal(t, "tt-1", entry.TimetableID)
		assert.Equal(t, models.EntryStatusPlanned, entry.Status)
		assert.Equal(t, models.ConflictNone, entry.ConflictLevel)
		byModule[entry.ModuleID] = entry
	}

	lecture, ok := byModule["mod-lec"]
	require.True(t, ok)
	assert.Equal(t, "sec-1", lecture.AudienceID)
	assert.Equal(t, "room-class", lecture.InfrastructureID)
	assert.Equal(t, 90, lecture.EndMinute-lecture.StartMinute)

	lab, ok := byModule["mod-lab"]
	require.True(t, ok)
	assert.Equal(t, "grp-1", lab.AudienceID)
	assert.Equal(t, "room-lab", lab.InfrastructureID)
	// Only the qualified teacher may take the lab.
	assert.Equal(t, "t-1", lab.TeacherID)
}

func TestBuildReportsMissingResources(t *testing.T) {
	store := &stubTimetableStore{}
	subjects := fixtureSubjects()
	subjects[0].Modules = subjects[0].Modules[:2]
	subjects[0].Modules[1].RequiredQualification = "nuclear-physics"

	builder := NewTimetableBuilderService(
		&stubFormations{formation: fixtureFormation()},
		&stubSubjects{subjects: subjects},
		&stubRooms{rooms: fixtureRooms()},
		&stubTeachers{teachers: fixtureTeachers()},
		&stubSemesters{semester: fixtureSemester()},
		store,
		nil, nil, nil,
		config.EngineConfig{},
	)

	result, err := builder.Build(context.Background(), dto.BuildTimetableRequest{
		FormationID: "form-1",
		SemesterID:  "sem-1",
	})
	require.NoError(t, err)

	// The lab is unplaceable but the build still succeeds with the
	// lecture placed and the gap reported.
	require.Len(t, result.Timetable.Entries, 1)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, BuildIssueNoResources, result.Issues[0].Code)
	assert.Equal(t, "mod-lab", result.Issues[0].ModuleID)
	assert.Equal(t, "grp-1", result.Issues[0].AudienceID)
}

func TestBuildForcesLeastBadPlacementWhenContended(t *testing.T) {
	store := &stubTimetableStore{}
	subjects := fixtureSubjects()
	subjects[0].Modules = []models.Module{
		{ID: "mod-lab-a", SubjectID: "sub-1", Type: models.ModuleTypeLab, DurationMinutes: 120,
			Frequency: models.FrequencyWeekly, RequiredInfraType: models.InfraTypeLaboratory,
			RequiredQualification: "lab-supervision"},
		{ID: "mod-lab-b", SubjectID: "sub-1", Type: models.ModuleTypeLab, DurationMinutes: 120,
			Frequency: models.FrequencyWeekly, RequiredInfraType: models.InfraTypeLaboratory,
			RequiredQualification: "lab-supervision"},
	}

	builder := NewTimetableBuilderService(
		&stubFormations{formation: fixtureFormation()},
		&stubSubjects{subjects: subjects},
		&stubRooms{rooms: fixtureRooms()},
		&stubTeachers{teachers: fixtureTeachers()},
		&stubSemesters{semester: fixtureSemester()},
		store,
		nil, nil, nil,
		// A single 120 minute window on one day: the second lab cannot
		// avoid the first.
		config.EngineConfig{DayStartMinute: 480, DayEndMinute: 600, SlotMinutes: 60, TeachingDays: []int{1}},
	)

	result, err := builder.Build(context.Background(), dto.BuildTimetableRequest{
		FormationID: "form-1",
		SemesterID:  "sem-1",
	})
	require.NoError(t, err)

	// Both labs are placed; the loser carries the critical flag.
	require.Len(t, result.Timetable.Entries, 2)
	var critical, clean []models.TimetableEntry
	for _, entry := range result.Timetable.Entries {
		if entry.ConflictLevel == models.ConflictCritical {
			critical = append(critical, entry)
		} else {
			clean = append(clean, entry)
		}
	}
	require.Len(t, critical, 1)
	require.Len(t, clean, 1)
	assert.Equal(t, models.ConflictNone, clean[0].ConflictLevel)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, BuildIssueNoPlacement, result.Issues[0].Code)
	assert.Equal(t, critical[0].ID, result.Issues[0].EntryID)
}

func TestBuildPrefersLeastUtilizedRoomOnTies(t *testing.T) {
	store := &stubTimetableStore{}
	subjects := fixtureSubjects()
	subjects[0].Modules = []models.Module{
		{ID: "mod-lec-a", SubjectID: "sub-1", Type: models.ModuleTypeLecture, DurationMinutes: 90,
			Frequency: models.FrequencyWeekly, RequiredInfraType: models.InfraTypeClassroom},
		{ID: "mod-lec-b", SubjectID: "sub-1", Type: models.ModuleTypeLecture, DurationMinutes: 90,
			Frequency: models.FrequencyWeekly, RequiredInfraType: models.InfraTypeClassroom},
	}
	rooms := []models.Infrastructure{
		{ID: "room-a", Code: "B-101", Type: models.InfraTypeClassroom, Capacity: 40, Active: true},
		{ID: "room-b", Code: "B-102", Type: models.InfraTypeClassroom, Capacity: 50, Active: true},
	}

	builder := NewTimetableBuilderService(
		&stubFormations{formation: fixtureFormation()},
		&stubSubjects{subjects: subjects},
		&stubRooms{rooms: rooms},
		&stubTeachers{teachers: fixtureTeachers()},
		&stubSemesters{semester: fixtureSemester()},
		store,
		nil, nil, nil,
		config.EngineConfig{},
	)

	result, err := builder.Build(context.Background(), dto.BuildTimetableRequest{
		FormationID: "form-1",
		SemesterID:  "sem-1",
	})
	require.NoError(t, err)
	require.Len(t, result.Timetable.Entries, 2)
	assert.Empty(t, result.Issues)

	// Equal-scoring candidates spread across rooms instead of stacking
	// everything in the smallest fit.
	assert.NotEqual(t,
		result.Timetable.Entries[0].InfrastructureID,
		result.Timetable.Entries[1].InfrastructureID)
}

func TestBuildBiweeklyModulesGetParity(t *testing.T) {
	store := &stubTimetableStore{}
	subjects := fixtureSubjects()
	subjects[0].Modules = []models.Module{
		{ID: "mod-bi", SubjectID: "sub-1", Type: models.ModuleTypeLecture, DurationMinutes: 60,
			Frequency: models.FrequencyBiweekly, RequiredInfraType: models.InfraTypeClassroom},
	}

	builder := NewTimetableBuilderService(
		&stubFormations{formation: fixtureFormation()},
		&stubSubjects{subjects: subjects},
		&stubRooms{rooms: fixtureRooms()},
		&stubTeachers{teachers: fixtureTeachers()},
		&stubSemesters{semester: fixtureSemester()},
		store,
		nil, nil, nil,
		config.EngineConfig{},
	)

	result, err := builder.Build(context.Background(), dto.BuildTimetableRequest{
		FormationID: "form-1",
		SemesterID:  "sem-1",
	})
	require.NoError(t, err)
	require.Len(t, result.Timetable.Entries, 1)
	parity := result.Timetable.Entries[0].WeekParity
	assert.Contains(t, []models.WeekParity{models.ParityOdd, models.ParityEven}, parity)
}

func TestBuildRejectsFormationWithoutSections(t *testing.T) {
	formation := fixtureFormation()
	formation.Sections = nil
	builder := NewTimetableBuilderService(
		&stubFormations{formation: formation},
		&stubSubjects{subjects: fixtureSubjects()},
		&stubRooms{rooms: fixtureRooms()},
		&stubTeachers{teachers: fixtureTeachers()},
		&stubSemesters{semester: fixtureSemester()},
		&stubTimetableStore{},
		nil, nil, nil,
		config.EngineConfig{},
	)

	_, err := builder.Build(context.Background(), dto.BuildTimetableRequest{
		FormationID: "form-1",
		SemesterID:  "sem-1",
	})
	require.Error(t, err)
}

func TestBuildValidatesPayload(t *testing.T) {
	builder, _, _ := newBuilderFixture()
	_, err := builder.Build(context.Background(), dto.BuildTimetableRequest{})
	require.Error(t, err)
}
