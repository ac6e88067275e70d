package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

func conflictedEntries() []models.TimetableEntry {
	// Two lectures stacked in the same room and slot.
	a := entryAt("e-1", "t-1", "room-class", "sec-1", 1, 480, 570)
	a.TimetableID = "tt-1"
	a.ModuleID = "mod-lec"
	b := entryAt("e-2", "t-2", "room-class", "sec-1", 1, 480, 570)
	b.TimetableID = "tt-1"
	b.ModuleID = "mod-lec"
	return []models.TimetableEntry{a, b}
}

func newOptimizerFixture(entries []models.TimetableEntry) (*TimetableOptimizerService, *stubTimetableStore, *stubValidationStore) {
	store := &stubTimetableStore{
		timetable: &models.GeneratedTimetable{
			ID:          "tt-1",
			FormationID: "form-1",
			SemesterID:  "sem-1",
			Version:     1,
			Status:      models.TimetableStatusDraft,
		},
		entries: entries,
	}
	validation := &stubValidationStore{}
	optimizer := NewTimetableOptimizerService(
		&stubFormations{formation: fixtureFormation()},
		&stubSubjects{subjects: fixtureSubjects()},
		&stubRooms{rooms: fixtureRooms()},
		&stubTeachers{teachers: fixtureTeachers()},
		&stubSemesters{semester: fixtureSemester()},
		store,
		validation,
		nil, nil, nil,
		config.EngineConfig{MaxIterations: 400, ConvergenceWindow: 100},
	)
	return optimizer, store, validation
}

func TestOptimizeNeverWorsensHardViolations(t *testing.T) {
	optimizer, store, _ := newOptimizerFixture(conflictedEntries())

	result, err := optimizer.Optimize(context.Background(), dto.OptimizeTimetableRequest{
		TimetableID: "tt-1",
		Seed:        42,
	})
	require.NoError(t, err)

	// The fixture starts with one double-booking; the optimizer must not
	// end with more, and with a whole free grid it should shed it.
	assert.LessOrEqual(t, result.HardViolations, 1)
	assert.True(t, store.locked)
	assert.Contains(t, store.statusHistory, models.TimetableStatusOptimized)
	assert.Len(t, store.entries, 2)
}

func TestOptimizeIsReproducibleWithSeed(t *testing.T) {
	run := func() (*dto.OptimizeResult, []models.TimetableEntry) {
		optimizer, store, _ := newOptimizerFixture(conflictedEntries())
		result, err := optimizer.Optimize(context.Background(), dto.OptimizeTimetableRequest{
			TimetableID: "tt-1",
			Seed:        1234,
			Budget:      dto.OptimizeBudget{MaxIterations: 200},
		})
		require.NoError(t, err)
		return result, store.entries
	}

	first, firstEntries := run()
	second, secondEntries := run()

	assert.Equal(t, first.FinalScore, second.FinalScore)
	assert.Equal(t, first.HardViolations, second.HardViolations)
	assert.Equal(t, first.Iterations, second.Iterations)
	require.Len(t, secondEntries, len(firstEntries))
	for i := range firstEntries {
		assert.Equal(t, firstEntries[i].DayOfWeek, secondEntries[i].DayOfWeek)
		assert.Equal(t, firstEntries[i].StartMinute, secondEntries[i].StartMinute)
		assert.Equal(t, firstEntries[i].InfrastructureID, secondEntries[i].InfrastructureID)
	}
}

func TestOptimizeReturnsBusyForConcurrentRun(t *testing.T) {
	optimizer, _, _ := newOptimizerFixture(conflictedEntries())

	require.True(t, optimizer.acquire("tt-1"))
	_, err := optimizer.Optimize(context.Background(), dto.OptimizeTimetableRequest{TimetableID: "tt-1"})
	assert.ErrorIs(t, err, appErrors.ErrEngineBusy)
	optimizer.release("tt-1")
}

func TestOptimizeRefusesValidatedWithoutOverride(t *testing.T) {
	optimizer, _, validation := newOptimizerFixture(conflictedEntries())
	validation.status = &models.ValidationStatus{
		TimetableID: "tt-1",
		IsValidated: true,
	}

	_, err := optimizer.Optimize(context.Background(), dto.OptimizeTimetableRequest{TimetableID: "tt-1"})
	require.Error(t, err)

	_, err = optimizer.Optimize(context.Background(), dto.OptimizeTimetableRequest{
		TimetableID: "tt-1",
		AllowUnval:  true,
		Seed:        7,
	})
	require.NoError(t, err)
}

func TestOptimizeOverrideResetsValidation(t *testing.T) {
	optimizer, _, validation := newOptimizerFixture(conflictedEntries())
	validation.status = &models.ValidationStatus{
		TimetableID:   "tt-1",
		IsValidated:   true,
		ApprovalLevel: models.ApprovalPartial,
	}

	_, err := optimizer.Optimize(context.Background(), dto.OptimizeTimetableRequest{
		TimetableID: "tt-1",
		AllowUnval:  true,
		Seed:        9,
	})
	require.NoError(t, err)

	// A mutated entry set cannot stay validated; a new reservation batch
	// must wait for a fresh validation pass.
	status, err := validation.GetStatus(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.False(t, status.IsValidated)
	assert.Equal(t, models.ApprovalPartial, status.ApprovalLevel)
}

func TestOptimizeRefusesFinalizedTimetable(t *testing.T) {
	optimizer, store, _ := newOptimizerFixture(conflictedEntries())
	store.timetable.Status = models.TimetableStatusPublished

	_, err := optimizer.Optimize(context.Background(), dto.OptimizeTimetableRequest{TimetableID: "tt-1"})
	assert.ErrorIs(t, err, appErrors.ErrFinalized)
}

func TestSwapSlotsKeepsDurations(t *testing.T) {
	a := entryAt("e-1", "t-1", "room-1", "sec-1", 1, 480, 570)
	b := entryAt("e-2", "t-2", "room-2", "sec-2", 3, 600, 720)

	swapSlots(&a, &b)

	assert.Equal(t, 3, a.DayOfWeek)
	assert.Equal(t, 600, a.StartMinute)
	assert.Equal(t, 690, a.EndMinute)
	assert.Equal(t, 1, b.DayOfWeek)
	assert.Equal(t, 480, b.StartMinute)
	assert.Equal(t, 600, b.EndMinute)
}
