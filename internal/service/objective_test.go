package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
)

func TestResolveWeightsOverridesDefaults(t *testing.T) {
	cfg := config.EngineConfig{
		WeightConflicts:    0.4,
		WeightUtilization:  0.2,
		WeightBalance:      0.2,
		WeightSatisfaction: 0.1,
		WeightCompactness:  0.1,
	}

	weights := resolveWeights(dto.ObjectiveWeights{}, cfg)
	assert.Equal(t, 0.4, weights.Conflicts)
	assert.Equal(t, 0.2, weights.Utilization)

	weights = resolveWeights(dto.ObjectiveWeights{Conflicts: 0.8, Compactness: 0.05}, cfg)
	assert.Equal(t, 0.8, weights.Conflicts)
	assert.Equal(t, 0.05, weights.Compactness)
	// Untouched components keep their configured values.
	assert.Equal(t, 0.2, weights.Balance)
	assert.Equal(t, 0.1, weights.Satisfaction)
}

func TestCompactnessScore(t *testing.T) {
	packed := []models.TimetableEntry{
		entryAt("e-1", "t-1", "room-1", "sec-1", 1, 480, 570),
		entryAt("e-2", "t-2", "room-2", "sec-1", 1, 570, 660),
	}
	assert.InDelta(t, 1.0, compactnessScore(packed), 0.001)

	// A two hour hole in a four hour span leaves half the day busy.
	gapped := []models.TimetableEntry{
		entryAt("e-1", "t-1", "room-1", "sec-1", 1, 480, 540),
		entryAt("e-2", "t-2", "room-2", "sec-1", 1, 660, 720),
	}
	assert.InDelta(t, 0.5, compactnessScore(gapped), 0.001)

	assert.Equal(t, 1.0, compactnessScore(nil))
}

func TestBalanceScorePrefersFlatWeeks(t *testing.T) {
	flat := []models.TimetableEntry{
		entryAt("e-1", "t-1", "room-1", "sec-1", 1, 480, 600),
		entryAt("e-2", "t-2", "room-2", "sec-1", 2, 480, 600),
	}
	assert.InDelta(t, 1.0, balanceScore(flat), 0.001)

	lopsided := []models.TimetableEntry{
		entryAt("e-1", "t-1", "room-1", "sec-1", 1, 480, 600),
		entryAt("e-2", "t-2", "room-2", "sec-1", 1, 600, 720),
		entryAt("e-3", "t-1", "room-1", "sec-1", 2, 480, 540),
	}
	assert.Less(t, balanceScore(lopsided), 1.0)
}

func TestScheduleScorePunishesHardViolations(t *testing.T) {
	inputs := &engineInputs{
		roomsByID:      map[string]models.Infrastructure{"room-1": {ID: "room-1", Capacity: 40}},
		teachersByID:   map[string]models.TeacherProfile{},
		teacherWindows: map[string][]models.TimeConstraint{},
		audienceSizes:  map[string]int{"sec-1": 30, "sec-2": 30},
		modulesByID:    map[string]models.Module{},
	}
	evaluator := NewConstraintEvaluator()
	weights := objectiveWeights{Conflicts: 1.0}

	clean := []models.TimetableEntry{
		entryAt("e-1", "t-1", "room-1", "sec-1", 1, 480, 570),
		entryAt("e-2", "t-2", "room-1", "sec-2", 2, 480, 570),
	}
	cleanScore, cleanHard := scheduleScore(clean, inputs, evaluator, weights)
	assert.Zero(t, cleanHard)

	clashed := []models.TimetableEntry{
		entryAt("e-1", "t-1", "room-1", "sec-1", 1, 480, 570),
		entryAt("e-2", "t-2", "room-1", "sec-2", 1, 480, 570),
	}
	clashedScore, clashedHard := scheduleScore(clashed, inputs, evaluator, weights)
	assert.Equal(t, 1, clashedHard)
	assert.Greater(t, cleanScore, clashedScore)
}

func TestUtilizationScoreRewardsFullRooms(t *testing.T) {
	inputs := &engineInputs{
		roomsByID: map[string]models.Infrastructure{
			"room-small": {ID: "room-small", Capacity: 30},
			"room-huge":  {ID: "room-huge", Capacity: 300},
		},
		audienceSizes: map[string]int{"sec-1": 30},
	}

	snug := []models.TimetableEntry{entryAt("e-1", "t-1", "room-small", "sec-1", 1, 480, 570)}
	assert.InDelta(t, 1.0, utilizationScore(snug, inputs), 0.001)

	rattling := []models.TimetableEntry{entryAt("e-1", "t-1", "room-huge", "sec-1", 1, 480, 570)}
	assert.InDelta(t, 0.1, utilizationScore(rattling, inputs), 0.001)
}
