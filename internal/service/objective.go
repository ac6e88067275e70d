package service

import (
	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
)

// objectiveWeights is the resolved weight vector of the optimizer's
// multi-objective function. Weights sum to 1 when fully configured.
type objectiveWeights struct {
	Conflicts    float64
	Utilization  float64
	Balance      float64
	Satisfaction float64
	Compactness  float64
}

// resolveWeights merges request overrides onto configured defaults.
func resolveWeights(req dto.ObjectiveWeights, cfg config.EngineConfig) objectiveWeights {
	weights := objectiveWeights{
		Conflicts:    cfg.WeightConflicts,
		Utilization:  cfg.WeightUtilization,
		Balance:      cfg.WeightBalance,
		Satisfaction: cfg.WeightSatisfaction,
		Compactness:  cfg.WeightCompactness,
	}
	if req.Conflicts > 0 {
		weights.Conflicts = req.Conflicts
	}
	if req.Utilization > 0 {
		weights.Utilization = req.Utilization
	}
	if req.Balance > 0 {
		weights.Balance = req.Balance
	}
	if req.Satisfaction > 0 {
		weights.Satisfaction = req.Satisfaction
	}
	if req.Compactness > 0 {
		weights.Compactness = req.Compactness
	}
	return weights
}

// scheduleScore grades a full entry set. Each component is normalised to
// [0, 1] before weighting, so scores are comparable across runs. Higher
// is better.
func scheduleScore(entries []models.TimetableEntry, inputs *engineInputs, evaluator *ConstraintEvaluator, weights objectiveWeights) (float64, int) {
	active := activeEntries(entries)
	if len(active) == 0 {
		return 0, 0
	}

	evalCtx := inputs.evaluation()
	hard := evaluator.HardViolationCount(active, evalCtx)

	conflictScore := 1.0 / (1.0 + float64(hard)+float64(minorConflicts(active, evaluator, evalCtx))*0.25)
	utilization := utilizationScore(active, inputs)
	balance := balanceScore(active)
	satisfaction := satisfactionScore(active, inputs)
	compactness := compactnessScore(active)

	score := weights.Conflicts*conflictScore +
		weights.Utilization*utilization +
		weights.Balance*balance +
		weights.Satisfaction*satisfaction +
		weights.Compactness*compactness
	return score, hard
}

func activeEntries(entries []models.TimetableEntry) []models.TimetableEntry {
	active := make([]models.TimetableEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Status != models.EntryStatusCancelled {
			active = append(active, entry)
		}
	}
	return active
}

func minorConflicts(entries []models.TimetableEntry, evaluator *ConstraintEvaluator, evalCtx EvaluationContext) int {
	count := 0
	for _, entry := range entries {
		result := evaluator.Evaluate(entry, entries, evalCtx)
		if len(result.Hard) == 0 && ConflictLevelFor(result) == models.ConflictMinor {
			count++
		}
	}
	return count
}

// utilizationScore rewards rooms filled close to their capacity.
func utilizationScore(entries []models.TimetableEntry, inputs *engineInputs) float64 {
	total := 0.0
	counted := 0
	for _, entry := range entries {
		room, ok := inputs.roomsByID[entry.InfrastructureID]
		if !ok || room.Capacity == 0 {
			continue
		}
		fill := float64(inputs.audienceSizes[entry.AudienceID]) / float64(room.Capacity)
		if fill > 1 {
			fill = 1
		}
		total += fill
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// balanceScore rewards even distribution of hours across teaching days,
// per audience.
func balanceScore(entries []models.TimetableEntry) float64 {
	type audienceDay struct {
		audience string
		day      int
	}
	hours := make(map[audienceDay]float64)
	perAudience := make(map[string]float64)
	for _, entry := range entries {
		hours[audienceDay{entry.AudienceID, entry.DayOfWeek}] += entry.DurationHours()
		perAudience[entry.AudienceID] += entry.DurationHours()
	}
	if len(perAudience) == 0 {
		return 1
	}

	total := 0.0
	for audience, sum := range perAudience {
		days := 0
		maxDay := 0.0
		for key, h := range hours {
			if key.audience != audience {
				continue
			}
			days++
			if h > maxDay {
				maxDay = h
			}
		}
		if days == 0 || sum == 0 {
			total++
			continue
		}
		mean := sum / float64(days)
		// Peak-to-mean ratio of 1 means a perfectly flat week.
		total += mean / maxDay
	}
	return total / float64(len(perAudience))
}

// satisfactionScore is the fraction of sessions inside a teacher's
// preferred windows, among teachers who declared any.
func satisfactionScore(entries []models.TimetableEntry, inputs *engineInputs) float64 {
	counted := 0
	satisfied := 0
	for _, entry := range entries {
		windows := inputs.teacherWindows[entry.TeacherID]
		hasPreference := false
		inWindow := false
		for _, window := range windows {
			if window.IsBlocked {
				continue
			}
			hasPreference = true
			if window.Prefers(entry.DayOfWeek, entry.StartMinute, entry.EndMinute) {
				inWindow = true
				break
			}
		}
		if !hasPreference {
			continue
		}
		counted++
		if inWindow {
			satisfied++
		}
	}
	if counted == 0 {
		return 1
	}
	return float64(satisfied) / float64(counted)
}

// compactnessScore penalises idle gaps inside each audience's day.
func compactnessScore(entries []models.TimetableEntry) float64 {
	type audienceDay struct {
		audience string
		day      int
	}
	spans := make(map[audienceDay][2]int)
	busy := make(map[audienceDay]int)
	for _, entry := range entries {
		key := audienceDay{entry.AudienceID, entry.DayOfWeek}
		span, ok := spans[key]
		if !ok {
			span = [2]int{entry.StartMinute, entry.EndMinute}
		} else {
			if entry.StartMinute < span[0] {
				span[0] = entry.StartMinute
			}
			if entry.EndMinute > span[1] {
				span[1] = entry.EndMinute
			}
		}
		spans[key] = span
		busy[key] += entry.EndMinute - entry.StartMinute
	}
	if len(spans) == 0 {
		return 1
	}

	total := 0.0
	for key, span := range spans {
		width := span[1] - span[0]
		if width <= 0 {
			total++
			continue
		}
		ratio := float64(busy[key]) / float64(width)
		if ratio > 1 {
			ratio = 1
		}
		total += ratio
	}
	return total / float64(len(spans))
}
