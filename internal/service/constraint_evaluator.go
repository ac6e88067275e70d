package service

import (
	"fmt"
	"sort"

	"github.com/acadplan/timetable-api/internal/models"
)

// Hard constraint codes. Zero occurrences of these are required for a
// schedule to be valid; everything else only affects the soft score.
const (
	ViolationInfraDoubleBooking   = "INFRA_DOUBLE_BOOKING"
	ViolationTeacherDoubleBooking = "TEACHER_DOUBLE_BOOKING"
	ViolationTeacherBlocked       = "TEACHER_BLOCKED"
	ViolationCapacityExceeded     = "CAPACITY_EXCEEDED"
	ViolationInfraTypeMismatch    = "INFRA_TYPE_MISMATCH"
	ViolationMaintenanceOverlap   = "MAINTENANCE_OVERLAP"
)

// Soft penalty weights. Tuned so a single hard violation always outranks
// any accumulation of soft penalties.
const (
	penaltyConsecutiveHours = 4.0
	penaltyShortBreak       = 3.0
	penaltyNonPreferred     = 1.0
	penaltyUnevenLoad       = 2.0
	bonusPreferredWindow    = 0.5
)

// ConstraintViolation describes one broken hard constraint.
type ConstraintViolation struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	EntryIDs []string `json:"entry_ids"`
}

// EvaluationResult carries hard violations and the soft quality score for
// one entry against the full entry set. Higher soft scores are better.
type EvaluationResult struct {
	Hard      []ConstraintViolation `json:"hard"`
	SoftScore float64               `json:"soft_score"`
}

// EvaluationContext bundles the read-only pools an evaluation needs.
// The evaluator itself holds no state: results are a pure function of
// the entry, the full entry set and this context.
type EvaluationContext struct {
	Constraints    models.FormationConstraints
	Infrastructure map[string]models.Infrastructure
	Teachers       map[string]models.TeacherProfile
	TeacherWindows map[string][]models.TimeConstraint
	AudienceSizes  map[string]int
	Modules        map[string]models.Module
}

// ConstraintEvaluator checks hard constraints and scores soft ones.
type ConstraintEvaluator struct{}

// NewConstraintEvaluator constructs the evaluator.
func NewConstraintEvaluator() *ConstraintEvaluator {
	return &ConstraintEvaluator{}
}

// Evaluate checks one entry against the full entry set. Cancelled entries
// are transparent to every check.
func (e *ConstraintEvaluator) Evaluate(entry models.TimetableEntry, entries []models.TimetableEntry, ctx EvaluationContext) EvaluationResult {
	result := EvaluationResult{}
	if entry.Status == models.EntryStatusCancelled {
		return result
	}

	result.Hard = e.hardViolations(entry, entries, ctx)
	result.SoftScore = e.softScore(entry, entries, ctx)
	return result
}

// EvaluateAll evaluates every active entry and returns results keyed by
// entry ID.
func (e *ConstraintEvaluator) EvaluateAll(entries []models.TimetableEntry, ctx EvaluationContext) map[string]EvaluationResult {
	results := make(map[string]EvaluationResult, len(entries))
	for _, entry := range entries {
		results[entry.ID] = e.Evaluate(entry, entries, ctx)
	}
	return results
}

// HardViolationCount totals hard violations across the entry set, with
// pairwise conflicts counted once per pair.
func (e *ConstraintEvaluator) HardViolationCount(entries []models.TimetableEntry, ctx EvaluationContext) int {
	seen := make(map[string]struct{})
	count := 0
	for _, entry := range entries {
		for _, violation := range e.hardViolations(entry, entries, ctx) {
			key := violationKey(violation)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			count++
		}
	}
	return count
}

// ConflictLevelFor derives the entry conflict grade from an evaluation.
func ConflictLevelFor(result EvaluationResult) models.ConflictLevel {
	for _, violation := range result.Hard {
		if violation.Code == ViolationInfraDoubleBooking || violation.Code == ViolationTeacherDoubleBooking {
			return models.ConflictCritical
		}
	}
	if len(result.Hard) > 0 {
		return models.ConflictMajor
	}
	if result.SoftScore <= -penaltyShortBreak {
		return models.ConflictMinor
	}
	return models.ConflictNone
}

func (e *ConstraintEvaluator) hardViolations(entry models.TimetableEntry, entries []models.TimetableEntry, ctx EvaluationContext) []ConstraintViolation {
	var violations []ConstraintViolation

	for _, other := range entries {
		if other.ID == entry.ID || other.Status == models.EntryStatusCancelled {
			continue
		}
		if !entry.OverlapsWeekly(other) {
			continue
		}
		if other.InfrastructureID == entry.InfrastructureID {
			violations = append(violations, ConstraintViolation{
				Code:     ViolationInfraDoubleBooking,
				Message:  fmt.Sprintf("infrastructure %s double-booked on day %d", entry.InfrastructureID, entry.DayOfWeek),
				EntryIDs: pairIDs(entry.ID, other.ID),
			})
		}
		if other.TeacherID == entry.TeacherID {
			violations = append(violations, ConstraintViolation{
				Code:     ViolationTeacherDoubleBooking,
				Message:  fmt.Sprintf("teacher %s double-booked on day %d", entry.TeacherID, entry.DayOfWeek),
				EntryIDs: pairIDs(entry.ID, other.ID),
			})
		}
	}

	for _, window := range ctx.TeacherWindows[entry.TeacherID] {
		if window.Blocks(entry.DayOfWeek, entry.StartMinute, entry.EndMinute) {
			violations = append(violations, ConstraintViolation{
				Code:     ViolationTeacherBlocked,
				Message:  fmt.Sprintf("teacher %s unavailable on day %d at %d", entry.TeacherID, entry.DayOfWeek, entry.StartMinute),
				EntryIDs: []string{entry.ID},
			})
			break
		}
	}

	if infra, ok := ctx.Infrastructure[entry.InfrastructureID]; ok {
		if size := ctx.AudienceSizes[entry.AudienceID]; size > infra.Capacity {
			violations = append(violations, ConstraintViolation{
				Code:     ViolationCapacityExceeded,
				Message:  fmt.Sprintf("audience %s (%d) exceeds capacity of %s (%d)", entry.AudienceID, size, infra.Code, infra.Capacity),
				EntryIDs: []string{entry.ID},
			})
		}
		if module, ok := ctx.Modules[entry.ModuleID]; ok && module.RequiredInfraType != "" && infra.Type != module.RequiredInfraType {
			violations = append(violations, ConstraintViolation{
				Code:     ViolationInfraTypeMismatch,
				Message:  fmt.Sprintf("module %s requires %s, got %s", entry.ModuleID, module.RequiredInfraType, infra.Type),
				EntryIDs: []string{entry.ID},
			})
		}
		for _, window := range infra.Maintenance {
			if window.BlocksWeekly(entry.DayOfWeek, entry.StartMinute, entry.EndMinute) {
				violations = append(violations, ConstraintViolation{
					Code:     ViolationMaintenanceOverlap,
					Message:  fmt.Sprintf("infrastructure %s under maintenance during day %d slot", infra.Code, entry.DayOfWeek),
					EntryIDs: []string{entry.ID},
				})
				break
			}
		}
	}

	return violations
}

func (e *ConstraintEvaluator) softScore(entry models.TimetableEntry, entries []models.TimetableEntry, ctx EvaluationContext) float64 {
	score := 0.0

	maxConsecutive := ctx.Constraints.MaxConsecutiveHours * 60
	if maxConsecutive > 0 {
		if run := consecutiveRun(entry, entries, byTeacher); run > maxConsecutive {
			score -= penaltyConsecutiveHours
		}
		if run := consecutiveRun(entry, entries, byAudience); run > maxConsecutive {
			score -= penaltyConsecutiveHours
		}
	}

	if ctx.Constraints.MinBreakMinutes > 0 {
		if gap, ok := shortestAdjacentGap(entry, entries); ok && gap > 0 && gap < ctx.Constraints.MinBreakMinutes {
			score -= penaltyShortBreak
		}
	}

	if len(ctx.Constraints.PreferredSlots) > 0 && !inPreferred(entry.Slot(), ctx.Constraints.PreferredSlots) {
		score -= penaltyNonPreferred
	}
	for _, blocked := range ctx.Constraints.BlockedSlots {
		if blocked.Overlaps(entry.Slot()) {
			score -= penaltyNonPreferred
			break
		}
	}

	preferred := false
	for _, window := range ctx.TeacherWindows[entry.TeacherID] {
		if window.Prefers(entry.DayOfWeek, entry.StartMinute, entry.EndMinute) {
			preferred = true
			break
		}
	}
	if preferred {
		score += bonusPreferredWindow
	}

	score -= loadImbalance(entry, entries) * penaltyUnevenLoad
	return score
}

type entryDimension func(a, b models.TimetableEntry) bool

func byTeacher(a, b models.TimetableEntry) bool  { return a.TeacherID == b.TeacherID }
func byAudience(a, b models.TimetableEntry) bool { return a.AudienceID == b.AudienceID }

// consecutiveRun returns the length in minutes of the longest chain of
// back-to-back sessions containing the entry along the given dimension.
func consecutiveRun(entry models.TimetableEntry, entries []models.TimetableEntry, sameDim entryDimension) int {
	day := sameDaySessions(entry, entries, sameDim)
	run := entry.EndMinute - entry.StartMinute
	end := entry.EndMinute
	start := entry.StartMinute

	extended := true
	for extended {
		extended = false
		for _, other := range day {
			if other.StartMinute == end {
				end = other.EndMinute
				extended = true
			}
			if other.EndMinute == start {
				start = other.StartMinute
				extended = true
			}
		}
		run = end - start
	}
	return run
}

// shortestAdjacentGap returns the smallest idle gap between the entry and
// its audience's neighbouring sessions on the same day.
func shortestAdjacentGap(entry models.TimetableEntry, entries []models.TimetableEntry) (int, bool) {
	day := sameDaySessions(entry, entries, byAudience)
	if len(day) == 0 {
		return 0, false
	}
	best := -1
	for _, other := range day {
		var gap int
		switch {
		case other.StartMinute >= entry.EndMinute:
			gap = other.StartMinute - entry.EndMinute
		case other.EndMinute <= entry.StartMinute:
			gap = entry.StartMinute - other.EndMinute
		default:
			continue
		}
		if best < 0 || gap < best {
			best = gap
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

func sameDaySessions(entry models.TimetableEntry, entries []models.TimetableEntry, sameDim entryDimension) []models.TimetableEntry {
	var result []models.TimetableEntry
	for _, other := range entries {
		if other.ID == entry.ID || other.Status == models.EntryStatusCancelled {
			continue
		}
		if other.DayOfWeek != entry.DayOfWeek || !sameDim(entry, other) {
			continue
		}
		result = append(result, other)
	}
	return result
}

func inPreferred(slot models.WeeklySlot, preferred []models.WeeklySlot) bool {
	for _, p := range preferred {
		if p.DayOfWeek == slot.DayOfWeek && slot.StartMinute >= p.StartMinute && slot.EndMinute <= p.EndMinute {
			return true
		}
	}
	return false
}

// loadImbalance measures how far the entry's day deviates from the
// audience's mean daily hours, normalised to [0, 1].
func loadImbalance(entry models.TimetableEntry, entries []models.TimetableEntry) float64 {
	perDay := make(map[int]float64)
	total := 0.0
	for _, other := range entries {
		if other.AudienceID != entry.AudienceID || other.Status == models.EntryStatusCancelled {
			continue
		}
		hours := other.DurationHours()
		perDay[other.DayOfWeek] += hours
		total += hours
	}
	if len(perDay) <= 1 || total == 0 {
		return 0
	}
	mean := total / float64(len(perDay))
	deviation := perDay[entry.DayOfWeek] - mean
	if deviation < 0 {
		deviation = -deviation
	}
	ratio := deviation / total
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func pairIDs(a, b string) []string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids
}

func violationKey(v ConstraintViolation) string {
	key := v.Code
	for _, id := range v.EntryIDs {
		key += ":" + id
	}
	return key
}
