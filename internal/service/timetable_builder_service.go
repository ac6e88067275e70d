package service

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

// Build issue codes.
const (
	BuildIssueNoPlacement  = "NO_CONFLICT_FREE_PLACEMENT"
	BuildIssueNoResources  = "NO_ELIGIBLE_RESOURCES"
	BuildIssueEmptyDemand  = "EMPTY_DEMAND"
	BuildIssueNoPartitions = "NO_SECTIONS_DEFINED"
)

type timetableWriter interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.GeneratedTimetable) error
	InsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error
}

// TimetableBuilderService constructs an initial weekly timetable with a
// greedy most-constrained-first strategy. Partial infeasibility never
// fails a build: unplaceable occurrences surface as CRITICAL entries
// plus build issues for the planner to act on.
type TimetableBuilderService struct {
	formations formationPartitionLoader
	subjects   subjectDemandLister
	rooms      infrastructurePoolLister
	teachers   teacherPoolLister
	semesters  semesterReader
	timetables timetableWriter
	evaluator  *ConstraintEvaluator
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        config.EngineConfig
}

// NewTimetableBuilderService wires builder dependencies.
func NewTimetableBuilderService(
	formations formationPartitionLoader,
	subjects subjectDemandLister,
	rooms infrastructurePoolLister,
	teachers teacherPoolLister,
	semesters semesterReader,
	timetables timetableWriter,
	evaluator *ConstraintEvaluator,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.EngineConfig,
) *TimetableBuilderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if evaluator == nil {
		evaluator = NewConstraintEvaluator()
	}
	applyEngineDefaults(&cfg)
	return &TimetableBuilderService{
		formations: formations,
		subjects:   subjects,
		rooms:      rooms,
		teachers:   teachers,
		semesters:  semesters,
		timetables: timetables,
		evaluator:  evaluator,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

func applyEngineDefaults(cfg *config.EngineConfig) {
	if cfg.DayStartMinute <= 0 {
		cfg.DayStartMinute = 480
	}
	if cfg.DayEndMinute <= cfg.DayStartMinute {
		cfg.DayEndMinute = 1080
	}
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 60
	}
	if len(cfg.TeachingDays) == 0 {
		cfg.TeachingDays = []int{1, 2, 3, 4, 5, 6}
	}
}

// Build constructs and persists a new timetable version.
func (s *TimetableBuilderService) Build(ctx context.Context, req dto.BuildTimetableRequest) (*dto.BuildTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid build payload")
	}

	inputs, err := buildEngineInputs(ctx, s.formations, s.subjects, s.rooms, s.teachers, s.semesters, req.FormationID, req.SemesterID)
	if err != nil {
		return nil, err
	}
	if len(inputs.Formation.Sections) == 0 {
		return nil, appErrors.Clone(appErrors.ErrStructural, "formation has no sections to schedule")
	}

	var issues []dto.BuildIssue
	if len(inputs.Occurrences) == 0 {
		issues = append(issues, dto.BuildIssue{Code: BuildIssueEmptyDemand, Message: "no schedulable modules for this formation and semester"})
	}

	entries, placementIssues := s.place(inputs)
	issues = append(issues, placementIssues...)

	timetable := &models.GeneratedTimetable{
		FormationID: req.FormationID,
		SemesterID:  req.SemesterID,
		Status:      models.TimetableStatusDraft,
	}
	err = s.timetables.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.timetables.CreateVersioned(ctx, tx, timetable); err != nil {
			return err
		}
		for i := range entries {
			entries[i].TimetableID = timetable.ID
		}
		return s.timetables.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return nil, err
	}
	timetable.Entries = entries

	s.logger.Info("timetable built",
		zap.String("timetable_id", timetable.ID),
		zap.String("formation_id", req.FormationID),
		zap.Int("version", timetable.Version),
		zap.Int("entries", len(entries)),
		zap.Int("issues", len(issues)))

	return &dto.BuildTimetableResponse{Timetable: timetable, Issues: issues}, nil
}

// candidate is one possible placement of an occurrence.
type candidate struct {
	entry models.TimetableEntry
	hard  int
	soft  float64
}

// place runs the greedy pass over all occurrences, most constrained first.
func (s *TimetableBuilderService) place(inputs *engineInputs) ([]models.TimetableEntry, []dto.BuildIssue) {
	evalCtx := inputs.evaluation()
	ordered := s.orderByConstraint(inputs)

	var entries []models.TimetableEntry
	var issues []dto.BuildIssue

	for _, occ := range ordered {
		rooms := s.eligibleRooms(inputs, occ)
		teachers := s.eligibleTeachers(inputs, occ)
		if len(rooms) == 0 || len(teachers) == 0 {
			issues = append(issues, dto.BuildIssue{
				ModuleID:   occ.Module.ID,
				AudienceID: occ.AudienceID,
				Code:       BuildIssueNoResources,
				Message:    "no qualified teacher or suitable room for module",
			})
			continue
		}

		best, found := s.bestCandidate(occ, rooms, teachers, entries, evalCtx)
		if !found {
			continue
		}

		entry := best.entry
		if best.hard > 0 {
			entry.ConflictLevel = models.ConflictCritical
			issues = append(issues, dto.BuildIssue{
				ModuleID:   occ.Module.ID,
				AudienceID: occ.AudienceID,
				EntryID:    entry.ID,
				Code:       BuildIssueNoPlacement,
				Message:    "placed with unavoidable conflicts, manual rework needed",
			})
		}
		entries = append(entries, entry)
	}
	return entries, issues
}

// orderByConstraint sorts occurrences so the hardest to place go first:
// fewest eligible resource combinations, then biggest audience.
func (s *TimetableBuilderService) orderByConstraint(inputs *engineInputs) []moduleOccurrence {
	type ranked struct {
		occ    moduleOccurrence
		degree int
	}
	rankedOccs := make([]ranked, 0, len(inputs.Occurrences))
	for _, occ := range inputs.Occurrences {
		degree := len(s.eligibleRooms(inputs, occ)) * len(s.eligibleTeachers(inputs, occ))
		rankedOccs = append(rankedOccs, ranked{occ: occ, degree: degree})
	}
	sort.SliceStable(rankedOccs, func(i, j int) bool {
		if rankedOccs[i].degree != rankedOccs[j].degree {
			return rankedOccs[i].degree < rankedOccs[j].degree
		}
		if rankedOccs[i].occ.AudienceSize != rankedOccs[j].occ.AudienceSize {
			return rankedOccs[i].occ.AudienceSize > rankedOccs[j].occ.AudienceSize
		}
		return rankedOccs[i].occ.Module.DurationMinutes > rankedOccs[j].occ.Module.DurationMinutes
	})

	ordered := make([]moduleOccurrence, 0, len(rankedOccs))
	for _, r := range rankedOccs {
		ordered = append(ordered, r.occ)
	}
	return ordered
}

// eligibleRooms returns suitable rooms smallest-fit first.
func (s *TimetableBuilderService) eligibleRooms(inputs *engineInputs, occ moduleOccurrence) []models.Infrastructure {
	var rooms []models.Infrastructure
	for _, room := range inputs.Rooms {
		if occ.Module.RequiredInfraType != "" && room.Type != occ.Module.RequiredInfraType {
			continue
		}
		if room.Capacity < occ.AudienceSize {
			continue
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Capacity < rooms[j].Capacity })
	return rooms
}

func (s *TimetableBuilderService) eligibleTeachers(inputs *engineInputs, occ moduleOccurrence) []models.TeacherProfile {
	var teachers []models.TeacherProfile
	for _, teacher := range inputs.Teachers {
		if inputs.teacherQualified(teacher.ID, occ.Module.RequiredQualification) {
			teachers = append(teachers, teacher)
		}
	}
	return teachers
}

// bestCandidate scans the full slot grid for the placement with the
// fewest hard violations. Ties go to the best soft score, then the
// least-utilized room so far, then the earliest scanned slot.
func (s *TimetableBuilderService) bestCandidate(
	occ moduleOccurrence,
	rooms []models.Infrastructure,
	teachers []models.TeacherProfile,
	placed []models.TimetableEntry,
	evalCtx EvaluationContext,
) (candidate, bool) {
	parities := []models.WeekParity{models.ParityEvery}
	if occ.Module.Frequency == models.FrequencyBiweekly {
		parities = []models.WeekParity{models.ParityOdd, models.ParityEven}
	}

	// Minutes already scheduled per room, for the utilization tie-break.
	roomLoad := make(map[string]int, len(rooms))
	for _, e := range placed {
		if e.Status != models.EntryStatusCancelled {
			roomLoad[e.InfrastructureID] += e.EndMinute - e.StartMinute
		}
	}

	var best candidate
	found := false
	for _, day := range s.cfg.TeachingDays {
		for start := s.cfg.DayStartMinute; start+occ.Module.DurationMinutes <= s.cfg.DayEndMinute; start += s.cfg.SlotMinutes {
			for _, parity := range parities {
				for _, room := range rooms {
					for _, teacher := range teachers {
						entry := models.TimetableEntry{
							ID:               uuid.NewString(),
							ModuleID:         occ.Module.ID,
							SubjectID:        occ.Subject.ID,
							AudienceID:       occ.AudienceID,
							TeacherID:        teacher.ID,
							InfrastructureID: room.ID,
							DayOfWeek:        day,
							StartMinute:      start,
							EndMinute:        start + occ.Module.DurationMinutes,
							WeekParity:       parity,
							Status:           models.EntryStatusPlanned,
							ConflictLevel:    models.ConflictNone,
						}
						result := s.evaluator.Evaluate(entry, append(placed, entry), evalCtx)
						c := candidate{entry: entry, hard: len(result.Hard), soft: result.SoftScore}
						if !found || betterCandidate(c, best, roomLoad) {
							best = c
							found = true
						}
						if c.hard == 0 {
							// First conflict-free teacher wins this room+slot.
							break
						}
					}
				}
			}
		}
	}
	return best, found
}

// betterCandidate orders placements: fewest hard violations, best soft
// score, least-utilized room. Full ties keep the incumbent, so the
// earliest scanned slot wins.
func betterCandidate(c, best candidate, roomLoad map[string]int) bool {
	if c.hard != best.hard {
		return c.hard < best.hard
	}
	if c.soft != best.soft {
		return c.soft > best.soft
	}
	return roomLoad[c.entry.InfrastructureID] < roomLoad[best.entry.InfrastructureID]
}
