package service

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type timetableMutator interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	AcquireMutationLock(ctx context.Context, tx *sqlx.Tx, timetableID string) error
	FindByID(ctx context.Context, id string) (*models.GeneratedTimetable, error)
	LoadWithEntries(ctx context.Context, id string) (*models.GeneratedTimetable, error)
	ReplaceEntries(ctx context.Context, exec sqlx.ExtContext, timetableID string, entries []models.TimetableEntry) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
}

type validationStatusReader interface {
	GetStatus(ctx context.Context, timetableID string) (*models.ValidationStatus, error)
}

type validationStatusStore interface {
	validationStatusReader
	UpsertStatus(ctx context.Context, exec sqlx.ExtContext, status *models.ValidationStatus) error
}

// TimetableOptimizerService refines an existing timetable with simulated
// annealing. Runs are seedable for reproducibility, bounded by an
// iteration/time budget, and never persist a candidate with more hard
// violations than the timetable it started from.
type TimetableOptimizerService struct {
	formations formationPartitionLoader
	subjects   subjectDemandLister
	rooms      infrastructurePoolLister
	teachers   teacherPoolLister
	semesters  semesterReader
	timetables timetableMutator
	validation validationStatusStore
	evaluator  *ConstraintEvaluator
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        config.EngineConfig

	mu      sync.Mutex
	running map[string]struct{}
}

// NewTimetableOptimizerService wires optimizer dependencies.
func NewTimetableOptimizerService(
	formations formationPartitionLoader,
	subjects subjectDemandLister,
	rooms infrastructurePoolLister,
	teachers teacherPoolLister,
	semesters semesterReader,
	timetables timetableMutator,
	validation validationStatusStore,
	evaluator *ConstraintEvaluator,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.EngineConfig,
) *TimetableOptimizerService {
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
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5000
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 30 * time.Second
	}
	if cfg.ConvergenceWindow <= 0 {
		cfg.ConvergenceWindow = 200
	}
	if cfg.InitialTemperature <= 0 {
		cfg.InitialTemperature = 10.0
	}
	if cfg.CoolingFactor <= 0 || cfg.CoolingFactor >= 1 {
		cfg.CoolingFactor = 0.995
	}
	return &TimetableOptimizerService{
		formations: formations,
		subjects:   subjects,
		rooms:      rooms,
		teachers:   teachers,
		semesters:  semesters,
		timetables: timetables,
		validation: validation,
		evaluator:  evaluator,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		running:    make(map[string]struct{}),
	}
}

func (s *TimetableOptimizerService) acquire(timetableID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[timetableID]; busy {
		return false
	}
	s.running[timetableID] = struct{}{}
	return true
}

func (s *TimetableOptimizerService) release(timetableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, timetableID)
}

// Optimize runs one annealing pass and persists the best entry set found.
func (s *TimetableOptimizerService) Optimize(ctx context.Context, req dto.OptimizeTimetableRequest) (*dto.OptimizeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimize payload")
	}
	if !s.acquire(req.TimetableID) {
		return nil, appErrors.ErrEngineBusy
	}
	defer s.release(req.TimetableID)

	timetable, err := s.timetables.LoadWithEntries(ctx, req.TimetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable not found")
	}
	if status, err := s.validation.GetStatus(ctx, req.TimetableID); err == nil {
		timetable.Validation = status
	}
	if timetable.Immutable() {
		return nil, appErrors.ErrFinalized
	}
	if timetable.Validation != nil && timetable.Validation.IsValidated && !req.AllowUnval {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timetable is validated, pass allowUnvalidated to re-optimize")
	}

	inputs, err := buildEngineInputs(ctx, s.formations, s.subjects, s.rooms, s.teachers, s.semesters, timetable.FormationID, timetable.SemesterID)
	if err != nil {
		return nil, err
	}

	result := s.anneal(ctx, timetable.Entries, inputs, req)

	err = s.timetables.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.timetables.AcquireMutationLock(ctx, tx, req.TimetableID); err != nil {
			return err
		}
		if err := s.timetables.ReplaceEntries(ctx, tx, req.TimetableID, result.best); err != nil {
			return err
		}
		if err := s.timetables.UpdateStatus(ctx, tx, req.TimetableID, models.TimetableStatusOptimized); err != nil {
			return err
		}
		// The stored entries no longer match what was validated.
		if timetable.Validation != nil && timetable.Validation.IsValidated {
			invalidated := *timetable.Validation
			invalidated.IsValidated = false
			if err := s.validation.UpsertStatus(ctx, tx, &invalidated); err != nil {
				return err
			}
			timetable.Validation = &invalidated
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	timetable.Entries = result.best
	timetable.Status = models.TimetableStatusOptimized

	s.logger.Info("timetable optimized",
		zap.String("timetable_id", req.TimetableID),
		zap.Int("iterations", result.iterations),
		zap.Float64("initial_score", result.initialScore),
		zap.Float64("final_score", result.bestScore),
		zap.Int("hard_violations", result.bestHard),
		zap.Bool("converged", result.converged),
		zap.Bool("cancelled", result.cancelled))

	return &dto.OptimizeResult{
		Timetable:      timetable,
		InitialScore:   result.initialScore,
		FinalScore:     result.bestScore,
		HardViolations: result.bestHard,
		Iterations:     result.iterations,
		ElapsedMillis:  result.elapsed.Milliseconds(),
		Converged:      result.converged,
		Cancelled:      result.cancelled,
	}, nil
}

type annealResult struct {
	best         []models.TimetableEntry
	bestScore    float64
	bestHard     int
	initialScore float64
	iterations   int
	elapsed      time.Duration
	converged    bool
	cancelled    bool
}

func (s *TimetableOptimizerService) anneal(ctx context.Context, initial []models.TimetableEntry, inputs *engineInputs, req dto.OptimizeTimetableRequest) annealResult {
	weights := resolveWeights(req.Weights, s.cfg)

	maxIterations := s.cfg.MaxIterations
	if req.Budget.MaxIterations > 0 {
		maxIterations = req.Budget.MaxIterations
	}
	timeLimit := s.cfg.TimeLimit
	if req.Budget.TimeLimitSeconds > 0 {
		timeLimit = time.Duration(req.Budget.TimeLimitSeconds) * time.Second
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	current := cloneEntries(initial)
	currentScore, currentHard := scheduleScore(current, inputs, s.evaluator, weights)

	result := annealResult{
		best:         cloneEntries(current),
		bestScore:    currentScore,
		bestHard:     currentHard,
		initialScore: currentScore,
	}

	start := time.Now()
	deadline := start.Add(timeLimit)
	temperature := s.cfg.InitialTemperature
	sinceImprovement := 0

	for i := 0; i < maxIterations; i++ {
		select {
		case <-ctx.Done():
			result.cancelled = true
			result.iterations = i
			result.elapsed = time.Since(start)
			s.finalize(&result, inputs)
			return result
		default:
		}
		if time.Now().After(deadline) {
			break
		}

		candidate := s.neighbor(current, inputs, rng)
		if candidate == nil {
			break
		}
		candidateScore, candidateHard := scheduleScore(candidate, inputs, s.evaluator, weights)

		// Hard violations are a hard ceiling: a move may never add one.
		if candidateHard > currentHard {
			result.iterations = i + 1
			temperature *= s.cfg.CoolingFactor
			sinceImprovement++
			if sinceImprovement >= s.cfg.ConvergenceWindow {
				result.converged = true
				break
			}
			continue
		}

		delta := candidateScore - currentScore
		if candidateHard < currentHard || delta > 0 || rng.Float64() < math.Exp(delta/math.Max(temperature, 1e-9)) {
			current = candidate
			currentScore = candidateScore
			currentHard = candidateHard
		}

		if currentHard < result.bestHard || (currentHard == result.bestHard && currentScore > result.bestScore) {
			result.best = cloneEntries(current)
			result.bestScore = currentScore
			result.bestHard = currentHard
			sinceImprovement = 0
		} else {
			sinceImprovement++
		}

		temperature *= s.cfg.CoolingFactor
		result.iterations = i + 1

		if sinceImprovement >= s.cfg.ConvergenceWindow {
			result.converged = true
			break
		}
	}

	result.elapsed = time.Since(start)
	s.finalize(&result, inputs)
	return result
}

// finalize regrades per-entry conflict levels on the best schedule.
func (s *TimetableOptimizerService) finalize(result *annealResult, inputs *engineInputs) {
	evalCtx := inputs.evaluation()
	for i := range result.best {
		if result.best[i].Status == models.EntryStatusCancelled {
			continue
		}
		eval := s.evaluator.Evaluate(result.best[i], result.best, evalCtx)
		result.best[i].ConflictLevel = ConflictLevelFor(eval)
	}
}

// neighbor produces one mutated copy of the schedule: relocate an entry,
// swap two entries' slots, or reassign a room.
func (s *TimetableOptimizerService) neighbor(entries []models.TimetableEntry, inputs *engineInputs, rng *rand.Rand) []models.TimetableEntry {
	movable := make([]int, 0, len(entries))
	for i, entry := range entries {
		if entry.Status != models.EntryStatusCancelled {
			movable = append(movable, i)
		}
	}
	if len(movable) == 0 {
		return nil
	}

	candidate := cloneEntries(entries)
	switch rng.Intn(3) {
	case 0:
		s.relocate(candidate, movable[rng.Intn(len(movable))], rng)
	case 1:
		if len(movable) < 2 {
			s.relocate(candidate, movable[rng.Intn(len(movable))], rng)
			break
		}
		i := movable[rng.Intn(len(movable))]
		j := movable[rng.Intn(len(movable))]
		if i == j {
			s.relocate(candidate, i, rng)
			break
		}
		swapSlots(&candidate[i], &candidate[j])
	default:
		s.reassignRoom(candidate, movable[rng.Intn(len(movable))], inputs, rng)
	}
	return candidate
}

func (s *TimetableOptimizerService) relocate(entries []models.TimetableEntry, idx int, rng *rand.Rand) {
	entry := &entries[idx]
	duration := entry.EndMinute - entry.StartMinute

	day := s.cfg.TeachingDays[rng.Intn(len(s.cfg.TeachingDays))]
	slots := (s.cfg.DayEndMinute - s.cfg.DayStartMinute - duration) / s.cfg.SlotMinutes
	if slots <= 0 {
		return
	}
	start := s.cfg.DayStartMinute + rng.Intn(slots+1)*s.cfg.SlotMinutes

	entry.DayOfWeek = day
	entry.StartMinute = start
	entry.EndMinute = start + duration
	markMoved(entry)
}

func (s *TimetableOptimizerService) reassignRoom(entries []models.TimetableEntry, idx int, inputs *engineInputs, rng *rand.Rand) {
	entry := &entries[idx]
	module, ok := inputs.modulesByID[entry.ModuleID]
	if !ok {
		return
	}
	var eligible []string
	for _, room := range inputs.Rooms {
		if room.ID == entry.InfrastructureID {
			continue
		}
		if module.RequiredInfraType != "" && room.Type != module.RequiredInfraType {
			continue
		}
		if room.Capacity < inputs.audienceSizes[entry.AudienceID] {
			continue
		}
		eligible = append(eligible, room.ID)
	}
	if len(eligible) == 0 {
		return
	}
	entry.InfrastructureID = eligible[rng.Intn(len(eligible))]
	markMoved(entry)
}

// swapSlots exchanges day and start anchors; durations stay with their
// entries.
func swapSlots(a, b *models.TimetableEntry) {
	aDuration := a.EndMinute - a.StartMinute
	bDuration := b.EndMinute - b.StartMinute
	a.DayOfWeek, b.DayOfWeek = b.DayOfWeek, a.DayOfWeek
	a.StartMinute, b.StartMinute = b.StartMinute, a.StartMinute
	a.EndMinute = a.StartMinute + aDuration
	b.EndMinute = b.StartMinute + bDuration
	markMoved(a)
	markMoved(b)
}

func markMoved(entry *models.TimetableEntry) {
	if entry.Status == models.EntryStatusConfirmed {
		entry.Status = models.EntryStatusModified
	}
}

func cloneEntries(entries []models.TimetableEntry) []models.TimetableEntry {
	clone := make([]models.TimetableEntry, len(entries))
	copy(clone, entries)
	return clone
}
