package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
	"github.com/acadplan/timetable-api/pkg/jobs"
)

const jobTypeProcessBatch = "reservation_batch.process"

type reservationStore interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, batch *models.ReservationBatch) error
	FindBatch(ctx context.Context, id string) (*models.ReservationBatch, error)
	FindLiveBatchForTimetable(ctx context.Context, timetableID string) (*models.ReservationBatch, error)
	UpdateBatchStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.BatchStatus) error
	IncrementCounters(ctx context.Context, exec sqlx.ExtContext, id string, processed, successful, failed int) error
	InsertReservations(ctx context.Context, exec sqlx.ExtContext, reservations []models.Reservation) error
	ListByBatch(ctx context.Context, batchID string) ([]models.Reservation, error)
	ListPendingByBatch(ctx context.Context, batchID string) ([]models.Reservation, error)
	ConfirmIfFree(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
	FindConflicting(ctx context.Context, infrastructureID string, startsAt, endsAt time.Time) (*models.Reservation, error)
	HasConfirmedOverlap(ctx context.Context, infrastructureID string, startsAt, endsAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, exec sqlx.ExtContext, id string, resErr models.ReservationError) error
	CancelBatch(ctx context.Context, exec sqlx.ExtContext, batchID, reason string) error
}

type reservationTimetableReader interface {
	LoadWithEntries(ctx context.Context, id string) (*models.GeneratedTimetable, error)
}

type moduleReader interface {
	FindModule(ctx context.Context, id string) (*models.Module, error)
}

type infrastructureReader interface {
	FindByID(ctx context.Context, id string) (*models.Infrastructure, error)
	ListActive(ctx context.Context) ([]models.Infrastructure, error)
}

// slotLocks serializes confirm attempts per infrastructure. The database
// conditional update is the authority; the lock just avoids burning both
// concurrent attempts on the same slot.
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *slotLocks) forKey(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// ReservationService expands validated timetables into dated bookings
// and processes them asynchronously with a worker pool.
type ReservationService struct {
	store      reservationStore
	timetables reservationTimetableReader
	validation validationStatusReader
	semesters  semesterReader
	modules    moduleReader
	infras     infrastructureReader
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        config.ReservationsConfig

	queue *jobs.Queue
	locks *slotLocks
}

// NewReservationService wires reservation dependencies. Start must be
// called before Process can enqueue work.
func NewReservationService(
	store reservationStore,
	timetables reservationTimetableReader,
	validation validationStatusReader,
	semesters semesterReader,
	modules moduleReader,
	infras infrastructureReader,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.ReservationsConfig,
) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 4
	}
	if cfg.QueueBuffer <= 0 {
		cfg.QueueBuffer = 16
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = 3
	}

	s := &ReservationService{
		store:      store,
		timetables: timetables,
		validation: validation,
		semesters:  semesters,
		modules:    modules,
		infras:     infras,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		locks:      newSlotLocks(),
	}
	s.queue = jobs.NewQueue("reservations", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		BufferSize: cfg.QueueBuffer,
		Logger:     logger,
	})
	return s
}

// Start launches the background workers.
func (s *ReservationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the background workers.
func (s *ReservationService) Stop() {
	s.queue.Stop()
}

// CreateBatch expands a validated timetable into pending reservations.
// Idempotent: if a live batch already exists for the timetable it is
// returned unchanged.
func (s *ReservationService) CreateBatch(ctx context.Context, timetableID string) (*models.ReservationBatch, error) {
	if existing, err := s.store.FindLiveBatchForTimetable(ctx, timetableID); err == nil {
		return existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	timetable, err := s.timetables.LoadWithEntries(ctx, timetableID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable not found")
	}
	status, err := s.validation.GetStatus(ctx, timetableID)
	if err != nil || !status.IsValidated {
		return nil, appErrors.ErrNotValidated
	}
	semester, err := s.semesters.FindByID(ctx, timetable.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "semester not found")
	}

	reservations, err := s.expand(ctx, timetable, semester)
	if err != nil {
		return nil, err
	}

	batch := &models.ReservationBatch{
		TimetableID: timetableID,
		SemesterID:  semester.ID,
		Status:      models.BatchCreated,
		TotalSlots:  len(reservations),
	}
	if err := s.store.CreateBatch(ctx, nil, batch); err != nil {
		return nil, err
	}
	for i := range reservations {
		reservations[i].BatchID = batch.ID
	}
	if err := s.store.InsertReservations(ctx, nil, reservations); err != nil {
		return nil, err
	}

	s.logger.Info("reservation batch created",
		zap.String("batch_id", batch.ID),
		zap.String("timetable_id", timetableID),
		zap.Int("total_slots", batch.TotalSlots))
	return batch, nil
}

// expand materializes each entry's weekly recurrence over the semester
// calendar. Holidays are skipped; exam periods are skipped for teaching
// sessions and kept only for exam modules.
func (s *ReservationService) expand(ctx context.Context, timetable *models.GeneratedTimetable, semester *models.Semester) ([]models.Reservation, error) {
	moduleTypes := make(map[string]models.ModuleType)
	var reservations []models.Reservation

	for _, entry := range timetable.Entries {
		if entry.Status == models.EntryStatusCancelled {
			continue
		}
		moduleType, ok := moduleTypes[entry.ModuleID]
		if !ok {
			module, err := s.modules.FindModule(ctx, entry.ModuleID)
			if err != nil {
				return nil, fmt.Errorf("load module %s: %w", entry.ModuleID, err)
			}
			moduleType = module.Type
			moduleTypes[entry.ModuleID] = moduleType
		}
		isExam := moduleType == models.ModuleTypeExam

		for date := semester.StartDate; !date.After(semester.EndDate); date = date.AddDate(0, 0, 1) {
			if weekdayOf(date) != entry.DayOfWeek {
				continue
			}
			if semester.IsHoliday(date) {
				continue
			}
			if semester.InExamPeriod(date) != isExam {
				continue
			}
			if !parityMatches(entry.WeekParity, semester.StartDate, date) {
				continue
			}
			startsAt := atMinute(date, entry.StartMinute)
			endsAt := atMinute(date, entry.EndMinute)
			reservations = append(reservations, models.Reservation{
				ID:               uuid.NewString(),
				EntryID:          entry.ID,
				InfrastructureID: entry.InfrastructureID,
				StartsAt:         startsAt,
				EndsAt:           endsAt,
				Status:           models.ReservationPending,
			})
		}
	}
	return reservations, nil
}

// Process moves the batch to PROCESSING and schedules the confirm pass
// on the worker pool. Calling it again on a completed batch is a no-op;
// on a partially processed batch only pending reservations are retried.
func (s *ReservationService) Process(ctx context.Context, batchID string) (*dto.BatchProgress, error) {
	batch, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "batch not found")
	}
	switch batch.Status {
	case models.BatchCancelled:
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch is cancelled")
	case models.BatchCompleted, models.BatchProcessing:
		return s.progress(batch), nil
	}

	if err := s.store.UpdateBatchStatus(ctx, nil, batchID, models.BatchCreated, models.BatchProcessing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another caller won the transition; report current state.
			if batch, err = s.store.FindBatch(ctx, batchID); err != nil {
				return nil, err
			}
			return s.progress(batch), nil
		}
		return nil, err
	}
	batch.Status = models.BatchProcessing

	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeProcessBatch, Payload: batchID}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not schedule batch processing")
	}
	return s.progress(batch), nil
}

func (s *ReservationService) handleJob(ctx context.Context, job jobs.Job) error {
	batchID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return s.processBatch(ctx, batchID)
}

func (s *ReservationService) processBatch(ctx context.Context, batchID string) error {
	pending, err := s.store.ListPendingByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	for _, reservation := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		confirmed, failErr := s.attempt(ctx, reservation)
		if s.metrics != nil {
			s.metrics.ObserveReservation(confirmed)
		}
		failed := 0
		successful := 0
		if confirmed {
			successful = 1
		} else {
			failed = 1
		}
		if failErr != nil {
			s.logger.Warn("reservation attempt errored",
				zap.String("reservation_id", reservation.ID),
				zap.Error(failErr))
		}
		if err := s.store.IncrementCounters(ctx, nil, batchID, 1, successful, failed); err != nil {
			return err
		}
	}

	if err := s.store.UpdateBatchStatus(ctx, nil, batchID, models.BatchProcessing, models.BatchCompleted); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	s.logger.Info("reservation batch processed", zap.String("batch_id", batchID), zap.Int("attempted", len(pending)))
	return nil
}

// attempt confirms one reservation or records its failure diagnosis.
func (s *ReservationService) attempt(ctx context.Context, reservation models.Reservation) (bool, error) {
	lock := s.locks.forKey(reservation.InfrastructureID)
	lock.Lock()
	defer lock.Unlock()

	if resErr, blocked := s.maintenanceBlock(ctx, reservation); blocked {
		return false, s.store.MarkFailed(ctx, nil, reservation.ID, resErr)
	}

	confirmed, err := s.store.ConfirmIfFree(ctx, nil, reservation.ID)
	if err != nil {
		markErr := s.store.MarkFailed(ctx, nil, reservation.ID, models.ReservationError{
			ErrorType: models.ReservationErrInternal,
			Message:   "reservation could not be confirmed",
		})
		if markErr != nil {
			return false, markErr
		}
		return false, err
	}
	if confirmed {
		return true, nil
	}

	resErr := models.ReservationError{
		ErrorType: models.ReservationErrConflict,
		Message:   "infrastructure already booked for this interval",
	}
	if conflicting, err := s.store.FindConflicting(ctx, reservation.InfrastructureID, reservation.StartsAt, reservation.EndsAt); err == nil {
		resErr.Message = fmt.Sprintf("infrastructure already booked by reservation %s", conflicting.ID)
	}
	resErr.Alternatives = s.alternatives(ctx, reservation)
	return false, s.store.MarkFailed(ctx, nil, reservation.ID, resErr)
}

func (s *ReservationService) maintenanceBlock(ctx context.Context, reservation models.Reservation) (models.ReservationError, bool) {
	infra, err := s.infras.FindByID(ctx, reservation.InfrastructureID)
	if err != nil {
		return models.ReservationError{}, false
	}
	for _, window := range infra.Maintenance {
		if window.Covers(reservation.StartsAt, reservation.EndsAt) {
			return models.ReservationError{
				ErrorType: models.ReservationErrMaintenance,
				Message:   fmt.Sprintf("infrastructure %s under maintenance: %s", infra.Code, window.Reason),
			}, true
		}
	}
	return models.ReservationError{}, false
}

// alternatives probes nearby free placements: the same room at adjacent
// times, then other suitable rooms at the same time.
func (s *ReservationService) alternatives(ctx context.Context, reservation models.Reservation) []models.AlternativeSlot {
	duration := reservation.EndsAt.Sub(reservation.StartsAt)
	var alternatives []models.AlternativeSlot

	for _, shift := range []time.Duration{duration, -duration, 2 * duration} {
		if len(alternatives) >= s.cfg.MaxAlternatives {
			return alternatives
		}
		startsAt := reservation.StartsAt.Add(shift)
		endsAt := startsAt.Add(duration)
		if busy, err := s.store.HasConfirmedOverlap(ctx, reservation.InfrastructureID, startsAt, endsAt); err == nil && !busy {
			alternatives = append(alternatives, models.AlternativeSlot{
				InfrastructureID: reservation.InfrastructureID,
				StartsAt:         startsAt,
				EndsAt:           endsAt,
			})
		}
	}

	rooms, err := s.infras.ListActive(ctx)
	if err != nil {
		return alternatives
	}
	original, err := s.infras.FindByID(ctx, reservation.InfrastructureID)
	if err != nil {
		return alternatives
	}
	for _, room := range rooms {
		if len(alternatives) >= s.cfg.MaxAlternatives {
			break
		}
		if room.ID == reservation.InfrastructureID || room.Type != original.Type || room.Capacity < original.Capacity {
			continue
		}
		if busy, err := s.store.HasConfirmedOverlap(ctx, room.ID, reservation.StartsAt, reservation.EndsAt); err == nil && !busy {
			alternatives = append(alternatives, models.AlternativeSlot{
				InfrastructureID: room.ID,
				StartsAt:         reservation.StartsAt,
				EndsAt:           reservation.EndsAt,
			})
		}
	}
	return alternatives
}

// CancelBatch cascades cancellation over the batch. Idempotent.
func (s *ReservationService) CancelBatch(ctx context.Context, batchID string, req dto.CancelBatchRequest) (*models.ReservationBatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel payload")
	}
	if _, err := s.store.FindBatch(ctx, batchID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "batch not found")
	}
	if err := s.store.CancelBatch(ctx, nil, batchID, req.Reason); err != nil {
		return nil, err
	}
	batch, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation batch cancelled", zap.String("batch_id", batchID), zap.String("reason", req.Reason))
	return batch, nil
}

// GetBatch returns the batch with its reservations.
func (s *ReservationService) GetBatch(ctx context.Context, batchID string) (*dto.BatchDetailResponse, error) {
	batch, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "batch not found")
	}
	reservations, err := s.store.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &dto.BatchDetailResponse{Batch: batch, Reservations: reservations}, nil
}

// Progress returns the batch counters.
func (s *ReservationService) Progress(ctx context.Context, batchID string) (*dto.BatchProgress, error) {
	batch, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "batch not found")
	}
	return s.progress(batch), nil
}

func (s *ReservationService) progress(batch *models.ReservationBatch) *dto.BatchProgress {
	return &dto.BatchProgress{
		BatchID:         batch.ID,
		Status:          batch.Status,
		TotalSlots:      batch.TotalSlots,
		ProcessedSlots:  batch.ProcessedSlots,
		SuccessfulSlots: batch.SuccessfulSlots,
		FailedSlots:     batch.FailedSlots,
	}
}

func weekdayOf(date time.Time) int {
	if date.Weekday() == time.Sunday {
		return 7
	}
	return int(date.Weekday())
}

// parityMatches resolves biweekly recurrence against the semester week
// number, where the semester's first week is week 1 (odd).
func parityMatches(parity models.WeekParity, semesterStart, date time.Time) bool {
	if parity == models.ParityEvery || parity == "" {
		return true
	}
	week := int(date.Sub(semesterStart).Hours()/(24*7)) + 1
	if week%2 == 1 {
		return parity == models.ParityOdd
	}
	return parity == models.ParityEven
}

func atMinute(date time.Time, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minute/60, minute%60, 0, 0, date.Location())
}
