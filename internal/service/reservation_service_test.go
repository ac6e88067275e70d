package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/pkg/config"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

// stubReservationStore is safe for concurrent use so worker-pool tests
// can run against it.
type stubReservationStore struct {
	mu           sync.Mutex
	batches      map[string]*models.ReservationBatch
	reservations []models.Reservation
	failures     map[string]models.ReservationError
	busySlots    map[string]bool
	cancelReason string
	nextBatchID  int
}

func newStubReservationStore() *stubReservationStore {
	return &stubReservationStore{
		batches:   make(map[string]*models.ReservationBatch),
		failures:  make(map[string]models.ReservationError),
		busySlots: make(map[string]bool),
	}
}

func (s *stubReservationStore) CreateBatch(_ context.Context, _ sqlx.ExtContext, batch *models.ReservationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBatchID++
	batch.ID = "batch-1"
	clone := *batch
	s.batches[batch.ID] = &clone
	return nil
}

func (s *stubReservationStore) FindBatch(_ context.Context, id string) (*models.ReservationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *batch
	return &clone, nil
}

func (s *stubReservationStore) FindLiveBatchForTimetable(_ context.Context, timetableID string) (*models.ReservationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, batch := range s.batches {
		if batch.TimetableID == timetableID &&
			(batch.Status == models.BatchCreated || batch.Status == models.BatchProcessing) {
			clone := *batch
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubReservationStore) UpdateBatchStatus(_ context.Context, _ sqlx.ExtContext, id string, from, to models.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok || batch.Status != from {
		return sql.ErrNoRows
	}
	batch.Status = to
	return nil
}

func (s *stubReservationStore) IncrementCounters(_ context.Context, _ sqlx.ExtContext, id string, processed, successful, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return sql.ErrNoRows
	}
	batch.ProcessedSlots += processed
	batch.SuccessfulSlots += successful
	batch.FailedSlots += failed
	return nil
}

func (s *stubReservationStore) InsertReservations(_ context.Context, _ sqlx.ExtContext, reservations []models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, reservations...)
	return nil
}

func (s *stubReservationStore) ListByBatch(_ context.Context, batchID string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Reservation
	for _, r := range s.reservations {
		if r.BatchID == batchID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *stubReservationStore) ListPendingByBatch(_ context.Context, batchID string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Reservation
	for _, r := range s.reservations {
		if r.BatchID == batchID && r.Status == models.ReservationPending {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *stubReservationStore) ConfirmIfFree(_ context.Context, _ sqlx.ExtContext, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reservations {
		if s.reservations[i].ID != id {
			continue
		}
		if s.busySlots[s.reservations[i].InfrastructureID] {
			return false, nil
		}
		s.reservations[i].Status = models.ReservationConfirmed
		return true, nil
	}
	return false, sql.ErrNoRows
}

func (s *stubReservationStore) FindConflicting(_ context.Context, infrastructureID string, _, _ time.Time) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busySlots[infrastructureID] {
		return &models.Reservation{ID: "res-winner", InfrastructureID: infrastructureID}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubReservationStore) HasConfirmedOverlap(_ context.Context, infrastructureID string, _, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busySlots[infrastructureID], nil
}

func (s *stubReservationStore) MarkFailed(_ context.Context, _ sqlx.ExtContext, id string, resErr models.ReservationError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reservations {
		if s.reservations[i].ID == id {
			s.reservations[i].Status = models.ReservationFailed
		}
	}
	s.failures[id] = resErr
	return nil
}

func (s *stubReservationStore) CancelBatch(_ context.Context, _ sqlx.ExtContext, batchID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch, ok := s.batches[batchID]; ok {
		batch.Status = models.BatchCancelled
		batch.CancellationReason = &reason
	}
	s.cancelReason = reason
	return nil
}

type stubModules struct {
	modules map[string]models.Module
}

func (s *stubModules) FindModule(_ context.Context, id string) (*models.Module, error) {
	module, ok := s.modules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &module, nil
}

type stubInfras struct {
	infras map[string]models.Infrastructure
}

func (s *stubInfras) FindByID(_ context.Context, id string) (*models.Infrastructure, error) {
	infra, ok := s.infras[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &infra, nil
}

func (s *stubInfras) ListActive(_ context.Context) ([]models.Infrastructure, error) {
	var result []models.Infrastructure
	for _, infra := range s.infras {
		result = append(result, infra)
	}
	return result, nil
}

// reservationSemester covers 2026-09-07 (a Monday) through 2026-12-13,
// with a one-week holiday starting Monday 2026-11-02 and an exam period
// over the final week.
func reservationSemester() *models.Semester {
	semester := fixtureSemester()
	semester.Holidays = []models.DateRange{{
		Label: "autumn break",
		Start: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 11, 8, 0, 0, 0, 0, time.UTC),
	}}
	semester.ExamPeriods = []models.DateRange{{
		Label: "session 1 exams",
		Start: time.Date(2026, 12, 7, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 12, 13, 0, 0, 0, 0, time.UTC),
	}}
	return semester
}

type reservationFixture struct {
	svc        *ReservationService
	store      *stubReservationStore
	timetables *stubTimetableStore
	validation *stubValidationStore
	infras     *stubInfras
}

func newReservationFixture(entries []models.TimetableEntry) *reservationFixture {
	store := newStubReservationStore()
	timetables := &stubTimetableStore{
		timetable: &models.GeneratedTimetable{
			ID:          "tt-1",
			FormationID: "form-1",
			SemesterID:  "sem-1",
			Status:      models.TimetableStatusValidated,
		},
		entries: entries,
	}
	validation := &stubValidationStore{
		status: &models.ValidationStatus{TimetableID: "tt-1", IsValidated: true},
	}
	infras := &stubInfras{infras: map[string]models.Infrastructure{
		"room-class": {ID: "room-class", Code: "B-101", Type: models.InfraTypeClassroom, Capacity: 40, Active: true},
		"room-big":   {ID: "room-big", Code: "B-201", Type: models.InfraTypeClassroom, Capacity: 60, Active: true},
	}}
	modules := &stubModules{modules: map[string]models.Module{
		"mod-lec":  {ID: "mod-lec", Type: models.ModuleTypeLecture},
		"mod-exam": {ID: "mod-exam", Type: models.ModuleTypeExam},
	}}

	svc := NewReservationService(
		store,
		timetables,
		validation,
		&stubSemesters{semester: reservationSemester()},
		modules,
		infras,
		nil, nil, nil,
		config.ReservationsConfig{WorkerConcurrency: 1, QueueBuffer: 4},
	)
	return &reservationFixture{svc: svc, store: store, timetables: timetables, validation: validation, infras: infras}
}

func mondayLecture() models.TimetableEntry {
	entry := entryAt("e-1", "t-1", "room-class", "sec-1", 1, 480, 570)
	entry.TimetableID = "tt-1"
	entry.ModuleID = "mod-lec"
	return entry
}

func TestCreateBatchExpandsSemesterCalendar(t *testing.T) {
	exam := entryAt("e-exam", "t-1", "room-class", "sec-1", 1, 540, 660)
	exam.TimetableID = "tt-1"
	exam.ModuleID = "mod-exam"
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture(), exam})

	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, models.BatchCreated, batch.Status)

	// 14 Mondays in the window, minus the holiday Monday and the exam
	// week Monday leaves 12 teaching dates. The exam module keeps only
	// the exam week Monday.
	teaching := 0
	exams := 0
	for _, r := range fixture.store.reservations {
		assert.Equal(t, "batch-1", r.BatchID)
		assert.Equal(t, models.ReservationPending, r.Status)
		switch r.EntryID {
		case "e-1":
			teaching++
		case "e-exam":
			exams++
		}
	}
	assert.Equal(t, 12, teaching)
	assert.Equal(t, 1, exams)
	assert.Equal(t, 13, batch.TotalSlots)

	first := fixture.store.reservations[0]
	assert.Equal(t, time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC), first.StartsAt)
	assert.Equal(t, time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC), first.EndsAt)
}

func TestCreateBatchIsIdempotent(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})

	first, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	second, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fixture.store.batches, 1)
}

func TestCreateBatchRequiresValidatedTimetable(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})
	fixture.validation.status.IsValidated = false

	_, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	assert.ErrorIs(t, err, appErrors.ErrNotValidated)
}

func TestCreateBatchSkipsCancelledEntries(t *testing.T) {
	cancelled := mondayLecture()
	cancelled.ID = "e-dead"
	cancelled.Status = models.EntryStatusCancelled
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture(), cancelled})

	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 12, batch.TotalSlots)
}

func TestWeekdayOfMapsSundayLast(t *testing.T) {
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, weekdayOf(monday))
	assert.Equal(t, 6, weekdayOf(monday.AddDate(0, 0, 5)))
	assert.Equal(t, 7, weekdayOf(monday.AddDate(0, 0, 6)))
}

func TestParityMatchesFirstWeekIsOdd(t *testing.T) {
	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	assert.True(t, parityMatches(models.ParityEvery, start, start))
	assert.True(t, parityMatches(models.ParityOdd, start, start))
	assert.False(t, parityMatches(models.ParityEven, start, start))

	secondWeek := start.AddDate(0, 0, 7)
	assert.True(t, parityMatches(models.ParityEven, start, secondWeek))
	assert.False(t, parityMatches(models.ParityOdd, start, secondWeek))

	thirdWeek := start.AddDate(0, 0, 14)
	assert.True(t, parityMatches(models.ParityOdd, start, thirdWeek))
}

func TestProcessBatchConfirmsFreeSlots(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})

	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	require.NoError(t, fixture.store.UpdateBatchStatus(context.Background(), nil, batch.ID, models.BatchCreated, models.BatchProcessing))

	require.NoError(t, fixture.svc.processBatch(context.Background(), batch.ID))

	stored, err := fixture.store.FindBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, stored.Status)
	assert.Equal(t, 12, stored.ProcessedSlots)
	assert.Equal(t, 12, stored.SuccessfulSlots)
	assert.Equal(t, 0, stored.FailedSlots)
	for _, r := range fixture.store.reservations {
		assert.Equal(t, models.ReservationConfirmed, r.Status)
	}
}

func TestProcessBatchDiagnosesConflicts(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})
	fixture.store.busySlots["room-class"] = true

	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	require.NoError(t, fixture.store.UpdateBatchStatus(context.Background(), nil, batch.ID, models.BatchCreated, models.BatchProcessing))

	require.NoError(t, fixture.svc.processBatch(context.Background(), batch.ID))

	stored, err := fixture.store.FindBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stored.FailedSlots)
	assert.Zero(t, stored.SuccessfulSlots)

	require.NotEmpty(t, fixture.store.failures)
	for _, failure := range fixture.store.failures {
		assert.Equal(t, models.ReservationErrConflict, failure.ErrorType)
		assert.Contains(t, failure.Message, "res-winner")
		// Same-room shifts stay busy, so the only way out is the larger
		// classroom at the original time.
		require.Len(t, failure.Alternatives, 1)
		assert.Equal(t, "room-big", failure.Alternatives[0].InfrastructureID)
	}
}

func TestProcessBatchRespectsMaintenance(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})
	infra := fixture.infras.infras["room-class"]
	infra.Maintenance = []models.MaintenanceWindow{{
		StartsAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Reason:   "full rewiring",
	}}
	fixture.infras.infras["room-class"] = infra

	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	require.NoError(t, fixture.store.UpdateBatchStatus(context.Background(), nil, batch.ID, models.BatchCreated, models.BatchProcessing))

	require.NoError(t, fixture.svc.processBatch(context.Background(), batch.ID))

	require.NotEmpty(t, fixture.store.failures)
	for _, failure := range fixture.store.failures {
		assert.Equal(t, models.ReservationErrMaintenance, failure.ErrorType)
		assert.Contains(t, failure.Message, "full rewiring")
	}
}

func TestProcessDrivesBatchThroughWorkers(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fixture.svc.Start(ctx)
	defer fixture.svc.Stop()

	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)

	progress, err := fixture.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchProcessing, progress.Status)

	require.Eventually(t, func() bool {
		stored, err := fixture.store.FindBatch(context.Background(), batch.ID)
		return err == nil && stored.Status == models.BatchCompleted
	}, 5*time.Second, 10*time.Millisecond)

	final, err := fixture.svc.Progress(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, final.SuccessfulSlots)
}

func TestProcessRefusesCancelledBatch(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})
	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	_, err = fixture.svc.CancelBatch(context.Background(), batch.ID, dto.CancelBatchRequest{Reason: "semester replanned"})
	require.NoError(t, err)

	_, err = fixture.svc.Process(context.Background(), batch.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestProcessCompletedBatchIsANoOp(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})
	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)
	require.NoError(t, fixture.store.UpdateBatchStatus(context.Background(), nil, batch.ID, models.BatchCreated, models.BatchProcessing))
	require.NoError(t, fixture.store.UpdateBatchStatus(context.Background(), nil, batch.ID, models.BatchProcessing, models.BatchCompleted))

	// The queue is not started: reaching the enqueue path would error.
	progress, err := fixture.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, progress.Status)
}

func TestCancelBatchRequiresReason(t *testing.T) {
	fixture := newReservationFixture([]models.TimetableEntry{mondayLecture()})
	batch, err := fixture.svc.CreateBatch(context.Background(), "tt-1")
	require.NoError(t, err)

	_, err = fixture.svc.CancelBatch(context.Background(), batch.ID, dto.CancelBatchRequest{})
	require.Error(t, err)

	cancelled, err := fixture.svc.CancelBatch(context.Background(), batch.ID, dto.CancelBatchRequest{Reason: "semester replanned"})
	require.NoError(t, err)
	assert.Equal(t, models.BatchCancelled, cancelled.Status)
	assert.Equal(t, "semester replanned", fixture.store.cancelReason)
}
