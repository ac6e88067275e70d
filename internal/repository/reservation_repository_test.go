package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/acadplan/timetable-api/internal/models"
)

func newReservationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReservationRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()

	repo := NewReservationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservation_batches")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	batch := &models.ReservationBatch{TimetableID: "tt-1", SemesterID: "sem-1", TotalSlots: 42}
	require.NoError(t, repo.CreateBatch(context.Background(), nil, batch))
	require.NotEmpty(t, batch.ID)
	require.Equal(t, models.BatchCreated, batch.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryConfirmIfFree(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()

	repo := NewReservationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = $2")).
		WithArgs("res-1", models.ReservationConfirmed, sqlmock.AnyArg(), models.ReservationPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	confirmed, err := repo.ConfirmIfFree(context.Background(), nil, "res-1")
	require.NoError(t, err)
	require.True(t, confirmed)

	// Zero affected rows means the slot was taken; no error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = $2")).
		WithArgs("res-2", models.ReservationConfirmed, sqlmock.AnyArg(), models.ReservationPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	confirmed, err = repo.ConfirmIfFree(context.Background(), nil, "res-2")
	require.NoError(t, err)
	require.False(t, confirmed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryUpdateBatchStatusGuardsTransition(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()

	repo := NewReservationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservation_batches SET status = $3")).
		WithArgs("batch-1", models.BatchCreated, models.BatchProcessing, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateBatchStatus(context.Background(), nil, "batch-1", models.BatchCreated, models.BatchProcessing)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryMarkFailedStoresDiagnosis(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()

	repo := NewReservationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = $2, error_doc = $3")).
		WithArgs("res-1", models.ReservationFailed, sqlmock.AnyArg(), sqlmock.AnyArg(), models.ReservationPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), nil, "res-1", models.ReservationError{
		ErrorType: models.ReservationErrConflict,
		Message:   "slot taken",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryListPendingDecodesErrorDoc(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()

	repo := NewReservationRepository(db)
	now := time.Now()
	columns := []string{"id", "batch_id", "entry_id", "infrastructure_id", "starts_at", "ends_at", "status", "error_doc", "cancelled_at", "cancellation_reason", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE batch_id = $1 AND status = $2")).
		WithArgs("batch-1", models.ReservationPending).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("res-1", "batch-1", "e-1", "room-1", now, now.Add(time.Hour), "PENDING", nil, nil, nil, now, now))

	pending, err := repo.ListPendingByBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Nil(t, pending[0].Error)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE batch_id = $1 ORDER BY starts_at")).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("res-2", "batch-1", "e-1", "room-1", now, now.Add(time.Hour), "FAILED",
				[]byte(`{"error_type":"conflict","message":"slot taken"}`), nil, nil, now, now))

	all, err := repo.ListByBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].Error)
	require.Equal(t, models.ReservationErrConflict, all[0].Error.ErrorType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryCancelBatchCascades(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()

	// Only live rows are cancelled; failed reservations keep their
	// diagnosis.
	repo := NewReservationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = $2, cancelled_at = $3")).
		WithArgs("batch-1", models.ReservationCancelled, sqlmock.AnyArg(), "semester replanned",
			models.ReservationPending, models.ReservationConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservation_batches SET status = $2, cancellation_reason = $3")).
		WithArgs("batch-1", models.BatchCancelled, "semester replanned", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CancelBatch(context.Background(), nil, "batch-1", "semester replanned"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryHasConfirmedOverlap(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()

	repo := NewReservationRepository(db)
	startsAt := time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)
	endsAt := startsAt.Add(90 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (")).
		WithArgs("room-1", models.ReservationConfirmed, startsAt, endsAt).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	busy, err := repo.HasConfirmedOverlap(context.Background(), "room-1", startsAt, endsAt)
	require.NoError(t, err)
	require.True(t, busy)
	require.NoError(t, mock.ExpectationsWereMet())
}
