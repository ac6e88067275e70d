package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/acadplan/timetable-api/internal/models"
)

// ReservationRepository persists reservation batches and their dated
// bookings. The conditional confirm query is the authority on
// double-booking: a reservation only turns CONFIRMED when no other
// confirmed booking overlaps it.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// reservationRow mirrors reservations with the error diagnosis as JSON.
type reservationRow struct {
	models.Reservation
	ErrorDoc types.JSONText `db:"error_doc"`
}

func (row reservationRow) toModel() (models.Reservation, error) {
	reservation := row.Reservation
	if len(row.ErrorDoc) > 0 && string(row.ErrorDoc) != "null" {
		var resErr models.ReservationError
		if err := json.Unmarshal(row.ErrorDoc, &resErr); err != nil {
			return reservation, fmt.Errorf("unmarshal reservation error: %w", err)
		}
		reservation.Error = &resErr
	}
	return reservation, nil
}

// CreateBatch inserts a reservation batch row.
func (r *ReservationRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, batch *models.ReservationBatch) error {
	if batch == nil {
		return fmt.Errorf("batch payload is nil")
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchCreated
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now

	const query = `
INSERT INTO reservation_batches (id, timetable_id, semester_id, status, total_slots, processed_slots, successful_slots, failed_slots, created_at, updated_at)
VALUES (:id, :timetable_id, :semester_id, :status, :total_slots, :processed_slots, :successful_slots, :failed_slots, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, batch); err != nil {
		return fmt.Errorf("insert reservation batch: %w", err)
	}
	return nil
}

// FindBatch loads one batch by identifier.
func (r *ReservationRepository) FindBatch(ctx context.Context, id string) (*models.ReservationBatch, error) {
	const query = `
SELECT id, timetable_id, semester_id, status, total_slots, processed_slots, successful_slots, failed_slots, cancellation_reason, created_at, updated_at
FROM reservation_batches WHERE id = $1`
	var batch models.ReservationBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindLiveBatchForTimetable returns the newest non-cancelled batch of a
// timetable, if any. Used to keep batch creation idempotent.
func (r *ReservationRepository) FindLiveBatchForTimetable(ctx context.Context, timetableID string) (*models.ReservationBatch, error) {
	const query = `
SELECT id, timetable_id, semester_id, status, total_slots, processed_slots, successful_slots, failed_slots, cancellation_reason, created_at, updated_at
FROM reservation_batches WHERE timetable_id = $1 AND status <> $2 ORDER BY created_at DESC LIMIT 1`
	var batch models.ReservationBatch
	if err := r.db.GetContext(ctx, &batch, query, timetableID, models.BatchCancelled); err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateBatchStatus moves a batch only along the expected transition,
// returning sql.ErrNoRows when another actor got there first.
func (r *ReservationRepository) UpdateBatchStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.BatchStatus) error {
	const query = `UPDATE reservation_batches SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("batch status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementCounters advances a batch's monotone progress counters.
func (r *ReservationRepository) IncrementCounters(ctx context.Context, exec sqlx.ExtContext, id string, processed, successful, failed int) error {
	const query = `
UPDATE reservation_batches
SET processed_slots = processed_slots + $2, successful_slots = successful_slots + $3, failed_slots = failed_slots + $4, updated_at = $5
WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, processed, successful, failed, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment batch counters: %w", err)
	}
	return nil
}

// InsertReservations bulk-inserts pending reservations.
func (r *ReservationRepository) InsertReservations(ctx context.Context, exec sqlx.ExtContext, reservations []models.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO reservations (id, batch_id, entry_id, infrastructure_id, starts_at, ends_at, status, created_at, updated_at)
VALUES (:id, :batch_id, :entry_id, :infrastructure_id, :starts_at, :ends_at, :status, :created_at, :updated_at)`
	for i := range reservations {
		if reservations[i].ID == "" {
			reservations[i].ID = uuid.NewString()
		}
		if reservations[i].Status == "" {
			reservations[i].Status = models.ReservationPending
		}
		reservations[i].CreatedAt = now
		reservations[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, reservations[i]); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
	}
	return nil
}

// ListByBatch returns every reservation of a batch ordered by start time.
func (r *ReservationRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Reservation, error) {
	const query = `
SELECT id, batch_id, entry_id, infrastructure_id, starts_at, ends_at, status, error_doc, cancelled_at, cancellation_reason, created_at, updated_at
FROM reservations WHERE batch_id = $1 ORDER BY starts_at`
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, batchID); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	reservations := make([]models.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := row.toModel()
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// ListPendingByBatch returns only the reservations a processing pass
// still has to attempt. Re-running process on a batch skips everything
// already confirmed or failed.
func (r *ReservationRepository) ListPendingByBatch(ctx context.Context, batchID string) ([]models.Reservation, error) {
	const query = `
SELECT id, batch_id, entry_id, infrastructure_id, starts_at, ends_at, status, error_doc, cancelled_at, cancellation_reason, created_at, updated_at
FROM reservations WHERE batch_id = $1 AND status = $2 ORDER BY starts_at`
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, batchID, models.ReservationPending); err != nil {
		return nil, fmt.Errorf("list pending reservations: %w", err)
	}

	reservations := make([]models.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := row.toModel()
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// ConfirmIfFree flips a pending reservation to CONFIRMED only when no
// other confirmed reservation overlaps the same infrastructure interval.
// Returns false without error when the slot is taken.
func (r *ReservationRepository) ConfirmIfFree(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	const query = `
UPDATE reservations SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
AND NOT EXISTS (
	SELECT 1 FROM reservations other
	WHERE other.id <> reservations.id
	AND other.infrastructure_id = reservations.infrastructure_id
	AND other.status = $2
	AND other.starts_at < reservations.ends_at
	AND reservations.starts_at < other.ends_at
)`
	result, err := r.exec(exec).ExecContext(ctx, query, id, models.ReservationConfirmed, time.Now().UTC(), models.ReservationPending)
	if err != nil {
		return false, fmt.Errorf("confirm reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reservation rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindConflicting returns the confirmed reservation occupying the same
// infrastructure interval, used to diagnose a failed confirm.
func (r *ReservationRepository) FindConflicting(ctx context.Context, infrastructureID string, startsAt, endsAt time.Time) (*models.Reservation, error) {
	const query = `
SELECT id, batch_id, entry_id, infrastructure_id, starts_at, ends_at, status, error_doc, cancelled_at, cancellation_reason, created_at, updated_at
FROM reservations WHERE infrastructure_id = $1 AND status = $2 AND starts_at < $4 AND $3 < ends_at LIMIT 1`
	var row reservationRow
	if err := r.db.GetContext(ctx, &row, query, infrastructureID, models.ReservationConfirmed, startsAt, endsAt); err != nil {
		return nil, err
	}
	reservation, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// HasConfirmedOverlap reports whether any confirmed reservation occupies
// the infrastructure interval. Used when probing alternative slots.
func (r *ReservationRepository) HasConfirmedOverlap(ctx context.Context, infrastructureID string, startsAt, endsAt time.Time) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM reservations
	WHERE infrastructure_id = $1 AND status = $2 AND starts_at < $4 AND $3 < ends_at
)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, infrastructureID, models.ReservationConfirmed, startsAt, endsAt); err != nil {
		return false, fmt.Errorf("check reservation overlap: %w", err)
	}
	return exists, nil
}

// MarkFailed records a failed booking attempt with its diagnosis.
func (r *ReservationRepository) MarkFailed(ctx context.Context, exec sqlx.ExtContext, id string, resErr models.ReservationError) error {
	doc, err := json.Marshal(resErr)
	if err != nil {
		return fmt.Errorf("marshal reservation error: %w", err)
	}

	const query = `UPDATE reservations SET status = $2, error_doc = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, id, models.ReservationFailed, types.JSONText(doc), time.Now().UTC(), models.ReservationPending)
	if err != nil {
		return fmt.Errorf("mark reservation failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reservation rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CancelBatch cancels the batch and cascades to its pending and
// confirmed reservations. Failed rows keep their status and diagnosis.
// Safe to repeat: already-cancelled rows are untouched, so the
// operation is idempotent.
func (r *ReservationRepository) CancelBatch(ctx context.Context, exec sqlx.ExtContext, batchID, reason string) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	const reservationsQuery = `
UPDATE reservations SET status = $2, cancelled_at = $3, cancellation_reason = $4, updated_at = $3
WHERE batch_id = $1 AND status IN ($5, $6)`
	if _, err := target.ExecContext(ctx, reservationsQuery, batchID, models.ReservationCancelled, now, reason,
		models.ReservationPending, models.ReservationConfirmed); err != nil {
		return fmt.Errorf("cancel batch reservations: %w", err)
	}

	const batchQuery = `
UPDATE reservation_batches SET status = $2, cancellation_reason = $3, updated_at = $4
WHERE id = $1 AND status <> $2`
	if _, err := target.ExecContext(ctx, batchQuery, batchID, models.BatchCancelled, reason, now); err != nil {
		return fmt.Errorf("cancel batch: %w", err)
	}
	return nil
}
