package models

import "time"

// ReservationStatus tracks one dated booking. Reservations never linger
// in PENDING once their batch pass has attempted them.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationFailed    ReservationStatus = "FAILED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// BatchStatus tracks the reservation batch lifecycle.
type BatchStatus string

const (
	BatchCreated    BatchStatus = "CREATED"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

// ReservationErrorType classifies a failed booking attempt.
type ReservationErrorType string

const (
	ReservationErrConflict    ReservationErrorType = "conflict"
	ReservationErrMaintenance ReservationErrorType = "maintenance"
	ReservationErrInternal    ReservationErrorType = "internal"
)

// AlternativeSlot suggests a nearby free placement for a failed booking.
type AlternativeSlot struct {
	InfrastructureID string    `json:"infrastructure_id"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
}

// ReservationError diagnoses a failed reservation attempt.
type ReservationError struct {
	ErrorType    ReservationErrorType `json:"error_type"`
	Message      string               `json:"message"`
	Alternatives []AlternativeSlot    `json:"alternatives,omitempty"`
}

// Reservation is one concrete dated booking derived from a timetable
// entry's weekly recurrence. It references, but does not own, the entry
// and infrastructure it was derived from.
type Reservation struct {
	ID                 string            `db:"id" json:"id"`
	BatchID            string            `db:"batch_id" json:"batch_id"`
	EntryID            string            `db:"entry_id" json:"entry_id"`
	InfrastructureID   string            `db:"infrastructure_id" json:"infrastructure_id"`
	StartsAt           time.Time         `db:"starts_at" json:"starts_at"`
	EndsAt             time.Time         `db:"ends_at" json:"ends_at"`
	Status             ReservationStatus `db:"status" json:"status"`
	Error              *ReservationError `db:"-" json:"error,omitempty"`
	CancelledAt        *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// ReservationBatch groups the reservations materialized from one
// validated timetable. Counters increase monotonically while a batch is
// processing and are safe to read concurrently.
type ReservationBatch struct {
	ID                 string      `db:"id" json:"id"`
	TimetableID        string      `db:"timetable_id" json:"timetable_id"`
	SemesterID         string      `db:"semester_id" json:"semester_id"`
	Status             BatchStatus `db:"status" json:"status"`
	TotalSlots         int         `db:"total_slots" json:"total_slots"`
	ProcessedSlots     int         `db:"processed_slots" json:"processed_slots"`
	SuccessfulSlots    int         `db:"successful_slots" json:"successful_slots"`
	FailedSlots        int         `db:"failed_slots" json:"failed_slots"`
	CancellationReason *string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}
