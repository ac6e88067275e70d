package dto

import "github.com/acadplan/timetable-api/internal/models"

// CreateBatchRequest expands a validated timetable into dated bookings.
type CreateBatchRequest struct {
	TimetableID string `json:"-"`
}

// BatchProgress exposes the monotone counters of a processing batch.
type BatchProgress struct {
	BatchID         string             `json:"batchId"`
	Status          models.BatchStatus `json:"status"`
	TotalSlots      int                `json:"totalSlots"`
	ProcessedSlots  int                `json:"processedSlots"`
	SuccessfulSlots int                `json:"successfulSlots"`
	FailedSlots     int                `json:"failedSlots"`
}

// CancelBatchRequest cascades cancellation over a batch.
type CancelBatchRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// BatchDetailResponse returns batch state with its reservations.
type BatchDetailResponse struct {
	Batch        *models.ReservationBatch `json:"batch"`
	Reservations []models.Reservation     `json:"reservations,omitempty"`
}
