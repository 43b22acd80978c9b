package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) Terminal() bool {
	return s == ReservationCompleted || s == ReservationCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Reservation struct {
	ID            int               `json:"id"`
	UserID        int               `json:"user_id"`
	SlotID        int               `json:"slot_id"`
	LotID         int               `json:"lot_id"`
	Status        ReservationStatus `json:"status"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Price         float64           `json:"price"`
	Currency      string            `json:"currency"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	QRCode        string            `json:"qr_code"`
	CancelledAt   null.Time         `json:"cancelled_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Overlaps reports whether the reservation window intersects [start, end].
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return !r.StartTime.After(end) && !r.EndTime.Before(start)
}

type CreateReservationDTO struct {
	SlotID    int       `json:"slot_id" binding:"required,gt=0"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
}

type ReservationFilter struct {
	UserID int
	Status ReservationStatus
	Paging
}
