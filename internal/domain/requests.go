package domain

import (
	"time"

	"cuebook/internal/models"
)

type AvailabilityQuery struct {
	ClubID    int64
	Date      string
	StartHour float64
	EndHour   float64
	TableType string // optional
}

type BookingRequest struct {
	PlayerID  int64   `json:"player_id"`
	ClubID    int64   `json:"club_id"`
	TableType string  `json:"table_type"`
	Date      string  `json:"date"`
	StartHour float64 `json:"start_hour"`
	EndHour   float64 `json:"end_hour"`
	Note      string  `json:"note,omitempty"`
}

type WalkInRequest struct {
	ActorID int64
	ClubID  int64
	TableID int64
	// PlayerID defaults to ActorID.
	PlayerID int64
	Note     string
}

type EndPlayResult struct {
	BookingID       int64     `json:"booking_id"`
	Status          string    `json:"status"`
	DurationMinutes int64     `json:"duration_minutes"`
	TotalAmount     int64     `json:"total_amount"`
	CheckInTime     time.Time `json:"check_in_time"`
	CheckOutTime    time.Time `json:"check_out_time"`
}

type PaymentConfirmation struct {
	OrderCode string `json:"order_code"`
	Status    string `json:"status"` // PAID or FAILED
}

type RevenueQuery struct {
	Period string // day, week, month
	From   string
	To     string // inclusive
}

type CancelResult struct {
	Booking      *models.Booking `json:"booking"`
	Refunded     bool            `json:"refunded"`
	RefundAmount int64           `json:"refund_amount"`
}
