package models

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the wire and storage layout of a venue-local booking date.
const DateLayout = "2006-01-02"

type Booking struct {
	ID           int64      `json:"id"`
	PlayerID     int64      `json:"player_id"`
	ClubID       int64      `json:"club_id"`
	TableID      int64      `json:"table_id"`
	BookingDate  string     `json:"booking_date"`
	StartHour    float64    `json:"start_hour"`
	EndHour      float64    `json:"end_hour"` // exclusive
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       time.Time  `json:"ends_at"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	Status       string     `json:"status"` // pending, confirmed, checked-in, completed, cancelled
	TotalAmount  int64      `json:"total_amount"`
	IsWalkIn     bool       `json:"is_walk_in"`
	Note         string     `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Version      int64      `json:"version"`
}

// Hours is the reserved duration in fractional hours.
func (b *Booking) Hours() float64 {
	return b.EndHour - b.StartHour
}

func (b *Booking) IsActive() bool {
	return IsActiveStatus(b.Status)
}

func (b *Booking) IsTerminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusCancelled
}

func IsActiveStatus(status string) bool {
	return status == StatusConfirmed || status == StatusCheckedIn
}

// Overlaps reports whether two half-open hour windows intersect.
func Overlaps(startA, endA, startB, endB float64) bool {
	return startA < endB && endA > startB
}

// FractionalHour converts a wall clock time into hours since local midnight.
func FractionalHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// AtHour resolves a venue-local date and fractional hour into an instant.
func AtHour(date string, hour float64, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse booking date %q: %w", date, err)
	}
	return day.Add(time.Duration(math.Round(hour*3600)) * time.Second), nil
}
