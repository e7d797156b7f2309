// Package billing prices table sessions. Every fractional minor unit is
// rounded up in the club's favour.
package billing

import (
	"math"
	"time"
)

// ScheduledAmount prices a reserved window of the given length in hours.
func ScheduledAmount(hours float64, pricePerHour int64) int64 {
	if hours <= 0 || pricePerHour <= 0 {
		return 0
	}
	return int64(math.Ceil(hours * float64(pricePerHour)))
}

// ElapsedMinutes is the played time rounded up to whole minutes.
func ElapsedMinutes(checkIn, checkOut time.Time) int64 {
	ms := checkOut.Sub(checkIn).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return (ms + 59_999) / 60_000
}

// ElapsedAmount prices played minutes against an hourly rate.
func ElapsedAmount(minutes, pricePerHour int64) int64 {
	if minutes <= 0 || pricePerHour <= 0 {
		return 0
	}
	return (minutes*pricePerHour + 59) / 60
}

// SessionAmount prices a check-in/check-out pair.
func SessionAmount(checkIn, checkOut time.Time, pricePerHour int64) (minutes, amount int64) {
	minutes = ElapsedMinutes(checkIn, checkOut)
	return minutes, ElapsedAmount(minutes, pricePerHour)
}
