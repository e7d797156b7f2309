package models

import "time"

const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

type RevenueReport struct {
	ClubID            int64             `json:"club_id"`
	Period            string            `json:"period"`
	From              string            `json:"from"`
	To                string            `json:"to"`
	TotalRevenue      int64             `json:"total_revenue"`
	CompletedBookings int               `json:"completed_bookings"`
	WalkIns           int               `json:"walk_ins"`
	UniqueCustomers   int               `json:"unique_customers"`
	Buckets           []RevenueBucket   `json:"buckets"`
	TopCustomers      []CustomerRevenue `json:"top_customers"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

type RevenueBucket struct {
	Label    string `json:"label"`
	Revenue  int64  `json:"revenue"`
	Bookings int    `json:"bookings"`
}

type CustomerRevenue struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Bookings int    `json:"bookings"`
	Revenue  int64  `json:"revenue"`
}
