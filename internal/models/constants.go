package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCheckedIn = "checked-in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	TableTypePool    = "pool"
	TableTypeCarom   = "carom"
	TableTypeSnooker = "snooker"
)

// TableTypes lists the supported table types in display order.
var TableTypes = []string{TableTypePool, TableTypeCarom, TableTypeSnooker}

func ValidTableType(t string) bool {
	for _, known := range TableTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	TableAvailable = "available"
	TableReserved  = "reserved"
	TableOccupied  = "occupied"
)

const (
	RolePlayer = "player"
	RoleOwner  = "owner"
)

const (
	PaymentPending = "PENDING"
	PaymentPaid    = "PAID"
	PaymentFailed  = "FAILED"

	PaymentTypeBooking = "booking"
	PaymentTypeRefund  = "refund"
)

const (
	EntryEarning    = "earning"
	EntryRefund     = "refund"
	EntryWithdrawal = "withdrawal"
)

const (
	OutboxPending   = "pending"
	OutboxRetry     = "retry"
	OutboxCompleted = "completed"
	OutboxFailed    = "failed"
)

const (
	// MaxHour is the exclusive end of a booking day.
	MaxHour = 24.0

	// WalkInProvisionalHours is the window reserved when a walk-in session opens.
	WalkInProvisionalHours = 1.0
)
