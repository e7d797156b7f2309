package domain

import (
	"context"
	"time"

	"cuebook/internal/models"
)

// Reader is the read side shared by the store and open transactions.
type Reader interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetClub(ctx context.Context, id int64) (*models.Club, error)
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	// ListTables returns club tables ordered by sort order then id.
	// An empty tableType lists every type.
	ListTables(ctx context.Context, clubID int64, tableType string) ([]*models.Table, error)
	GetRate(ctx context.Context, clubID int64, tableType string) (*models.Rate, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	// BusyTableIDs returns tables of the club holding a booking on date in one
	// of statuses whose hour window overlaps [start, end).
	BusyTableIDs(ctx context.Context, clubID int64, date string, start, end float64, statuses []string) (map[int64]bool, error)
	GetPaymentByOrderCode(ctx context.Context, orderCode string) (*models.Payment, error)
	// GetPaidBookingPayment returns the PAID booking payment linked to a booking.
	GetPaidBookingPayment(ctx context.Context, bookingID int64) (*models.Payment, error)
	ListLedger(ctx context.Context, accountID int64) ([]models.LedgerEntry, error)
}

// Tx is a single atomic unit of work against the store.
type Tx interface {
	Reader
	InsertBooking(ctx context.Context, b *models.Booking) error
	// UpdateBooking persists b when its version still matches and bumps it.
	UpdateBooking(ctx context.Context, b *models.Booking) error
	// RefreshTableStatus recomputes the derived status of a table.
	RefreshTableStatus(ctx context.Context, tableID int64, today string, now time.Time) error
	InsertPayment(ctx context.Context, p *models.Payment) error
	UpdatePayment(ctx context.Context, p *models.Payment) error
	// AppendLedger fails with ErrConflict when the idempotency key exists.
	AppendLedger(ctx context.Context, e *models.LedgerEntry) error
}

type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	ListDueForCheckIn(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ListCompletedBookings(ctx context.Context, clubID int64, from, to time.Time) ([]*models.Booking, error)
	ListPlayerBookings(ctx context.Context, playerID int64, limit int) ([]*models.Booking, error)
}

// PendingRepository keeps payment-deferred booking requests until the
// payment outcome arrives.
type PendingRepository interface {
	PutPending(ctx context.Context, orderCode string, req *BookingRequest, ttl time.Duration) error
	GetPending(ctx context.Context, orderCode string) (*BookingRequest, error)
	DeletePending(ctx context.Context, orderCode string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type BookingService interface {
	CheckAvailability(ctx context.Context, q AvailabilityQuery) ([]models.TypeAvailability, error)
	CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, id, actorID int64) (*models.Booking, error)
	ListMyBookings(ctx context.Context, actorID int64) ([]*models.Booking, error)
	CancelBooking(ctx context.Context, id, actorID int64) (*CancelResult, error)
	CheckIn(ctx context.Context, id, actorID int64) (*models.Booking, error)
	CheckOut(ctx context.Context, id, actorID int64) (*models.Booking, error)
	OpenNow(ctx context.Context, req WalkInRequest) (*models.Booking, error)
	EndPlay(ctx context.Context, id, actorID int64) (*EndPlayResult, error)
	PreviewEndPlay(ctx context.Context, id, actorID int64) (*EndPlayResult, error)
}

type Reconciler interface {
	AutoCheckIn(ctx context.Context, id int64) error
	AutoComplete(ctx context.Context, id int64) error
}

type PaymentService interface {
	PreparePayment(ctx context.Context, req BookingRequest) (*models.Payment, error)
	ConfirmPayment(ctx context.Context, c PaymentConfirmation) (*models.Booking, error)
}

type WalletService interface {
	GetWallet(ctx context.Context, accountID int64) (*models.Wallet, error)
	ListLedger(ctx context.Context, accountID int64) ([]models.LedgerEntry, error)
	Withdraw(ctx context.Context, accountID, amount int64) (*models.Wallet, error)
}

type DashboardService interface {
	Revenue(ctx context.Context, clubID, actorID int64, q RevenueQuery) (*models.RevenueReport, error)
}
