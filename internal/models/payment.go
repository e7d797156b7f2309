package models

import "time"

type Payment struct {
	ID        int64      `json:"id"`
	OrderCode string     `json:"order_code"`
	BookingID *int64     `json:"booking_id,omitempty"`
	PlayerID  int64      `json:"player_id"`
	ClubID    int64      `json:"club_id"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"` // PENDING, PAID, FAILED
	Type      string     `json:"type"`   // booking, refund
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// LedgerEntry is one append-only wallet movement. IdempotencyKey is unique
// across the ledger so a settlement can only ever be written once.
type LedgerEntry struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	BookingID      *int64    `json:"booking_id,omitempty"`
	PaymentID      *int64    `json:"payment_id,omitempty"`
	EntryType      string    `json:"entry_type"`
	Amount         int64     `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

type Wallet struct {
	AccountID      int64 `json:"account_id"`
	Balance        int64 `json:"balance"`
	TotalEarned    int64 `json:"total_earned"`
	TotalRefunded  int64 `json:"total_refunded"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
}

// FoldLedger derives a wallet from its ledger entries.
func FoldLedger(accountID int64, entries []LedgerEntry) Wallet {
	w := Wallet{AccountID: accountID}
	for _, e := range entries {
		switch e.EntryType {
		case EntryEarning:
			w.TotalEarned += e.Amount
		case EntryRefund:
			w.TotalRefunded += e.Amount
		case EntryWithdrawal:
			w.TotalWithdrawn += e.Amount
		}
	}
	w.Balance = w.TotalEarned + w.TotalRefunded - w.TotalWithdrawn
	return w
}
