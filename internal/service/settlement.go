package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cuebook/internal/billing"
	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/google/uuid"
)

const (
	settlementEarning = "earning"
	settlementRefund  = "refund"
	settlementNone    = "none"
)

// settlement records the wallet movement written by a transition.
type settlement struct {
	kind      string
	accountID int64
	amount    int64
	minutes   int64
	auto      bool
}

func earningKey(bookingID int64) string { return fmt.Sprintf("booking:%d:earning", bookingID) }
func refundKey(bookingID int64) string  { return fmt.Sprintf("booking:%d:refund", bookingID) }
func paymentRefundKey(code string) string {
	return fmt.Sprintf("payment:%s:refund", code)
}

// settleCompletion credits the club owner with the booking's final amount.
// A booking nobody paid for online is recorded as settled on site. The ledger
// key makes a second settlement of the same booking fail the transaction.
func (s *BookingService) settleCompletion(
	ctx context.Context, tx domain.Tx, b *models.Booking, now time.Time,
) (*settlement, error) {
	club, err := tx.GetClub(ctx, b.ClubID)
	if err != nil {
		return nil, err
	}

	payment, err := tx.GetPaidBookingPayment(ctx, b.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		payment, err = recordPayment(ctx, tx, b, b.TotalAmount, models.PaymentTypeBooking, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	entry := &models.LedgerEntry{
		AccountID:      club.OwnerID,
		BookingID:      &b.ID,
		PaymentID:      &payment.ID,
		EntryType:      models.EntryEarning,
		Amount:         b.TotalAmount,
		IdempotencyKey: earningKey(b.ID),
		CreatedAt:      now,
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return nil, err
	}

	var minutes int64
	if b.CheckInTime != nil && b.CheckOutTime != nil {
		minutes = billing.ElapsedMinutes(*b.CheckInTime, *b.CheckOutTime)
	}
	return &settlement{
		kind:      settlementEarning,
		accountID: club.OwnerID,
		amount:    b.TotalAmount,
		minutes:   minutes,
	}, nil
}

// settleRefund returns to the player what they actually paid for the booking.
// Bookings settled on site have no paid payment and refund nothing.
func (s *BookingService) settleRefund(
	ctx context.Context, tx domain.Tx, b *models.Booking, now time.Time,
) (*settlement, error) {
	paid, err := tx.GetPaidBookingPayment(ctx, b.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return &settlement{kind: settlementNone}, nil
	}
	if err != nil {
		return nil, err
	}

	refund, err := recordPayment(ctx, tx, b, paid.Amount, models.PaymentTypeRefund, now)
	if err != nil {
		return nil, err
	}
	entry := &models.LedgerEntry{
		AccountID:      b.PlayerID,
		BookingID:      &b.ID,
		PaymentID:      &refund.ID,
		EntryType:      models.EntryRefund,
		Amount:         paid.Amount,
		IdempotencyKey: refundKey(b.ID),
		CreatedAt:      now,
	}
	if err := tx.AppendLedger(ctx, entry); err != nil {
		return nil, err
	}
	return &settlement{kind: settlementRefund, accountID: b.PlayerID, amount: paid.Amount}, nil
}

func recordPayment(ctx context.Context, tx domain.Tx, b *models.Booking, amount int64, typ string, now time.Time) (*models.Payment, error) {
	paidAt := now
	p := &models.Payment{
		OrderCode: uuid.NewString(),
		BookingID: &b.ID,
		PlayerID:  b.PlayerID,
		ClubID:    b.ClubID,
		Amount:    amount,
		Status:    models.PaymentPaid,
		Type:      typ,
		CreatedAt: now,
		PaidAt:    &paidAt,
	}
	if err := tx.InsertPayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
