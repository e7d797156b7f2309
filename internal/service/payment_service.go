package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cuebook/internal/billing"
	"cuebook/internal/domain"
	"cuebook/internal/metrics"
	"cuebook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentService books tables whose payment is settled by an external
// gateway. The request is parked until the gateway reports back.
type PaymentService struct {
	bookings *BookingService
	pending  domain.PendingRepository
	ttl      time.Duration
	logger   *zerolog.Logger
}

func NewPaymentService(
	bookings *BookingService,
	pending domain.PendingRepository,
	ttl time.Duration,
	logger *zerolog.Logger,
) *PaymentService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PaymentService{bookings: bookings, pending: pending, ttl: ttl, logger: logger}
}

// PreparePayment validates and prices a booking request, parks it under a new
// order code and records the PENDING payment the gateway will settle.
func (s *PaymentService) PreparePayment(ctx context.Context, req domain.BookingRequest) (*models.Payment, error) {
	b := s.bookings
	now := b.now()
	if _, err := b.checkRequest(ctx, req, now); err != nil {
		return nil, err
	}
	rate, err := b.store.GetRate(ctx, req.ClubID, req.TableType)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderCode: uuid.NewString(),
		PlayerID:  req.PlayerID,
		ClubID:    req.ClubID,
		Amount:    billing.ScheduledAmount(req.EndHour-req.StartHour, rate.PricePerHour),
		Status:    models.PaymentPending,
		Type:      models.PaymentTypeBooking,
		CreatedAt: now,
	}
	if err := s.pending.PutPending(ctx, payment.OrderCode, &req, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to stash booking request: %w", err)
	}
	err = b.store.WithTx(ctx, func(tx domain.Tx) error {
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		if delErr := s.pending.DeletePending(ctx, payment.OrderCode); delErr != nil {
			s.logger.Warn().Err(delErr).Str("order_code", payment.OrderCode).Msg("failed to drop stashed request")
		}
		return nil, err
	}

	s.logger.Info().
		Str("order_code", payment.OrderCode).
		Int64("player_id", payment.PlayerID).
		Int64("amount", payment.Amount).
		Msg("payment prepared")
	return payment, nil
}

// ConfirmPayment applies a gateway outcome. Repeated confirmations of a
// settled order return the booking it produced, or nil when it produced
// none. A paid order that finds no free table is refunded to the player's
// wallet and reported as ErrNoTableAvailable.
func (s *PaymentService) ConfirmPayment(ctx context.Context, c domain.PaymentConfirmation) (*models.Booking, error) {
	status := strings.ToUpper(strings.TrimSpace(c.Status))
	if c.OrderCode == "" || (status != models.PaymentPaid && status != models.PaymentFailed) {
		return nil, fmt.Errorf("%w: order code and PAID or FAILED status are required", domain.ErrInvalidInput)
	}

	b := s.bookings
	now := b.now()

	var (
		booking  *models.Booking
		created  bool
		refunded bool
		stashErr error
	)
	stash, err := s.pending.GetPending(ctx, c.OrderCode)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	err = b.store.WithTx(ctx, func(tx domain.Tx) error {
		payment, err := tx.GetPaymentByOrderCode(ctx, c.OrderCode)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentPending {
			if payment.BookingID != nil {
				booking, err = tx.GetBooking(ctx, *payment.BookingID)
				return err
			}
			return nil
		}

		if status == models.PaymentFailed {
			payment.Status = models.PaymentFailed
			return tx.UpdatePayment(ctx, payment)
		}

		paidAt := now
		payment.Status = models.PaymentPaid
		payment.PaidAt = &paidAt

		var allocErr error
		if stash == nil {
			allocErr = fmt.Errorf("stashed request for %s: %w", c.OrderCode, domain.ErrNotFound)
		} else if w, err := b.resolveWindow(stash.Date, stash.StartHour, stash.EndHour); err != nil {
			allocErr = err
		} else if !w.startsAt.After(now) {
			allocErr = fmt.Errorf("window already started: %w", domain.ErrNoTableAvailable)
		} else if club, err := tx.GetClub(ctx, stash.ClubID); err != nil {
			allocErr = err
		} else if !club.IsActive {
			allocErr = fmt.Errorf("club %d: %w", club.ID, domain.ErrClubInactive)
		} else {
			booking, allocErr = b.allocate(ctx, tx, *stash, w, now)
		}

		switch {
		case allocErr == nil:
			created = true
			payment.BookingID = &booking.ID
			return tx.UpdatePayment(ctx, payment)
		case errors.Is(allocErr, domain.ErrNoTableAvailable), errors.Is(allocErr, domain.ErrNotFound),
			errors.Is(allocErr, domain.ErrClubInactive):
			booking = nil
			stashErr = allocErr
			refunded = true
			if err := tx.UpdatePayment(ctx, payment); err != nil {
				return err
			}
			return tx.AppendLedger(ctx, &models.LedgerEntry{
				AccountID:      payment.PlayerID,
				PaymentID:      &payment.ID,
				EntryType:      models.EntryRefund,
				Amount:         payment.Amount,
				IdempotencyKey: paymentRefundKey(payment.OrderCode),
				CreatedAt:      now,
			})
		default:
			return allocErr
		}
	})
	if err != nil {
		return nil, err
	}

	if delErr := s.pending.DeletePending(ctx, c.OrderCode); delErr != nil {
		s.logger.Warn().Err(delErr).Str("order_code", c.OrderCode).Msg("failed to drop stashed request")
	}

	if refunded {
		metrics.IncSettlement(settlementRefund)
		s.logger.Warn().Err(stashErr).Str("order_code", c.OrderCode).Msg("paid order refunded")
		return nil, stashErr
	}
	if created {
		metrics.IncBookingCreated("payment")
		b.afterCreate(ctx, booking, booking.PlayerID)
	}

	s.logger.Info().Str("order_code", c.OrderCode).Str("status", status).Msg("payment confirmed")
	return booking, nil
}
