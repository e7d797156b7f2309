package service

import (
	"context"
	"fmt"
	"time"

	"cuebook/internal/billing"
	"cuebook/internal/domain"
	"cuebook/internal/metrics"
	"cuebook/internal/models"
)

// outcome is what a transition leaves behind for post-commit publishing.
type outcome struct {
	booking    *models.Booking
	settlement *settlement
}

// transition runs one guarded status change. Inside a single transaction it
// re-reads the booking, requires its status to be one of from, lets apply
// mutate it and write settlement rows, persists it under the version check and
// refreshes the table's derived status.
func (s *BookingService) transition(
	ctx context.Context,
	id int64,
	from []string,
	apply func(tx domain.Tx, b *models.Booking, now time.Time) (*settlement, error),
) (*outcome, error) {
	now := s.now()
	var out outcome

	err := s.store.WithTx(ctx, func(tx domain.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !contains(from, b.Status) {
			return fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, domain.ErrInvalidState)
		}

		prev := b.Status
		st, err := apply(tx, b, now)
		if err != nil {
			return err
		}
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.RefreshTableStatus(ctx, b.TableID, s.today(now), now); err != nil {
			return err
		}

		metrics.IncTransition(prev + "->" + b.Status)
		out = outcome{booking: b, settlement: st}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BookingService) CheckIn(ctx context.Context, id, actorID int64) (*models.Booking, error) {
	out, err := s.transition(ctx, id, []string{models.StatusConfirmed},
		func(tx domain.Tx, b *models.Booking, now time.Time) (*settlement, error) {
			if err := authorize(ctx, tx, b, actorID, true); err != nil {
				return nil, err
			}
			if now.Before(b.StartsAt.Add(-s.policy.EarlyCheckIn)) {
				return nil, fmt.Errorf("booking %d starts at %s: %w",
					b.ID, b.StartsAt.In(s.loc).Format(time.RFC3339), domain.ErrInvalidState)
			}
			checkIn := now
			b.CheckInTime = &checkIn
			b.Status = models.StatusCheckedIn
			return nil, nil
		})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, out, actorID)
	return out.booking, nil
}

// AutoCheckIn checks in a confirmed booking whose window is running. It is
// the reconciler's counterpart of CheckIn and re-validates the window inside
// the transaction.
func (s *BookingService) AutoCheckIn(ctx context.Context, id int64) error {
	out, err := s.transition(ctx, id, []string{models.StatusConfirmed},
		func(_ domain.Tx, b *models.Booking, now time.Time) (*settlement, error) {
			if b.CheckInTime != nil || now.Before(b.StartsAt) || !now.Before(b.EndsAt) {
				return nil, fmt.Errorf("booking %d not due for check-in: %w", b.ID, domain.ErrInvalidState)
			}
			checkIn := now
			b.CheckInTime = &checkIn
			b.Status = models.StatusCheckedIn
			return nil, nil
		})
	if err != nil {
		return err
	}
	s.afterTransition(ctx, out, 0)
	return nil
}

func (s *BookingService) CheckOut(ctx context.Context, id, actorID int64) (*models.Booking, error) {
	out, err := s.transition(ctx, id, []string{models.StatusCheckedIn},
		func(tx domain.Tx, b *models.Booking, now time.Time) (*settlement, error) {
			if err := authorize(ctx, tx, b, actorID, true); err != nil {
				return nil, err
			}
			if _, err := s.closeSession(ctx, tx, b, now, false); err != nil {
				return nil, err
			}
			return s.settleCompletion(ctx, tx, b, now)
		})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, out, actorID)
	return out.booking, nil
}

// closeSession stamps the checkout, bills the elapsed minutes and completes
// the booking. With moveEnd the booking's end hour follows the checkout.
func (s *BookingService) closeSession(
	ctx context.Context, tx domain.Tx, b *models.Booking, checkout time.Time, moveEnd bool,
) (int64, error) {
	rate, err := rateFor(ctx, tx, b)
	if err != nil {
		return 0, err
	}

	checkIn := b.StartsAt
	if b.CheckInTime != nil {
		checkIn = *b.CheckInTime
	}
	minutes, amount := billing.SessionAmount(checkIn, checkout, rate.PricePerHour)

	if moveEnd {
		b.EndHour = s.endHourAt(b, checkout)
		endsAt, err := models.AtHour(b.BookingDate, b.EndHour, s.loc)
		if err != nil {
			return 0, err
		}
		b.EndsAt = endsAt
	}

	out := checkout
	b.CheckInTime = &checkIn
	b.CheckOutTime = &out
	b.TotalAmount = amount
	b.Status = models.StatusCompleted
	return minutes, nil
}

// endHourAt is the fractional end hour for a session closed at t, kept within
// [StartHour, 24]. Sessions running past midnight end at 24.
func (s *BookingService) endHourAt(b *models.Booking, t time.Time) float64 {
	local := t.In(s.loc)
	end := models.FractionalHour(local)
	if local.Format(models.DateLayout) != b.BookingDate {
		end = models.MaxHour
	}
	if end < b.StartHour {
		end = b.StartHour
	}
	if end > models.MaxHour {
		end = models.MaxHour
	}
	return end
}

func rateFor(ctx context.Context, r domain.Reader, b *models.Booking) (*models.Rate, error) {
	t, err := r.GetTable(ctx, b.TableID)
	if err != nil {
		return nil, err
	}
	return r.GetRate(ctx, b.ClubID, t.Type)
}

func (s *BookingService) EndPlay(ctx context.Context, id, actorID int64) (*domain.EndPlayResult, error) {
	var minutes int64
	out, err := s.transition(ctx, id, []string{models.StatusCheckedIn},
		func(tx domain.Tx, b *models.Booking, now time.Time) (*settlement, error) {
			if err := authorize(ctx, tx, b, actorID, true); err != nil {
				return nil, err
			}
			m, err := s.closeSession(ctx, tx, b, now, true)
			if err != nil {
				return nil, err
			}
			minutes = m
			return s.settleCompletion(ctx, tx, b, now)
		})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, out, actorID)
	return endPlayResult(out.booking, minutes), nil
}

// PreviewEndPlay estimates what EndPlay would charge right now without
// changing anything.
func (s *BookingService) PreviewEndPlay(ctx context.Context, id, actorID int64) (*domain.EndPlayResult, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.store, b, actorID, true); err != nil {
		return nil, err
	}
	if b.Status != models.StatusCheckedIn {
		return nil, fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, domain.ErrInvalidState)
	}

	rate, err := rateFor(ctx, s.store, b)
	if err != nil {
		return nil, err
	}
	checkIn := b.StartsAt
	if b.CheckInTime != nil {
		checkIn = *b.CheckInTime
	}
	now := s.now()
	minutes, amount := billing.SessionAmount(checkIn, now, rate.PricePerHour)

	preview := *b
	preview.CheckInTime = &checkIn
	preview.CheckOutTime = &now
	preview.TotalAmount = amount
	return endPlayResult(&preview, minutes), nil
}

func endPlayResult(b *models.Booking, minutes int64) *domain.EndPlayResult {
	r := &domain.EndPlayResult{
		BookingID:       b.ID,
		Status:          b.Status,
		DurationMinutes: minutes,
		TotalAmount:     b.TotalAmount,
	}
	if b.CheckInTime != nil {
		r.CheckInTime = *b.CheckInTime
	}
	if b.CheckOutTime != nil {
		r.CheckOutTime = *b.CheckOutTime
	}
	return r
}

// AutoComplete closes a scheduled booking whose window has ended, whether or
// not the player ever checked in.
func (s *BookingService) AutoComplete(ctx context.Context, id int64) error {
	out, err := s.transition(ctx, id, []string{models.StatusConfirmed, models.StatusCheckedIn},
		func(tx domain.Tx, b *models.Booking, now time.Time) (*settlement, error) {
			if b.IsWalkIn || now.Before(b.EndsAt) {
				return nil, fmt.Errorf("booking %d not due for completion: %w", b.ID, domain.ErrInvalidState)
			}
			checkout := now
			if s.policy.CheckoutAtScheduledEnd {
				checkout = b.EndsAt
			}
			if _, err := s.closeSession(ctx, tx, b, checkout, false); err != nil {
				return nil, err
			}
			st, err := s.settleCompletion(ctx, tx, b, now)
			if st != nil {
				st.auto = true
			}
			return st, err
		})
	if err != nil {
		return err
	}
	s.afterTransition(ctx, out, 0)
	return nil
}

func (s *BookingService) CancelBooking(ctx context.Context, id, actorID int64) (*domain.CancelResult, error) {
	out, err := s.transition(ctx, id, []string{models.StatusPending, models.StatusConfirmed},
		func(tx domain.Tx, b *models.Booking, now time.Time) (*settlement, error) {
			if err := authorize(ctx, tx, b, actorID, false); err != nil {
				return nil, err
			}
			b.Status = models.StatusCancelled
			if b.StartsAt.Sub(now) < s.policy.RefundCutoff {
				return &settlement{kind: settlementNone}, nil
			}
			return s.settleRefund(ctx, tx, b, now)
		})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, out, actorID)

	res := &domain.CancelResult{Booking: out.booking}
	if out.settlement != nil && out.settlement.kind == settlementRefund {
		res.Refunded = true
		res.RefundAmount = out.settlement.amount
	}
	return res, nil
}

// OpenNow seats a walk-in player at a specific table immediately. The session
// is provisionally one hour long and stays open until EndPlay.
func (s *BookingService) OpenNow(ctx context.Context, req domain.WalkInRequest) (*models.Booking, error) {
	if req.ActorID <= 0 || req.ClubID <= 0 || req.TableID <= 0 {
		return nil, fmt.Errorf("%w: actor, club and table are required", domain.ErrInvalidInput)
	}
	playerID := req.PlayerID
	if playerID == 0 {
		playerID = req.ActorID
	}
	if playerID != req.ActorID && !isOwner(ctx, s.store, req.ClubID, req.ActorID) {
		return nil, fmt.Errorf("user %d seating player %d: %w", req.ActorID, playerID, domain.ErrForbidden)
	}

	now := s.now()
	local := now.In(s.loc)
	date := local.Format(models.DateLayout)
	start := models.FractionalHour(local)
	end := start + models.WalkInProvisionalHours
	if end > models.MaxHour {
		end = models.MaxHour
	}

	var booking *models.Booking
	err := s.store.WithTx(ctx, func(tx domain.Tx) error {
		club, err := tx.GetClub(ctx, req.ClubID)
		if err != nil {
			return err
		}
		if !club.IsActive {
			return fmt.Errorf("club %d: %w", club.ID, domain.ErrClubInactive)
		}
		table, err := tx.GetTable(ctx, req.TableID)
		if err != nil {
			return err
		}
		if table.ClubID != club.ID {
			return fmt.Errorf("table %d in club %d: %w", table.ID, club.ID, domain.ErrNotFound)
		}
		if _, err := tx.GetRate(ctx, club.ID, table.Type); err != nil {
			return err
		}
		if table.Status == models.TableOccupied {
			return fmt.Errorf("table %d is occupied: %w", table.ID, domain.ErrNoTableAvailable)
		}
		busy, err := tx.BusyTableIDs(ctx, club.ID, date, start, end, allocationStatuses)
		if err != nil {
			return err
		}
		if busy[table.ID] {
			metrics.IncAllocationConflict()
			return fmt.Errorf("table %d is booked: %w", table.ID, domain.ErrNoTableAvailable)
		}

		startsAt, err := models.AtHour(date, start, s.loc)
		if err != nil {
			return err
		}
		endsAt, err := models.AtHour(date, end, s.loc)
		if err != nil {
			return err
		}
		checkIn := now
		b := &models.Booking{
			PlayerID:    playerID,
			ClubID:      club.ID,
			TableID:     table.ID,
			BookingDate: date,
			StartHour:   start,
			EndHour:     end,
			StartsAt:    startsAt,
			EndsAt:      endsAt,
			CheckInTime: &checkIn,
			Status:      models.StatusCheckedIn,
			IsWalkIn:    true,
			Note:        req.Note,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.RefreshTableStatus(ctx, table.ID, date, now); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated("walk_in")
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("table_id", booking.TableID).
		Int64("player_id", booking.PlayerID).
		Msg("walk-in opened")

	s.afterCreate(ctx, booking, req.ActorID)
	return booking, nil
}
