package service

import (
	"context"
	"fmt"

	"cuebook/internal/events"
	"cuebook/internal/metrics"
	"cuebook/internal/models"
)

// publish hands an event to the injected publisher. Delivery problems are
// logged and never reach the caller; the booking is already committed.
func (s *BookingService) publish(eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func bookingPayload(b *models.Booking, actorID int64) events.BookingEventPayload {
	p := events.BookingEventPayload{
		Scope:       events.ClubScope(b.ClubID),
		BookingID:   b.ID,
		PlayerID:    b.PlayerID,
		ClubID:      b.ClubID,
		TableID:     b.TableID,
		Status:      b.Status,
		BookingDate: b.BookingDate,
		StartHour:   b.StartHour,
		EndHour:     b.EndHour,
		TotalAmount: b.TotalAmount,
		IsWalkIn:    b.IsWalkIn,
		ChangedBy:   "system",
	}
	if actorID > 0 {
		p.ChangedBy = "user"
		p.ChangedByID = actorID
	}
	return p
}

func (s *BookingService) publishBooking(ctx context.Context, b *models.Booking, actorID int64, action string) {
	s.publish(events.EventBookingUpdated, bookingPayload(b, actorID))

	var tableType string
	if t, err := s.store.GetTable(ctx, b.TableID); err != nil {
		s.logger.Warn().Err(err).Int64("table_id", b.TableID).Msg("failed to load table for availability event")
	} else {
		tableType = t.Type
	}
	s.publish(events.EventAvailabilityChanged, events.AvailabilityPayload{
		Scope:       events.ClubScope(b.ClubID),
		ClubID:      b.ClubID,
		TableID:     b.TableID,
		TableType:   tableType,
		BookingDate: b.BookingDate,
		StartHour:   b.StartHour,
		EndHour:     b.EndHour,
		Action:      action,
	})
}

// transitionAction names the availability change a status change causes.
func transitionAction(status string) string {
	switch status {
	case models.StatusCheckedIn:
		return events.ActionCheckedIn
	case models.StatusCompleted:
		return events.ActionCompleted
	case models.StatusCancelled:
		return events.ActionCancelled
	default:
		return status
	}
}

func (s *BookingService) notify(userID int64, b *models.Booking, title, message string) {
	if userID <= 0 {
		return
	}
	s.publish(events.EventNotification, events.NotificationPayload{
		Scope:     events.UserScope(userID),
		UserID:    userID,
		BookingID: b.ID,
		Title:     title,
		Message:   message,
	})
}

// afterCreate tells the club about a new booking and warns the owner when
// someone else made it.
func (s *BookingService) afterCreate(ctx context.Context, b *models.Booking, actorID int64) {
	action := events.ActionCreated
	if b.IsWalkIn {
		action = events.ActionWalkIn
	}
	s.publishBooking(ctx, b, actorID, action)

	club, err := s.store.GetClub(ctx, b.ClubID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("club_id", b.ClubID).Msg("failed to load club for notification")
		return
	}
	if club.OwnerID == actorID {
		return
	}
	title := "New booking"
	if b.IsWalkIn {
		title = "Walk-in opened"
	}
	s.notify(club.OwnerID, b, title, fmt.Sprintf("Table %d on %s from %s",
		b.TableID, b.BookingDate, formatHour(b.StartHour)))
}

// afterTransition publishes the outcome of a committed transition. The
// counterpart of whoever acted is notified: the owner when the player acted,
// the player otherwise.
func (s *BookingService) afterTransition(ctx context.Context, out *outcome, actorID int64) {
	b := out.booking
	s.publishBooking(ctx, b, actorID, transitionAction(b.Status))

	if st := out.settlement; st != nil {
		metrics.IncSettlement(st.kind)
		payload := events.SettlementPayload{
			Scope:           events.ClubScope(b.ClubID),
			BookingID:       b.ID,
			ClubID:          b.ClubID,
			PlayerID:        b.PlayerID,
			AccountID:       st.accountID,
			Kind:            st.kind,
			Amount:          st.amount,
			DurationMinutes: st.minutes,
			CheckInTime:     b.CheckInTime,
			CheckOutTime:    b.CheckOutTime,
			Auto:            st.auto,
		}
		switch b.Status {
		case models.StatusCompleted:
			s.publish(events.EventBookingCompleted, payload)
		case models.StatusCancelled:
			s.publish(events.EventBookingCancelled, payload)
		}
	}

	title, message := transitionMessage(b)
	recipient := b.PlayerID
	if actorID == b.PlayerID {
		club, err := s.store.GetClub(ctx, b.ClubID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("club_id", b.ClubID).Msg("failed to load club for notification")
			return
		}
		recipient = club.OwnerID
	}
	s.notify(recipient, b, title, message)

	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("status", b.Status).
		Int64("amount", b.TotalAmount).
		Int64("actor_id", actorID).
		Msg("booking transitioned")
}

func transitionMessage(b *models.Booking) (string, string) {
	switch b.Status {
	case models.StatusCheckedIn:
		return "Checked in", fmt.Sprintf("Booking #%d is now in play on table %d", b.ID, b.TableID)
	case models.StatusCompleted:
		return "Session finished", fmt.Sprintf("Booking #%d completed, total %d", b.ID, b.TotalAmount)
	case models.StatusCancelled:
		return "Booking cancelled", fmt.Sprintf("Booking #%d on %s was cancelled", b.ID, b.BookingDate)
	default:
		return "Booking updated", fmt.Sprintf("Booking #%d is %s", b.ID, b.Status)
	}
}

// formatHour renders a fractional hour as HH:MM.
func formatHour(h float64) string {
	total := int(h*60 + 0.5)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
