package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"cuebook/internal/billing"
	"cuebook/internal/config"
	"cuebook/internal/domain"
	"cuebook/internal/metrics"
	"cuebook/internal/models"

	"github.com/rs/zerolog"
)

// Policy holds the business-clock knobs of the booking engine.
type Policy struct {
	MaxDaysAhead int
	// RefundCutoff is how long before the scheduled start a cancellation
	// still earns a full refund. Exactly at the cutoff refunds.
	RefundCutoff time.Duration
	// EarlyCheckIn lets players check in this long before their start.
	EarlyCheckIn time.Duration
	// CheckoutAtScheduledEnd makes auto-completed bookings check out at their
	// scheduled end instead of the time the reconciler ran.
	CheckoutAtScheduledEnd bool
}

func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxDaysAhead:           cfg.Booking.MaxDaysAhead,
		RefundCutoff:           cfg.Billing.RefundCutoff,
		EarlyCheckIn:           cfg.Billing.EarlyCheckIn,
		CheckoutAtScheduledEnd: cfg.Billing.AutoCompleteCheckout != config.CheckoutAtNow,
	}
}

var (
	// availabilityStatuses count toward availability, so a pending hold is
	// not offered to someone else.
	availabilityStatuses = []string{models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn}
	// allocationStatuses are the bookings that actually occupy a table.
	allocationStatuses = []string{models.StatusConfirmed, models.StatusCheckedIn}
)

type BookingService struct {
	store     domain.Store
	publisher domain.EventPublisher
	policy    Policy
	loc       *time.Location
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewBookingService(
	store domain.Store,
	publisher domain.EventPublisher,
	policy Policy,
	loc *time.Location,
	logger *zerolog.Logger,
) *BookingService {
	if policy.MaxDaysAhead <= 0 {
		policy.MaxDaysAhead = 60
	}
	if policy.RefundCutoff <= 0 {
		policy.RefundCutoff = time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		store:     store,
		publisher: publisher,
		policy:    policy,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the wall clock, for tests and replays.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

func (s *BookingService) today(now time.Time) string {
	return now.In(s.loc).Format(models.DateLayout)
}

// validateWindow checks a date and hour range before any storage access.
func (s *BookingService) validateWindow(date string, start, end float64, now time.Time) error {
	day, err := time.ParseInLocation(models.DateLayout, date, s.loc)
	if err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidInput)
	}
	if math.IsNaN(start) || math.IsNaN(end) || start < 0 || end > models.MaxHour {
		return fmt.Errorf("%w: hours must be within 0..24", domain.ErrInvalidInput)
	}
	if start >= end {
		return fmt.Errorf("%w: start hour must be before end hour", domain.ErrInvalidInput)
	}
	if day.Format(models.DateLayout) < s.today(now) {
		return fmt.Errorf("%w: date %s is in the past", domain.ErrInvalidInput, date)
	}
	return nil
}

func (s *BookingService) CheckAvailability(ctx context.Context, q domain.AvailabilityQuery) ([]models.TypeAvailability, error) {
	now := s.now()
	if err := s.validateWindow(q.Date, q.StartHour, q.EndHour, now); err != nil {
		return nil, err
	}
	if q.TableType != "" && !models.ValidTableType(q.TableType) {
		return nil, fmt.Errorf("%w: unknown table type %q", domain.ErrInvalidInput, q.TableType)
	}

	if _, err := s.store.GetClub(ctx, q.ClubID); err != nil {
		return nil, err
	}

	tables, err := s.store.ListTables(ctx, q.ClubID, q.TableType)
	if err != nil {
		return nil, err
	}
	busy, err := s.store.BusyTableIDs(ctx, q.ClubID, q.Date, q.StartHour, q.EndHour, availabilityStatuses)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]*models.TypeAvailability)
	for _, t := range tables {
		a, ok := byType[t.Type]
		if !ok {
			a = &models.TypeAvailability{TableType: t.Type}
			byType[t.Type] = a
		}
		a.Total++
		if !busy[t.ID] {
			a.Free++
		}
	}

	result := make([]models.TypeAvailability, 0, len(byType))
	for _, typ := range models.TableTypes {
		if a, ok := byType[typ]; ok {
			result = append(result, *a)
		} else if typ == q.TableType {
			result = append(result, models.TypeAvailability{TableType: typ})
		}
	}
	return result, nil
}

// window is a validated booking request resolved to absolute instants.
type window struct {
	startsAt time.Time
	endsAt   time.Time
}

// checkRequest enforces every allocation precondition that can be verified
// outside the transaction.
func (s *BookingService) checkRequest(ctx context.Context, req domain.BookingRequest, now time.Time) (window, error) {
	if req.PlayerID <= 0 || req.ClubID <= 0 {
		return window{}, fmt.Errorf("%w: player and club are required", domain.ErrInvalidInput)
	}
	if !models.ValidTableType(req.TableType) {
		return window{}, fmt.Errorf("%w: unknown table type %q", domain.ErrInvalidInput, req.TableType)
	}
	if err := s.validateWindow(req.Date, req.StartHour, req.EndHour, now); err != nil {
		return window{}, err
	}

	w, err := s.resolveWindow(req.Date, req.StartHour, req.EndHour)
	if err != nil {
		return window{}, err
	}
	if !w.startsAt.After(now) {
		return window{}, fmt.Errorf("%w: booking must start in the future", domain.ErrInvalidInput)
	}
	if w.startsAt.After(now.AddDate(0, 0, s.policy.MaxDaysAhead)) {
		return window{}, fmt.Errorf("%w: bookings open %d days ahead", domain.ErrInvalidInput, s.policy.MaxDaysAhead)
	}

	club, err := s.store.GetClub(ctx, req.ClubID)
	if err != nil {
		return window{}, err
	}
	if !club.IsActive {
		return window{}, fmt.Errorf("club %d: %w", club.ID, domain.ErrClubInactive)
	}

	tables, err := s.store.ListTables(ctx, req.ClubID, req.TableType)
	if err != nil {
		return window{}, err
	}
	if len(tables) == 0 {
		return window{}, fmt.Errorf("%s tables in club %d: %w", req.TableType, req.ClubID, domain.ErrNotFound)
	}
	return w, nil
}

func (s *BookingService) resolveWindow(date string, start, end float64) (window, error) {
	startsAt, err := models.AtHour(date, start, s.loc)
	if err != nil {
		return window{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	endsAt, err := models.AtHour(date, end, s.loc)
	if err != nil {
		return window{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return window{startsAt: startsAt, endsAt: endsAt}, nil
}

func (s *BookingService) CreateBooking(ctx context.Context, req domain.BookingRequest) (*models.Booking, error) {
	now := s.now()
	w, err := s.checkRequest(ctx, req, now)
	if err != nil {
		return nil, err
	}

	var booking *models.Booking
	err = s.store.WithTx(ctx, func(tx domain.Tx) error {
		b, err := s.allocate(ctx, tx, req, w, now)
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated("direct")
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("table_id", booking.TableID).
		Int64("player_id", booking.PlayerID).
		Str("date", booking.BookingDate).
		Msg("booking created")

	s.afterCreate(ctx, booking, req.PlayerID)
	return booking, nil
}

// allocate claims the first free table of the requested type in declaration
// order and persists a confirmed booking on it. It must run inside tx; the
// transaction is what keeps two callers from claiming the same table.
func (s *BookingService) allocate(
	ctx context.Context, tx domain.Tx, req domain.BookingRequest, w window, now time.Time,
) (*models.Booking, error) {
	tables, err := tx.ListTables(ctx, req.ClubID, req.TableType)
	if err != nil {
		return nil, err
	}
	busy, err := tx.BusyTableIDs(ctx, req.ClubID, req.Date, req.StartHour, req.EndHour, allocationStatuses)
	if err != nil {
		return nil, err
	}

	var picked *models.Table
	for _, t := range tables {
		if !busy[t.ID] {
			picked = t
			break
		}
	}
	if picked == nil {
		metrics.IncAllocationConflict()
		return nil, fmt.Errorf("%s %s %.2f-%.2f: %w", req.TableType, req.Date, req.StartHour, req.EndHour, domain.ErrNoTableAvailable)
	}

	rate, err := tx.GetRate(ctx, req.ClubID, req.TableType)
	if err != nil {
		return nil, err
	}

	b := &models.Booking{
		PlayerID:    req.PlayerID,
		ClubID:      req.ClubID,
		TableID:     picked.ID,
		BookingDate: req.Date,
		StartHour:   req.StartHour,
		EndHour:     req.EndHour,
		StartsAt:    w.startsAt,
		EndsAt:      w.endsAt,
		Status:      models.StatusConfirmed,
		TotalAmount: billing.ScheduledAmount(req.EndHour-req.StartHour, rate.PricePerHour),
		Note:        req.Note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return nil, err
	}
	if err := tx.RefreshTableStatus(ctx, b.TableID, s.today(now), now); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id, actorID int64) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.store, b, actorID, true); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingService) ListMyBookings(ctx context.Context, actorID int64) ([]*models.Booking, error) {
	if actorID <= 0 {
		return nil, fmt.Errorf("%w: player is required", domain.ErrInvalidInput)
	}
	return s.store.ListPlayerBookings(ctx, actorID, 50)
}

// authorize lets the booking's player through, and the club owner when
// ownerAllowed is set.
func authorize(ctx context.Context, r domain.Reader, b *models.Booking, actorID int64, ownerAllowed bool) error {
	if actorID > 0 && b.PlayerID == actorID {
		return nil
	}
	if ownerAllowed {
		club, err := r.GetClub(ctx, b.ClubID)
		if err != nil {
			return err
		}
		if club.OwnerID == actorID {
			return nil
		}
	}
	return fmt.Errorf("user %d on booking %d: %w", actorID, b.ID, domain.ErrForbidden)
}

func isOwner(ctx context.Context, r domain.Reader, clubID, actorID int64) bool {
	club, err := r.GetClub(ctx, clubID)
	return err == nil && club.OwnerID == actorID
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// IsSkippable reports errors the reconciler treats as "someone got there
// first" rather than failures.
func IsSkippable(err error) bool {
	return errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrConcurrentModification)
}
