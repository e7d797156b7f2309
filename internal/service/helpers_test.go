package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cuebook/internal/database"
	"cuebook/internal/domain"
	"cuebook/internal/models"
	"cuebook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDate = "2030-05-10"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(hour, minute, second int) *testClock {
	return &testClock{t: time.Date(2030, 5, 10, hour, minute, second, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(hour, minute, second int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.Date(c.t.Year(), c.t.Month(), c.t.Day(), hour, minute, second, 0, time.UTC)
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishJSON(eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	args := m.Called(eventType, payload)
	return args.Error(0)
}

type testEnv struct {
	db    *database.DB
	svc   *BookingService
	clock *testClock
	pub   *recordingPublisher
}

// setupEnv opens a fresh database with owner 1, players 2 and 3, active club
// 1 (pool tables 1 and 2 at 100, snooker table 3 at 200) and inactive club 2.
// The clock starts at 08:00 UTC on testDate.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "cuebook.db"), 0, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: 1, Name: "Owner", Role: models.RoleOwner}))
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: 2, Name: "Alice", Role: models.RolePlayer}))
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: 3, Name: "Bao", Role: models.RolePlayer}))
	require.NoError(t, db.UpsertClub(ctx, &models.Club{ID: 1, OwnerID: 1, Name: "Cue Corner", IsActive: true}))
	require.NoError(t, db.UpsertClub(ctx, &models.Club{ID: 2, OwnerID: 1, Name: "Closed Hall", IsActive: false}))
	require.NoError(t, db.UpsertTable(ctx, &models.Table{ID: 1, ClubID: 1, Name: "P1", Type: models.TableTypePool, SortOrder: 1}))
	require.NoError(t, db.UpsertTable(ctx, &models.Table{ID: 2, ClubID: 1, Name: "P2", Type: models.TableTypePool, SortOrder: 2}))
	require.NoError(t, db.UpsertTable(ctx, &models.Table{ID: 3, ClubID: 1, Name: "S1", Type: models.TableTypeSnooker, SortOrder: 3}))
	require.NoError(t, db.UpsertTable(ctx, &models.Table{ID: 4, ClubID: 2, Name: "X1", Type: models.TableTypePool, SortOrder: 1}))
	require.NoError(t, db.UpsertRate(ctx, &models.Rate{ClubID: 1, TableType: models.TableTypePool, PricePerHour: 100}))
	require.NoError(t, db.UpsertRate(ctx, &models.Rate{ClubID: 1, TableType: models.TableTypeSnooker, PricePerHour: 200}))

	clock := newClock(8, 0, 0)
	pub := &recordingPublisher{}
	svc := NewBookingService(db, pub, Policy{MaxDaysAhead: 60, RefundCutoff: time.Hour, CheckoutAtScheduledEnd: true}, time.UTC, &logger).
		WithClock(clock.Now)

	return &testEnv{db: db, svc: svc, clock: clock, pub: pub}
}

func poolRequest(player int64, start, end float64) domain.BookingRequest {
	return domain.BookingRequest{PlayerID: player, ClubID: 1, TableType: models.TableTypePool, Date: testDate, StartHour: start, EndHour: end}
}

// paidBooking books req through the gateway flow so the booking carries a
// PAID payment.
func paidBooking(t *testing.T, env *testEnv, req domain.BookingRequest) *models.Booking {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()
	payments := NewPaymentService(env.svc, repository.NewMemoryPendingRepository(), time.Hour, &logger)

	payment, err := payments.PreparePayment(ctx, req)
	require.NoError(t, err)
	b, err := payments.ConfirmPayment(ctx, domain.PaymentConfirmation{OrderCode: payment.OrderCode, Status: models.PaymentPaid})
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}
