package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/database"
	"cuebook/internal/domain"
	"cuebook/internal/models"
	"cuebook/internal/repository"
	"cuebook/internal/service"
	"cuebook/internal/worker"

	"github.com/rs/zerolog"
)

const (
	testSecret = "test-secret"
	testDate   = "2030-05-10"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(hour, minute int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = time.Date(2030, 5, 10, hour, minute, 0, 0, time.UTC)
}

type apiEnv struct {
	db       *database.DB
	bookings *service.BookingService
	clock    *fixedClock
	server   *HTTPServer
	ts       *httptest.Server
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			JWTSecret:    testSecret,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "gw", Extra: "gw-extra", Name: "gateway", Permissions: []string{PermWritePayments}},
				{Key: "ops", Extra: "ops-extra", Name: "ops", Permissions: []string{PermReadOutbox, PermReadAvailability}},
			},
		},
	}
}

// newAPIEnv serves club 1 (owner 1, pool tables 1 and 2 at 100/h) and
// inactive club 2 to players 2 and 3. The clock starts at 08:00 on testDate.
func newAPIEnv(t *testing.T, cfg config.APIConfig) *apiEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), 0, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	seed := []func() error{
		func() error { return db.UpsertUser(ctx, &models.User{ID: 1, Name: "Owner", Role: models.RoleOwner}) },
		func() error { return db.UpsertUser(ctx, &models.User{ID: 2, Name: "Alice", Role: models.RolePlayer}) },
		func() error { return db.UpsertUser(ctx, &models.User{ID: 3, Name: "Bao", Role: models.RolePlayer}) },
		func() error { return db.UpsertClub(ctx, &models.Club{ID: 1, OwnerID: 1, Name: "Cue Corner", IsActive: true}) },
		func() error { return db.UpsertClub(ctx, &models.Club{ID: 2, OwnerID: 1, Name: "Closed", IsActive: false}) },
		func() error {
			return db.UpsertTable(ctx, &models.Table{ID: 1, ClubID: 1, Name: "P1", Type: models.TableTypePool, SortOrder: 1})
		},
		func() error {
			return db.UpsertTable(ctx, &models.Table{ID: 2, ClubID: 1, Name: "P2", Type: models.TableTypePool, SortOrder: 2})
		},
		func() error {
			return db.UpsertTable(ctx, &models.Table{ID: 3, ClubID: 2, Name: "X1", Type: models.TableTypePool, SortOrder: 1})
		},
		func() error {
			return db.UpsertRate(ctx, &models.Rate{ClubID: 1, TableType: models.TableTypePool, PricePerHour: 100})
		},
	}
	for _, fn := range seed {
		if err := fn(); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	clock := &fixedClock{}
	clock.Set(8, 0)

	outbox := worker.NewOutboxWorker(db, nil, worker.RetryPolicy{}, &logger)
	policy := service.Policy{MaxDaysAhead: 60, RefundCutoff: time.Hour, CheckoutAtScheduledEnd: true}
	bookings := service.NewBookingService(db, outbox, policy, time.UTC, &logger).WithClock(clock.Now)
	pending := repository.NewMemoryPendingRepository()

	srv := NewHTTPServer(cfg, Services{
		Bookings:  bookings,
		Payments:  service.NewPaymentService(bookings, pending, time.Hour, &logger),
		Wallets:   service.NewWalletService(db, &logger),
		Dashboard: service.NewDashboardService(db, time.UTC, &logger),
		Outbox:    outbox,
		Limits:    pending,
	}, &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &apiEnv{db: db, bookings: bookings, clock: clock, server: srv, ts: ts}
}

func bearer(t *testing.T, userID int64) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, userID, models.RolePlayer, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func bookingPath(id int64, suffix string) string {
	return "/api/v1/bookings/" + strconv.FormatInt(id, 10) + suffix
}

func bookingRequest(player int64, start, end float64) domain.BookingRequest {
	return domain.BookingRequest{PlayerID: player, ClubID: 1, TableType: models.TableTypePool, Date: testDate, StartHour: start, EndHour: end}
}
