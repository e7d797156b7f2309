package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "cuebook.db"), 0, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedClub creates owner 1, player 2, club 1 with pool tables 1 and 2 and
// snooker table 3, priced at 100 and 200 per hour.
func seedClub(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: 1, Name: "Owner", Role: models.RoleOwner}))
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: 2, Name: "Player", Role: models.RolePlayer}))
	require.NoError(t, db.UpsertClub(ctx, &models.Club{ID: 1, OwnerID: 1, Name: "Cue Corner", IsActive: true}))
	require.NoError(t, db.UpsertTable(ctx, &models.Table{ID: 1, ClubID: 1, Name: "P1", Type: models.TableTypePool, SortOrder: 1}))
	require.NoError(t, db.UpsertTable(ctx, &models.Table{ID: 2, ClubID: 1, Name: "P2", Type: models.TableTypePool, SortOrder: 2}))
	require.NoError(t, db.UpsertTable(ctx, &models.Table{ID: 3, ClubID: 1, Name: "S1", Type: models.TableTypeSnooker, SortOrder: 3}))
	require.NoError(t, db.UpsertRate(ctx, &models.Rate{ClubID: 1, TableType: models.TableTypePool, PricePerHour: 100}))
	require.NoError(t, db.UpsertRate(ctx, &models.Rate{ClubID: 1, TableType: models.TableTypeSnooker, PricePerHour: 200}))
}

func newBooking(tableID int64, date string, start, end float64, status string) *models.Booking {
	startsAt, _ := models.AtHour(date, start, time.UTC)
	endsAt, _ := models.AtHour(date, end, time.UTC)
	return &models.Booking{
		PlayerID:    2,
		ClubID:      1,
		TableID:     tableID,
		BookingDate: date,
		StartHour:   start,
		EndHour:     end,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Status:      status,
		TotalAmount: int64((end - start) * 100),
	}
}
