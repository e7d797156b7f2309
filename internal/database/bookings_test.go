package database

import (
	"context"
	"testing"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDate = "2030-05-10"

func TestInsertAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()

	b := newBooking(1, testDate, 10, 11.5, models.StatusConfirmed)
	b.Note = "birthday"
	require.NoError(t, db.InsertBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, testDate, got.BookingDate)
	assert.Equal(t, 10.0, got.StartHour)
	assert.Equal(t, 11.5, got.EndHour)
	assert.Equal(t, b.StartsAt.Unix(), got.StartsAt.Unix())
	assert.Equal(t, b.EndsAt.Unix(), got.EndsAt.Unix())
	assert.Nil(t, got.CheckInTime)
	assert.Equal(t, "birthday", got.Note)

	_, err = db.GetBooking(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateBookingVersionCheck(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()

	b := newBooking(1, testDate, 10, 12, models.StatusConfirmed)
	require.NoError(t, db.InsertBooking(ctx, b))

	stale := *b

	checkIn := time.Date(2030, 5, 10, 10, 0, 0, 0, time.UTC)
	b.Status = models.StatusCheckedIn
	b.CheckInTime = &checkIn
	require.NoError(t, db.UpdateBooking(ctx, b))
	assert.Equal(t, int64(2), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedIn, got.Status)
	require.NotNil(t, got.CheckInTime)
	assert.True(t, checkIn.Equal(*got.CheckInTime))

	stale.Status = models.StatusCancelled
	err = db.UpdateBooking(ctx, &stale)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
}

func TestBusyTableIDs(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()

	require.NoError(t, db.InsertBooking(ctx, newBooking(1, testDate, 10, 12, models.StatusConfirmed)))
	require.NoError(t, db.InsertBooking(ctx, newBooking(2, testDate, 14, 15, models.StatusPending)))
	require.NoError(t, db.InsertBooking(ctx, newBooking(3, testDate, 10, 12, models.StatusCancelled)))

	active := []string{models.StatusConfirmed, models.StatusCheckedIn}
	counted := []string{models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn}

	busy, err := db.BusyTableIDs(ctx, 1, testDate, 11, 13, active)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true}, busy)

	busy, err = db.BusyTableIDs(ctx, 1, testDate, 12, 14, counted)
	require.NoError(t, err)
	assert.Empty(t, busy, "touching windows are free")

	busy, err = db.BusyTableIDs(ctx, 1, testDate, 14.5, 16, counted)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{2: true}, busy)

	busy, err = db.BusyTableIDs(ctx, 1, "2030-05-11", 10, 12, counted)
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestBusyTableIDsOpenWalkIn(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()

	walkIn := newBooking(1, testDate, 14, 15, models.StatusCheckedIn)
	walkIn.IsWalkIn = true
	require.NoError(t, db.InsertBooking(ctx, walkIn))

	busy, err := db.BusyTableIDs(ctx, 1, testDate, 18, 20, []string{models.StatusConfirmed, models.StatusCheckedIn})
	require.NoError(t, err)
	assert.True(t, busy[1], "an open walk-in holds its table past the provisional end")

	busy, err = db.BusyTableIDs(ctx, 1, testDate, 9, 10, []string{models.StatusConfirmed, models.StatusCheckedIn})
	require.NoError(t, err)
	assert.False(t, busy[1])

	busy, err = db.BusyTableIDs(ctx, 1, "2030-05-11", 0, 2, []string{models.StatusConfirmed, models.StatusCheckedIn})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true}, busy, "a session left open overnight holds its table the next day")

	busy, err = db.BusyTableIDs(ctx, 1, "2030-05-09", 20, 22, []string{models.StatusConfirmed, models.StatusCheckedIn})
	require.NoError(t, err)
	assert.Empty(t, busy)

	// closed sessions and scheduled bookings from earlier dates free the table
	walkIn.Status = models.StatusCompleted
	require.NoError(t, db.UpdateBooking(ctx, walkIn))
	require.NoError(t, db.InsertBooking(ctx, newBooking(2, testDate, 22, 24, models.StatusCheckedIn)))

	busy, err = db.BusyTableIDs(ctx, 1, "2030-05-11", 0, 2, []string{models.StatusConfirmed, models.StatusCheckedIn})
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestRefreshTableStatus(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()
	now := time.Date(2030, 5, 10, 9, 0, 0, 0, time.UTC)

	status := func() string {
		tbl, err := db.GetTable(ctx, 1)
		require.NoError(t, err)
		return tbl.Status
	}

	b := newBooking(1, testDate, 10, 12, models.StatusConfirmed)
	require.NoError(t, db.InsertBooking(ctx, b))
	require.NoError(t, db.RefreshTableStatus(ctx, 1, testDate, now))
	assert.Equal(t, models.TableReserved, status())

	b.Status = models.StatusCheckedIn
	require.NoError(t, db.UpdateBooking(ctx, b))
	require.NoError(t, db.RefreshTableStatus(ctx, 1, testDate, now))
	assert.Equal(t, models.TableOccupied, status())

	b.Status = models.StatusCompleted
	require.NoError(t, db.UpdateBooking(ctx, b))
	require.NoError(t, db.RefreshTableStatus(ctx, 1, testDate, now))
	assert.Equal(t, models.TableAvailable, status())
}

func TestListDueQueries(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()
	now := time.Date(2030, 5, 10, 11, 0, 0, 0, time.UTC)

	started := newBooking(1, testDate, 10, 12, models.StatusConfirmed)
	ended := newBooking(2, testDate, 8, 10, models.StatusConfirmed)
	playing := newBooking(3, testDate, 9, 10.5, models.StatusCheckedIn)
	walkIn := newBooking(3, testDate, 7, 8, models.StatusCheckedIn)
	walkIn.IsWalkIn = true
	future := newBooking(1, testDate, 13, 14, models.StatusConfirmed)
	for _, b := range []*models.Booking{started, ended, playing, walkIn, future} {
		require.NoError(t, db.InsertBooking(ctx, b))
	}

	due, err := db.ListDueForCheckIn(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{started.ID}, due)

	done, err := db.ListDueForCompletion(ctx, now, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{ended.ID, playing.ID}, done)

	limited, err := db.ListDueForCompletion(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{ended.ID}, limited)
}

func TestListCompletedBookings(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()

	in := time.Date(2030, 5, 10, 10, 0, 0, 0, time.UTC)
	out := in.Add(90 * time.Minute)
	b := newBooking(1, testDate, 10, 11.5, models.StatusCompleted)
	b.CheckInTime, b.CheckOutTime = &in, &out
	require.NoError(t, db.InsertBooking(ctx, b))
	require.NoError(t, db.InsertBooking(ctx, newBooking(2, testDate, 10, 11, models.StatusConfirmed)))

	from := time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC)
	list, err := db.ListCompletedBookings(ctx, 1, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	list, err = db.ListCompletedBookings(ctx, 1, from.AddDate(0, 0, 1), from.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, list)

	mine, err := db.ListPlayerBookings(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestWithTxRollback(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()

	var id int64
	err := db.WithTx(ctx, func(tx domain.Tx) error {
		b := newBooking(1, testDate, 10, 11, models.StatusConfirmed)
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		id = b.ID
		return domain.ErrNoTableAvailable
	})
	assert.ErrorIs(t, err, domain.ErrNoTableAvailable)

	_, err = db.GetBooking(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog(t *testing.T) {
	db := setupTestDB(t)
	seedClub(t, db)
	ctx := context.Background()

	tables, err := db.ListTables(ctx, 1, models.TableTypePool)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, int64(1), tables[0].ID)
	assert.Equal(t, int64(2), tables[1].ID)

	all, err := db.ListTables(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rate, err := db.GetRate(ctx, 1, models.TableTypeSnooker)
	require.NoError(t, err)
	assert.Equal(t, int64(200), rate.PricePerHour)

	_, err = db.GetRate(ctx, 1, models.TableTypeCarom)
	assert.ErrorIs(t, err, domain.ErrRateNotConfigured)

	_, err = db.GetClub(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	user, err := db.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, user.Role)
}
