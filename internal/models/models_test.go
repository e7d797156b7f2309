package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(10, 12, 11, 13))
	assert.True(t, Overlaps(10, 12, 9, 10.5))
	assert.True(t, Overlaps(10, 12, 10, 12))
	assert.False(t, Overlaps(10, 12, 12, 14), "touching windows do not overlap")
	assert.False(t, Overlaps(10, 12, 8, 10))
}

func TestFractionalHour(t *testing.T) {
	ts := time.Date(2025, 3, 1, 14, 30, 36, 0, time.UTC)
	assert.InDelta(t, 14.51, FractionalHour(ts), 1e-9)
}

func TestAtHour(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)

	got, err := AtHour("2025-03-01", 14.5, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 14, 30, 0, 0, loc).Unix(), got.Unix())

	end, err := AtHour("2025-03-01", 24, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, loc).Unix(), end.Unix())

	_, err = AtHour("01/03/2025", 10, loc)
	assert.Error(t, err)
}

func TestBookingStatusHelpers(t *testing.T) {
	b := &Booking{Status: StatusConfirmed, StartHour: 10, EndHour: 11.5}
	assert.True(t, b.IsActive())
	assert.False(t, b.IsTerminal())
	assert.Equal(t, 1.5, b.Hours())

	b.Status = StatusPending
	assert.False(t, b.IsActive())

	b.Status = StatusCancelled
	assert.True(t, b.IsTerminal())
}

func TestValidTableType(t *testing.T) {
	assert.True(t, ValidTableType("pool"))
	assert.True(t, ValidTableType("snooker"))
	assert.False(t, ValidTableType("foosball"))
	assert.False(t, ValidTableType(""))
}

func TestFoldLedger(t *testing.T) {
	entries := []LedgerEntry{
		{EntryType: EntryEarning, Amount: 150},
		{EntryType: EntryEarning, Amount: 610},
		{EntryType: EntryRefund, Amount: 40},
		{EntryType: EntryWithdrawal, Amount: 300},
	}
	w := FoldLedger(7, entries)
	assert.Equal(t, int64(7), w.AccountID)
	assert.Equal(t, int64(760), w.TotalEarned)
	assert.Equal(t, int64(40), w.TotalRefunded)
	assert.Equal(t, int64(300), w.TotalWithdrawn)
	assert.Equal(t, int64(500), w.Balance)

	assert.Equal(t, Wallet{AccountID: 1}, FoldLedger(1, nil))
}
