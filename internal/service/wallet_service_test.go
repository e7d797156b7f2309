package service

import (
	"context"
	"testing"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletService(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	wallets := NewWalletService(env.db, nil)

	w, err := wallets.GetWallet(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, w.Balance)

	_, err = wallets.Withdraw(ctx, 1, 10)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))

	b, err := env.svc.CreateBooking(ctx, poolRequest(2, 10, 12))
	require.NoError(t, err)
	env.clock.Set(12, 30, 0)
	require.NoError(t, env.svc.AutoComplete(ctx, b.ID))

	w, err = wallets.GetWallet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), w.TotalEarned)
	assert.Equal(t, int64(200), w.Balance)

	w, err = wallets.Withdraw(ctx, 1, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(50), w.Balance)
	assert.Equal(t, int64(150), w.TotalWithdrawn)

	_, err = wallets.Withdraw(ctx, 1, 51)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = wallets.Withdraw(ctx, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	entries, err := wallets.ListLedger(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntryWithdrawal, entries[1].EntryType)
}
