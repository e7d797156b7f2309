package service

import (
	"context"
	"fmt"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type WalletService struct {
	store  domain.Store
	logger *zerolog.Logger
	now    func() time.Time
}

func NewWalletService(store domain.Store, logger *zerolog.Logger) *WalletService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WalletService{store: store, logger: logger, now: time.Now}
}

func (s *WalletService) GetWallet(ctx context.Context, accountID int64) (*models.Wallet, error) {
	entries, err := s.ListLedger(ctx, accountID)
	if err != nil {
		return nil, err
	}
	w := models.FoldLedger(accountID, entries)
	return &w, nil
}

func (s *WalletService) ListLedger(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	if accountID <= 0 {
		return nil, fmt.Errorf("%w: account is required", domain.ErrInvalidInput)
	}
	return s.store.ListLedger(ctx, accountID)
}

// Withdraw pays out part of an account balance. The balance is re-read inside
// the transaction so two withdrawals cannot both spend the same funds.
func (s *WalletService) Withdraw(ctx context.Context, accountID, amount int64) (*models.Wallet, error) {
	if accountID <= 0 || amount <= 0 {
		return nil, fmt.Errorf("%w: account and a positive amount are required", domain.ErrInvalidInput)
	}

	var wallet models.Wallet
	err := s.store.WithTx(ctx, func(tx domain.Tx) error {
		entries, err := tx.ListLedger(ctx, accountID)
		if err != nil {
			return err
		}
		wallet = models.FoldLedger(accountID, entries)
		if wallet.Balance < amount {
			return fmt.Errorf("balance %d, requested %d: %w", wallet.Balance, amount, domain.ErrInsufficientFunds)
		}

		entry := &models.LedgerEntry{
			AccountID:      accountID,
			EntryType:      models.EntryWithdrawal,
			Amount:         amount,
			IdempotencyKey: fmt.Sprintf("withdrawal:%d:%s", accountID, uuid.NewString()),
			CreatedAt:      s.now(),
		}
		if err := tx.AppendLedger(ctx, entry); err != nil {
			return err
		}
		wallet = models.FoldLedger(accountID, append(entries, *entry))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("account_id", accountID).Int64("amount", amount).Msg("withdrawal recorded")
	return &wallet, nil
}
