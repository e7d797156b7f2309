package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cuebook/internal/domain"
	"cuebook/internal/models"
)

const paymentColumns = `id, order_code, booking_id, player_id, club_id, amount, status, type, created_at, paid_at`

func scanPayment(s rowScanner) (*models.Payment, error) {
	var (
		p         models.Payment
		bookingID sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.OrderCode, &bookingID, &p.PlayerID, &p.ClubID,
		&p.Amount, &p.Status, &p.Type, &p.CreatedAt, &p.PaidAt); err != nil {
		return nil, err
	}
	if bookingID.Valid {
		p.BookingID = &bookingID.Int64
	}
	return &p, nil
}

func (q *Queries) GetPaymentByOrderCode(ctx context.Context, orderCode string) (*models.Payment, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_code = ?`, orderCode)
	p, err := scanPayment(row)
	if err != nil {
		return nil, notFound(err, "payment", orderCode)
	}
	return p, nil
}

func (q *Queries) GetPaidBookingPayment(ctx context.Context, bookingID int64) (*models.Payment, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments
        WHERE booking_id = ? AND type = ? AND status = ? ORDER BY id LIMIT 1`,
		bookingID, models.PaymentTypeBooking, models.PaymentPaid)
	p, err := scanPayment(row)
	if err != nil {
		return nil, notFound(err, "paid payment for booking", bookingID)
	}
	return p, nil
}

func (q *Queries) InsertPayment(ctx context.Context, p *models.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utcNow()
	}
	result, err := q.q.ExecContext(ctx, `INSERT INTO payments
        (order_code, booking_id, player_id, club_id, amount, status, type, created_at, paid_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrderCode, p.BookingID, p.PlayerID, p.ClubID, p.Amount, p.Status, p.Type, p.CreatedAt.UTC(), p.PaidAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("payment %s: %w", p.OrderCode, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

func (q *Queries) UpdatePayment(ctx context.Context, p *models.Payment) error {
	result, err := q.q.ExecContext(ctx, `UPDATE payments
        SET booking_id = ?, amount = ?, status = ?, paid_at = ? WHERE id = ?`,
		p.BookingID, p.Amount, p.Status, p.PaidAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("payment %d: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// AppendLedger writes one wallet movement. A repeated idempotency key is
// reported as ErrConflict and leaves the ledger unchanged.
func (q *Queries) AppendLedger(ctx context.Context, e *models.LedgerEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utcNow()
	}
	if e.Amount < 0 {
		return fmt.Errorf("%w: negative ledger amount", domain.ErrInvalidInput)
	}

	result, err := q.q.ExecContext(ctx, `INSERT INTO wallet_ledger
        (account_id, booking_id, payment_id, entry_type, amount, idempotency_key, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.AccountID, e.BookingID, e.PaymentID, e.EntryType, e.Amount, e.IdempotencyKey, e.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("ledger key %s: %w", e.IdempotencyKey, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

func (q *Queries) ListLedger(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, account_id, booking_id, payment_id, entry_type,
        amount, idempotency_key, created_at FROM wallet_ledger WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e                    models.LedgerEntry
			bookingID, paymentID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &bookingID, &paymentID, &e.EntryType,
			&e.Amount, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if bookingID.Valid {
			e.BookingID = &bookingID.Int64
		}
		if paymentID.Valid {
			e.PaymentID = &paymentID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *Queries) HasLedgerKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_ledger WHERE idempotency_key = ?)`, key).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check ledger key: %w", err)
	}
	return exists, nil
}
