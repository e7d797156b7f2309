package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"
)

const bookingColumns = `id, player_id, club_id, table_id, booking_date, start_hour, end_hour,
        starts_at, ends_at, check_in_time, check_out_time, status, total_amount,
        is_walk_in, note, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (*models.Booking, error) {
	var (
		b                 models.Booking
		startsAt, endsAt  int64
		checkIn, checkOut sql.NullInt64
	)
	err := s.Scan(
		&b.ID, &b.PlayerID, &b.ClubID, &b.TableID, &b.BookingDate, &b.StartHour, &b.EndHour,
		&startsAt, &endsAt, &checkIn, &checkOut, &b.Status, &b.TotalAmount,
		&b.IsWalkIn, &b.Note, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.StartsAt = time.Unix(startsAt, 0).UTC()
	b.EndsAt = time.Unix(endsAt, 0).UTC()
	b.CheckInTime = fromMillis(checkIn)
	b.CheckOutTime = fromMillis(checkOut)
	return &b, nil
}

func (q *Queries) listBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (q *Queries) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return b, nil
}

func (q *Queries) InsertBooking(ctx context.Context, b *models.Booking) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = utcNow()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	b.Version = 1

	result, err := q.q.ExecContext(ctx, `INSERT INTO bookings (
            player_id, club_id, table_id, booking_date, start_hour, end_hour,
            starts_at, ends_at, check_in_time, check_out_time, status, total_amount,
            is_walk_in, note, created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.PlayerID, b.ClubID, b.TableID, b.BookingDate, b.StartHour, b.EndHour,
		b.StartsAt.Unix(), b.EndsAt.Unix(), toMillis(b.CheckInTime), toMillis(b.CheckOutTime),
		b.Status, b.TotalAmount, b.IsWalkIn, b.Note, b.CreatedAt.UTC(), b.UpdatedAt.UTC(), b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	return nil
}

func (q *Queries) UpdateBooking(ctx context.Context, b *models.Booking) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = utcNow()
	}
	result, err := q.q.ExecContext(ctx, `UPDATE bookings SET
            end_hour = ?, ends_at = ?, check_in_time = ?, check_out_time = ?,
            status = ?, total_amount = ?, note = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND version = ?`,
		b.EndHour, b.EndsAt.Unix(), toMillis(b.CheckInTime), toMillis(b.CheckOutTime),
		b.Status, b.TotalAmount, b.Note, b.UpdatedAt.UTC(),
		b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("booking %d version %d: %w", b.ID, b.Version, domain.ErrConcurrentModification)
	}
	b.Version++
	return nil
}

// BusyTableIDs treats an open walk-in session as holding its table until it
// is closed, since its end is not known yet. A session opened on an earlier
// date still holds the table on date.
func (q *Queries) BusyTableIDs(
	ctx context.Context, clubID int64, date string, start, end float64, statuses []string,
) (map[int64]bool, error) {
	busy := make(map[int64]bool)
	if len(statuses) == 0 {
		return busy, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := `SELECT DISTINCT table_id FROM bookings
        WHERE club_id = ? AND status IN (` + placeholders + `)
        AND (
            (booking_date = ? AND start_hour < ? AND (end_hour > ? OR (is_walk_in = 1 AND status = ?)))
            OR (booking_date < ? AND is_walk_in = 1 AND status = ?)
        )`

	args := make([]any, 0, len(statuses)+7)
	args = append(args, clubID)
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, date, end, start, models.StatusCheckedIn, date, models.StatusCheckedIn)

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query busy tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan busy table: %w", err)
		}
		busy[id] = true
	}
	return busy, rows.Err()
}

func (q *Queries) RefreshTableStatus(ctx context.Context, tableID int64, today string, now time.Time) error {
	var occupied, reserved bool
	err := q.q.QueryRowContext(ctx, `SELECT
            EXISTS (SELECT 1 FROM bookings WHERE table_id = ? AND status = ?),
            EXISTS (SELECT 1 FROM bookings WHERE table_id = ? AND status = ? AND booking_date = ? AND ends_at > ?)`,
		tableID, models.StatusCheckedIn,
		tableID, models.StatusConfirmed, today, now.Unix(),
	).Scan(&occupied, &reserved)
	if err != nil {
		return fmt.Errorf("failed to derive table status: %w", err)
	}

	status := models.TableAvailable
	switch {
	case occupied:
		status = models.TableOccupied
	case reserved:
		status = models.TableReserved
	}

	if _, err := q.q.ExecContext(ctx, `UPDATE club_tables SET status = ? WHERE id = ?`, status, tableID); err != nil {
		return fmt.Errorf("failed to update table status: %w", err)
	}
	return nil
}

// ListDueForCheckIn returns confirmed bookings whose window has started but
// not ended and that nobody has checked in.
func (q *Queries) ListDueForCheckIn(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	return q.listIDs(ctx, `SELECT id FROM bookings
        WHERE status = ? AND check_in_time IS NULL AND starts_at <= ? AND ends_at > ?
        ORDER BY starts_at, id LIMIT ?`,
		models.StatusConfirmed, now.Unix(), now.Unix(), limit)
}

// ListDueForCompletion returns scheduled bookings whose window has ended.
// Walk-ins are open-ended and never listed.
func (q *Queries) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	return q.listIDs(ctx, `SELECT id FROM bookings
        WHERE status IN (?, ?) AND is_walk_in = 0 AND ends_at <= ?
        ORDER BY ends_at, id LIMIT ?`,
		models.StatusConfirmed, models.StatusCheckedIn, now.Unix(), limit)
}

func (q *Queries) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan booking id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListCompletedBookings returns bookings of a club checked out in [from, to).
func (q *Queries) ListCompletedBookings(ctx context.Context, clubID int64, from, to time.Time) ([]*models.Booking, error) {
	return q.listBookings(ctx, `SELECT `+bookingColumns+` FROM bookings
        WHERE club_id = ? AND status = ? AND check_out_time >= ? AND check_out_time < ?
        ORDER BY check_out_time, id`,
		clubID, models.StatusCompleted, from.UnixMilli(), to.UnixMilli())
}

func (q *Queries) ListPlayerBookings(ctx context.Context, playerID int64, limit int) ([]*models.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.listBookings(ctx, `SELECT `+bookingColumns+` FROM bookings
        WHERE player_id = ? ORDER BY starts_at DESC, id DESC LIMIT ?`, playerID, limit)
}
