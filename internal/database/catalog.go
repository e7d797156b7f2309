package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cuebook/internal/domain"
	"cuebook/internal/models"
)

func (q *Queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, role, telegram_chat_id, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Role, &u.TelegramChatID, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (q *Queries) GetClub(ctx context.Context, id int64) (*models.Club, error) {
	var c models.Club
	err := q.q.QueryRowContext(ctx,
		`SELECT id, owner_id, name, is_active FROM clubs WHERE id = ?`, id,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.IsActive)
	if err != nil {
		return nil, notFound(err, "club", id)
	}
	return &c, nil
}

func (q *Queries) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	var t models.Table
	err := q.q.QueryRowContext(ctx,
		`SELECT id, club_id, name, type, status, sort_order FROM club_tables WHERE id = ?`, id,
	).Scan(&t.ID, &t.ClubID, &t.Name, &t.Type, &t.Status, &t.SortOrder)
	if err != nil {
		return nil, notFound(err, "table", id)
	}
	return &t, nil
}

func (q *Queries) ListTables(ctx context.Context, clubID int64, tableType string) ([]*models.Table, error) {
	query := `SELECT id, club_id, name, type, status, sort_order FROM club_tables WHERE club_id = ?`
	args := []any{clubID}
	if tableType != "" {
		query += ` AND type = ?`
		args = append(args, tableType)
	}
	query += ` ORDER BY sort_order, id`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.ID, &t.ClubID, &t.Name, &t.Type, &t.Status, &t.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, &t)
	}
	return tables, rows.Err()
}

func (q *Queries) GetRate(ctx context.Context, clubID int64, tableType string) (*models.Rate, error) {
	r := models.Rate{ClubID: clubID, TableType: tableType}
	err := q.q.QueryRowContext(ctx,
		`SELECT price_per_hour FROM rates WHERE club_id = ? AND type = ?`, clubID, tableType,
	).Scan(&r.PricePerHour)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("club %d type %s: %w", clubID, tableType, domain.ErrRateNotConfigured)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	return &r, nil
}

// The upserts below are used by the seed loader; the engine itself never
// writes catalog rows.

func (q *Queries) UpsertUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = utcNow()
	}
	_, err := q.q.ExecContext(ctx, `INSERT INTO users (id, name, role, telegram_chat_id, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role,
            telegram_chat_id = excluded.telegram_chat_id`,
		u.ID, u.Name, u.Role, u.TelegramChatID, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
	}
	return nil
}

func (q *Queries) UpsertClub(ctx context.Context, c *models.Club) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO clubs (id, owner_id, name, is_active)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, name = excluded.name,
            is_active = excluded.is_active`,
		c.ID, c.OwnerID, c.Name, c.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert club %d: %w", c.ID, err)
	}
	return nil
}

func (q *Queries) UpsertTable(ctx context.Context, t *models.Table) error {
	if t.Status == "" {
		t.Status = models.TableAvailable
	}
	_, err := q.q.ExecContext(ctx, `INSERT INTO club_tables (id, club_id, name, type, status, sort_order)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET club_id = excluded.club_id, name = excluded.name,
            type = excluded.type, sort_order = excluded.sort_order`,
		t.ID, t.ClubID, t.Name, t.Type, t.Status, t.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to upsert table %d: %w", t.ID, err)
	}
	return nil
}

func (q *Queries) UpsertRate(ctx context.Context, r *models.Rate) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO rates (club_id, type, price_per_hour)
        VALUES (?, ?, ?)
        ON CONFLICT(club_id, type) DO UPDATE SET price_per_hour = excluded.price_per_hour`,
		r.ClubID, r.TableType, r.PricePerHour)
	if err != nil {
		return fmt.Errorf("failed to upsert rate %d/%s: %w", r.ClubID, r.TableType, err)
	}
	return nil
}
