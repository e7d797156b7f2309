// Package seed loads catalog fixtures (users, clubs, tables, rates) from YAML.
package seed

import (
	"context"
	"fmt"
	"os"

	"cuebook/internal/models"

	"gopkg.in/yaml.v2"
)

type File struct {
	Users []User `yaml:"users"`
	Clubs []Club `yaml:"clubs"`
}

type User struct {
	ID             int64  `yaml:"id"`
	Name           string `yaml:"name"`
	Role           string `yaml:"role"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type Club struct {
	ID      int64            `yaml:"id"`
	OwnerID int64            `yaml:"owner_id"`
	Name    string           `yaml:"name"`
	Active  bool             `yaml:"active"`
	Rates   map[string]int64 `yaml:"rates"`
	Tables  []Table          `yaml:"tables"`
}

type Table struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	SortOrder int    `yaml:"sort_order"`
}

// Store is the write side the loader needs.
type Store interface {
	UpsertUser(ctx context.Context, u *models.User) error
	UpsertClub(ctx context.Context, c *models.Club) error
	UpsertTable(ctx context.Context, t *models.Table) error
	UpsertRate(ctx context.Context, r *models.Rate) error
}

// Summary counts the rows written by Apply.
type Summary struct {
	Users  int
	Clubs  int
	Tables int
	Rates  int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Validate() error {
	users := make(map[int64]bool, len(f.Users))
	for _, u := range f.Users {
		if u.ID <= 0 {
			return fmt.Errorf("user %q has no id", u.Name)
		}
		if u.Role != models.RolePlayer && u.Role != models.RoleOwner {
			return fmt.Errorf("user %d has unknown role %q", u.ID, u.Role)
		}
		users[u.ID] = true
	}

	tables := make(map[int64]bool)
	for _, c := range f.Clubs {
		if c.ID <= 0 {
			return fmt.Errorf("club %q has no id", c.Name)
		}
		if !users[c.OwnerID] {
			return fmt.Errorf("club %d owner %d is not a seeded user", c.ID, c.OwnerID)
		}
		for typ, price := range c.Rates {
			if !models.ValidTableType(typ) {
				return fmt.Errorf("club %d has a rate for unknown table type %q", c.ID, typ)
			}
			if price <= 0 {
				return fmt.Errorf("club %d rate for %s must be positive", c.ID, typ)
			}
		}
		for _, t := range c.Tables {
			if t.ID <= 0 || tables[t.ID] {
				return fmt.Errorf("club %d table %q needs a unique id", c.ID, t.Name)
			}
			tables[t.ID] = true
			if !models.ValidTableType(t.Type) {
				return fmt.Errorf("table %d has unknown type %q", t.ID, t.Type)
			}
		}
	}
	return nil
}

// Apply upserts every row, so running it twice leaves the same catalog.
func (f *File) Apply(ctx context.Context, store Store) (Summary, error) {
	var s Summary
	for _, u := range f.Users {
		if err := store.UpsertUser(ctx, &models.User{ID: u.ID, Name: u.Name, Role: u.Role, TelegramChatID: u.TelegramChatID}); err != nil {
			return s, err
		}
		s.Users++
	}
	for _, c := range f.Clubs {
		if err := store.UpsertClub(ctx, &models.Club{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name, IsActive: c.Active}); err != nil {
			return s, err
		}
		s.Clubs++
		for _, typ := range models.TableTypes {
			price, ok := c.Rates[typ]
			if !ok {
				continue
			}
			if err := store.UpsertRate(ctx, &models.Rate{ClubID: c.ID, TableType: typ, PricePerHour: price}); err != nil {
				return s, err
			}
			s.Rates++
		}
		for _, t := range c.Tables {
			table := &models.Table{ID: t.ID, ClubID: c.ID, Name: t.Name, Type: t.Type, SortOrder: t.SortOrder}
			if err := store.UpsertTable(ctx, table); err != nil {
				return s, err
			}
			s.Tables++
		}
	}
	return s, nil
}
