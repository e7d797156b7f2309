package models

import "time"

type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Club struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"owner_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type Table struct {
	ID        int64  `json:"id"`
	ClubID    int64  `json:"club_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	SortOrder int    `json:"sort_order"`
}

// Rate is the hourly price of a table type in a club, in minor units.
type Rate struct {
	ClubID       int64  `json:"club_id"`
	TableType    string `json:"table_type"`
	PricePerHour int64  `json:"price_per_hour"`
}

// TypeAvailability is the free capacity of one table type in a window.
type TypeAvailability struct {
	TableType string `json:"table_type"`
	Total     int    `json:"total"`
	Free      int    `json:"free"`
}
