package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	EventBookingUpdated      = "booking_updated"
	EventAvailabilityChanged = "availability_changed"
	EventNotification        = "notification"
	EventBookingCompleted    = "booking_completed"
	EventBookingCancelled    = "booking_cancelled"
)

// AllEventTypes is every event the engine emits.
var AllEventTypes = []string{
	EventBookingUpdated,
	EventAvailabilityChanged,
	EventNotification,
	EventBookingCompleted,
	EventBookingCancelled,
}

func ClubScope(clubID int64) string { return fmt.Sprintf("club:%d", clubID) }
func UserScope(userID int64) string { return fmt.Sprintf("user:%d", userID) }

// BookingEventPayload is the booking snapshot carried by booking_updated.
type BookingEventPayload struct {
	Scope       string  `json:"scope"`
	BookingID   int64   `json:"booking_id"`
	PlayerID    int64   `json:"player_id"`
	ClubID      int64   `json:"club_id"`
	TableID     int64   `json:"table_id"`
	Status      string  `json:"status"`
	BookingDate string  `json:"booking_date"`
	StartHour   float64 `json:"start_hour"`
	EndHour     float64 `json:"end_hour"`
	TotalAmount int64   `json:"total_amount"`
	IsWalkIn    bool    `json:"is_walk_in"`
	ChangedBy   string  `json:"changed_by,omitempty"`
	ChangedByID int64   `json:"changed_by_id,omitempty"`
}

// Availability actions.
const (
	ActionCreated   = "created"
	ActionWalkIn    = "walk_in"
	ActionCheckedIn = "checked_in"
	ActionCompleted = "completed"
	ActionCancelled = "cancelled"
)

// AvailabilityPayload tells a club's viewers which window of which table
// type changed and why.
type AvailabilityPayload struct {
	Scope       string  `json:"scope"`
	ClubID      int64   `json:"club_id"`
	TableID     int64   `json:"table_id"`
	TableType   string  `json:"table_type"`
	BookingDate string  `json:"booking_date"`
	StartHour   float64 `json:"start_hour"`
	EndHour     float64 `json:"end_hour"`
	Action      string  `json:"action"`
}

type NotificationPayload struct {
	Scope     string `json:"scope"`
	UserID    int64  `json:"user_id"`
	BookingID int64  `json:"booking_id,omitempty"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

// SettlementPayload describes the money movement of a finished booking.
type SettlementPayload struct {
	Scope           string     `json:"scope"`
	BookingID       int64      `json:"booking_id"`
	ClubID          int64      `json:"club_id"`
	PlayerID        int64      `json:"player_id"`
	AccountID       int64      `json:"account_id,omitempty"`
	Kind            string     `json:"kind"` // earning, refund or none
	Amount          int64      `json:"amount"`
	DurationMinutes int64      `json:"duration_minutes,omitempty"`
	CheckInTime     *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime    *time.Time `json:"check_out_time,omitempty"`
	Auto            bool       `json:"auto,omitempty"`
}

type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for an event type. "*" receives every type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every matching handler and joins their errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers["*"]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}
	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// Name, Accepts and Deliver let the bus act as an outbox sink.
func (b *EventBus) Name() string { return "bus" }

func (b *EventBus) Accepts(string) bool { return true }

func (b *EventBus) Deliver(_ context.Context, eventType string, payload []byte) error {
	return b.Publish(&Event{Type: eventType, Payload: payload, CreatedAt: time.Now()})
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
