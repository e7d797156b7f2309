// Package notify delivers user notifications over Telegram.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cuebook/internal/events"
	"cuebook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserLookup resolves the Telegram chat of a user.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// TelegramNotifier is an outbox sink for notification events.
type TelegramNotifier struct {
	bot    Sender
	users  UserLookup
	logger *zerolog.Logger
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func NewTelegramNotifier(bot Sender, users UserLookup, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{bot: bot, users: users, logger: logger}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Accepts(eventType string) bool {
	return eventType == events.EventNotification
}

// Deliver sends the notification to the recipient's chat. Users without a
// linked chat are skipped.
func (n *TelegramNotifier) Deliver(ctx context.Context, _ string, payload []byte) error {
	var p events.NotificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}

	user, err := n.users.GetUser(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("load recipient %d: %w", p.UserID, err)
	}
	if user.TelegramChatID == 0 {
		n.logger.Debug().Int64("user_id", p.UserID).Msg("recipient has no telegram chat, skipping")
		return nil
	}

	msg := tgbotapi.NewMessage(user.TelegramChatID, formatMessage(p))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func formatMessage(p events.NotificationPayload) string {
	text := fmt.Sprintf("*%s*\n%s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, p.Title),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, p.Message))
	if p.BookingID > 0 {
		text += fmt.Sprintf("\nBooking #%d", p.BookingID)
	}
	return text
}
