// Package consumer listens for payment gateway outcomes on the broker.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// PaymentPaidKey is the routing key gateways publish settled orders under.
const PaymentPaidKey = "payment.paid"

const maxBackoff = 30 * time.Second

// PaymentConsumer feeds payment.paid messages into the payment service.
// Messages are acked once the outcome is applied, including business
// rejections the gateway cannot fix by resending. Undecodable messages and
// internal failures are rejected without requeue.
type PaymentConsumer struct {
	url      string
	exchange string
	queue    string
	payments domain.PaymentService
	logger   *zerolog.Logger
}

func NewPaymentConsumer(url, exchange, queue string, payments domain.PaymentService, logger *zerolog.Logger) *PaymentConsumer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PaymentConsumer{url: url, exchange: exchange, queue: queue, payments: payments, logger: logger}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.session(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *PaymentConsumer) session(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.logger.Warn().Err(err).Msg("set QoS failed")
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(c.queue, PaymentPaidKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.logger.Info().Str("queue", c.queue).Str("exchange", c.exchange).Msg("payment consumer started")
	return c.consume(ctx, msgs)
}

func (c *PaymentConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("payment message rejected")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *PaymentConsumer) handle(ctx context.Context, body []byte) error {
	var msg domain.PaymentConfirmation
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.Status == "" {
		msg.Status = models.PaymentPaid
	}

	booking, err := c.payments.ConfirmPayment(ctx, msg)
	switch domain.KindOf(err) {
	case "":
		ev := c.logger.Info().Str("order_code", msg.OrderCode)
		if booking != nil {
			ev = ev.Int64("booking_id", booking.ID)
		}
		ev.Msg("payment applied")
		return nil
	case domain.KindInternal, domain.KindValidation:
		return err
	default:
		c.logger.Warn().Err(err).Str("order_code", msg.OrderCode).Msg("payment applied without booking")
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
