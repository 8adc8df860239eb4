package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// TicketConsumer issues tickets for confirmed bookings by appending one
// line per booking to a ticket log.
type TicketConsumer struct {
	url     string
	logPath string
	log     *zap.Logger
}

// NewTicketConsumer returns a consumer writing to logs/tickets.log.
func NewTicketConsumer(url string, log *zap.Logger) *TicketConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &TicketConsumer{
		url:     url,
		logPath: filepath.Join("logs", "tickets.log"),
		log:     log.Named("ticket-consumer"),
	}
}

// StartTicketConsumer runs a TicketConsumer until ctx is cancelled.
func StartTicketConsumer(ctx context.Context, url string, log *zap.Logger) error {
	return NewTicketConsumer(url, log).Run(ctx)
}

// Run connects to RabbitMQ and consumes booking.confirmed.  The loop
// reconnects with exponential backoff and only returns once ctx is done.
func (c *TicketConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended; reconnecting", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *TicketConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(d.Body); err != nil {
				c.log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes a BookingConfirmedEvent and appends its ticket line.
func (c *TicketConsumer) HandleMessage(body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == "" {
		return errors.New("event without booking_id")
	}
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ticket log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(TicketLine(ev)); err != nil {
		return fmt.Errorf("write ticket log: %w", err)
	}
	c.log.Info("ticket issued",
		zap.String("booking_id", ev.BookingID),
		zap.String("user_id", ev.UserID),
		zap.Strings("seats", ev.Seats))
	return nil
}

// TicketLine formats the single ticket-log line of an event.
func TicketLine(ev BookingConfirmedEvent) string {
	return fmt.Sprintf("[%s] Ticket issued | booking_id=%s | user_id=%s | showtime_id=%s | movie=%q | starts_at=%s | total=%d cents | seats=[%s]\n",
		ev.ConfirmedAt, ev.BookingID, ev.UserID, ev.ShowtimeID, ev.MovieTitle, ev.StartsAt, ev.TotalAmountCents, strings.Join(ev.Seats, ","))
}
