package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Default publisher timings.
const (
	defaultPublishTimeout = 3 * time.Second
	defaultDialBackoff    = 5 * time.Second
)

// ErrBrokerBackoff is returned while the publisher waits before redialling a
// broker that just refused a connection.
var ErrBrokerBackoff = errors.New("rabbitmq unavailable, backing off")

// Publisher publishes booking events to RabbitMQ.  The connection is opened
// lazily and reopened after the broker drops it.  Every publish, dial
// included, is bounded by the caller's context and the publish timeout, and
// the mutex is never held across network I/O.
type Publisher struct {
	url string
	log *zap.Logger

	timeout time.Duration
	backoff time.Duration
	now     func() time.Time

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	dialAfter time.Time
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		url:     url,
		log:     log.Named("publisher"),
		timeout: defaultPublishTimeout,
		backoff: defaultDialBackoff,
		now:     time.Now,
	}
}

// BookingConfirmed publishes a BookingConfirmedEvent.
func (p *Publisher) BookingConfirmed(ctx context.Context, b *model.Booking, show *model.Showtime) error {
	return p.Publish(ctx, BookingConfirmedQueue, NewBookingConfirmedEvent(b, show))
}

// BookingCancelled publishes a BookingCancelledEvent.
func (p *Publisher) BookingCancelled(ctx context.Context, b *model.Booking, reason string) error {
	return p.Publish(ctx, BookingCancelledQueue, NewBookingCancelledEvent(b, reason))
}

// Publish marshals event and sends it as a persistent message to the named
// durable queue through the default exchange.
func (p *Publisher) Publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("marshal event failed", zap.String("queue", queue), zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ch, err := p.channel(ctx)
	if err != nil {
		p.log.Warn("rabbitmq unavailable", zap.String("queue", queue), zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.String("queue", queue), zap.Error(err))
		p.drop(ch)
		return err
	}
	return nil
}

// channel returns an open channel, dialling and declaring the queues when
// needed.  A failed dial makes later calls fail fast until the backoff ends.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.open() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.now().Before(p.dialAfter) {
		p.mu.Unlock()
		return nil, ErrBrokerBackoff
	}
	p.mu.Unlock()

	conn, ch, err := p.connect(ctx)
	if err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			p.mu.Lock()
			p.dialAfter = p.now().Add(p.backoff)
			p.mu.Unlock()
		}
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open() {
		// another publish connected first
		_ = ch.Close()
		_ = conn.Close()
		return p.ch, nil
	}
	p.reset()
	p.conn, p.ch = conn, ch
	p.dialAfter = time.Time{}
	return ch, nil
}

func (p *Publisher) connect(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial: func(network, addr string) (net.Conn, error) {
			return dialContext(ctx, network, addr)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareQueues(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// dialContext opens a TCP connection bound to ctx and carries the context
// deadline onto the socket for the AMQP handshake; amqp clears it once the
// connection is established.
func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (p *Publisher) open() bool {
	return p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed()
}

// drop discards ch if it is still the current channel.
func (p *Publisher) drop(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		p.reset()
	}
}

// reset closes the current connection.  Callers hold p.mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close closes the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	var errs []error
	for _, name := range []string{BookingConfirmedQueue, BookingCancelledQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			errs = append(errs, fmt.Errorf("queue declare %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
