// Package service implements the booking engine: seat reservation, the
// booking lifecycle, payment correlation, provisioning and the read side.
// Every state change runs inside a per-showtime unit of work of the
// repository.Store; gateway calls and notifications happen outside it.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// Config carries the engine's tunables.
type Config struct {
	// HoldTTL is the hold duration when a request does not name one.
	HoldTTL time.Duration
	// LockTimeout bounds the wait for a showtime's lock.
	LockTimeout time.Duration
	// CancelCutoff closes self-service cancellation of paid or paying
	// bookings this long before the showtime starts.
	CancelCutoff time.Duration
	Currency     string
	SuccessURL   string
	CancelURL    string
}

// DefaultConfig returns the defaults used when the environment sets nothing.
func DefaultConfig() Config {
	return Config{
		HoldTTL:      10 * time.Minute,
		LockTimeout:  5 * time.Second,
		CancelCutoff: 2 * time.Hour,
		Currency:     "inr",
		SuccessURL:   "http://localhost:3000/bookings/success",
		CancelURL:    "http://localhost:3000/bookings/cancel",
	}
}

// Engine is the booking engine.
type Engine struct {
	store    repository.Store
	catalog  repository.Catalog
	gateway  payment.Gateway
	notifier Notifier
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithNotifier sets the notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine.  Zero config fields take their defaults.
func NewEngine(store repository.Store, catalog repository.Catalog, gateway payment.Gateway, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = def.HoldTTL
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.CancelCutoff < 0 {
		cfg.CancelCutoff = 0
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = def.SuccessURL
	}
	if cfg.CancelURL == "" {
		cfg.CancelURL = def.CancelURL
	}
	e := &Engine{
		store:    store,
		catalog:  catalog,
		gateway:  gateway,
		notifier: NopNotifier{},
		log:      zap.NewNop(),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) clock() time.Time { return e.now().UTC() }

// withShowtime runs fn in the showtime's unit of work, giving up on the lock
// after LockTimeout.
func (e *Engine) withShowtime(ctx context.Context, showtimeID string, fn func(tx repository.ShowtimeTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	defer cancel()
	return e.store.WithShowtime(ctx, showtimeID, fn)
}

// ownedBooking reads a committed booking and hides it from other users.  An
// empty userID is administrative access.
func (e *Engine) ownedBooking(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	b, err := e.store.Booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != "" && b.UserID != userID {
		return nil, model.ErrBookingNotFound
	}
	return b, nil
}

// releaseBookingSeats returns every seat held or booked under bookingID to
// AVAILABLE.  seats is updated in place; the changed seats are returned.
func releaseBookingSeats(seats []model.Seat, bookingID string, now time.Time) []model.Seat {
	var changed []model.Seat
	for i := range seats {
		if seats[i].HeldBy(bookingID) {
			seats[i].Release(now)
			changed = append(changed, seats[i])
		}
	}
	return changed
}

// holdsValid reports whether every seat of b is HELD under b with an
// unexpired hold.
func holdsValid(seats []model.Seat, b *model.Booking, now time.Time) bool {
	byCode := make(map[string]model.Seat, len(seats))
	for _, s := range seats {
		byCode[s.Code] = s
	}
	for _, code := range b.Seats {
		s, ok := byCode[code]
		if !ok || s.Status != model.SeatHeld || s.HolderBookingID != b.ID || s.HoldLapsed(now) {
			return false
		}
	}
	return true
}

// cancelTx moves b to CANCELLED, releases its seats and resolves a pending
// correlation as CANCELLED.  It returns the number of released seats and
// whether an open checkout session was abandoned.
func cancelTx(ctx context.Context, tx repository.ShowtimeTx, b *model.Booking, seats []model.Seat, reason string, now time.Time) (int, bool, error) {
	if err := b.Transition(model.BookingCancelled, reason, now); err != nil {
		return 0, false, err
	}
	released := releaseBookingSeats(seats, b.ID, now)
	if len(released) > 0 {
		if err := tx.SaveSeats(ctx, released); err != nil {
			return 0, false, err
		}
	}
	openSession := false
	if b.CorrelationID != "" {
		c, err := tx.Correlation(ctx, b.CorrelationID)
		switch {
		case errors.Is(err, model.ErrUnknownCorrelation):
		case err != nil:
			return 0, false, err
		case c.Resolve(model.OutcomeCancelled, now):
			openSession = true
			if err := tx.SaveCorrelation(ctx, c); err != nil {
				return 0, false, err
			}
		}
	}
	if err := tx.SaveBooking(ctx, b); err != nil {
		return 0, false, err
	}
	return len(released), openSession, nil
}

// expireSessions closes checkout sessions after a commit.  Failures are
// logged only; an open session for a cancelled booking is refunded if it
// is ever paid.
func (e *Engine) expireSessions(ctx context.Context, sessionIDs []string) {
	for _, id := range sessionIDs {
		if err := e.gateway.ExpireCheckoutSession(ctx, id); err != nil {
			e.log.Warn("expire checkout session failed", zap.String("correlation_id", id), zap.Error(err))
		}
	}
}

func (e *Engine) refund(ctx context.Context, sessionID, bookingID string) {
	if err := e.gateway.Refund(ctx, sessionID); err != nil {
		e.log.Error("refund failed",
			zap.String("correlation_id", sessionID), zap.String("booking_id", bookingID), zap.Error(err))
		return
	}
	e.log.Info("refund issued", zap.String("correlation_id", sessionID), zap.String("booking_id", bookingID))
}
