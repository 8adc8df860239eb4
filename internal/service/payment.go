package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

// CheckoutResult is returned by StartCheckout.
type CheckoutResult struct {
	Booking       *model.Booking `json:"booking"`
	CorrelationID string         `json:"correlation_id"`
	RedirectURL   string         `json:"redirect_url"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// ResolveResult is returned by Resolve.  Applied is false when the outcome
// had already been recorded and nothing changed.
type ResolveResult struct {
	Booking *model.Booking       `json:"booking"`
	Outcome model.PaymentOutcome `json:"outcome"`
	Applied bool                 `json:"applied"`
}

// errHoldLapsed marks a unit of work that committed a hold-expiry
// cancellation and must surface model.ErrHoldExpired afterwards.
var errHoldLapsed = errors.New("hold lapsed")

// prepareCheckoutTx loads the booking and checks it can enter
// PENDING_PAYMENT.  When a hold has lapsed it cancels the booking and
// returns errHoldLapsed together with the session to expire, if any.
func (e *Engine) prepareCheckoutTx(ctx context.Context, tx repository.ShowtimeTx, bookingID string, now time.Time) (*model.Booking, []string, error) {
	b, err := tx.Booking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.Status != model.BookingCreated {
		return nil, nil, &model.InvalidTransitionError{Current: b.Status, Requested: model.BookingPendingPayment}
	}
	seats, err := tx.Seats(ctx, b.Seats)
	if err != nil {
		return nil, nil, err
	}
	if holdsValid(seats, b, now) {
		return b, nil, nil
	}
	_, open, err := cancelTx(ctx, tx, b, seats, ReasonHoldExpired, now)
	if err != nil {
		return nil, nil, err
	}
	var sessions []string
	if open {
		sessions = append(sessions, b.CorrelationID)
	}
	return b, sessions, errHoldLapsed
}

// runCheckoutPhase runs one checkout unit of work.  A lapsed hold commits
// the cancellation and comes back as model.ErrHoldExpired.
func (e *Engine) runCheckoutPhase(ctx context.Context, showtimeID string, fn func(tx repository.ShowtimeTx, now time.Time) ([]string, error)) error {
	var sessions []string
	lapsed := false
	err := e.withShowtime(ctx, showtimeID, func(tx repository.ShowtimeTx) error {
		s, err := fn(tx, e.clock())
		if errors.Is(err, errHoldLapsed) {
			sessions, lapsed = s, true
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if lapsed {
		e.expireSessions(ctx, sessions)
		return model.ErrHoldExpired
	}
	return nil
}

// StartCheckout moves a CREATED booking to PENDING_PAYMENT, opens a
// checkout session for it and restarts the seat holds at the configured
// hold duration.  The gateway is called between two units of
// work so that no showtime lock is held during the network call.
func (e *Engine) StartCheckout(ctx context.Context, bookingID, userID string) (*CheckoutResult, error) {
	current, err := e.ownedBooking(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}

	var booking *model.Booking
	err = e.runCheckoutPhase(ctx, current.ShowtimeID, func(tx repository.ShowtimeTx, now time.Time) ([]string, error) {
		b, sessions, err := e.prepareCheckoutTx(ctx, tx, bookingID, now)
		booking = b
		return sessions, err
	})
	if err != nil {
		if errors.Is(err, model.ErrHoldExpired) {
			e.log.Info("checkout refused, hold expired", zap.String("booking_id", bookingID))
		}
		return nil, err
	}

	show, err := e.catalog.Showtime(ctx, booking.ShowtimeID)
	if err != nil {
		return nil, err
	}
	title := show.Title
	if title == "" {
		title = "Showtime " + show.ID
	}
	sess, err := e.gateway.CreateCheckoutSession(ctx, &payment.CheckoutRequest{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		ShowtimeID:  booking.ShowtimeID,
		Description: fmt.Sprintf("%s (%d seats)", title, len(booking.Seats)),
		Currency:    e.cfg.Currency,
		UnitAmount:  show.PriceCents,
		Quantity:    int64(len(booking.Seats)),
		SuccessURL:  e.cfg.SuccessURL,
		CancelURL:   e.cfg.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	err = e.runCheckoutPhase(ctx, booking.ShowtimeID, func(tx repository.ShowtimeTx, now time.Time) ([]string, error) {
		b, sessions, err := e.prepareCheckoutTx(ctx, tx, bookingID, now)
		if err != nil {
			return sessions, err
		}
		b.SetPrice(show.PriceCents)
		if err := b.Transition(model.BookingPendingPayment, ReasonCheckoutStarted, now); err != nil {
			return nil, err
		}
		b.CorrelationID = sess.ID
		// holds restart for the payment window
		seats, err := tx.Seats(ctx, b.Seats)
		if err != nil {
			return nil, err
		}
		for i := range seats {
			seats[i].Hold(b.ID, now.Add(e.cfg.HoldTTL), now)
		}
		if err := tx.SaveSeats(ctx, seats); err != nil {
			return nil, err
		}
		if err := tx.SaveCorrelation(ctx, &model.PaymentCorrelation{
			ID:         sess.ID,
			BookingID:  b.ID,
			ShowtimeID: b.ShowtimeID,
			Outcome:    model.OutcomePending,
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}
		if err := tx.SaveBooking(ctx, b); err != nil {
			return nil, err
		}
		booking = b
		return nil, nil
	})
	if err != nil {
		e.expireSessions(ctx, []string{sess.ID})
		return nil, err
	}

	e.log.Info("checkout started",
		zap.String("booking_id", booking.ID),
		zap.String("correlation_id", sess.ID),
		zap.Int64("total_cents", booking.TotalCents),
		zap.String("gateway", e.gateway.Name()))
	return &CheckoutResult{
		Booking:       booking,
		CorrelationID: sess.ID,
		RedirectURL:   sess.URL,
		ExpiresAt:     sess.ExpiresAt,
	}, nil
}

// Resolve applies a payment outcome to the booking behind a correlation.
// Repeating an outcome is a no-op.  A success that arrives after the booking
// stopped waiting for payment is refunded and reported as an invalid
// transition.
func (e *Engine) Resolve(ctx context.Context, correlationID string, outcome model.PaymentOutcome) (*ResolveResult, error) {
	if _, ok := model.ParseOutcome(string(outcome)); !ok {
		return nil, fmt.Errorf("unsupported payment outcome %q", outcome)
	}
	current, err := e.store.Correlation(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{Outcome: outcome}
	refund := false
	err = e.withShowtime(ctx, current.ShowtimeID, func(tx repository.ShowtimeTx) error {
		c, err := tx.Correlation(ctx, correlationID)
		if err != nil {
			return err
		}
		b, err := tx.Booking(ctx, c.BookingID)
		if err != nil {
			return err
		}
		result.Booking = b

		if c.Resolved() {
			if c.Outcome.Settles(outcome) {
				return nil
			}
			refund = outcome == model.OutcomeSucceeded
			return &model.InvalidTransitionError{Current: b.Status, Requested: outcome.TargetStatus()}
		}
		if b.Status != model.BookingPendingPayment || b.CorrelationID != c.ID {
			refund = outcome == model.OutcomeSucceeded
			return &model.InvalidTransitionError{Current: b.Status, Requested: outcome.TargetStatus()}
		}

		now := e.clock()
		seats, err := tx.Seats(ctx, b.Seats)
		if err != nil {
			return err
		}
		var changed []model.Seat
		switch outcome {
		case model.OutcomeSucceeded:
			var lost []string
			held := make(map[string]bool, len(seats))
			for _, s := range seats {
				held[s.Code] = s.Status == model.SeatHeld && s.HolderBookingID == b.ID
			}
			for _, code := range b.Seats {
				if !held[code] {
					lost = append(lost, code)
				}
			}
			if len(lost) > 0 {
				refund = true
				return &model.SeatConflictError{Seats: lost, Cause: model.ErrSeatsNoLongerAvailable}
			}
			for i := range seats {
				seats[i].Book(now)
			}
			changed = seats
		default:
			changed = releaseBookingSeats(seats, b.ID, now)
		}

		if err := b.Transition(outcome.TargetStatus(), "payment_"+strings.ToLower(string(outcome)), now); err != nil {
			return err
		}
		c.Resolve(outcome, now)
		if len(changed) > 0 {
			if err := tx.SaveSeats(ctx, changed); err != nil {
				return err
			}
		}
		if err := tx.SaveCorrelation(ctx, c); err != nil {
			return err
		}
		if err := tx.SaveBooking(ctx, b); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})
	if refund {
		e.refund(ctx, correlationID, current.BookingID)
	}
	if err != nil {
		e.log.Warn("payment outcome rejected",
			zap.String("correlation_id", correlationID),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
		return nil, err
	}
	if !result.Applied {
		e.log.Debug("payment outcome already recorded",
			zap.String("correlation_id", correlationID), zap.String("outcome", string(outcome)))
		return result, nil
	}

	switch outcome {
	case model.OutcomeSucceeded:
		e.notifyConfirmed(ctx, result.Booking)
	case model.OutcomeCancelled:
		e.notifyCancelled(ctx, result.Booking, "payment_cancelled")
	}
	e.log.Info("payment outcome applied",
		zap.String("correlation_id", correlationID),
		zap.String("booking_id", result.Booking.ID),
		zap.String("status", string(result.Booking.Status)))
	return result, nil
}
