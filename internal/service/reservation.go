package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/seatcode"
)

// Reasons recorded in booking history.
const (
	ReasonHoldExpired     = "hold_expired"
	ReasonUserCancelled   = "user_cancelled"
	ReasonAdminCancelled  = "admin_cancelled"
	ReasonRetry           = "retry"
	ReasonCheckoutStarted = "checkout_started"
)

// ReserveRequest asks for seats of one showtime.  HoldTTL zero uses the
// engine default.
type ReserveRequest struct {
	ShowtimeID string
	UserID     string
	Seats      []string
	HoldTTL    time.Duration
}

// CancelRequest cancels a booking.  Admin cancellations ignore ownership and
// the cancellation cutoff.
type CancelRequest struct {
	BookingID string
	UserID    string
	Admin     bool
	Reason    string
}

// SweepResult counts what a hold sweep reclaimed.
type SweepResult struct {
	Showtimes         int `json:"showtimes"`
	BookingsCancelled int `json:"bookings_cancelled"`
	SeatsReleased     int `json:"seats_released"`
}

func (r *SweepResult) add(o SweepResult) {
	r.Showtimes += o.Showtimes
	r.BookingsCancelled += o.BookingsCancelled
	r.SeatsReleased += o.SeatsReleased
}

// normalizeSelection parses and canonicalizes seat identifiers, dropping
// duplicates but keeping the order of first appearance.
func normalizeSelection(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		row, col, err := seatcode.Parse(id)
		if err != nil {
			return nil, err
		}
		code := seatcode.Format(row, col)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	if len(out) == 0 {
		return nil, model.ErrEmptySelection
	}
	return out, nil
}

// loadSelection loads the requested seats, reclaiming expired holds of the
// showtime first when any of them carries one.  Identifiers outside the
// layout fail with *model.UnknownSeatError.
func (e *Engine) loadSelection(ctx context.Context, tx repository.ShowtimeTx, codes []string, now time.Time) ([]model.Seat, []string, error) {
	seats, err := tx.Seats(ctx, codes)
	if err != nil {
		return nil, nil, err
	}
	if len(seats) != len(codes) {
		found := make(map[string]struct{}, len(seats))
		for _, s := range seats {
			found[s.Code] = struct{}{}
		}
		var missing []string
		for _, code := range codes {
			if _, ok := found[code]; !ok {
				missing = append(missing, code)
			}
		}
		return nil, nil, &model.UnknownSeatError{Seats: missing}
	}
	var sessions []string
	for _, s := range seats {
		if s.HoldLapsed(now) {
			res, expired, err := e.expireHoldsTx(ctx, tx, now)
			if err != nil {
				return nil, nil, err
			}
			sessions = expired
			e.log.Debug("reclaimed expired holds before reserving",
				zap.Int("bookings", res.BookingsCancelled), zap.Int("seats", res.SeatsReleased))
			if seats, err = tx.Seats(ctx, codes); err != nil {
				return nil, nil, err
			}
			break
		}
	}
	return seats, sessions, nil
}

// unavailable lists the codes, in selection order, whose seat is not AVAILABLE.
func unavailable(seats []model.Seat, codes []string) []string {
	status := make(map[string]model.SeatStatus, len(seats))
	for _, s := range seats {
		status[s.Code] = s.Status
	}
	var out []string
	for _, code := range codes {
		if status[code] != model.SeatAvailable {
			out = append(out, code)
		}
	}
	return out
}

// Reserve holds the requested seats for a new booking in CREATED.  Either
// every seat is held or nothing changes.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*model.Booking, error) {
	codes, err := normalizeSelection(req.Seats)
	if err != nil {
		return nil, err
	}
	ttl := req.HoldTTL
	if ttl <= 0 {
		ttl = e.cfg.HoldTTL
	}
	show, err := e.catalog.Showtime(ctx, req.ShowtimeID)
	if err != nil {
		return nil, err
	}

	var booking *model.Booking
	var sessions []string
	err = e.withShowtime(ctx, req.ShowtimeID, func(tx repository.ShowtimeTx) error {
		if _, err := tx.Inventory(ctx); err != nil {
			return err
		}
		now := e.clock()
		seats, expired, err := e.loadSelection(ctx, tx, codes, now)
		if err != nil {
			return err
		}
		sessions = expired
		if conflicts := unavailable(seats, codes); len(conflicts) > 0 {
			return &model.SeatConflictError{Seats: conflicts, Cause: model.ErrSeatConflict}
		}

		b := model.NewBooking(uuid.New().String(), req.UserID, req.ShowtimeID, codes, show.PriceCents, now)
		for i := range seats {
			seats[i].Hold(b.ID, now.Add(ttl), now)
		}
		if err := tx.SaveSeats(ctx, seats); err != nil {
			return err
		}
		if err := tx.SaveBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.expireSessions(ctx, sessions)
	e.log.Info("seats reserved",
		zap.String("booking_id", booking.ID),
		zap.String("showtime_id", booking.ShowtimeID),
		zap.String("user_id", booking.UserID),
		zap.Strings("seats", booking.Seats))
	return booking, nil
}

// Retry re-holds the seats of a PAYMENT_FAILED booking and returns it to
// CREATED.  If any seat was taken meanwhile the booking stays PAYMENT_FAILED
// and a *model.SeatConflictError wrapping model.ErrSeatsNoLongerAvailable is
// returned.
func (e *Engine) Retry(ctx context.Context, bookingID, userID string, ttl time.Duration) (*model.Booking, error) {
	current, err := e.ownedBooking(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = e.cfg.HoldTTL
	}

	var booking *model.Booking
	var sessions []string
	err = e.withShowtime(ctx, current.ShowtimeID, func(tx repository.ShowtimeTx) error {
		b, err := tx.Booking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !model.CanTransition(b.Status, model.BookingCreated) {
			return &model.InvalidTransitionError{Current: b.Status, Requested: model.BookingCreated}
		}
		if _, err := tx.Inventory(ctx); err != nil {
			if errors.Is(err, model.ErrInventoryNotFound) {
				return &model.SeatConflictError{Seats: b.Seats, Cause: model.ErrSeatsNoLongerAvailable}
			}
			return err
		}
		now := e.clock()
		seats, expired, err := e.loadSelection(ctx, tx, b.Seats, now)
		if err != nil {
			var unknown *model.UnknownSeatError
			if errors.As(err, &unknown) {
				return &model.SeatConflictError{Seats: unknown.Seats, Cause: model.ErrSeatsNoLongerAvailable}
			}
			return err
		}
		sessions = expired
		if conflicts := unavailable(seats, b.Seats); len(conflicts) > 0 {
			return &model.SeatConflictError{Seats: conflicts, Cause: model.ErrSeatsNoLongerAvailable}
		}

		if err := b.Transition(model.BookingCreated, ReasonRetry, now); err != nil {
			return err
		}
		b.CorrelationID = ""
		for i := range seats {
			seats[i].Hold(b.ID, now.Add(ttl), now)
		}
		if err := tx.SaveSeats(ctx, seats); err != nil {
			return err
		}
		if err := tx.SaveBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.expireSessions(ctx, sessions)
	e.log.Info("booking retried", zap.String("booking_id", booking.ID))
	return booking, nil
}

// Cancel moves a booking to CANCELLED and releases its seats.  A pending
// checkout session is expired and a paid one refunded after the commit.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*model.Booking, error) {
	userID := req.UserID
	if req.Admin {
		userID = ""
	}
	current, err := e.ownedBooking(ctx, req.BookingID, userID)
	if err != nil {
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = ReasonUserCancelled
		if req.Admin {
			reason = ReasonAdminCancelled
		}
	}

	var startsAt *time.Time
	if !req.Admin && e.cfg.CancelCutoff > 0 {
		show, err := e.catalog.Showtime(ctx, current.ShowtimeID)
		if err != nil {
			e.log.Warn("catalog lookup failed; skipping cancellation cutoff",
				zap.String("showtime_id", current.ShowtimeID), zap.Error(err))
		} else {
			startsAt = show.StartsAt
		}
	}

	var booking *model.Booking
	var previous model.BookingStatus
	var released int
	err = e.withShowtime(ctx, current.ShowtimeID, func(tx repository.ShowtimeTx) error {
		b, err := tx.Booking(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if !model.CanTransition(b.Status, model.BookingCancelled) {
			return &model.InvalidTransitionError{Current: b.Status, Requested: model.BookingCancelled}
		}
		now := e.clock()
		if startsAt != nil && (b.Status == model.BookingConfirmed || b.Status == model.BookingPendingPayment) &&
			!now.Before(startsAt.Add(-e.cfg.CancelCutoff)) {
			return fmt.Errorf("%w: showtime starts at %s", model.ErrCancellationWindowClosed, startsAt.UTC().Format(time.RFC3339))
		}
		seats, err := tx.Seats(ctx, b.Seats)
		if err != nil {
			return err
		}
		previous = b.Status
		n, _, err := cancelTx(ctx, tx, b, seats, reason, now)
		if err != nil {
			return err
		}
		released = n
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if booking.CorrelationID != "" {
		switch previous {
		case model.BookingPendingPayment:
			e.expireSessions(ctx, []string{booking.CorrelationID})
		case model.BookingConfirmed:
			e.refund(ctx, booking.CorrelationID, booking.ID)
		}
	}
	e.notifyCancelled(ctx, booking, reason)
	e.log.Info("booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("from", string(previous)),
		zap.String("reason", reason),
		zap.Int("seats_released", released))
	return booking, nil
}

// ShowtimesWithExpiredHolds lists the showtimes a sweep has work for.
func (e *Engine) ShowtimesWithExpiredHolds(ctx context.Context) ([]string, error) {
	return e.store.ShowtimesWithExpiredHolds(ctx, e.clock())
}

// ExpireHolds reclaims every lapsed hold of every showtime.  It keeps going
// after a showtime fails and returns the joined errors.
func (e *Engine) ExpireHolds(ctx context.Context) (SweepResult, error) {
	ids, err := e.ShowtimesWithExpiredHolds(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	var total SweepResult
	var errs []error
	for _, id := range ids {
		res, err := e.ExpireShowtimeHolds(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("showtime %s: %w", id, err))
			continue
		}
		total.add(res)
	}
	return total, errors.Join(errs...)
}

// ExpireShowtimeHolds reclaims the lapsed holds of one showtime.
func (e *Engine) ExpireShowtimeHolds(ctx context.Context, showtimeID string) (SweepResult, error) {
	var res SweepResult
	var sessions []string
	err := e.withShowtime(ctx, showtimeID, func(tx repository.ShowtimeTx) error {
		if _, err := tx.Inventory(ctx); err != nil {
			if errors.Is(err, model.ErrInventoryNotFound) {
				return nil
			}
			return err
		}
		r, expired, err := e.expireHoldsTx(ctx, tx, e.clock())
		if err != nil {
			return err
		}
		res, sessions = r, expired
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	e.expireSessions(ctx, sessions)
	if res.SeatsReleased > 0 {
		res.Showtimes = 1
		e.log.Info("expired holds reclaimed",
			zap.String("showtime_id", showtimeID),
			zap.Int("bookings_cancelled", res.BookingsCancelled),
			zap.Int("seats_released", res.SeatsReleased))
	}
	return res, nil
}

// expireHoldsTx cancels every CREATED or PENDING_PAYMENT booking owning a
// lapsed hold and releases its seats.  Holds of bookings in other states are
// left alone; holds whose booking no longer exists are released.  It returns
// the checkout sessions to expire once the unit of work commits.
func (e *Engine) expireHoldsTx(ctx context.Context, tx repository.ShowtimeTx, now time.Time) (SweepResult, []string, error) {
	var res SweepResult
	seats, err := tx.Seats(ctx, nil)
	if err != nil {
		return res, nil, err
	}
	var order []string
	seen := make(map[string]struct{})
	for _, s := range seats {
		if !s.HoldLapsed(now) {
			continue
		}
		if _, ok := seen[s.HolderBookingID]; !ok {
			seen[s.HolderBookingID] = struct{}{}
			order = append(order, s.HolderBookingID)
		}
	}

	var sessions []string
	for _, bookingID := range order {
		b, err := tx.Booking(ctx, bookingID)
		if errors.Is(err, model.ErrBookingNotFound) {
			var orphans []model.Seat
			for i := range seats {
				if seats[i].HoldLapsed(now) && seats[i].HolderBookingID == bookingID {
					seats[i].Release(now)
					orphans = append(orphans, seats[i])
				}
			}
			if err := tx.SaveSeats(ctx, orphans); err != nil {
				return res, nil, err
			}
			res.SeatsReleased += len(orphans)
			continue
		}
		if err != nil {
			return res, nil, err
		}
		if b.Status != model.BookingCreated && b.Status != model.BookingPendingPayment {
			continue
		}
		n, open, err := cancelTx(ctx, tx, b, seats, ReasonHoldExpired, now)
		if err != nil {
			return res, nil, err
		}
		res.BookingsCancelled++
		res.SeatsReleased += n
		if open {
			sessions = append(sessions, b.CorrelationID)
		}
	}
	return res, sessions, nil
}
