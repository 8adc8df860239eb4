package model

import "time"

// PaymentOutcome is the result of an external checkout.
type PaymentOutcome string

const (
	OutcomePending   PaymentOutcome = "PENDING"
	OutcomeSucceeded PaymentOutcome = "SUCCEEDED"
	OutcomeFailed    PaymentOutcome = "FAILED"
	OutcomeCancelled PaymentOutcome = "CANCELLED"
)

// ParseOutcome maps a string to a resolvable outcome.  PENDING is not
// accepted because it is never a resolution.
func ParseOutcome(s string) (PaymentOutcome, bool) {
	switch o := PaymentOutcome(s); o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeCancelled:
		return o, true
	}
	return "", false
}

// Settles reports whether an existing resolution already satisfies the
// requested outcome.  FAILED and CANCELLED both leave the booking without
// seats, so either settles the other.
func (o PaymentOutcome) Settles(requested PaymentOutcome) bool {
	if o == requested {
		return true
	}
	return o != OutcomeSucceeded && o != OutcomePending && requested != OutcomeSucceeded
}

// PaymentCorrelation links an external checkout session to a booking.  It
// is created PENDING when the booking enters PENDING_PAYMENT and resolved
// exactly once.
//
// Fields:
//  ID         – external checkout/session id.
//  BookingID  – booking the session pays for.
//  ShowtimeID – showtime of the booking, used to take the right lock.
//  Outcome    – PENDING until resolved.
//  CreatedAt  – when the session was issued.
//  ResolvedAt – when the outcome was recorded; nil while PENDING.
type PaymentCorrelation struct {
	ID         string         `json:"id"`
	BookingID  string         `json:"booking_id"`
	ShowtimeID string         `json:"showtime_id"`
	Outcome    PaymentOutcome `json:"outcome"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Resolved reports whether the correlation already has an outcome.
func (c PaymentCorrelation) Resolved() bool {
	return c.Outcome != OutcomePending
}

// Resolve records the outcome.  It returns false when the correlation was
// already resolved; resolved correlations are immutable.
func (c *PaymentCorrelation) Resolve(outcome PaymentOutcome, at time.Time) bool {
	if c.Resolved() {
		return false
	}
	t := at
	c.Outcome = outcome
	c.ResolvedAt = &t
	return true
}

// TargetStatus is the booking status a pending booking moves to for outcome.
func (o PaymentOutcome) TargetStatus() BookingStatus {
	switch o {
	case OutcomeSucceeded:
		return BookingConfirmed
	case OutcomeFailed:
		return BookingPaymentFailed
	default:
		return BookingCancelled
	}
}
