package model

import "time"

// BookingStatus is a state of the booking lifecycle.
type BookingStatus string

const (
	BookingCreated        BookingStatus = "CREATED"
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingPaymentFailed  BookingStatus = "PAYMENT_FAILED"
	BookingCancelled      BookingStatus = "CANCELLED"
)

// transitions lists every legal status change.  PAYMENT_FAILED -> CREATED is
// the retry path; CONFIRMED -> CANCELLED is post-confirmation cancellation.
var transitions = map[BookingStatus][]BookingStatus{
	BookingCreated:        {BookingPendingPayment, BookingCancelled},
	BookingPendingPayment: {BookingConfirmed, BookingPaymentFailed, BookingCancelled},
	BookingPaymentFailed:  {BookingCreated},
	BookingConfirmed:      {BookingCancelled},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingCreated, BookingPendingPayment, BookingConfirmed, BookingPaymentFailed, BookingCancelled:
		return true
	}
	return false
}

// HoldsSeats reports whether a booking in this status owns seats in the
// inventory.
func (s BookingStatus) HoldsSeats() bool {
	return s == BookingCreated || s == BookingPendingPayment || s == BookingConfirmed
}

// StatusChange is one entry of a booking's history.
type StatusChange struct {
	From   BookingStatus `json:"from,omitempty"`
	To     BookingStatus `json:"to"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// Booking groups one or more seats of a single showtime reserved by one
// user and carries them through checkout.
//
// Fields:
//  ID                – booking identifier (uuid).
//  UserID            – user who made the booking.
//  ShowtimeID        – showtime being booked.
//  Seats             – seat codes, deduplicated, in selection order.
//  PricePerSeatCents – price snapshot for one seat.
//  TotalCents        – PricePerSeatCents times the number of seats.
//  Status            – current lifecycle state.
//  CorrelationID     – checkout session id; empty until checkout starts.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
//  History           – every status change, oldest first.
type Booking struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	ShowtimeID        string         `json:"showtime_id"`
	Seats             []string       `json:"seats"`
	PricePerSeatCents int64          `json:"price_per_seat_cents"`
	TotalCents        int64          `json:"total_cents"`
	Status            BookingStatus  `json:"status"`
	CorrelationID     string         `json:"correlation_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	History           []StatusChange `json:"history,omitempty"`
}

// NewBooking returns a booking in CREATED with its first history entry.
func NewBooking(id, userID, showtimeID string, seats []string, pricePerSeat int64, now time.Time) *Booking {
	b := &Booking{
		ID:         id,
		UserID:     userID,
		ShowtimeID: showtimeID,
		Seats:      append([]string(nil), seats...),
		Status:     BookingCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		History:    []StatusChange{{To: BookingCreated, Reason: "reserved", At: now}},
	}
	b.SetPrice(pricePerSeat)
	return b
}

// SetPrice records the per-seat price and recomputes the total.
func (b *Booking) SetPrice(pricePerSeat int64) {
	b.PricePerSeatCents = pricePerSeat
	b.TotalCents = pricePerSeat * int64(len(b.Seats))
}

// Transition moves the booking to status to, recording reason in the
// history.  Illegal changes fail with an *InvalidTransitionError and leave
// the booking untouched.
func (b *Booking) Transition(to BookingStatus, reason string, at time.Time) error {
	if !CanTransition(b.Status, to) {
		return &InvalidTransitionError{Current: b.Status, Requested: to}
	}
	b.History = append(b.History, StatusChange{From: b.Status, To: to, Reason: reason, At: at})
	b.Status = to
	b.UpdatedAt = at
	return nil
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Seats = append([]string(nil), b.Seats...)
	c.History = append([]StatusChange(nil), b.History...)
	return &c
}
