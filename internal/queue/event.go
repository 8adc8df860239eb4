// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Queue names.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
)

// BookingConfirmedEvent is published when a payment confirms a booking.  It
// carries enough for downstream consumers to issue tickets without querying
// the booking store.
type BookingConfirmedEvent struct {
	BookingID        string   `json:"booking_id"`
	UserID           string   `json:"user_id"`
	ShowtimeID       string   `json:"showtime_id"`
	MovieTitle       string   `json:"movie_title"`
	StartsAt         string   `json:"starts_at,omitempty"`
	Seats            []string `json:"seats"`
	TotalAmountCents int64    `json:"total_amount_cents"`
	CorrelationID    string   `json:"correlation_id"`
	ConfirmedAt      string   `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled, by the
// user, an admin or a cancelled payment.
type BookingCancelledEvent struct {
	BookingID   string   `json:"booking_id"`
	UserID      string   `json:"user_id"`
	ShowtimeID  string   `json:"showtime_id"`
	Seats       []string `json:"seats"`
	Reason      string   `json:"reason"`
	CancelledAt string   `json:"cancelled_at"`
}

// NewBookingConfirmedEvent builds the event for a confirmed booking.
func NewBookingConfirmedEvent(b *model.Booking, show *model.Showtime) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		BookingID:        b.ID,
		UserID:           b.UserID,
		ShowtimeID:       b.ShowtimeID,
		Seats:            append([]string(nil), b.Seats...),
		TotalAmountCents: b.TotalCents,
		CorrelationID:    b.CorrelationID,
		ConfirmedAt:      b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if show != nil {
		ev.MovieTitle = show.Title
		if show.StartsAt != nil {
			ev.StartsAt = show.StartsAt.UTC().Format(time.RFC3339)
		}
	}
	return ev
}

// NewBookingCancelledEvent builds the event for a cancelled booking.
func NewBookingCancelledEvent(b *model.Booking, reason string) BookingCancelledEvent {
	return BookingCancelledEvent{
		BookingID:   b.ID,
		UserID:      b.UserID,
		ShowtimeID:  b.ShowtimeID,
		Seats:       append([]string(nil), b.Seats...),
		Reason:      reason,
		CancelledAt: b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
