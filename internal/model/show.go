package model

import "time"

// Showtime is the read-only catalog view of a scheduled screening.  The
// booking engine never writes it; it only needs the price per seat and, for
// the cancellation cutoff, the start time.
//
// Fields:
//  ID         – catalog identifier of the showtime.
//  Title      – movie title, used on checkout line items and tickets.
//  StartsAt   – scheduled start; nil when the catalog does not know it.
//  PriceCents – price of one seat in the smallest currency unit.
type Showtime struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	PriceCents int64      `json:"price_cents"`
}
