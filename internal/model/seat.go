package model

import "time"

// SeatStatus is the availability state of a single seat in a showtime's
// inventory.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatBooked    SeatStatus = "BOOKED"
)

// Seat is one entry of a showtime's seat inventory.  A seat is identified by
// the showtime and its seat code ("N8").  While HELD or BOOKED it records the
// booking that holds it; a HELD seat additionally carries the moment its
// hold lapses.
//
// Fields:
//  ShowtimeID      – showtime the seat belongs to.
//  Code            – seat identifier, row letters followed by the column.
//  Row             – row label part of Code.
//  Column          – column part of Code, starting at 1.
//  Position        – zero-based index in the showtime's layout order.
//  Status          – AVAILABLE, HELD or BOOKED.
//  HolderBookingID – booking holding the seat; empty when AVAILABLE.
//  HoldExpiresAt   – hold expiry for HELD seats, nil otherwise.
//  UpdatedAt       – last modification time.
type Seat struct {
	ShowtimeID      string     `json:"showtime_id"`
	Code            string     `json:"code"`
	Row             string     `json:"row"`
	Column          int        `json:"column"`
	Position        int        `json:"position"`
	Status          SeatStatus `json:"status"`
	HolderBookingID string     `json:"holder_booking_id,omitempty"`
	HoldExpiresAt   *time.Time `json:"hold_expires_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HoldLapsed reports whether the seat is HELD with an expiry at or before now.
func (s Seat) HoldLapsed(now time.Time) bool {
	return s.Status == SeatHeld && s.HoldExpiresAt != nil && !s.HoldExpiresAt.After(now)
}

// HeldBy reports whether the seat is held or booked under bookingID.
func (s Seat) HeldBy(bookingID string) bool {
	return s.Status != SeatAvailable && s.HolderBookingID == bookingID
}

// Hold marks the seat HELD for bookingID until expiresAt.
func (s *Seat) Hold(bookingID string, expiresAt, now time.Time) {
	exp := expiresAt
	s.Status = SeatHeld
	s.HolderBookingID = bookingID
	s.HoldExpiresAt = &exp
	s.UpdatedAt = now
}

// Book flips a HELD seat to BOOKED.  The holder is kept and the expiry cleared.
func (s *Seat) Book(now time.Time) {
	s.Status = SeatBooked
	s.HoldExpiresAt = nil
	s.UpdatedAt = now
}

// Release returns the seat to AVAILABLE and clears the holder.
func (s *Seat) Release(now time.Time) {
	s.Status = SeatAvailable
	s.HolderBookingID = ""
	s.HoldExpiresAt = nil
	s.UpdatedAt = now
}

// SeatInventory describes the provisioned layout of a showtime.  The layout
// parameters are fixed at creation; the seat codes are derived from them with
// seatcode.Layout.
//
// Fields:
//  ShowtimeID  – showtime this inventory belongs to.
//  TotalSeats  – number of seats.
//  SeatsPerRow – seats in every full row.
//  CreatedAt   – provisioning time.
type SeatInventory struct {
	ShowtimeID  string    `json:"showtime_id"`
	TotalSeats  int       `json:"total_seats"`
	SeatsPerRow int       `json:"seats_per_row"`
	CreatedAt   time.Time `json:"created_at"`
}
