package service

import (
	"context"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/seatcode"
)

// SeatView is one cell of a rendered seat map.
type SeatView struct {
	Code   string           `json:"code"`
	Column int              `json:"column"`
	Status model.SeatStatus `json:"status"`
}

// RowView is one row of a rendered seat map.
type RowView struct {
	Label string     `json:"label"`
	Seats []SeatView `json:"seats"`
}

// SeatCounts totals a seat map by status.
type SeatCounts struct {
	Available int `json:"available"`
	Held      int `json:"held"`
	Booked    int `json:"booked"`
}

// SeatMap is the availability view of a showtime.
type SeatMap struct {
	ShowtimeID  string     `json:"showtime_id"`
	TotalSeats  int        `json:"total_seats"`
	SeatsPerRow int        `json:"seats_per_row"`
	Rows        []RowView  `json:"rows"`
	Counts      SeatCounts `json:"counts"`
}

// SeatLayout is the static grid of a showtime.
type SeatLayout struct {
	ShowtimeID  string         `json:"showtime_id"`
	TotalSeats  int            `json:"total_seats"`
	SeatsPerRow int            `json:"seats_per_row"`
	Rows        []seatcode.Row `json:"rows"`
}

// Availability renders the seat map of a showtime.  Holds that have lapsed
// but were not reclaimed yet are shown as AVAILABLE.
func (e *Engine) Availability(ctx context.Context, showtimeID string) (*SeatMap, error) {
	inv, seats, err := e.store.Inventory(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	rows, err := seatcode.Rows(inv.TotalSeats, inv.SeatsPerRow)
	if err != nil {
		return nil, err
	}
	now := e.clock()
	status := make(map[string]model.SeatStatus, len(seats))
	for _, s := range seats {
		st := s.Status
		if s.HoldLapsed(now) {
			st = model.SeatAvailable
		}
		status[s.Code] = st
	}

	out := &SeatMap{
		ShowtimeID:  showtimeID,
		TotalSeats:  inv.TotalSeats,
		SeatsPerRow: inv.SeatsPerRow,
		Rows:        make([]RowView, 0, len(rows)),
	}
	for _, r := range rows {
		rv := RowView{Label: r.Label, Seats: make([]SeatView, 0, len(r.Seats))}
		for i, code := range r.Seats {
			st, ok := status[code]
			if !ok {
				st = model.SeatAvailable
			}
			rv.Seats = append(rv.Seats, SeatView{Code: code, Column: i + 1, Status: st})
			switch st {
			case model.SeatHeld:
				out.Counts.Held++
			case model.SeatBooked:
				out.Counts.Booked++
			default:
				out.Counts.Available++
			}
		}
		out.Rows = append(out.Rows, rv)
	}
	return out, nil
}

// Layout returns the static seat grid of a showtime.
func (e *Engine) Layout(ctx context.Context, showtimeID string) (*SeatLayout, error) {
	inv, _, err := e.store.Inventory(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	rows, err := seatcode.Rows(inv.TotalSeats, inv.SeatsPerRow)
	if err != nil {
		return nil, err
	}
	return &SeatLayout{
		ShowtimeID:  showtimeID,
		TotalSeats:  inv.TotalSeats,
		SeatsPerRow: inv.SeatsPerRow,
		Rows:        rows,
	}, nil
}

// Booking returns a booking.  An empty userID reads any booking; otherwise
// bookings of other users are reported as not found.
func (e *Engine) Booking(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	return e.ownedBooking(ctx, bookingID, userID)
}

// History returns the status changes of a booking, oldest first.
func (e *Engine) History(ctx context.Context, bookingID, userID string) ([]model.StatusChange, error) {
	b, err := e.ownedBooking(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	return b.History, nil
}

// BookingsByUser lists a user's bookings, newest first.
func (e *Engine) BookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return e.store.BookingsByUser(ctx, userID)
}
