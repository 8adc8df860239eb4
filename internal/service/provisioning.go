package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/seatcode"
)

// Initialize provisions the seat inventory of a catalog showtime with
// totalSeats AVAILABLE seats laid out seatsPerRow per row.
func (e *Engine) Initialize(ctx context.Context, showtimeID string, totalSeats, seatsPerRow int) (*model.SeatInventory, error) {
	codes, err := seatcode.Layout(totalSeats, seatsPerRow)
	if err != nil {
		return nil, err
	}
	if _, err := e.catalog.Showtime(ctx, showtimeID); err != nil {
		return nil, err
	}

	now := e.clock()
	inv := model.SeatInventory{
		ShowtimeID:  showtimeID,
		TotalSeats:  totalSeats,
		SeatsPerRow: seatsPerRow,
		CreatedAt:   now,
	}
	seats := make([]model.Seat, len(codes))
	for i, code := range codes {
		row, col, _ := seatcode.Parse(code)
		seats[i] = model.Seat{
			ShowtimeID: showtimeID,
			Code:       code,
			Row:        row,
			Column:     col,
			Position:   i,
			Status:     model.SeatAvailable,
			UpdatedAt:  now,
		}
	}

	err = e.withShowtime(ctx, showtimeID, func(tx repository.ShowtimeTx) error {
		return tx.CreateInventory(ctx, inv, seats)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("seat inventory initialized",
		zap.String("showtime_id", showtimeID),
		zap.Int("total_seats", totalSeats),
		zap.Int("seats_per_row", seatsPerRow))
	return &inv, nil
}

// Deinitialize discards a showtime's seat inventory.  Expired holds are
// reclaimed first; any seat still held or booked under a live booking makes
// it fail with *model.SeatsInUseError.  Bookings are kept for history.
func (e *Engine) Deinitialize(ctx context.Context, showtimeID string) error {
	if _, err := e.ExpireShowtimeHolds(ctx, showtimeID); err != nil {
		return err
	}
	err := e.withShowtime(ctx, showtimeID, func(tx repository.ShowtimeTx) error {
		if _, err := tx.Inventory(ctx); err != nil {
			return err
		}
		seats, err := tx.Seats(ctx, nil)
		if err != nil {
			return err
		}
		live := make(map[string]bool)
		var inUse []string
		for _, s := range seats {
			if s.Status == model.SeatAvailable {
				continue
			}
			alive, ok := live[s.HolderBookingID]
			if !ok {
				b, err := tx.Booking(ctx, s.HolderBookingID)
				switch {
				case errors.Is(err, model.ErrBookingNotFound):
					alive = false
				case err != nil:
					return err
				default:
					alive = b.Status != model.BookingCancelled
				}
				live[s.HolderBookingID] = alive
			}
			if alive {
				inUse = append(inUse, s.Code)
			}
		}
		if len(inUse) > 0 {
			return &model.SeatsInUseError{Seats: inUse}
		}
		return tx.DeleteInventory(ctx)
	})
	if err != nil {
		return err
	}
	e.log.Info("seat inventory removed", zap.String("showtime_id", showtimeID))
	return nil
}
