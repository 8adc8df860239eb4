package repository

import (
	"context"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Store persists seat inventories, bookings and payment correlations.
//
// All mutations go through WithShowtime, which runs fn as one unit of work
// holding the showtime's lock: either every write fn made is committed or,
// when fn returns an error, none is.  Units of work on different showtimes
// never block each other.  If the lock cannot be taken before ctx is done,
// WithShowtime fails with model.ErrLockTimeout.
//
// The remaining methods are lock-free reads of committed state.
type Store interface {
	WithShowtime(ctx context.Context, showtimeID string, fn func(tx ShowtimeTx) error) error

	Inventory(ctx context.Context, showtimeID string) (*model.SeatInventory, []model.Seat, error)
	Booking(ctx context.Context, id string) (*model.Booking, error)
	BookingsByUser(ctx context.Context, userID string) ([]model.Booking, error)
	Correlation(ctx context.Context, id string) (*model.PaymentCorrelation, error)
	ShowtimesWithExpiredHolds(ctx context.Context, now time.Time) ([]string, error)
}

// ShowtimeTx is the view of one showtime inside a unit of work.  Bookings and
// correlations read through it must belong to the locked showtime.
type ShowtimeTx interface {
	// Inventory returns model.ErrInventoryNotFound when none is provisioned.
	Inventory(ctx context.Context) (*model.SeatInventory, error)
	// CreateInventory returns model.ErrAlreadyInitialized when one exists.
	CreateInventory(ctx context.Context, inv model.SeatInventory, seats []model.Seat) error
	DeleteInventory(ctx context.Context) error

	// Seats returns the requested seats in layout order, skipping codes that
	// do not exist.  A nil codes slice returns every seat.
	Seats(ctx context.Context, codes []string) ([]model.Seat, error)
	SaveSeats(ctx context.Context, seats []model.Seat) error

	Booking(ctx context.Context, id string) (*model.Booking, error)
	SaveBooking(ctx context.Context, b *model.Booking) error

	Correlation(ctx context.Context, id string) (*model.PaymentCorrelation, error)
	SaveCorrelation(ctx context.Context, c *model.PaymentCorrelation) error
}

// Catalog is the read-only showtime collaborator.
type Catalog interface {
	// Showtime returns model.ErrShowtimeNotFound for unknown ids.
	Showtime(ctx context.Context, id string) (*model.Showtime, error)
}
