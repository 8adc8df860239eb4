package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// MySQLStore implements Store on MySQL.  A unit of work is one transaction
// that starts by locking the showtime's seat_inventories row; seat, booking
// and correlation writes follow on the same transaction.
type MySQLStore struct {
	db           *sql.DB
	inventories  *InventoryRepo
	seats        *ShowSeatRepo
	bookings     *BookingRepo
	correlations *CorrelationRepo
}

// NewMySQLStore wires the repositories over db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:           db,
		inventories:  NewInventoryRepo(db),
		seats:        NewShowSeatRepo(db),
		bookings:     NewBookingRepo(db),
		correlations: NewCorrelationRepo(db),
	}
}

// WithShowtime implements Store.
func (s *MySQLStore) WithShowtime(ctx context.Context, showtimeID string, fn func(tx ShowtimeTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return lockError(ctx, showtimeID, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	inv, err := s.inventories.LockTx(ctx, tx, showtimeID)
	if err != nil && !errors.Is(err, model.ErrInventoryNotFound) {
		return lockError(ctx, showtimeID, fmt.Errorf("lock inventory: %w", err))
	}
	stx := &mysqlTx{store: s, tx: tx, showtimeID: showtimeID, inventory: inv}
	if err := fn(stx); err != nil {
		return lockError(ctx, showtimeID, err)
	}
	if err := tx.Commit(); err != nil {
		return lockError(ctx, showtimeID, fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// Inventory implements Store.
func (s *MySQLStore) Inventory(ctx context.Context, showtimeID string) (*model.SeatInventory, []model.Seat, error) {
	inv, err := s.inventories.GetByID(ctx, showtimeID)
	if err != nil {
		return nil, nil, err
	}
	seats, err := s.seats.ListByShowtime(ctx, showtimeID)
	if err != nil {
		return nil, nil, err
	}
	return inv, seats, nil
}

// Booking implements Store.
func (s *MySQLStore) Booking(ctx context.Context, id string) (*model.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// BookingsByUser implements Store.
func (s *MySQLStore) BookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return s.bookings.ListByUser(ctx, userID)
}

// Correlation implements Store.
func (s *MySQLStore) Correlation(ctx context.Context, id string) (*model.PaymentCorrelation, error) {
	return s.correlations.GetByID(ctx, id)
}

// ShowtimesWithExpiredHolds implements Store.
func (s *MySQLStore) ShowtimesWithExpiredHolds(ctx context.Context, now time.Time) ([]string, error) {
	return s.seats.ShowtimesWithExpiredHolds(ctx, now)
}

type mysqlTx struct {
	store      *MySQLStore
	tx         *sql.Tx
	showtimeID string
	inventory  *model.SeatInventory
}

func (t *mysqlTx) Inventory(_ context.Context) (*model.SeatInventory, error) {
	if t.inventory == nil {
		return nil, model.ErrInventoryNotFound
	}
	inv := *t.inventory
	return &inv, nil
}

func (t *mysqlTx) CreateInventory(ctx context.Context, inv model.SeatInventory, seats []model.Seat) error {
	if t.inventory != nil {
		return model.ErrAlreadyInitialized
	}
	inv.ShowtimeID = t.showtimeID
	if err := t.store.inventories.CreateTx(ctx, t.tx, inv); err != nil {
		return err
	}
	for i := range seats {
		seats[i].ShowtimeID = t.showtimeID
	}
	if err := t.store.seats.CreateBulkTx(ctx, t.tx, seats); err != nil {
		return err
	}
	t.inventory = &inv
	return nil
}

func (t *mysqlTx) DeleteInventory(ctx context.Context) error {
	if t.inventory == nil {
		return model.ErrInventoryNotFound
	}
	if err := t.store.seats.DeleteByShowtimeTx(ctx, t.tx, t.showtimeID); err != nil {
		return err
	}
	if err := t.store.inventories.DeleteTx(ctx, t.tx, t.showtimeID); err != nil {
		return err
	}
	t.inventory = nil
	return nil
}

func (t *mysqlTx) Seats(ctx context.Context, codes []string) ([]model.Seat, error) {
	return t.store.seats.ListTx(ctx, t.tx, t.showtimeID, codes)
}

func (t *mysqlTx) SaveSeats(ctx context.Context, seats []model.Seat) error {
	if t.inventory == nil {
		return model.ErrInventoryNotFound
	}
	for i := range seats {
		seats[i].ShowtimeID = t.showtimeID
	}
	return t.store.seats.UpdateTx(ctx, t.tx, seats)
}

func (t *mysqlTx) Booking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := t.store.bookings.GetTx(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	if b.ShowtimeID != t.showtimeID {
		return nil, model.ErrBookingNotFound
	}
	return b, nil
}

func (t *mysqlTx) SaveBooking(ctx context.Context, b *model.Booking) error {
	if b.ShowtimeID != t.showtimeID {
		return fmt.Errorf("booking %s belongs to showtime %s, not %s", b.ID, b.ShowtimeID, t.showtimeID)
	}
	return t.store.bookings.SaveTx(ctx, t.tx, b)
}

func (t *mysqlTx) Correlation(ctx context.Context, id string) (*model.PaymentCorrelation, error) {
	c, err := t.store.correlations.GetTx(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	if c.ShowtimeID != t.showtimeID {
		return nil, model.ErrUnknownCorrelation
	}
	return c, nil
}

func (t *mysqlTx) SaveCorrelation(ctx context.Context, c *model.PaymentCorrelation) error {
	if c.ShowtimeID != t.showtimeID {
		return fmt.Errorf("correlation %s belongs to showtime %s, not %s", c.ID, c.ShowtimeID, t.showtimeID)
	}
	return t.store.correlations.SaveTx(ctx, t.tx, c)
}
