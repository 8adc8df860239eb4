package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// InventoryRepo manages the seat_inventories table.  The inventory row of a
// showtime doubles as the row lock that serializes its units of work.
type InventoryRepo struct {
	db *sql.DB
}

// NewInventoryRepo returns an InventoryRepo bound to db.
func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

const inventoryColumns = `showtime_id, total_seats, seats_per_row, created_at`

func scanInventory(row *sql.Row) (*model.SeatInventory, error) {
	var inv model.SeatInventory
	if err := row.Scan(&inv.ShowtimeID, &inv.TotalSeats, &inv.SeatsPerRow, &inv.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrInventoryNotFound
		}
		return nil, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	return &inv, nil
}

// LockTx reads the inventory row with SELECT ... FOR UPDATE.  When no row
// exists it returns model.ErrInventoryNotFound and nothing is locked under
// READ COMMITTED; concurrent initializations are kept apart by the primary
// key instead, the loser failing CreateTx with model.ErrAlreadyInitialized.
func (r *InventoryRepo) LockTx(ctx context.Context, tx *sql.Tx, showtimeID string) (*model.SeatInventory, error) {
	const q = `SELECT ` + inventoryColumns + ` FROM seat_inventories WHERE showtime_id = ? FOR UPDATE`
	return scanInventory(tx.QueryRowContext(ctx, q, showtimeID))
}

// GetByID reads committed inventory state without locking.
func (r *InventoryRepo) GetByID(ctx context.Context, showtimeID string) (*model.SeatInventory, error) {
	const q = `SELECT ` + inventoryColumns + ` FROM seat_inventories WHERE showtime_id = ?`
	return scanInventory(r.db.QueryRowContext(ctx, q, showtimeID))
}

// CreateTx inserts the inventory row.  A duplicate key means the showtime
// is already provisioned.
func (r *InventoryRepo) CreateTx(ctx context.Context, tx *sql.Tx, inv model.SeatInventory) error {
	const q = `INSERT INTO seat_inventories (` + inventoryColumns + `) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, inv.ShowtimeID, inv.TotalSeats, inv.SeatsPerRow, inv.CreatedAt.UTC()); err != nil {
		if isDuplicate(err) {
			return model.ErrAlreadyInitialized
		}
		return err
	}
	return nil
}

// DeleteTx removes the inventory row.
func (r *InventoryRepo) DeleteTx(ctx context.Context, tx *sql.Tx, showtimeID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM seat_inventories WHERE showtime_id = ?`, showtimeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrInventoryNotFound
	}
	return nil
}
