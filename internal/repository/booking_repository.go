package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// BookingRepo stores bookings together with their seat list
// (booking_seats) and status history (booking_history).  All timestamps
// are written and read in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, showtime_id, price_per_seat_cents, total_cents, status, correlation_id, created_at, updated_at`

// SaveTx inserts or updates a booking.  Seats are written once, on insert;
// history entries not yet stored are appended in order.
func (r *BookingRepo) SaveTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE
	               price_per_seat_cents = VALUES(price_per_seat_cents),
	               total_cents = VALUES(total_cents),
	               status = VALUES(status),
	               correlation_id = VALUES(correlation_id),
	               updated_at = VALUES(updated_at)`
	if _, err := tx.ExecContext(ctx, q, b.ID, b.UserID, b.ShowtimeID, b.PricePerSeatCents, b.TotalCents,
		string(b.Status), nullString(b.CorrelationID), b.CreatedAt.UTC(), b.UpdatedAt.UTC()); err != nil {
		return err
	}
	if err := r.createSeatsTx(ctx, tx, b); err != nil {
		return err
	}
	return r.appendHistoryTx(ctx, tx, b)
}

// createSeatsTx inserts the booking's seat codes.  INSERT IGNORE makes the
// call a no-op for bookings whose seats are already stored.
func (r *BookingRepo) createSeatsTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	if len(b.Seats) == 0 {
		return nil
	}
	query := `INSERT IGNORE INTO booking_seats (booking_id, position, seat_code) VALUES `
	args := make([]interface{}, 0, len(b.Seats)*3)
	for i, code := range b.Seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, b.ID, i, code)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *BookingRepo) appendHistoryTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM booking_history WHERE booking_id = ?`, b.ID,
	).Scan(&stored); err != nil {
		return err
	}
	if stored >= len(b.History) {
		return nil
	}
	query := `INSERT INTO booking_history (booking_id, seq, from_status, to_status, reason, created_at) VALUES `
	args := make([]interface{}, 0, (len(b.History)-stored)*6)
	for i := stored; i < len(b.History); i++ {
		h := b.History[i]
		if i > stored {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, b.ID, i+1, nullString(string(h.From)), string(h.To), h.Reason, h.At.UTC())
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetTx loads a booking inside a transaction.
func (r *BookingRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.Booking, error) {
	return r.get(ctx, tx, id)
}

// GetByID loads a committed booking.  It returns model.ErrBookingNotFound
// when no row matches.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.get(ctx, r.db, id)
}

func (r *BookingRepo) get(ctx context.Context, q querier, id string) (*model.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrBookingNotFound
		}
		return nil, err
	}
	if err := r.loadDetails(ctx, q, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListByUser returns all bookings of a user, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	var list []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(list))
	for _, b := range list {
		if err := r.loadDetails(ctx, r.db, b); err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var status string
	var corr sql.NullString
	if err := row.Scan(&b.ID, &b.UserID, &b.ShowtimeID, &b.PricePerSeatCents, &b.TotalCents,
		&status, &corr, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	b.CorrelationID = corr.String
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func (r *BookingRepo) loadDetails(ctx context.Context, q querier, b *model.Booking) error {
	srows, err := q.QueryContext(ctx,
		`SELECT seat_code FROM booking_seats WHERE booking_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return err
	}
	b.Seats = []string{}
	for srows.Next() {
		var code string
		if err := srows.Scan(&code); err != nil {
			srows.Close()
			return err
		}
		b.Seats = append(b.Seats, code)
	}
	if err := srows.Close(); err != nil {
		return err
	}
	if err := srows.Err(); err != nil {
		return err
	}

	hrows, err := q.QueryContext(ctx,
		`SELECT from_status, to_status, reason, created_at FROM booking_history WHERE booking_id = ? ORDER BY seq`, b.ID)
	if err != nil {
		return err
	}
	defer hrows.Close()
	b.History = nil
	for hrows.Next() {
		var from sql.NullString
		var h model.StatusChange
		var to string
		if err := hrows.Scan(&from, &to, &h.Reason, &h.At); err != nil {
			return err
		}
		h.From = model.BookingStatus(from.String)
		h.To = model.BookingStatus(to)
		h.At = h.At.UTC()
		b.History = append(b.History, h)
	}
	return hrows.Err()
}
