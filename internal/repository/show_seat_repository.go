package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// seatInsertChunk caps the rows per INSERT so large halls stay well below
// max_allowed_packet and the placeholder limit.
const seatInsertChunk = 500

// ShowSeatRepo encapsulates database operations for show_seats, one row per
// seat of a provisioned showtime.
type ShowSeatRepo struct {
	db *sql.DB
}

// NewShowSeatRepo constructs a ShowSeatRepo given a DB handle.
func NewShowSeatRepo(db *sql.DB) *ShowSeatRepo {
	return &ShowSeatRepo{db: db}
}

const seatColumns = `showtime_id, seat_code, row_label, seat_number, position, status, holder_booking_id, hold_expires_at, updated_at`

// CreateBulkTx inserts seats with multi-row INSERT statements.
func (r *ShowSeatRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, seats []model.Seat) error {
	for start := 0; start < len(seats); start += seatInsertChunk {
		end := start + seatInsertChunk
		if end > len(seats) {
			end = len(seats)
		}
		chunk := seats[start:end]
		query := `INSERT INTO show_seats (` + seatColumns + `) VALUES `
		args := make([]interface{}, 0, len(chunk)*9)
		for i, s := range chunk {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args, s.ShowtimeID, s.Code, s.Row, s.Column, s.Position, string(s.Status),
				nullString(s.HolderBookingID), nullTime(s.HoldExpiresAt), s.UpdatedAt.UTC())
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// ListTx returns seats of a showtime in layout order.  A nil codes slice
// selects every seat; otherwise only the given codes are read.
func (r *ShowSeatRepo) ListTx(ctx context.Context, tx *sql.Tx, showtimeID string, codes []string) ([]model.Seat, error) {
	return r.list(ctx, tx, showtimeID, codes)
}

// ListByShowtime is ListTx on committed state.
func (r *ShowSeatRepo) ListByShowtime(ctx context.Context, showtimeID string) ([]model.Seat, error) {
	return r.list(ctx, r.db, showtimeID, nil)
}

func (r *ShowSeatRepo) list(ctx context.Context, q querier, showtimeID string, codes []string) ([]model.Seat, error) {
	if codes != nil && len(codes) == 0 {
		return []model.Seat{}, nil
	}
	query := `SELECT ` + seatColumns + ` FROM show_seats WHERE showtime_id = ?`
	args := []interface{}{showtimeID}
	if codes != nil {
		query += ` AND seat_code IN (` + placeholders(len(codes)) + `)`
		for _, c := range codes {
			args = append(args, c)
		}
	}
	query += ` ORDER BY position`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := []model.Seat{}
	for rows.Next() {
		var s model.Seat
		var status string
		var holder sql.NullString
		var expires sql.NullTime
		if err := rows.Scan(&s.ShowtimeID, &s.Code, &s.Row, &s.Column, &s.Position, &status, &holder, &expires, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = model.SeatStatus(status)
		s.HolderBookingID = holder.String
		s.HoldExpiresAt = timePtr(expires)
		s.UpdatedAt = s.UpdatedAt.UTC()
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// UpdateTx writes the status, holder and expiry of each seat and bumps its
// version.
func (r *ShowSeatRepo) UpdateTx(ctx context.Context, tx *sql.Tx, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE show_seats
	    SET status = ?, holder_booking_id = ?, hold_expires_at = ?, updated_at = ?, version = version + 1
	    WHERE showtime_id = ? AND seat_code = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range seats {
		if _, err := stmt.ExecContext(ctx, string(s.Status), nullString(s.HolderBookingID), nullTime(s.HoldExpiresAt),
			s.UpdatedAt.UTC(), s.ShowtimeID, s.Code); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByShowtimeTx removes every seat of a showtime.
func (r *ShowSeatRepo) DeleteByShowtimeTx(ctx context.Context, tx *sql.Tx, showtimeID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM show_seats WHERE showtime_id = ?`, showtimeID)
	return err
}

// ShowtimesWithExpiredHolds lists showtimes having at least one HELD seat
// whose hold expired at or before now.
func (r *ShowSeatRepo) ShowtimesWithExpiredHolds(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT showtime_id FROM show_seats WHERE status = 'HELD' AND hold_expires_at <= ? ORDER BY showtime_id`,
		now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, strings.TrimSpace(id))
	}
	return ids, rows.Err()
}
