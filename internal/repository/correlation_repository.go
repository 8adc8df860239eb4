package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// CorrelationRepo provides data access to the payment_correlations table.
// A row is inserted PENDING when checkout starts and updated once when the
// payment collaborator reports the outcome.
type CorrelationRepo struct {
	db *sql.DB
}

// NewCorrelationRepo returns a new CorrelationRepo bound to the provided database.
func NewCorrelationRepo(db *sql.DB) *CorrelationRepo { return &CorrelationRepo{db: db} }

const correlationColumns = `id, booking_id, showtime_id, outcome, created_at, resolved_at`

// SaveTx inserts the correlation or records its resolution.  The update
// only touches rows that are still PENDING, so a resolved row never changes.
func (r *CorrelationRepo) SaveTx(ctx context.Context, tx *sql.Tx, c *model.PaymentCorrelation) error {
	const q = `INSERT INTO payment_correlations (` + correlationColumns + `) VALUES (?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE
	               resolved_at = IF(outcome = 'PENDING', VALUES(resolved_at), resolved_at),
	               outcome = IF(outcome = 'PENDING', VALUES(outcome), outcome)`
	_, err := tx.ExecContext(ctx, q, c.ID, c.BookingID, c.ShowtimeID, string(c.Outcome), c.CreatedAt.UTC(), nullTime(c.ResolvedAt))
	return err
}

// GetTx reads a correlation inside a transaction.
func (r *CorrelationRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.PaymentCorrelation, error) {
	return r.get(ctx, tx, id)
}

// GetByID reads a committed correlation.  Unknown ids yield
// model.ErrUnknownCorrelation.
func (r *CorrelationRepo) GetByID(ctx context.Context, id string) (*model.PaymentCorrelation, error) {
	return r.get(ctx, r.db, id)
}

func (r *CorrelationRepo) get(ctx context.Context, q querier, id string) (*model.PaymentCorrelation, error) {
	var c model.PaymentCorrelation
	var outcome string
	var resolved sql.NullTime
	err := q.QueryRowContext(ctx, `SELECT `+correlationColumns+` FROM payment_correlations WHERE id = ?`, id).
		Scan(&c.ID, &c.BookingID, &c.ShowtimeID, &outcome, &c.CreatedAt, &resolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUnknownCorrelation
		}
		return nil, err
	}
	c.Outcome = model.PaymentOutcome(outcome)
	c.CreatedAt = c.CreatedAt.UTC()
	c.ResolvedAt = timePtr(resolved)
	return &c, nil
}
