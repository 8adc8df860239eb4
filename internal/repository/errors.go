// Package repository persists seat inventories, bookings and payment
// correlations.  Domain failures are reported with the sentinels from the
// model package; the helpers here translate driver errors into them.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// MySQL server error numbers the store reacts to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a unit of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func mysqlErrorNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool {
	return mysqlErrorNumber(err) == mysqlDuplicateEntry
}

// lockError converts lock waits, deadlocks and expired contexts into
// model.ErrLockTimeout so callers can retry.  Other errors pass through.
func lockError(ctx context.Context, showtimeID string, err error) error {
	if err == nil {
		return nil
	}
	switch mysqlErrorNumber(err) {
	case mysqlLockWaitTimeout, mysqlDeadlock:
		return fmt.Errorf("%w: showtime %s: %v", model.ErrLockTimeout, showtimeID, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return fmt.Errorf("%w: showtime %s: %v", model.ErrLockTimeout, showtimeID, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// placeholders returns "?, ?, ?" with n marks.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
