package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	dsn := Options{User: "app", Pass: "secret", Host: "db", Port: "3306", Name: "booking", LockWaitTimeout: 3 * time.Second}.DSN()
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/booking?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "innodb_lock_wait_timeout=3")
}

func TestStatements(t *testing.T) {
	stmts := Statements()
	assert.Len(t, stmts, 7)
	for _, s := range stmts {
		assert.True(t, strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS"), s)
		assert.False(t, strings.HasSuffix(s, ";"))
	}
	assert.Contains(t, stmts[2], "show_seats")
}

func TestBookingTimestampsKeepMicroseconds(t *testing.T) {
	for _, s := range Statements()[1:] {
		for _, line := range strings.Split(s, "\n") {
			if strings.Contains(line, "DATETIME") {
				assert.Contains(t, line, "DATETIME(6)", line)
			}
		}
	}
}
