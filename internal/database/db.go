package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Options describes a MySQL connection.  Zero pool values fall back to
// 25 open/idle connections and a 30 minute lifetime.
type Options struct {
	User, Pass, Host, Port, Name string
	MaxOpenConns                 int
	MaxIdleConns                 int
	ConnMaxLifetime              time.Duration
	// LockWaitTimeout bounds how long a unit of work waits on a row lock
	// before MySQL gives up with error 1205.
	LockWaitTimeout time.Duration
}

// DSN renders the driver connection string.  parseTime maps DATETIME to
// time.Time and loc=UTC keeps hold expiries comparable with UTC_TIMESTAMP().
func (o Options) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Pass
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", o.Host, o.Port)
	cfg.DBName = o.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if o.LockWaitTimeout > 0 {
		secs := int(o.LockWaitTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		cfg.Params["innodb_lock_wait_timeout"] = fmt.Sprint(secs)
	}
	return cfg.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(o Options) (*sql.DB, error) {
	db, err := sql.Open("mysql", o.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	maxOpen, maxIdle, life := o.MaxOpenConns, o.MaxIdleConns, o.ConnMaxLifetime
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 25
	}
	if life <= 0 {
		life = 30 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(life)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
