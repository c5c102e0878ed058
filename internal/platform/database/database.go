package database

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"hookrelay/internal/platform/config"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB is a *sql.DB that remembers which driver it talks to, so repositories can
// write `?` placeholders once and run against SQLite or Postgres.
type DB struct {
	*sql.DB
	Driver string
}

func New(db *sql.DB, driver string) *DB {
	return &DB{DB: db, Driver: driver}
}

// Open picks the driver from the URL scheme: postgres:// and postgresql:// use
// lib/pq, everything else is treated as a SQLite path (an optional "file:"
// prefix is stripped).
func Open(cfg config.DatabaseConfig) (*DB, error) {
	driver, dsn := resolveDSN(cfg.URL)

	if driver == DriverSQLite && !strings.HasPrefix(dsn, ":memory:") {
		if dir := filepath.Dir(strings.SplitN(dsn, "?", 2)[0]); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if driver == DriverSQLite && strings.HasPrefix(dsn, ":memory:") {
		// every connection would get its own empty in-memory database
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return New(db, driver), nil
}

func resolveDSN(url string) (driver, dsn string) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres, url
	}

	dsn = strings.TrimPrefix(url, "file:")
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=1&_busy_timeout=5000"
	}
	return DriverSQLite, dsn
}

// Rebind rewrites `?` placeholders into the driver's native form.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique constraint failure from
// either supported driver.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
