package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Database wraps the SQL handle for easier swapping/testing.
type Database struct {
	DB     *sql.DB
	Driver string
}

// New opens (and creates if needed) the SQLite database at path.
func New(path string) (*Database, error) {
	return Open(DriverSQLite, path)
}

// Open connects to either SQLite (dsn is a file path or :memory:) or PostgreSQL.
func Open(driver, dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}
	switch driver {
	case DriverSQLite, "":
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite prefers single writer.
		db.SetConnMaxLifetime(time.Hour)
		return &Database{DB: db, Driver: DriverSQLite}, nil
	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(time.Hour)
		return &Database{DB: db, Driver: DriverPostgres}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d *Database) rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
