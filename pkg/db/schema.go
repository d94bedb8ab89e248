package db

import (
	"database/sql"
	"fmt"
)

const sqliteSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS signals (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    symbol TEXT NOT NULL,
    action TEXT NOT NULL,
    confidence REAL NOT NULL,
    score REAL NOT NULL DEFAULT 0,
    threshold REAL NOT NULL DEFAULT 0,
    technical REAL NOT NULL DEFAULT 0,
    market REAL NOT NULL DEFAULT 0,
    order_book REAL NOT NULL DEFAULT 0,
    sentiment REAL NOT NULL DEFAULT 0,
    sentiment_available INTEGER NOT NULL DEFAULT 0,
    volatility REAL NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    signal_id TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity REAL NOT NULL,
    price REAL NOT NULL,
    total_value REAL NOT NULL,
    fee REAL NOT NULL DEFAULT 0,
    exchange_order_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS market_conditions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    trend TEXT NOT NULL,
    strength REAL NOT NULL,
    volatility REAL NOT NULL,
    volume_regime TEXT NOT NULL,
    support REAL NOT NULL,
    resistance REAL NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, seq);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, seq);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS signals (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    symbol TEXT NOT NULL,
    action TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
    technical DOUBLE PRECISION NOT NULL DEFAULT 0,
    market DOUBLE PRECISION NOT NULL DEFAULT 0,
    order_book DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentiment DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentiment_available BOOLEAN NOT NULL DEFAULT FALSE,
    volatility DOUBLE PRECISION NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    signal_id TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity DOUBLE PRECISION NOT NULL,
    price DOUBLE PRECISION NOT NULL,
    total_value DOUBLE PRECISION NOT NULL,
    fee DOUBLE PRECISION NOT NULL DEFAULT 0,
    exchange_order_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS market_conditions (
    seq BIGSERIAL PRIMARY KEY,
    symbol TEXT NOT NULL,
    trend TEXT NOT NULL,
    strength DOUBLE PRECISION NOT NULL,
    volatility DOUBLE PRECISION NOT NULL,
    volume_regime TEXT NOT NULL,
    support DOUBLE PRECISION NOT NULL,
    resistance DOUBLE PRECISION NOT NULL,
    degraded BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, seq);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, seq);
`

// ApplyMigrations creates the schema and adds columns introduced after the
// first release.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	schema := sqliteSchema
	if d.Driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Round-trip bookkeeping on exits.
	if err := d.ensureColumn("trades", "realized_pnl", "REAL NOT NULL DEFAULT 0", "DOUBLE PRECISION NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := d.ensureColumn("trades", "hold_seconds", "REAL NOT NULL DEFAULT 0", "DOUBLE PRECISION NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := d.ensureColumn("trades", "reason", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return nil
}

func (d *Database) ensureColumn(table, column, sqliteDef, postgresDef string) error {
	if d.Driver == DriverPostgres {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, postgresDef)
		if _, err := d.DB.Exec(alter); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, column, err)
		}
		return nil
	}

	exists, err := columnExists(d.DB, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, sqliteDef)
	if _, err := d.DB.Exec(alter); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
