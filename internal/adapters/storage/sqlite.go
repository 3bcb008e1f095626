package storage

// sqlite.go — durable store for the audit log and trade rows.
//
// Tables:
//   events          — append-only audit trail. seq gives insertion order for
//                     timestamp tie-breaks. Nothing ever updates or deletes
//                     a row; the only write is INSERT.
//   trades          — one row per submitted trade, settled exactly once.
//   position_limits — externally configured validator inputs.

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id   TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    agent_id   TEXT NOT NULL DEFAULT '',
    timestamp  DATETIME NOT NULL,
    data       TEXT NOT NULL DEFAULT '{}',
    caused_by  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_type  ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id);
CREATE INDEX IF NOT EXISTS idx_events_at    ON events(timestamp);

CREATE TABLE IF NOT EXISTS trades (
    id              TEXT PRIMARY KEY,
    agent_id        TEXT NOT NULL,
    trade_type      TEXT NOT NULL,
    protocol        TEXT NOT NULL,
    input_asset     TEXT NOT NULL,
    input_amount    REAL NOT NULL,
    output_asset    TEXT NOT NULL,
    expected_return REAL NOT NULL DEFAULT 0,
    gas_cost_usd    REAL NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'pending',
    actual_return   REAL NOT NULL DEFAULT 0,
    execution_price REAL NOT NULL DEFAULT 0,
    tx_hash         TEXT NOT NULL DEFAULT '',
    error_message   TEXT NOT NULL DEFAULT '',
    submitted_at    DATETIME NOT NULL,
    executed_at     DATETIME,
    failed_at       DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trades_agent  ON trades(agent_id);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_at     ON trades(submitted_at DESC);

CREATE TABLE IF NOT EXISTS position_limits (
    agent_id           TEXT NOT NULL,
    asset              TEXT NOT NULL DEFAULT '',
    max_position_usd   REAL NOT NULL,
    max_trade_size_usd REAL NOT NULL,
    max_daily_trades   INTEGER NOT NULL,
    PRIMARY KEY (agent_id, asset)
);
`

// SQLiteStorage implements ports.EventStore, ports.TradeStore and
// ports.LimitStore on a single SQLite database (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at the given path and
// applies the schema. Use ":memory:" for tests.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection cleanly.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
