package state

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	stmt    string
}

// migrations are applied in order, each in its own transaction.
// Append only; never edit a released entry.
var migrations = []migration{
	{1, `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	agent       TEXT NOT NULL,
	task_id     TEXT,
	task_text   TEXT NOT NULL,
	status      TEXT NOT NULL,
	output      TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	ended_at    DATETIME,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	timeout_ms  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`},
	{2, `
ALTER TABLE runs ADD COLUMN cancelled INTEGER NOT NULL DEFAULT 0;
ALTER TABLE runs ADD COLUMN recorded_at DATETIME;
`},
}

const versionQuery = `SELECT COALESCE(MAX(version), 0) FROM schema_version`

// Migrate brings the schema up to the latest version. Running it again is a no-op.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("schema_version table: %w", err)
	}

	var applied int
	if err := db.conn.QueryRow(versionQuery).Scan(&applied); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= applied {
			continue
		}
		if err := apply(db.conn, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func apply(conn *sql.DB, m migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.stmt); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion reports the newest migration applied.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.QueryRow(versionQuery).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
