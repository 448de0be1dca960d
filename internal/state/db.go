// Package state provides the SQLite run journal for conductor.
// Finished runs are appended for auditing and for `conductor history`;
// the journal is never read back to resume work.
package state

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// busyTimeoutMs is how long a writer waits on a locked database.
const busyTimeoutMs = 5000

// DB is the run journal. All access goes through its methods so writes are serialized.
type DB struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
}

// DefaultPath is where the journal lives when journal.path is set to "default":
// $XDG_DATA_HOME/conductor/journal.db, falling back to ~/.local/share.
func DefaultPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "conductor", "journal.db")
}

// dsn applies the journal pragmas to every pooled connection.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs))
	return "file:" + path + "?" + q.Encode()
}

// Open connects to the SQLite file at path, creating its directory first.
// The schema is left as is; see OpenJournal.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect journal %s: %w", path, err)
	}
	return &DB{conn: conn, path: path}, nil
}

// OpenJournal opens path and brings its schema up to date.
func OpenJournal(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path is the file the journal was opened from.
func (db *DB) Path() string { return db.path }

// Exec runs a statement under the write lock.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query runs a read.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow runs a read expected to yield at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// timeLayout has fixed-width fractional seconds so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// nullableTime keeps zero times out of the table.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseNullableTime yields the zero time for NULL or unreadable values.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	if t, err := parseTime(s.String); err == nil {
		return t
	}
	return time.Time{}
}

// PurgeOlderThan drops runs started more than age ago and reports how many went.
func (db *DB) PurgeOlderThan(age time.Duration) (int64, error) {
	res, err := db.Exec(`DELETE FROM runs WHERE started_at < ?`, formatTime(time.Now().Add(-age)))
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return res.RowsAffected()
}
