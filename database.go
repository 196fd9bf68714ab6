package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database used for the settings store and the
// analytics event log. World state never touches it.
type DB struct {
	conn *sql.DB
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			session_id TEXT,
			data TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`)
	return err
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetSetting returns a settings value, or "" if unset
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetSetting stores a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// InsertEvents writes a batch of analytics events in one transaction
func (db *DB) InsertEvents(events []AnalyticsEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (event_type, session_id, data, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, evt := range events {
		sid := sql.NullString{String: evt.SessionID, Valid: evt.SessionID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, sid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}
	return tx.Commit()
}

// EventCount returns the total number of recorded events
func (db *DB) EventCount() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

// EventCountsSince returns per-type event counts since the given time
func (db *DB) EventCountsSince(since time.Time) (map[string]int, error) {
	rows, err := db.conn.Query(
		`SELECT event_type, COUNT(*) FROM events WHERE created_at >= ? GROUP BY event_type`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// ActiveSessionsSince returns the number of distinct sessions seen
// since the given time
func (db *DB) ActiveSessionsSince(since time.Time) (int, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(DISTINCT session_id) FROM events
		 WHERE session_id IS NOT NULL AND created_at >= ?`,
		since.UTC().Format(time.RFC3339)).Scan(&count)
	return count, err
}
