// Package journal persists every emitted event to SQLite so operators can
// replay a session and audit what the normalization pipeline produced.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"sensorbridge/server/internal/lifecycle"
)

// Journal is an append-only event log backed by SQLite. All methods are
// safe for concurrent use; SQLite serializes writers internally.
type Journal struct {
	db *sql.DB
}

// Entry is one journalled event row.
type Entry struct {
	Seq        uint64          `json:"seq"`
	ServerTime int64           `json:"serverTime"`
	Kind       string          `json:"kind"`
	Target     string          `json:"target,omitempty"`
	Event      lifecycle.Event `json:"event"`
}

// Open creates or reopens a journal at path. ":memory:" keeps the whole
// journal in process memory, which the tests rely on.
func Open(path string) (*Journal, error) {
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if path == ":memory:" {
		// A pool of connections would each see a different database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	j := &Journal{db: db}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return j, nil
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY,
		server_time INTEGER NOT NULL,
		kind TEXT NOT NULL,
		target TEXT,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_target ON events(target);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Append records one emitted event.
func (j *Journal) Append(seq uint64, serverTime time.Time, event lifecycle.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = j.db.Exec(
		"INSERT INTO events (seq, server_time, kind, target, payload) VALUES (?, ?, ?, ?, ?)",
		int64(seq), serverTime.UnixMilli(), string(event.Kind), string(event.Target), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(
		"SELECT seq, server_time, kind, target, payload FROM events ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &entry.ServerTime, &entry.Kind, &entry.Target, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entry.Seq = uint64(seq)
		if err := json.Unmarshal([]byte(payload), &entry.Event); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", seq, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Totals reports how many events of each kind have been journalled.
func (j *Journal) Totals() (map[string]int64, error) {
	rows, err := j.db.Query("SELECT kind, COUNT(*) FROM events GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		totals[kind] = count
	}
	return totals, rows.Err()
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
