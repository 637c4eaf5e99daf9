// Package store provides SQLite persistence for the agent's engagement
// history. The history is the durable side of the rate limits: on restart
// the day's reply count and per-author cooldowns are rebuilt from it.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Engagement records one dispatched reply
type Engagement struct {
	ItemID   string
	AuthorID string
	Reply    string
	Score    float64
	PostedAt time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS engagements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		reply TEXT NOT NULL,
		score REAL NOT NULL,
		posted_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_engagements_author ON engagements(author_id, posted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_engagements_posted ON engagements(posted_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveEngagement records a dispatched reply.
// Thread-safe: acquires write lock.
func (s *Store) SaveEngagement(e Engagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO engagements (item_id, author_id, reply, score, posted_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ItemID, e.AuthorID, e.Reply, e.Score, e.PostedAt)
	return err
}

// CountSince returns the number of engagements posted at or after the given
// time. Used to rebuild the daily reply counter at startup.
// Thread-safe: acquires read lock.
func (s *Store) CountSince(since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM engagements WHERE posted_at >= ?", since,
	).Scan(&count)
	return count, err
}

// LastReplyTimes returns the most recent reply time per author since the
// given time. Used to rebuild cooldown state at startup.
// Thread-safe: acquires read lock.
func (s *Store) LastReplyTimes(since time.Time) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT author_id, MAX(posted_at)
		FROM engagements
		WHERE posted_at >= ?
		GROUP BY author_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var author string
		var raw string
		if err := rows.Scan(&author, &raw); err != nil {
			return nil, err
		}
		// MAX(posted_at) is an expression column with no declared type, so
		// the driver returns the stored text instead of a time.Time. Parse
		// it with the format the driver uses to store time values.
		posted, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", raw)
		if err != nil {
			return nil, fmt.Errorf("parse posted_at %q: %w", raw, err)
		}
		result[author] = posted
	}
	return result, rows.Err()
}

// Recent returns the most recent engagements, newest first.
// Thread-safe: acquires read lock.
func (s *Store) Recent(limit int) ([]Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT item_id, author_id, reply, score, posted_at
		FROM engagements
		ORDER BY posted_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Engagement
	for rows.Next() {
		var e Engagement
		if err := rows.Scan(&e.ItemID, &e.AuthorID, &e.Reply, &e.Score, &e.PostedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
