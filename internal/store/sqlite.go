// Package store persists tickets, drafts, human reviews and the
// delivery retry queue in SQLite. A single file database is enough at
// this system's volume; WAL mode keeps the worker's claim updates from
// blocking the inbound request path.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voltgrid/cancelflow/internal/config"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateTicket is returned when a ticket with the same dedup key
// already exists. Callers resolve the existing ticket instead of
// creating a second one.
var ErrDuplicateTicket = errors.New("duplicate ticket")

// DB is the record store.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database and applies the schema.
func Open(cfg config.StoreConfig) (*DB, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	busyMillis := cfg.BusyTimeout.Duration().Milliseconds()
	if busyMillis <= 0 {
		busyMillis = (5 * time.Second).Milliseconds()
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyMillis),
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %s: %w", pragma, err)
		}
	}

	s := &DB{db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		dedup_key TEXT NOT NULL UNIQUE,
		customer_email TEXT NOT NULL,
		raw_email TEXT NOT NULL,
		reason TEXT NOT NULL,
		move_date TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		ticket_id TEXT NOT NULL REFERENCES tickets(id),
		language TEXT NOT NULL,
		draft_text TEXT NOT NULL,
		confidence REAL NOT NULL,
		generator TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_drafts_ticket ON drafts(ticket_id);

	CREATE TABLE IF NOT EXISTS human_reviews (
		id TEXT PRIMARY KEY,
		ticket_id TEXT NOT NULL REFERENCES tickets(id),
		draft_id TEXT NOT NULL REFERENCES drafts(id),
		decision TEXT NOT NULL,
		final_text TEXT NOT NULL,
		reviewer TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT PRIMARY KEY,
		ticket_id TEXT NOT NULL,
		draft_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		next_retry_at TIMESTAMP NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_claim ON delivery_queue(status, next_retry_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
