// Package saves persists serialized engine state into named slots
// backed by a single SQLite file.
package saves

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a missing save slot.
var ErrNotFound = errors.New("saves: slot not found")

// Store is a slot-keyed save database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS saves (
	slot       TEXT PRIMARY KEY,
	step       INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	created_at TEXT NOT NULL
);`

// Open opens (creating if needed) the save database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("saves: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("saves: open %s: %w", path, err)
	}
	// The engine is the only writer; a single connection avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("saves: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts a slot with the serialized payload and the step it was
// captured at.
func (s *Store) Save(ctx context.Context, slot string, step uint64, payload []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("saves: store not open")
	}
	if slot == "" {
		return fmt.Errorf("saves: slot name is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saves (slot, step, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET step = excluded.step, payload = excluded.payload, created_at = excluded.created_at`,
		slot, int64(step), payload, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saves: save slot %q: %w", slot, err)
	}
	return nil
}

// Load returns a slot's captured step and payload.
func (s *Store) Load(ctx context.Context, slot string) (uint64, []byte, error) {
	if s == nil || s.db == nil {
		return 0, nil, fmt.Errorf("saves: store not open")
	}
	var step int64
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT step, payload FROM saves WHERE slot = ?`, slot,
	).Scan(&step, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("saves: load slot %q: %w", slot, err)
	}
	return uint64(step), payload, nil
}

// Slots lists the stored slot names.
func (s *Store) Slots(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("saves: store not open")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT slot FROM saves ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("saves: list slots: %w", err)
	}
	defer rows.Close()
	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("saves: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
