// Package storage provides the SQLite-backed persistence layer. Each
// named snapshot holds one JSON document that is always written and read
// as a whole.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a named-snapshot store backed by SQLite. All public methods
// are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// Open creates a snapshot store at the given database path. The schema
// is created automatically on first use.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		name       TEXT PRIMARY KEY,
		document   TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads the snapshot document into v. Returns (false, nil) when the
// snapshot has never been saved.
func (s *Store) Load(name string, v any) (bool, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM snapshots WHERE name = ?`, name).Scan(&doc)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return true, nil
}

// Save upserts the snapshot document, replacing any previous version.
func (s *Store) Save(name string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", name, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshots (name, document, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE
		 SET document = excluded.document, updated_at = excluded.updated_at`,
		name, string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return nil
}

// FactSnapshot adapts the store to the fact map load/save contract.
type FactSnapshot struct {
	store *Store
}

// Facts returns the snapshot view used by the fact store.
func (s *Store) Facts() *FactSnapshot {
	return &FactSnapshot{store: s}
}

// Load returns the persisted fact map, or nil when none exists.
func (f *FactSnapshot) Load() (map[string]string, error) {
	var facts map[string]string
	ok, err := f.store.Load("facts", &facts)
	if err != nil || !ok {
		return nil, err
	}
	return facts, nil
}

// Save replaces the persisted fact map.
func (f *FactSnapshot) Save(facts map[string]string) error {
	return f.store.Save("facts", facts)
}
