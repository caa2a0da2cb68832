// store.go - Studien-Persistenz
// Enthaelt: Store struct, New, Close, Schema-Initialisierung
//
// SQLite verwaltet sein eigenes Locking fuer konkurrierende Zugriffe:
// mehrere Leser koennen gleichzeitig zugreifen, Schreiber werden
// serialisiert und der WAL-Modus erlaubt Lesern, Schreiber nicht zu
// blockieren. Application-Level-Locks sind daher nicht noetig.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// Store persists studies and their observations so inference sessions can
// be re-hydrated after a restart.
type Store struct {
	conn *sql.DB
}

// New opens (and if necessary creates) the study database at dbPath.
func New(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return s, nil
}

// Close schliesst die Datenbankverbindung
func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return s.conn.Close()
}

// init initialisiert das Datenbankschema
func (s *Store) init() error {
	if _, err := s.conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS studies (
		name TEXT PRIMARY KEY,
		metadata TEXT NOT NULL DEFAULT '[]', -- JSON-Array der Metadaten-Features
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		study_name TEXT NOT NULL,
		features TEXT NOT NULL, -- JSON-Array des Feature-Vektors
		value REAL NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (study_name) REFERENCES studies(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_observations_study ON observations(study_name, id);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
