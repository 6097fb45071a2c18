package reliability

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists events in a single-table sqlite database. It suits
// deployments where the history outgrows what a flat file reload can absorb.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tool TEXT NOT NULL,
			outcome TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_tool ON events(tool);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return &PersistenceError{Op: "init", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO events (tool, outcome, recorded_at) VALUES (?, ?, ?)
	`, ev.Tool, string(ev.Outcome), ev.Timestamp.UTC())
	if err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Load() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT tool, outcome, recorded_at FROM events ORDER BY id ASC
	`)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var outcome string
		var recordedAt sql.NullTime
		if err := rows.Scan(&ev.Tool, &outcome, &recordedAt); err != nil {
			return events, &PersistenceError{Op: "load", Err: err}
		}
		ev.Outcome = Outcome(outcome)
		if recordedAt.Valid {
			ev.Timestamp = recordedAt.Time
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return events, &PersistenceError{Op: "load", Err: err}
	}
	return events, nil
}

func (s *SQLiteStore) Replace(events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return &PersistenceError{Op: "replace", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return &PersistenceError{Op: "replace", Err: err}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (tool, outcome, recorded_at) VALUES (?, ?, ?)
	`)
	if err != nil {
		return &PersistenceError{Op: "replace", Err: err}
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(ev.Tool, string(ev.Outcome), ev.Timestamp.UTC()); err != nil {
			return &PersistenceError{Op: "replace", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "replace", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &PersistenceError{Op: "close", Err: err}
	}
	return nil
}
