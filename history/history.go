// Package history keeps a local journal of connection events.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yllada/openvpn-management/common"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind is the type of a journaled event.
type Kind string

const (
	KindState     Kind = "state"
	KindFailure   Kind = "failure"
	KindReconnect Kind = "reconnect"
)

// Event is one journal entry. Detail never carries secrets.
type Event struct {
	ID        int64
	ServiceID string
	Kind      Kind
	OldState  string
	NewState  string
	Detail    string
	CreatedAt time.Time
}

// Store is a sqlite-backed journal.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Open opens or creates the journal at dsn and applies pending migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database. Further calls return ErrHistoryClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Record appends e. A zero CreatedAt is set to now.
func (s *Store) Record(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrHistoryClosed
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO events (service_id, kind, old_state, new_state, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ServiceID, string(e.Kind), e.OldState, e.NewState, e.Detail, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for serviceID, newest first.
func (s *Store) Recent(serviceID string, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, common.ErrHistoryClosed
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`SELECT id, service_id, kind, old_state, new_state, detail, created_at
		FROM events WHERE service_id = ? ORDER BY id DESC LIMIT ?`, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		var created int64
		if err := rows.Scan(&e.ID, &e.ServiceID, &kind, &e.OldState, &e.NewState, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = Kind(kind)
		e.CreatedAt = time.UnixMilli(created)
		events = append(events, e)
	}
	return events, rows.Err()
}
