// Package store implements the single embedded relational database that
// backs every durable entity in the system: sessions, turns, steps,
// events, permission requests, tool policy, file versions/changes, and
// context items. It is the only component that talks to SQLite; every
// other package goes through the typed methods here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

var (
	// ErrNotFound is returned when a lookup by id finds no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an operation violates a uniqueness or
	// state invariant (e.g. resolving an already-resolved PermissionRequest).
	ErrConflict = errors.New("store: conflict")
	// ErrSessionBusy is returned by CreateTurn when the session already has
	// an in-flight turn (spec §3 invariant 8).
	ErrSessionBusy = errors.New("store: session busy")
)

// Store wraps the database handle plus the per-session locks the Event
// Writer and Sandbox FS use to serialize mutations (spec §5).
type Store struct {
	db *sql.DB

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sync.Mutex

	pathLocksMu sync.Mutex
	pathLocks   map[string]*sync.Mutex
}

// Open creates (if needed) and opens the SQLite database at path, applying
// any pending migrations. Use ":memory:" for ephemeral stores in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single physical connection avoids SQLITE_BUSY from modernc's
	// pure-Go driver under concurrent writers; the Store's own session
	// and path locks already serialize the writes that matter.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{
		db:           db,
		sessionLocks: make(map[string]*sync.Mutex),
		pathLocks:    make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components (tests, admin tooling)
// that need a raw query the typed API does not cover.
func (s *Store) DB() *sql.DB { return s.db }

// LockSession returns the mutex the Event Writer and Agent Runner must
// hold while allocating (id, seq) for a session's events, or while
// checking/flipping its busy state. The same *sync.Mutex is always
// returned for a given session id.
func (s *Store) LockSession(sessionID string) *sync.Mutex {
	s.sessionLocksMu.Lock()
	defer s.sessionLocksMu.Unlock()
	m, ok := s.sessionLocks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.sessionLocks[sessionID] = m
	}
	return m
}

// LockPath returns the mutex Sandbox FS must hold while mutating a given
// (session, path) pair, so FileVersion.idx stays dense.
func (s *Store) LockPath(sessionID, path string) *sync.Mutex {
	key := sessionID + "\x00" + path
	s.pathLocksMu.Lock()
	defer s.pathLocksMu.Unlock()
	m, ok := s.pathLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.pathLocks[key] = m
	}
	return m
}

// withTx runs fn inside a transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
