package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/dshills/taskgraph-go/flow"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of flow.Storage.
//
// It keeps all atom records in memory and writes through to a single-file
// database, so reads never touch the disk and stay safe under concurrent
// access while a run is in progress. On open, any rows already in the
// database are loaded back, which is what makes interrupted runs
// resumable.
//
// Designed for:
//   - Local flows that must survive a process restart
//   - Development and testing with zero setup (use ":memory:")
//
// Schema:
//   - flow_details: the single run-level state row
//   - atom_details: one row per atom (state, intention, progress, result)
type SQLiteStore struct {
	mu   sync.Mutex
	mem  *MemoryStore
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path and
// hydrates the store from it. WAL mode is enabled so concurrent readers
// do not block the writer.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite store: %w", err)
		}
	}

	s := &SQLiteStore{mem: NewMemoryStore(), db: db, path: path}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS flow_details (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			state TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS atom_details (
			name TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			intention TEXT NOT NULL,
			progress REAL NOT NULL DEFAULT 0,
			result TEXT,
			is_failure INTEGER NOT NULL DEFAULT 0,
			failure_event TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// load hydrates the in-memory view from existing rows.
func (s *SQLiteStore) load() error {
	var state string
	err := s.db.QueryRow(`SELECT state FROM flow_details WHERE id = 1`).Scan(&state)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(`INSERT INTO flow_details (id, state) VALUES (1, ?)`, string(flow.StateRunning)); err != nil {
			return fmt.Errorf("init flow state: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load flow state: %w", err)
	default:
		_ = s.mem.SetFlowState(flow.State(state))
	}

	rows, err := s.db.Query(`SELECT name, state, intention, progress, result, is_failure, failure_event FROM atom_details`)
	if err != nil {
		return fmt.Errorf("load atoms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, atomState, intention, failureEvent string
		var progress float64
		var result sql.NullString
		var isFailure bool
		if err := rows.Scan(&name, &atomState, &intention, &progress, &result, &isFailure, &failureEvent); err != nil {
			return fmt.Errorf("load atoms: %w", err)
		}
		_ = s.mem.SetAtomState(name, flow.State(atomState))
		_ = s.mem.SetIntention(name, flow.Intention(intention))
		_ = s.mem.SetProgress(name, progress)
		if result.Valid {
			value, err := decodeResult(name, result.String, isFailure, failureEvent)
			if err != nil {
				return err
			}
			_ = s.mem.Save(name, value)
		}
	}
	return rows.Err()
}

// upsertAtom writes the atom's current in-memory record through to its
// row.
func (s *SQLiteStore) upsertAtom(name string) error {
	state := s.mem.AtomState(name)
	intention := s.mem.Intention(name)
	progress := s.mem.Progress(name)

	var payload sql.NullString
	var isFailure bool
	var failureEvent string
	if result := s.mem.Result(name); result != nil {
		encoded, failed, event, err := encodeResult(result)
		if err != nil {
			return err
		}
		payload = sql.NullString{String: encoded, Valid: true}
		isFailure = failed
		failureEvent = event
	}

	_, err := s.db.Exec(`
		INSERT INTO atom_details (name, state, intention, progress, result, is_failure, failure_event, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			state = excluded.state,
			intention = excluded.intention,
			progress = excluded.progress,
			result = excluded.result,
			is_failure = excluded.is_failure,
			failure_event = excluded.failure_event,
			updated_at = CURRENT_TIMESTAMP`,
		name, string(state), string(intention), progress, payload, isFailure, failureEvent)
	if err != nil {
		return fmt.Errorf("persist atom %q: %w", name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FlowState implements flow.Storage.
func (s *SQLiteStore) FlowState() flow.State { return s.mem.FlowState() }

// SetFlowState implements flow.Storage.
func (s *SQLiteStore) SetFlowState(state flow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`UPDATE flow_details SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1`, string(state)); err != nil {
		return fmt.Errorf("persist flow state: %w", err)
	}
	return s.mem.SetFlowState(state)
}

// Intention implements flow.Storage.
func (s *SQLiteStore) Intention(name string) flow.Intention { return s.mem.Intention(name) }

// SetIntention implements flow.Storage.
func (s *SQLiteStore) SetIntention(name string, i flow.Intention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.SetIntention(name, i); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// AtomState implements flow.Storage.
func (s *SQLiteStore) AtomState(name string) flow.State { return s.mem.AtomState(name) }

// SetAtomState implements flow.Storage.
func (s *SQLiteStore) SetAtomState(name string, state flow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.SetAtomState(name, state); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// Progress implements flow.Storage.
func (s *SQLiteStore) Progress(name string) float64 { return s.mem.Progress(name) }

// SetProgress implements flow.Storage.
func (s *SQLiteStore) SetProgress(name string, p float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.SetProgress(name, p); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// Save implements flow.Storage.
func (s *SQLiteStore) Save(name string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Save(name, result); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// Result implements flow.Storage.
func (s *SQLiteStore) Result(name string) any { return s.mem.Result(name) }
