package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/taskgraph-go/flow"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed implementation of flow.Storage.
//
// Like SQLiteStore it keeps atom records in memory and writes through to
// the database, hydrating on open. Designed for flows whose state must
// survive the process and be inspectable from outside it.
//
// The DSN (Data Source Name) format is the go-sql-driver one:
//
//	user:password@tcp(localhost:3306)/flows?parseTime=true
//
// Never hardcode credentials; read the DSN from the environment:
//
//	store, err := store.NewMySQLStore(os.Getenv("MYSQL_DSN"))
type MySQLStore struct {
	mu  sync.Mutex
	mem *MemoryStore
	db  *sql.DB
}

// NewMySQLStore connects to the database behind dsn, creates the schema
// if missing and hydrates the store from existing rows.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql store: %w", err)
	}

	s := &MySQLStore{mem: NewMemoryStore(), db: db}
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

func (s *MySQLStore) createTables() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS flow_details (
			id TINYINT PRIMARY KEY,
			state VARCHAR(32) NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS atom_details (
			name VARCHAR(255) PRIMARY KEY,
			state VARCHAR(32) NOT NULL,
			intention VARCHAR(32) NOT NULL,
			progress DOUBLE NOT NULL DEFAULT 0,
			result TEXT,
			is_failure TINYINT(1) NOT NULL DEFAULT 0,
			failure_event VARCHAR(32) NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) load() error {
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

func (s *MySQLStore) upsertAtom(name string) error {
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
		INSERT INTO atom_details (name, state, intention, progress, result, is_failure, failure_event)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			intention = VALUES(intention),
			progress = VALUES(progress),
			result = VALUES(result),
			is_failure = VALUES(is_failure),
			failure_event = VALUES(failure_event)`,
		name, string(state), string(intention), progress, payload, isFailure, failureEvent)
	if err != nil {
		return fmt.Errorf("persist atom %q: %w", name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// FlowState implements flow.Storage.
func (s *MySQLStore) FlowState() flow.State { return s.mem.FlowState() }

// SetFlowState implements flow.Storage.
func (s *MySQLStore) SetFlowState(state flow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`UPDATE flow_details SET state = ? WHERE id = 1`, string(state)); err != nil {
		return fmt.Errorf("persist flow state: %w", err)
	}
	return s.mem.SetFlowState(state)
}

// Intention implements flow.Storage.
func (s *MySQLStore) Intention(name string) flow.Intention { return s.mem.Intention(name) }

// SetIntention implements flow.Storage.
func (s *MySQLStore) SetIntention(name string, i flow.Intention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.SetIntention(name, i); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// AtomState implements flow.Storage.
func (s *MySQLStore) AtomState(name string) flow.State { return s.mem.AtomState(name) }

// SetAtomState implements flow.Storage.
func (s *MySQLStore) SetAtomState(name string, state flow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.SetAtomState(name, state); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// Progress implements flow.Storage.
func (s *MySQLStore) Progress(name string) float64 { return s.mem.Progress(name) }

// SetProgress implements flow.Storage.
func (s *MySQLStore) SetProgress(name string, p float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.SetProgress(name, p); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// Save implements flow.Storage.
func (s *MySQLStore) Save(name string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Save(name, result); err != nil {
		return err
	}
	return s.upsertAtom(name)
}

// Result implements flow.Storage.
func (s *MySQLStore) Result(name string) any { return s.mem.Result(name) }
