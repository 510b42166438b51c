// Package store provides Storage implementations: in-memory, SQLite and
// MySQL.
package store

import (
	"sync"

	"github.com/dshills/taskgraph-go/flow"
)

// atomRecord is the persisted view of one atom.
type atomRecord struct {
	state     flow.State
	intention flow.Intention
	progress  float64
	result    any
}

// MemoryStore is an in-memory implementation of flow.Storage.
//
// Designed for tests, examples and short-lived flows where durability is
// not required. Thread-safe; reads take a shared lock so other components
// can inspect state mid-run.
//
// Atoms the store has never seen read back as a fresh atom would:
// PENDING, EXECUTE, zero progress, no result. The initial flow state is
// RUNNING.
type MemoryStore struct {
	mu        sync.RWMutex
	flowState flow.State
	atoms     map[string]atomRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flowState: flow.StateRunning,
		atoms:     make(map[string]atomRecord),
	}
}

// record returns the stored record or fresh-atom defaults.
func (m *MemoryStore) record(name string) atomRecord {
	if rec, ok := m.atoms[name]; ok {
		return rec
	}
	return atomRecord{state: flow.StatePending, intention: flow.IntentionExecute}
}

// FlowState implements flow.Storage.
func (m *MemoryStore) FlowState() flow.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flowState
}

// SetFlowState implements flow.Storage.
func (m *MemoryStore) SetFlowState(s flow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flowState = s
	return nil
}

// Intention implements flow.Storage.
func (m *MemoryStore) Intention(name string) flow.Intention {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record(name).intention
}

// SetIntention implements flow.Storage.
func (m *MemoryStore) SetIntention(name string, i flow.Intention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(name)
	rec.intention = i
	m.atoms[name] = rec
	return nil
}

// AtomState implements flow.Storage.
func (m *MemoryStore) AtomState(name string) flow.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record(name).state
}

// SetAtomState implements flow.Storage.
func (m *MemoryStore) SetAtomState(name string, s flow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(name)
	rec.state = s
	m.atoms[name] = rec
	return nil
}

// Progress implements flow.Storage.
func (m *MemoryStore) Progress(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record(name).progress
}

// SetProgress implements flow.Storage.
func (m *MemoryStore) SetProgress(name string, p float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(name)
	rec.progress = p
	m.atoms[name] = rec
	return nil
}

// Save implements flow.Storage.
func (m *MemoryStore) Save(name string, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(name)
	rec.result = result
	m.atoms[name] = rec
	return nil
}

// Result implements flow.Storage.
func (m *MemoryStore) Result(name string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record(name).result
}
