package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Entry is anything the manager keeps alive: face sessions and ID
// scanners.
type Entry interface {
	ID() uuid.UUID
	Close() error
}

// Manager is the registry of live sessions.
type Manager struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

func NewManager() *Manager {
	return &Manager{entries: make(map[uuid.UUID]Entry)}
}

func (m *Manager) Add(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID()] = e
}

func (m *Manager) Get(id uuid.UUID) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Session returns the face session registered under id.
func (m *Manager) Session(id uuid.UUID) (*Session, error) {
	e, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s, ok := e.(*Session)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove forgets id without closing it.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

// Close closes and removes id.
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return e.Close()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// CloseAll releases every camera on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[uuid.UUID]Entry)
	m.mu.Unlock()

	for _, e := range entries {
		if err := e.Close(); err != nil {
			slog.Warn("close session", "session_id", e.ID(), "error", err)
		}
	}
}
