package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

type memEntry struct {
	mu      sync.Mutex
	session game.Session
	expires time.Time
	deleted bool
}

// Memory is an in-process Store. The map lock is held only to find an entry;
// reads and writes then contend on that entry alone.
type Memory struct {
	retention Retention

	mu      sync.RWMutex
	entries map[string]*memEntry
}

func NewMemory(retention Retention) *Memory {
	return &Memory{
		retention: retention,
		entries:   make(map[string]*memEntry),
	}
}

func (m *Memory) entry(id string) (*memEntry, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	return e, ok
}

func (m *Memory) Create(_ context.Context, s game.Session) (game.Session, error) {
	s.Version = 1
	e := &memEntry{session: s, expires: m.retention.ExpiresAt(s)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[s.ID]; ok {
		return game.Session{}, fmt.Errorf("session %q already exists", s.ID)
	}
	m.entries[s.ID] = e
	return s, nil
}

func (m *Memory) Get(_ context.Context, id string) (game.Session, error) {
	e, ok := m.entry(id)
	if !ok {
		return game.Session{}, moviequiz.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return game.Session{}, moviequiz.ErrSessionNotFound
	}
	return e.session, nil
}

func (m *Memory) Update(_ context.Context, s game.Session) (game.Session, error) {
	e, ok := m.entry(s.ID)
	if !ok {
		return game.Session{}, moviequiz.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return game.Session{}, moviequiz.ErrSessionNotFound
	}
	if e.session.Version != s.Version {
		return game.Session{}, moviequiz.ErrStaleWrite
	}
	s.Version++
	e.session = s
	e.expires = m.retention.ExpiresAt(s)
	return s, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if !ok {
		return moviequiz.ErrSessionNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

func (m *Memory) Due(_ context.Context, now time.Time) ([]game.Session, error) {
	m.mu.RLock()
	entries := make([]*memEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var due []game.Session
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted && !e.expires.After(now) {
			due = append(due, e.session)
		}
		e.mu.Unlock()
	}
	return due, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
