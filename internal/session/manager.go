package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	s        *Session
	lastSeen time.Time
}

// Manager keeps one Session per connected client.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*entry)}
}

// New creates and registers a locked session with a random ID.
func (m *Manager) New() *Session {
	s := New(uuid.NewString())
	m.Add(s)
	return s
}

func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.id] = &entry{s: s, lastSeen: time.Now()}
	m.mu.Unlock()
}

// Get returns the session and marks it as seen.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.s, true
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes every session not seen since cutoff and reports how many
// went.
func (m *Manager) Sweep(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Expire sweeps sessions idle for longer than idle every interval until ctx
// is done.
func (m *Manager) Expire(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now.Add(-idle)); n > 0 {
				log.Printf("session: expired %d idle sessions", n)
			}
		}
	}
}
