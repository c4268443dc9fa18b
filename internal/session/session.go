// Package session tracks per-conversation chat history. Sessions are
// in-memory only; history is bounded so long conversations do not grow
// prompts without limit.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session ID is unknown.
var ErrNotFound = errors.New("session not found")

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session holds the bounded chat history for one conversation.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu       sync.Mutex
	maxTurns int
	turns    []Turn
}

// New creates a session keeping at most maxTurns recent turns.
// maxTurns <= 0 means unbounded.
func New(maxTurns int) *Session {
	return &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		maxTurns:  maxTurns,
	}
}

// Append records a turn, evicting the oldest ones past the limit.
func (s *Session) Append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{Role: role, Content: content, At: time.Now()})
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

// Turns returns a copy of the recorded history, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// Clear drops all recorded history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Manager owns the set of live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	maxTurns int
}

// NewManager creates a session manager whose sessions keep at most
// maxTurns recent turns each.
func NewManager(maxTurns int) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		maxTurns: maxTurns,
	}
}

// Create registers and returns a new session.
func (m *Manager) Create() *Session {
	s := New(m.maxTurns)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

// Get returns the session with the given ID, or ErrNotFound.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session. Deleting an unknown ID is a no-op.
func (m *Manager) Delete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
