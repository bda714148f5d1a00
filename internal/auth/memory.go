package auth

import (
	"context"
	"sync"
	"time"
)

var (
	_ UserStore    = (*MemoryStore)(nil)
	_ SessionStore = memorySessions{}
)

// MemoryStore implements UserStore in process memory and exposes a
// SessionStore over the same lock through Sessions.
// It is used when no database is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[string]*User
	sessions map[string]Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		sessions: make(map[string]Session),
	}
}

func (m *MemoryStore) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return 0, ErrDuplicateUsername
	}
	m.nextID++
	m.users[username] = &User{
		ID:           m.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	return m.nextID, nil
}

func (m *MemoryStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

// Sessions returns the session side of the store.
func (m *MemoryStore) Sessions() SessionStore { return memorySessions{m} }

type memorySessions struct{ m *MemoryStore }

func (s memorySessions) Create(ctx context.Context, sess *Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.sessions[sess.ID] = *sess
	return nil
}

func (s memorySessions) Find(ctx context.Context, id string) (*Session, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	sess, ok := s.m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s memorySessions) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.sessions, id)
	return nil
}
