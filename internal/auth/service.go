package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"meetbook.org/internal/ids"
)

const (
	defaultSessionTTL = 24 * time.Hour
	sessionIDBytes    = 32
	maxUsernameLen    = 64
	maxPasswordLen    = 1024
)

// Service registers users, verifies logins and owns session lifecycle.
type Service struct {
	users    UserStore
	sessions SessionStore
	now      func() time.Time
	ttl      time.Duration
	params   Params

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSessionTTL configures how long a session stays valid after login.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithPasswordParams overrides the argon2id cost parameters.
func WithPasswordParams(p Params) ServiceOption {
	return func(s *Service) error {
		if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 || p.SaltLength < 8 || p.KeyLength < 16 {
			return errors.New("auth: invalid password parameters")
		}
		s.params = p
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, sessions SessionStore, opts ...ServiceOption) (*Service, error) {
	if users == nil || sessions == nil {
		return nil, errors.New("auth: user and session stores are required")
	}
	svc := &Service{
		users:    users,
		sessions: sessions,
		now:      time.Now,
		ttl:      defaultSessionTTL,
		params:   DefaultParams,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// SessionTTL reports the configured session lifetime.
func (s *Service) SessionTTL() time.Duration { return s.ttl }

// Register creates a user with a freshly salted password hash.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || len(username) > maxUsernameLen || len(password) > maxPasswordLen {
		return User{}, ErrInvalidInput
	}
	hash, err := HashPassword(password, s.params)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.users.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return User{ID: id, Username: username, PasswordHash: hash, CreatedAt: s.now().UTC()}, nil
}

// Login verifies credentials and opens a new session.
//
// Unknown usernames and wrong passwords yield the same ErrInvalidCredentials.
// A lookup failure is also reported as ErrInvalidCredentials, joined with the
// cause so that callers can log it.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || len(password) > maxPasswordLen {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		// Burn the same KDF cost as a real verification.
		_ = VerifyPassword(s.dummy(), password)
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("%w: lookup user: %w", ErrInvalidCredentials, err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	id, err := ids.Token(sessionIDBytes)
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now().UTC()
	sess := Session{
		ID:        id,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, &sess); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Logout destroys the server-side session state.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionTeardown, err)
	}
	return nil
}

// Authorize returns the user bound to the session, or ErrUnauthenticated.
// Expired sessions are removed on the way out.
func (s *Service) Authorize(ctx context.Context, sessionID string) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, ErrUnauthenticated
	}
	sess, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrUnauthenticated
		}
		return 0, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if sess.Expired(s.now()) {
		_ = s.sessions.Delete(ctx, sessionID)
		return 0, ErrUnauthenticated
	}
	if sess.UserID <= 0 {
		return 0, ErrUnauthenticated
	}
	return sess.UserID, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := HashPassword("meetbook-dummy-password", s.params)
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
