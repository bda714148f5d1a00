package auth

import "context"

// UserStore persists credentials. Usernames are unique.
type UserStore interface {
	// Create inserts a user and returns its assigned id.
	// It returns ErrDuplicateUsername when the username is taken.
	Create(ctx context.Context, username, passwordHash string) (int64, error)
	// FindByUsername returns ErrNotFound when no such user exists.
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// SessionStore keeps server-side session state keyed by session id.
// Implementations must make each call atomic per key.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// Find returns ErrNotFound when the session does not exist.
	Find(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
