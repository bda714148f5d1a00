package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrDuplicateUsername  = errors.New("auth: username already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrSessionTeardown    = errors.New("auth: session teardown failed")
	ErrPasswordMismatch   = errors.New("auth: password mismatch")
)
