package pg

import (
	"context"
	"database/sql"
	"errors"

	"meetbook.org/internal/auth"
)

var _ auth.UserStore = (*UserStore)(nil)

// UserStore implements auth.UserStore on the users table.
type UserStore struct{ db *sql.DB }

func (s *UserStore) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`insert into users(username, password) values($1, $2) returning id`,
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return 0, auth.ErrDuplicateUsername
		}
		return 0, err
	}
	return id, nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx,
		`select id, username, password, created_at from users where username=$1`, username)
	var u auth.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
