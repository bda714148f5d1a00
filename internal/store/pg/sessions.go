package pg

import (
	"context"
	"database/sql"
	"errors"

	"meetbook.org/internal/auth"
)

var _ auth.SessionStore = (*SessionStore)(nil)

// SessionStore implements auth.SessionStore on the sessions table.
// Every call is a single statement, so per-key atomicity comes from Postgres.
type SessionStore struct{ db *sql.DB }

func (s *SessionStore) Create(ctx context.Context, sess *auth.Session) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, created_at, expires_at) values($1,$2,$3,$4)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	return err
}

func (s *SessionStore) Find(ctx context.Context, id string) (*auth.Session, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var sess auth.Session
	err := s.db.QueryRowContext(ctx,
		`select id, user_id, created_at, expires_at from sessions where id=$1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `delete from sessions where id=$1`, id)
	return err
}

// DeleteExpired purges sessions that expired before the database clock.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
