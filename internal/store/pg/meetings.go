package pg

import (
	"context"
	"database/sql"

	"meetbook.org/internal/meetings"
)

var _ meetings.Store = (*MeetingStore)(nil)

// MeetingStore implements meetings.Store on the meetings table.
type MeetingStore struct{ db *sql.DB }

func (s *MeetingStore) Insert(ctx context.Context, m meetings.Meeting) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx,
		`insert into meetings(id, user_id, name, description, created_at) values($1,$2,$3,$4,$5)`,
		m.ID, m.OwnerID, m.Name, m.Description, m.CreatedAt,
	)
	return err
}

func (s *MeetingStore) ListByOwner(ctx context.Context, ownerID int64) ([]meetings.Meeting, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, name, description, created_at from meetings where user_id=$1 order by created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []meetings.Meeting
	for rows.Next() {
		var m meetings.Meeting
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// DeleteByIDAndOwner folds the ownership check into the delete predicate.
func (s *MeetingStore) DeleteByIDAndOwner(ctx context.Context, id string, ownerID int64) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from meetings where id=$1 and user_id=$2`, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
