package meetings

import "context"

// Store persists meetings keyed by id.
type Store interface {
	Insert(ctx context.Context, m Meeting) error
	// ListByOwner returns the owner's meetings in the store's natural order.
	ListByOwner(ctx context.Context, ownerID int64) ([]Meeting, error)
	// DeleteByIDAndOwner removes the meeting only if both id and owner match
	// and reports the number of rows removed.
	DeleteByIDAndOwner(ctx context.Context, id string, ownerID int64) (int64, error)
}
