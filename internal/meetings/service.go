package meetings

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"meetbook.org/internal/ids"
)

const (
	idBytes           = 16
	maxNameLen        = 200
	maxDescriptionLen = 2000
)

// Publisher receives meeting events scoped to their owner.
type Publisher interface {
	Publish(ownerID int64, evt Event)
}

// Service manages meetings on behalf of an authenticated owner.
// Every operation is scoped by the owner id passed in by the caller.
type Service struct {
	store     Store
	publisher Publisher
	now       func() time.Time
	newID     func() (string, error)
}

// Option configures Service.
type Option func(*Service)

// WithPublisher attaches a publisher notified after create and delete.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: GenerateID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateID returns a random 128-bit meeting id, hex encoded.
// Collisions are not checked for.
func GenerateID() (string, error) {
	return ids.Token(idBytes)
}

// Create stores a new meeting owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, name, description string) (Meeting, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if ownerID <= 0 || name == "" {
		return Meeting{}, ErrInvalidInput
	}
	if utf8.RuneCountInString(name) > maxNameLen || utf8.RuneCountInString(description) > maxDescriptionLen {
		return Meeting{}, ErrInvalidInput
	}
	id, err := s.newID()
	if err != nil {
		return Meeting{}, fmt.Errorf("generate meeting id: %w", err)
	}
	m := Meeting{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return Meeting{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.publish(ownerID, Event{Type: EventCreated, MeetingID: m.ID, Name: m.Name, Timestamp: m.CreatedAt})
	return m, nil
}

// List returns the owner's meetings.
func (s *Service) List(ctx context.Context, ownerID int64) ([]Meeting, error) {
	items, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return items, nil
}

// Delete removes the meeting if, and only if, ownerID owns it.
// A missing meeting and a meeting owned by someone else are indistinguishable.
func (s *Service) Delete(ctx context.Context, ownerID int64, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFoundOrNotOwner
	}
	n, err := s.store.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if n == 0 {
		return ErrNotFoundOrNotOwner
	}
	s.publish(ownerID, Event{Type: EventDeleted, MeetingID: id, Timestamp: s.now().UTC()})
	return nil
}

func (s *Service) publish(ownerID int64, evt Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ownerID, evt)
}
