package meetings

import (
	"context"
	"errors"
	"sync"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety.
// Listing preserves insertion order.
type InMemory struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Meeting
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]Meeting)}
}

func (s *InMemory) Insert(ctx context.Context, m Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; ok {
		return errors.New("meetings: duplicate id")
	}
	s.byID[m.ID] = m
	s.order = append(s.order, m.ID)
	return nil
}

func (s *InMemory) ListByOwner(ctx context.Context, ownerID int64) ([]Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Meeting
	for _, id := range s.order {
		if m := s.byID[id]; m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMemory) DeleteByIDAndOwner(ctx context.Context, id string, ownerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.OwnerID != ownerID {
		return 0, nil
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return 1, nil
}
