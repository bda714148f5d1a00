package meetings

import (
	"errors"
	"time"
)

// Meeting is owned by exactly one user and never edited in place.
type Meeting struct {
	ID          string    `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventType names a change to an owner's meeting list.
type EventType string

const (
	EventCreated EventType = "meeting.created"
	EventDeleted EventType = "meeting.deleted"
)

// Event is published after a successful create or delete.
type Event struct {
	Type      EventType `json:"type"`
	MeetingID string    `json:"meeting_id"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	ErrInvalidInput       = errors.New("meetings: invalid input")
	ErrStorage            = errors.New("meetings: storage error")
	ErrNotFoundOrNotOwner = errors.New("meetings: not found")
)
