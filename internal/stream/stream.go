package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"meetbook.org/internal/meetings"
	"meetbook.org/internal/obs"
)

const subscriberBuffer = 16

var _ meetings.Publisher = (*Hub)(nil)

// Hub fans out meeting events to the subscribers of the owning user only.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[int]chan meetings.Event
	next int

	dropped  atomic.Int64
	dropWarn rate.Sometimes
}

// New initialises an empty hub.
func New() *Hub {
	return &Hub{
		subs:     make(map[int64]map[int]chan meetings.Event),
		dropWarn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Subscribe registers a subscriber for ownerID and returns a channel which
// will receive that owner's events. The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, ownerID int64) <-chan meetings.Event {
	ch := make(chan meetings.Event, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[int]chan meetings.Event)
	}
	h.subs[ownerID][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[ownerID], id)
		if len(h.subs[ownerID]) == 0 {
			delete(h.subs, ownerID)
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every subscriber of ownerID.
func (h *Hub) Publish(ownerID int64, evt meetings.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[ownerID] {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
			total := h.dropped.Add(1)
			h.dropWarn.Do(func() {
				obs.Logger().Warn("stream subscriber lagging, dropping events",
					"owner_id", ownerID, "dropped_total", total)
			})
		}
	}
}

// Dropped reports how many events were discarded for slow subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Subscribers reports how many subscribers ownerID currently has.
func (h *Hub) Subscribers(ownerID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}
