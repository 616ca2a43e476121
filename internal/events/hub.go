package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/terra-clan/progression-engine/internal/metrics"
)

// Filter selects the events a subscriber receives
type Filter func(Event) bool

// ForUser passes events about userID
func ForUser(userID string) Filter {
	return func(e Event) bool { return e.UserID == userID }
}

// Subscription is a live feed from a Hub
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	filter Filter
	hub    *Hub
	once   sync.Once
}

// Close detaches the subscription and closes C
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub fans events out to in-process subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// NewHub creates a hub with per-subscriber buffers of size buffer
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a feed. A nil filter receives everything.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, filter: filter, hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish delivers events to matching subscribers
func (h *Hub) Publish(ctx context.Context, events ...Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs {
		for _, e := range events {
			if s.filter != nil && !s.filter(e) {
				continue
			}
			select {
			case s.ch <- e:
				delivered++
			default:
				metrics.RecordEventDropped()
				slog.Warn("dropping event for slow subscriber", "event_id", e.ID, "type", e.Type)
			}
		}
	}
	metrics.RecordEventsPublished("hub", delivered)
	return nil
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}
