package session

import (
	"sync"

	"github.com/claude/gymrats/internal/rest"
	"github.com/claude/gymrats/internal/storage"
)

// EventKind identifies a controller notification.
type EventKind string

const (
	EventClockTick      EventKind = "clock_tick"
	EventRest           EventKind = "rest"
	EventSessionChanged EventKind = "session_changed"
	EventSaved          EventKind = "saved"
	EventFinished       EventKind = "finished"
	EventCancelled      EventKind = "cancelled"
)

// Event is delivered to subscribers. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind       `json:"kind"`
	Elapsed string          `json:"elapsed,omitempty"`
	Rest    *rest.Event     `json:"rest,omitempty"`
	Save    *storage.Result `json:"save,omitempty"`
	State   State           `json:"state,omitempty"`
}

const subscriberBuffer = 64

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Publish delivers ev to every subscriber with room for it.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close unsubscribes and closes every subscriber channel. Later
// subscriptions receive an already closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
