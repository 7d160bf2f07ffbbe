// Package rest runs independent per-exercise rest countdowns.
//
// Countdowns are keyed by the exercise's stable id. Toggling is the only way
// to start or cancel one; there is no pause.
package rest

import (
	"sync"
	"time"

	"github.com/claude/gymrats/internal/clock"
)

// EventKind identifies a countdown notification.
type EventKind string

const (
	EventTick      EventKind = "rest_tick"
	EventCompleted EventKind = "rest_completed"
	EventCancelled EventKind = "rest_cancelled"
)

// Event is emitted on every countdown change.
type Event struct {
	Kind       EventKind `json:"kind"`
	ExerciseID string    `json:"exerciseId"`
	Remaining  int       `json:"remaining"`
	Display    string    `json:"display"`
}

// Status is the display state of an exercise's rest timer after a toggle.
type Status string

const (
	StatusArmed   Status = "armed"
	StatusRunning Status = "running"
)

// Option configures a Registry.
type Option func(*Registry)

// WithTicker overrides the one-second tick source.
func WithTicker(f clock.TickerFunc) Option {
	return func(r *Registry) { r.newTicker = f }
}

// Registry holds at most one running countdown per exercise id.
type Registry struct {
	mu        sync.Mutex
	timers    map[string]*countdown
	newTicker clock.TickerFunc
	notify    func(Event)
}

type countdown struct {
	id        string
	remaining int
	stop      chan struct{}
	done      chan struct{}
}

// New creates an empty registry. notify runs on countdown goroutines and
// must not call back into the registry; completions are delivered while the
// registry is locked.
func New(notify func(Event), opts ...Option) *Registry {
	r := &Registry{
		timers:    make(map[string]*countdown),
		newTicker: clock.NewTicker,
		notify:    notify,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Toggle cancels the running countdown for exerciseID, or starts a new one
// from seconds. Cancelling discards the remaining time. A non-positive
// duration with nothing running is ignored.
func (r *Registry) Toggle(exerciseID string, seconds int) Status {
	r.mu.Lock()
	if c, ok := r.timers[exerciseID]; ok {
		delete(r.timers, exerciseID)
		r.mu.Unlock()
		c.halt()
		r.emit(Event{Kind: EventCancelled, ExerciseID: exerciseID})
		return StatusArmed
	}
	if seconds <= 0 {
		r.mu.Unlock()
		return StatusArmed
	}

	c := &countdown{
		id:        exerciseID,
		remaining: seconds,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.timers[exerciseID] = c
	r.mu.Unlock()

	r.emit(Event{Kind: EventTick, ExerciseID: exerciseID, Remaining: seconds, Display: clock.FormatSeconds(seconds)})
	go r.run(c, r.newTicker(time.Second))
	return StatusRunning
}

// ClearAll cancels every countdown without emitting completions. It returns
// once every countdown goroutine has exited.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	running := make([]*countdown, 0, len(r.timers))
	for id, c := range r.timers {
		running = append(running, c)
		delete(r.timers, id)
	}
	r.mu.Unlock()

	for _, c := range running {
		c.halt()
	}
}

// Reconcile cancels countdowns whose exercise is not in ids.
func (r *Registry) Reconcile(ids []string) {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	r.mu.Lock()
	var stale []*countdown
	for id, c := range r.timers {
		if !keep[id] {
			stale = append(stale, c)
			delete(r.timers, id)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.halt()
	}
}

// Running reports whether exerciseID has a countdown in progress.
func (r *Registry) Running(exerciseID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[exerciseID]
	return ok
}

// Remaining returns the seconds left on exerciseID's countdown.
func (r *Registry) Remaining(exerciseID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.timers[exerciseID]
	if !ok {
		return 0, false
	}
	return c.remaining, true
}

// Len returns the number of running countdowns.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *Registry) run(c *countdown, t clock.Ticker) {
	defer close(c.done)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C():
			ev, ok := r.step(c)
			if !ok {
				return
			}
			r.emit(ev)
		}
	}
}

// step decrements c if it is still registered and returns the tick to emit.
// Zero stays on display for a full tick; completion fires when the count
// drops below zero. The completion is delivered before the entry is
// released, so a concurrent ClearAll either suppresses it or returns after
// it.
func (r *Registry) step(c *countdown) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers[c.id] != c {
		return Event{}, false
	}
	c.remaining--
	if c.remaining < 0 {
		r.emit(Event{Kind: EventCompleted, ExerciseID: c.id})
		delete(r.timers, c.id)
		return Event{}, false
	}
	return Event{Kind: EventTick, ExerciseID: c.id, Remaining: c.remaining, Display: clock.FormatSeconds(c.remaining)}, true
}

func (c *countdown) halt() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}

func (r *Registry) emit(ev Event) {
	if r.notify != nil {
		r.notify(ev)
	}
}
