// Package session drives an in-progress workout: it owns the session model,
// the elapsed-time clock and the rest timers, and persists every change
// through the storage gateway.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/gymrats/internal/clock"
	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/rest"
	"github.com/claude/gymrats/internal/storage"
	"github.com/google/uuid"
)

var (
	// ErrSessionActive is returned when starting a session while one is
	// already in progress.
	ErrSessionActive = errors.New("a session is already in progress")
	// ErrNoActiveSession is returned when finishing with nothing in progress.
	ErrNoActiveSession = errors.New("no session in progress")
	// ErrInvalidRestDuration is returned when arming a rest timer with a
	// non-positive duration.
	ErrInvalidRestDuration = errors.New("rest duration must be positive")
	// ErrClosed is returned by operations that would start a timer on a
	// controller that has been shut down.
	ErrClosed = errors.New("session controller closed")
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateFinishing State = "finishing"
)

type options struct {
	now    func() time.Time
	ticker clock.TickerFunc
}

// Option configures a Controller.
type Option func(*options)

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTicker overrides the tick source of the clock and the rest timers.
func WithTicker(f clock.TickerFunc) Option {
	return func(o *options) { o.ticker = f }
}

// Controller is the session state machine for one scope. Every exported
// method runs to completion under one mutex, and each mutation is applied
// before the save it triggers.
type Controller struct {
	mu     sync.Mutex
	scope  storage.Scope
	gw     *storage.Gateway
	limits models.Limits
	log    *slog.Logger
	now    func() time.Time

	clock *clock.Clock
	rest  *rest.Registry
	hub   *Hub

	state    State
	current  *models.Session
	lastSave *storage.Result
	closed   bool
}

// NewController creates an idle controller. Call Restore to pick up a
// session interrupted by a previous run.
func NewController(scope storage.Scope, gw *storage.Gateway, limits models.Limits, log *slog.Logger, opts ...Option) *Controller {
	o := options{now: time.Now, ticker: clock.NewTicker}
	for _, opt := range opts {
		opt(&o)
	}

	hub := NewHub()
	c := &Controller{
		scope:   scope,
		gw:      gw,
		limits:  limits,
		log:     log.With("scope", string(scope)),
		now:     o.now,
		hub:     hub,
		state:   StateIdle,
		current: models.NewSession(""),
	}
	c.clock = clock.New(func(elapsed string) {
		hub.Publish(Event{Kind: EventClockTick, Elapsed: elapsed})
	}, clock.WithNow(o.now), clock.WithTicker(o.ticker))
	c.rest = rest.New(func(ev rest.Event) {
		hub.Publish(Event{Kind: EventRest, Rest: &ev})
	}, rest.WithTicker(o.ticker))
	return c
}

// Scope returns the persistence namespace this controller writes to.
func (c *Controller) Scope() storage.Scope { return c.scope }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe streams clock ticks, rest timer changes and save outcomes.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.hub.Subscribe()
}

// Restore adopts the persisted in-flight session, if any, and resumes the
// clock from its original start time. Missing or unreadable snapshots
// leave the controller idle. It reports whether a session was restored.
func (c *Controller) Restore(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.state != StateIdle {
		return c.state == StateActive
	}

	snap, res := c.gw.LoadSnapshot(ctx, c.scope)
	if res.Err != nil {
		c.log.Warn("snapshot unreadable, starting idle", "error", res.Err)
		return false
	}
	if snap == nil || snap.Empty() {
		return false
	}
	if snap.Ended() {
		c.log.Warn("discarding sealed snapshot", "session", snap.ID)
		c.gw.ClearSnapshot(ctx, c.scope)
		return false
	}

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	for i := range snap.Exercises {
		if snap.Exercises[i].ID == "" {
			snap.Exercises[i].ID = uuid.NewString()
		}
	}

	c.current = snap
	c.state = StateActive
	c.rest.Reconcile(snap.ExerciseIDs())
	if snap.StartTime != nil {
		c.clock.Start(*snap.StartTime)
	}
	c.log.Info("session restored", "session", snap.ID, "exercises", len(snap.Exercises))
	c.hub.Publish(Event{Kind: EventSessionChanged, State: c.state})
	return true
}

// StartNewSession builds a fresh session from a copy of tmpl's exercises,
// starts it and the clock, and persists it.
func (c *Controller) StartNewSession(ctx context.Context, tmpl models.Template) (models.Session, error) {
	if err := c.limits.ValidateTemplate(tmpl); err != nil {
		return models.Session{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return models.Session{}, ErrClosed
	}
	if c.state != StateIdle {
		return models.Session{}, ErrSessionActive
	}

	c.rest.ClearAll()

	s := models.NewSession(tmpl.Name)
	for _, ex := range tmpl.Clone().Exercises {
		if _, err := s.AddExercise(ex.Name, ex.Sets); err != nil {
			return models.Session{}, fmt.Errorf("adding %q: %w", ex.Name, err)
		}
	}
	start := c.now()
	s.Start(start)
	c.clock.Start(start)

	c.current = s
	c.state = StateActive
	c.persistLocked(ctx)
	c.log.Info("session started", "session", s.ID, "name", s.Name, "exercises", len(s.Exercises))
	c.hub.Publish(Event{Kind: EventSessionChanged, State: c.state})
	return s.Clone(), nil
}

// AddExercise appends an exercise to the session, starting the session and
// the clock first if the session has no start time yet. This covers an idle
// controller and a restored snapshot that was saved before it started.
func (c *Controller) AddExercise(ctx context.Context, name string, sets int) error {
	if err := c.limits.ValidateExercise(name, sets); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.current.Started() {
		c.current.Start(c.now())
		c.clock.Start(*c.current.StartTime)
	}
	c.state = StateActive
	if _, err := c.current.AddExercise(name, sets); err != nil {
		return err
	}
	c.persistLocked(ctx)
	c.hub.Publish(Event{Kind: EventSessionChanged, State: c.state})
	return nil
}

// UpdateSet overwrites one field of one set and persists the session.
// Indices that no longer exist, or an idle controller, are ignored.
func (c *Controller) UpdateSet(ctx context.Context, exerciseIndex, setIndex int, field, value string) error {
	f, err := models.ParseField(field)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		return nil
	}
	if err := c.current.UpdateSet(exerciseIndex, setIndex, f, value); err != nil {
		return err
	}
	c.persistLocked(ctx)
	return nil
}

// ToggleRest starts or cancels the rest countdown of the exercise at
// exerciseIndex. A stale index is ignored. Unlike rest.Registry.Toggle, which
// ignores a non-positive duration, starting a countdown with seconds <= 0
// returns ErrInvalidRestDuration so callers can report it; cancelling a
// running countdown accepts any seconds value.
func (c *Controller) ToggleRest(exerciseIndex, seconds int) (rest.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return rest.StatusArmed, ErrClosed
	}
	if c.state != StateActive || exerciseIndex < 0 || exerciseIndex >= len(c.current.Exercises) {
		return rest.StatusArmed, nil
	}
	id := c.current.Exercises[exerciseIndex].ID
	if seconds <= 0 && !c.rest.Running(id) {
		return rest.StatusArmed, ErrInvalidRestDuration
	}
	return c.rest.Toggle(id, seconds), nil
}

// Finish seals the session, records it in history, clears the in-flight
// snapshot and returns the sealed session. The returned value is a
// complete copy and never changes afterwards.
func (c *Controller) Finish(ctx context.Context) (models.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		return models.Session{}, ErrNoActiveSession
	}
	if !c.current.Started() {
		return models.Session{}, models.ErrNotStarted
	}

	c.state = StateFinishing
	c.clock.Stop()
	c.rest.ClearAll()

	if err := c.current.End(c.now()); err != nil {
		c.state = StateActive
		return models.Session{}, err
	}
	sealed := c.current.Clone()

	entry := models.NewHistoryEntry(&sealed)
	if res := c.gw.AppendHistory(ctx, c.scope, entry); res.Err != nil {
		c.log.Error("history not recorded", "session", sealed.ID, "error", res.Err)
	}
	res := c.gw.ClearSnapshot(ctx, c.scope)
	c.lastSave = &res
	c.hub.Publish(Event{Kind: EventSaved, Save: &res})

	c.current = models.NewSession("")
	c.state = StateIdle
	c.log.Info("session finished", "session", sealed.ID, "date", entry.DateString,
		"duration", sealed.EndTime.Sub(*sealed.StartTime).Round(time.Second).String())
	c.hub.Publish(Event{Kind: EventFinished, State: c.state})
	return sealed, nil
}

// Cancel discards the session without recording history.
func (c *Controller) Cancel(ctx context.Context) storage.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rest.ClearAll()
	c.clock.Stop()

	res := c.gw.ClearSnapshot(ctx, c.scope)
	c.lastSave = &res
	c.hub.Publish(Event{Kind: EventSaved, Save: &res})

	if c.state == StateActive {
		c.log.Info("session cancelled", "session", c.current.ID)
	}
	c.current = models.NewSession("")
	c.state = StateIdle
	c.hub.Publish(Event{Kind: EventCancelled, State: c.state})
	return res
}

// View is a read-only picture of the controller for rendering.
type View struct {
	Scope    string          `json:"scope"`
	State    State           `json:"state"`
	Session  models.Session  `json:"session"`
	Elapsed  string          `json:"elapsed"`
	Rest     map[string]int  `json:"rest"`
	LastSave *storage.Result `json:"lastSave,omitempty"`
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Scope:   string(c.scope),
		State:   c.state,
		Session: c.current.Clone(),
		Elapsed: clock.Format(c.clock.Elapsed()),
		Rest:    make(map[string]int),
	}
	for _, ex := range c.current.Exercises {
		if rem, ok := c.rest.Remaining(ex.ID); ok {
			v.Rest[ex.ID] = rem
		}
	}
	if c.lastSave != nil {
		res := *c.lastSave
		v.LastSave = &res
	}
	return v
}

// History returns the finished-session summaries for this scope.
func (c *Controller) History(ctx context.Context) ([]models.HistoryEntry, error) {
	entries, res := c.gw.LoadHistory(ctx, c.scope)
	if res.Err != nil {
		return nil, fmt.Errorf("loading history: %w", res.Err)
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

// Close stops every timer and closes subscriber channels. Persisted state
// is left as is so the session can be restored on the next run.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.clock.Stop()
	c.rest.ClearAll()
	c.hub.Close()
}

func (c *Controller) persistLocked(ctx context.Context) {
	res := c.gw.SaveSnapshot(ctx, c.scope, c.current)
	c.lastSave = &res
	c.hub.Publish(Event{Kind: EventSaved, Save: &res})
}
