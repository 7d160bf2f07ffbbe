package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/claude/gymrats/internal/clock/clocktest"
	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/rest"
	"github.com/claude/gymrats/internal/storage"
)

var t0 = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

type failingMedium struct{}

func (failingMedium) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}
func (failingMedium) Put(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}
func (failingMedium) Close() error { return nil }

type harness struct {
	gw      *storage.Gateway
	now     *fakeNow
	tickers *clocktest.Factory
	log     *slog.Logger
}

func newHarness(medium storage.Medium) *harness {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{
		gw:      storage.NewGateway(medium, log),
		now:     &fakeNow{t: t0},
		tickers: clocktest.NewFactory(),
		log:     log,
	}
}

func (h *harness) controller(scope storage.Scope) *Controller {
	return NewController(scope, h.gw, models.DefaultLimits(), h.log,
		WithNow(h.now.Now), WithTicker(h.tickers.New))
}

func benchTemplate() models.Template {
	return models.Template{
		Name:      "Push",
		Exercises: []models.TemplateExercise{{Name: "Bench", Sets: 3}},
	}
}

func waitFor(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event stream closed waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return Event{}
		}
	}
}

// TestFinishRecordsHistory walks a session from template to history.
func TestFinishRecordsHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()

	started, err := c.StartNewSession(ctx, benchTemplate())
	if err != nil {
		t.Fatalf("StartNewSession: %v", err)
	}
	if len(started.Exercises) != 1 || len(started.Exercises[0].Sets) != 3 {
		t.Fatalf("started = %+v, want Bench with 3 sets", started)
	}
	if err := c.UpdateSet(ctx, 0, 1, "weight", "60"); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}

	snap, res := h.gw.LoadSnapshot(ctx, "")
	if !res.OK || snap == nil || snap.Exercises[0].Sets[1].Weight != "60" {
		t.Fatalf("persisted snapshot = %+v (%+v), want weight 60 on set 2", snap, res)
	}

	h.now.Set(t0.Add(47 * time.Minute))
	sealed, err := c.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if sealed.EndTime == nil || !sealed.EndTime.Equal(t0.Add(47*time.Minute)) {
		t.Errorf("EndTime = %v, want %v", sealed.EndTime, t0.Add(47*time.Minute))
	}
	if got := sealed.Exercises[0].Sets[1].Weight; got != "60" {
		t.Errorf("sealed weight = %q, want 60", got)
	}

	history, err := c.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	if history[0].ID != sealed.ID || history[0].DateString != "2026-03-14" {
		t.Errorf("history[0] = %+v, want id %s on 2026-03-14", history[0], sealed.ID)
	}

	if snap, _ := h.gw.LoadSnapshot(ctx, ""); snap != nil {
		t.Errorf("snapshot not cleared after finish: %+v", snap)
	}
	if st := c.State(); st != StateIdle {
		t.Errorf("state = %s, want idle", st)
	}
}

// TestFinishTwice verifies a second finish is rejected and writes nothing.
func TestFinishTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()

	if _, err := c.StartNewSession(ctx, benchTemplate()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Finish(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Finish(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("second Finish error = %v, want ErrNoActiveSession", err)
	}
	history, _ := c.History(ctx)
	if len(history) != 1 {
		t.Errorf("history has %d entries, want 1", len(history))
	}
}

// TestStartWhileActive verifies an in-progress session is never replaced.
func TestStartWhileActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()

	first, err := c.StartNewSession(ctx, benchTemplate())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.StartNewSession(ctx, benchTemplate()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second start error = %v, want ErrSessionActive", err)
	}
	if got := c.Snapshot().Session.ID; got != first.ID {
		t.Errorf("session id = %s, want %s", got, first.ID)
	}
}

// TestRestoreResumesClock verifies a session saved at t0 and restored 65
// seconds later shows 01:05 on its first tick.
func TestRestoreResumesClock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())

	saved := models.NewSession("Legs")
	saved.Start(t0)
	if _, err := saved.AddExercise("Squat", 5); err != nil {
		t.Fatal(err)
	}
	if res := h.gw.SaveSnapshot(ctx, "", saved); !res.OK {
		t.Fatalf("seed snapshot: %+v", res)
	}

	h.now.Set(t0.Add(65 * time.Second))
	c := h.controller("")
	defer c.Close()
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	if !c.Restore(ctx) {
		t.Fatal("Restore reported nothing restored")
	}
	if ev := waitFor(t, events, EventClockTick); ev.Elapsed != "01:05" {
		t.Errorf("first tick = %q, want 01:05", ev.Elapsed)
	}

	v := c.Snapshot()
	if v.State != StateActive || v.Session.ID != saved.ID {
		t.Errorf("view = %+v, want active session %s", v, saved.ID)
	}
	if v.Session.StartTime == nil || !v.Session.StartTime.Equal(t0) {
		t.Errorf("StartTime = %v, want %v", v.Session.StartTime, t0)
	}
}

// TestRestoreUnstartedThenAdd verifies a snapshot saved before its session
// started is started by the next added exercise and can then be finished.
func TestRestoreUnstartedThenAdd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())

	saved := models.NewSession("Legs")
	if _, err := saved.AddExercise("Squat", 5); err != nil {
		t.Fatal(err)
	}
	h.gw.SaveSnapshot(ctx, "", saved)

	c := h.controller("")
	defer c.Close()
	if !c.Restore(ctx) {
		t.Fatal("Restore reported nothing restored")
	}

	h.now.Set(t0.Add(time.Minute))
	if err := c.AddExercise(ctx, "Bench", 2); err != nil {
		t.Fatalf("AddExercise: %v", err)
	}
	v := c.Snapshot()
	if v.Session.StartTime == nil || !v.Session.StartTime.Equal(t0.Add(time.Minute)) {
		t.Fatalf("StartTime = %v, want %v", v.Session.StartTime, t0.Add(time.Minute))
	}
	if n := len(v.Session.Exercises); n != 2 {
		t.Errorf("exercises = %d, want 2", n)
	}

	h.now.Set(t0.Add(30 * time.Minute))
	if _, err := c.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if history, _ := c.History(ctx); len(history) != 1 {
		t.Errorf("history has %d entries, want 1", len(history))
	}
	if st := c.State(); st != StateIdle {
		t.Errorf("state = %s, want idle", st)
	}
}

// TestRestoreDiscardsSealedSnapshot verifies a finished session left in the
// snapshot slot is cleared rather than resumed.
func TestRestoreDiscardsSealedSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())

	saved := models.NewSession("Legs")
	saved.Start(t0)
	saved.AddExercise("Squat", 5)
	saved.End(t0.Add(time.Hour))
	h.gw.SaveSnapshot(ctx, "", saved)

	c := h.controller("")
	defer c.Close()
	if c.Restore(ctx) {
		t.Error("sealed session was restored")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if snap, _ := h.gw.LoadSnapshot(ctx, ""); snap != nil {
		t.Errorf("sealed snapshot not cleared: %+v", snap)
	}
}

// TestRestoreWithoutSnapshot verifies an empty medium leaves the controller
// idle.
func TestRestoreWithoutSnapshot(t *testing.T) {
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()
	if c.Restore(context.Background()) {
		t.Error("Restore reported a session on an empty medium")
	}
}

// TestCancelWritesNoHistory verifies cancelling clears the snapshot and
// leaves history untouched.
func TestCancelWritesNoHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()

	if _, err := c.StartNewSession(ctx, benchTemplate()); err != nil {
		t.Fatal(err)
	}
	if res := c.Cancel(ctx); !res.OK {
		t.Errorf("Cancel result = %+v, want ok", res)
	}
	if snap, _ := h.gw.LoadSnapshot(ctx, ""); snap != nil {
		t.Errorf("snapshot after cancel = %+v, want none", snap)
	}
	history, _ := c.History(ctx)
	if len(history) != 0 {
		t.Errorf("history after cancel = %+v, want empty", history)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

// TestAddExerciseActivates verifies adding to an idle controller starts a
// session.
func TestAddExerciseActivates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()

	if err := c.AddExercise(ctx, "Deadlift", 3); err != nil {
		t.Fatalf("AddExercise: %v", err)
	}
	v := c.Snapshot()
	if v.State != StateActive || v.Session.StartTime == nil {
		t.Fatalf("view = %+v, want active and started", v)
	}
	if err := c.AddExercise(ctx, "", 3); !errors.Is(err, models.ErrInvalidExercise) {
		t.Errorf("empty name error = %v, want ErrInvalidExercise", err)
	}
	if err := c.AddExercise(ctx, "Row", 0); !errors.Is(err, models.ErrInvalidExercise) {
		t.Errorf("zero sets error = %v, want ErrInvalidExercise", err)
	}
	if n := len(c.Snapshot().Session.Exercises); n != 1 {
		t.Errorf("exercises = %d, want 1", n)
	}
}

// TestUpdateSetIgnoredWhenIdle verifies edits with no session in progress
// change nothing.
func TestUpdateSetIgnoredWhenIdle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()

	if err := c.UpdateSet(ctx, 0, 0, "reps", "8"); err != nil {
		t.Errorf("UpdateSet on idle = %v, want nil", err)
	}
	if err := c.UpdateSet(ctx, 0, 0, "tempo", "3"); !errors.Is(err, models.ErrInvalidField) {
		t.Errorf("unknown field error = %v, want ErrInvalidField", err)
	}
}

// TestBrokenMediumKeepsState verifies save failures are reported while the
// in-memory session keeps working.
func TestBrokenMediumKeepsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(failingMedium{})
	c := h.controller("")
	defer c.Close()

	if c.Restore(ctx) {
		t.Fatal("restored from a broken medium")
	}
	if _, err := c.StartNewSession(ctx, benchTemplate()); err != nil {
		t.Fatalf("StartNewSession: %v", err)
	}
	if err := c.UpdateSet(ctx, 0, 0, "reps", "12"); err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}

	v := c.Snapshot()
	if v.Session.Exercises[0].Sets[0].Reps != "12" {
		t.Errorf("reps = %q, want 12", v.Session.Exercises[0].Sets[0].Reps)
	}
	if v.LastSave == nil || v.LastSave.OK || v.LastSave.Message() == "" {
		t.Errorf("LastSave = %+v, want a failure", v.LastSave)
	}

	sealed, err := c.Finish(ctx)
	if err != nil || sealed.EndTime == nil {
		t.Errorf("Finish = %+v, %v; want sealed session", sealed, err)
	}
}

// TestToggleRest verifies rest timers start, cancel and are cleared by a
// new session.
func TestToggleRest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	c := h.controller("")
	defer c.Close()

	if st, err := c.ToggleRest(0, 60); err != nil || st != rest.StatusArmed {
		t.Errorf("ToggleRest while idle = %s, %v; want armed, nil", st, err)
	}

	s, err := c.StartNewSession(ctx, benchTemplate())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ToggleRest(0, 0); !errors.Is(err, ErrInvalidRestDuration) {
		t.Errorf("zero duration error = %v, want ErrInvalidRestDuration", err)
	}
	if st, _ := c.ToggleRest(5, 60); st != rest.StatusArmed {
		t.Errorf("stale index = %s, want armed", st)
	}

	if st, err := c.ToggleRest(0, 60); err != nil || st != rest.StatusRunning {
		t.Fatalf("ToggleRest = %s, %v; want running", st, err)
	}
	if rem := c.Snapshot().Rest[s.Exercises[0].ID]; rem != 60 {
		t.Errorf("remaining = %d, want 60", rem)
	}
	if st, _ := c.ToggleRest(0, 60); st != rest.StatusArmed {
		t.Errorf("second toggle = %s, want armed", st)
	}

	c.ToggleRest(0, 30)
	if _, err := c.Finish(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(c.Snapshot().Rest); n != 0 {
		t.Errorf("%d rest timers survive finish", n)
	}
}

// TestScopesIsolated verifies two scopes never see each other's sessions.
func TestScopesIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())
	m := NewManager(h.gw, models.DefaultLimits(), h.log, WithNow(h.now.Now), WithTicker(h.tickers.New))
	defer m.Close()

	alice := m.Get(ctx, "alice@example.com")
	if m.Get(ctx, "alice@example.com") != alice {
		t.Error("Get returned a second controller for the same scope")
	}
	if _, err := alice.StartNewSession(ctx, benchTemplate()); err != nil {
		t.Fatal(err)
	}

	guest := m.Get(ctx, "")
	if guest.State() != StateIdle {
		t.Errorf("guest state = %s, want idle", guest.State())
	}
	if snap, _ := h.gw.LoadSnapshot(ctx, ""); snap != nil {
		t.Errorf("guest snapshot = %+v, want none", snap)
	}
}

// TestManagerRestoresOnGet verifies a fresh manager picks up a session
// left by a previous process.
func TestManagerRestoresOnGet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())

	first := NewManager(h.gw, models.DefaultLimits(), h.log, WithNow(h.now.Now), WithTicker(h.tickers.New))
	started, err := first.Get(ctx, "bob").StartNewSession(ctx, benchTemplate())
	if err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := NewManager(h.gw, models.DefaultLimits(), h.log, WithNow(h.now.Now), WithTicker(h.tickers.New))
	defer second.Close()
	c := second.Get(ctx, "bob")
	if c.State() != StateActive || c.Snapshot().Session.ID != started.ID {
		t.Errorf("restored view = %+v, want session %s", c.Snapshot(), started.ID)
	}
}

// TestManagerGetAfterClose verifies a closed manager hands out inert
// controllers that neither restore nor start timers.
func TestManagerGetAfterClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness(storage.NewMemory())

	m := NewManager(h.gw, models.DefaultLimits(), h.log, WithNow(h.now.Now), WithTicker(h.tickers.New))
	if _, err := m.Get(ctx, "bob").StartNewSession(ctx, benchTemplate()); err != nil {
		t.Fatal(err)
	}
	m.Close()
	pending := h.tickers.Pending()

	c := m.Get(ctx, "bob")
	if st := c.State(); st != StateIdle {
		t.Errorf("state = %s, want idle", st)
	}
	if _, err := c.StartNewSession(ctx, benchTemplate()); !errors.Is(err, ErrClosed) {
		t.Errorf("StartNewSession err = %v, want ErrClosed", err)
	}
	if err := c.AddExercise(ctx, "Row", 3); !errors.Is(err, ErrClosed) {
		t.Errorf("AddExercise err = %v, want ErrClosed", err)
	}
	if n := h.tickers.Pending(); n != pending {
		t.Errorf("tickers created after Close = %d, want 0", n-pending)
	}
	if n := len(m.Scopes()); n != 0 {
		t.Errorf("scopes after Close = %d, want 0", n)
	}
	events, _ := c.Subscribe()
	if _, ok := <-events; ok {
		t.Error("subscription on a closed controller delivered an event")
	}

	if snap, _ := h.gw.LoadSnapshot(ctx, "bob"); snap == nil {
		t.Error("persisted session lost after Close")
	}
}
