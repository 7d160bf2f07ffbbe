package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/gymrats/internal/clock/clocktest"
	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/session"
	"github.com/claude/gymrats/internal/storage"
	"github.com/claude/gymrats/internal/templates"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := storage.NewGateway(storage.NewMemory(), log)
	mgr := session.NewManager(gw, models.DefaultLimits(), log, session.WithTicker(clocktest.NewFactory().New))
	t.Cleanup(mgr.Close)
	if opts.DefaultRestSeconds == 0 {
		opts.DefaultRestSeconds = 90
	}
	return New(mgr, templates.NewStore(gw, models.DefaultLimits(), log), opts, log)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s := newTestServer(t, Options{DefaultScope: "dev"})
	rec := doJSON(t, s, http.MethodGet, "/api/v1/me", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
	if info.Scope != "dev" {
		t.Errorf("scope = %q, want %q", info.Scope, "dev")
	}
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// Tailscale user identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "alice@example.com" {
		t.Errorf("login = %q, want %q", info.Login, "alice@example.com")
	}
	if info.DisplayName != "Alice" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Alice")
	}
}

// TestSessionFlow starts a session from an inline template, records a set,
// finishes and reads it back from history.
func TestSessionFlow(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/start", session.StartRequest{
		Template: &models.Template{Name: "Push", Exercises: []models.TemplateExercise{{Name: "Bench", Sets: 3}}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var started models.Session
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil {
		t.Fatal(err)
	}
	if started.StartTime == nil || len(started.Exercises) != 1 {
		t.Fatalf("started = %+v, want running session with 1 exercise", started)
	}

	rec = doJSON(t, s, http.MethodPut, "/api/v1/session/exercises/0/sets/2", session.SetUpdate{Field: "reps", Value: "8"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var view session.View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if got := view.Session.Exercises[0].Sets[2].Reps; got != "8" {
		t.Errorf("reps = %q, want 8", got)
	}
	if view.State != session.StateActive {
		t.Errorf("state = %q, want active", view.State)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/start", session.StartRequest{
		Template: &models.Template{Name: "Again", Exercises: []models.TemplateExercise{{Name: "Row", Sets: 1}}},
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/finish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish status = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/history", nil)
	var report models.HistoryReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if len(report.Entries) != 1 || report.Entries[0].Name != "Push" {
		t.Errorf("history = %+v, want one Push entry", report.Entries)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/finish", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("finish while idle status = %d, want 409", rec.Code)
	}
}

// TestStartFromStoredTemplate verifies a session can be started by template
// ID and an unknown ID is reported as 404.
func TestStartFromStoredTemplate(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/", models.Template{
		Name: "Legs", Exercises: []models.TemplateExercise{{Name: "Squat", Sets: 5}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var tmpl models.Template
	if err := json.NewDecoder(rec.Body).Decode(&tmpl); err != nil {
		t.Fatal(err)
	}
	if tmpl.ID == "" {
		t.Fatal("created template has no ID")
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/start", session.StartRequest{TemplateID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown template status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/start", session.StartRequest{TemplateID: tmpl.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var started models.Session
	json.NewDecoder(rec.Body).Decode(&started)
	if len(started.Exercises) != 1 || len(started.Exercises[0].Sets) != 5 {
		t.Errorf("started exercises = %+v, want Squat with 5 sets", started.Exercises)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/templates/"+tmpl.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/v1/templates/"+tmpl.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}
}

// TestBadRequests verifies malformed input is rejected with 400.
func TestBadRequests(t *testing.T) {
	s := newTestServer(t, Options{})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"start invalid JSON", http.MethodPost, "/api/v1/session/start", "{"},
		{"start without template", http.MethodPost, "/api/v1/session/start", "{}"},
		{"add empty name", http.MethodPost, "/api/v1/session/exercises", `{"name":"","sets":3}`},
		{"update bad index", http.MethodPut, "/api/v1/session/exercises/x/sets/0", `{"field":"reps","value":"5"}`},
		{"rest bad seconds", http.MethodPost, "/api/v1/session/exercises/0/rest?seconds=soon", ""},
		{"history bad month", http.MethodGet, "/api/v1/history?month=March", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

// TestToggleRestUsesDefault verifies a toggle without seconds uses the
// configured rest time and a second toggle cancels it.
func TestToggleRestUsesDefault(t *testing.T) {
	s := newTestServer(t, Options{DefaultRestSeconds: 120})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/exercises", session.AddExerciseRequest{Name: "Row", Sets: 3})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/exercises/0/rest", nil)
	var toggle session.RestToggle
	if err := json.NewDecoder(rec.Body).Decode(&toggle); err != nil {
		t.Fatal(err)
	}
	if toggle.Status != "running" || toggle.Seconds != 120 {
		t.Errorf("toggle = %+v, want running for 120s", toggle)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/exercises/0/rest", nil)
	json.NewDecoder(rec.Body).Decode(&toggle)
	if toggle.Status != "armed" {
		t.Errorf("second toggle status = %q, want armed", toggle.Status)
	}
}

// TestCancelReportsSave verifies cancel returns the snapshot write outcome.
func TestCancelReportsSave(t *testing.T) {
	s := newTestServer(t, Options{})
	doJSON(t, s, http.MethodPost, "/api/v1/session/exercises", session.AddExerciseRequest{Name: "Row", Sets: 1})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", rec.Code)
	}
	var res struct {
		OK bool `json:"ok"`
	}
	json.NewDecoder(rec.Body).Decode(&res)
	if !res.OK {
		t.Error("cancel result ok = false, want true")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/session/", nil)
	var view session.View
	json.NewDecoder(rec.Body).Decode(&view)
	if view.State != session.StateIdle {
		t.Errorf("state after cancel = %q, want idle", view.State)
	}
}

// TestAPIKeyRequired verifies the configured key guards the API.
func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, Options{APIKey: "secret"})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/session/", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with key = %d, want 200", rec.Code)
	}
}

// TestEventsStream verifies the event stream opens with the session view
// and then relays controller events.
func TestEventsStream(t *testing.T) {
	s := newTestServer(t, Options{})
	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if name, ok := strings.CutPrefix(lines.Text(), "event: "); ok {
				return name
			}
		}
		return ""
	}

	if name := next(); name != "session" {
		t.Fatalf("first event = %q, want session", name)
	}

	body, _ := json.Marshal(session.AddExerciseRequest{Name: "Row", Sets: 2})
	post, err := http.Post(ts.URL+"/api/v1/session/exercises", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()

	seen := map[string]bool{}
	for !seen[string(session.EventSessionChanged)] {
		name := next()
		if name == "" {
			t.Fatal("stream ended before session_changed")
		}
		seen[name] = true
	}
}
