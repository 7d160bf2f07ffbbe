package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/gymrats/internal/models"
)

// ErrNotFound is returned by a Medium when a key has never been written.
var ErrNotFound = errors.New("not found")

// Persisted document keys.
const (
	KeyCurrentSession = "gym_rats_current_session"
	KeyHistory        = "gym_rats_history"
	KeyTemplates      = "gym_rats_templates"
)

// Medium is the concrete storage engine behind the Gateway.
type Medium interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Scope namespaces persisted keys, typically by signed-in identity. The
// empty scope is the guest namespace. Switching scope never moves data; it
// only changes which keys later reads and writes address.
type Scope string

// Key returns the medium key for a document in this scope.
func (s Scope) Key(key string) string {
	if s == "" {
		return key
	}
	return "user_" + string(s) + "_" + key
}

// Result is the outcome of one gateway call. Failures are reported here
// instead of as Go errors so callers keep running on in-memory state and
// can decide whether to surface degraded durability.
type Result struct {
	Key string    `json:"key"`
	OK  bool      `json:"ok"`
	Err error     `json:"-"`
	At  time.Time `json:"at"`
}

// Message returns the failure text, or "" on success.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MarshalJSON includes the error text.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(r), r.Message()})
}

// Gateway stores structured documents on a Medium with best-effort
// semantics: nothing it returns is a Go error and nothing it does panics.
type Gateway struct {
	medium Medium
	log    *slog.Logger
	now    func() time.Time
}

// NewGateway creates a Gateway over medium.
func NewGateway(medium Medium, log *slog.Logger) *Gateway {
	return &Gateway{medium: medium, log: log, now: time.Now}
}

// Close closes the underlying medium.
func (g *Gateway) Close() error {
	return g.medium.Close()
}

// Save marshals v to JSON and writes it under scope's key.
func (g *Gateway) Save(ctx context.Context, scope Scope, key string, v any) Result {
	res := Result{Key: key, At: g.now()}

	data, err := json.Marshal(v)
	if err != nil {
		res.Err = fmt.Errorf("encoding %s: %w", key, err)
	} else if err := g.medium.Put(ctx, scope.Key(key), data); err != nil {
		res.Err = err
	}

	if res.Err != nil {
		savesCounter.WithLabelValues(key, "error").Inc()
		g.log.Error("save failed", "key", key, "scope", string(scope), "error", res.Err)
		return res
	}
	res.OK = true
	savesCounter.WithLabelValues(key, "ok").Inc()
	lastSaveGauge.Set(float64(res.At.Unix()))
	return res
}

// Load reads scope's key into dst. found is false when the key is absent,
// holds JSON null, or cannot be decoded; the Result tells those apart.
func (g *Gateway) Load(ctx context.Context, scope Scope, key string, dst any) (found bool, res Result) {
	res = Result{Key: key, At: g.now()}

	data, err := g.medium.Get(ctx, scope.Key(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			loadsCounter.WithLabelValues(key, "miss").Inc()
			res.OK = true
			return false, res
		}
		res.Err = err
		loadsCounter.WithLabelValues(key, "error").Inc()
		g.log.Error("load failed", "key", key, "scope", string(scope), "error", err)
		return false, res
	}

	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		loadsCounter.WithLabelValues(key, "miss").Inc()
		res.OK = true
		return false, res
	}

	if err := json.Unmarshal(data, dst); err != nil {
		res.Err = fmt.Errorf("decoding %s: %w", key, err)
		loadsCounter.WithLabelValues(key, "error").Inc()
		g.log.Error("load failed", "key", key, "scope", string(scope), "error", res.Err)
		return false, res
	}

	loadsCounter.WithLabelValues(key, "hit").Inc()
	res.OK = true
	return true, res
}

// SaveSnapshot persists the in-flight session.
func (g *Gateway) SaveSnapshot(ctx context.Context, scope Scope, s *models.Session) Result {
	return g.Save(ctx, scope, KeyCurrentSession, s)
}

// ClearSnapshot marks that no session is in flight.
func (g *Gateway) ClearSnapshot(ctx context.Context, scope Scope) Result {
	return g.Save(ctx, scope, KeyCurrentSession, nil)
}

// LoadSnapshot returns the in-flight session, if one was saved.
func (g *Gateway) LoadSnapshot(ctx context.Context, scope Scope) (*models.Session, Result) {
	var s models.Session
	found, res := g.Load(ctx, scope, KeyCurrentSession, &s)
	if !found {
		return nil, res
	}
	return &s, res
}

// LoadHistory returns every history entry for scope, oldest first.
func (g *Gateway) LoadHistory(ctx context.Context, scope Scope) ([]models.HistoryEntry, Result) {
	var entries []models.HistoryEntry
	_, res := g.Load(ctx, scope, KeyHistory, &entries)
	return entries, res
}

// AppendHistory adds one entry to scope's history.
func (g *Gateway) AppendHistory(ctx context.Context, scope Scope, e models.HistoryEntry) Result {
	entries, res := g.LoadHistory(ctx, scope)
	if res.Err != nil {
		// Overwriting an unreadable history would lose every prior entry.
		return res
	}
	entries = append(entries, e)
	return g.Save(ctx, scope, KeyHistory, entries)
}

// LoadTemplates returns scope's saved templates.
func (g *Gateway) LoadTemplates(ctx context.Context, scope Scope) ([]models.Template, Result) {
	var templates []models.Template
	_, res := g.Load(ctx, scope, KeyTemplates, &templates)
	return templates, res
}

// SaveTemplates replaces scope's saved templates.
func (g *Gateway) SaveTemplates(ctx context.Context, scope Scope, templates []models.Template) Result {
	return g.Save(ctx, scope, KeyTemplates, templates)
}
