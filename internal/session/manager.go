package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/storage"
)

// Manager owns one Controller per scope. Controllers are created on first
// use and restore any session their scope left in flight.
type Manager struct {
	gw     *storage.Gateway
	limits models.Limits
	log    *slog.Logger
	opts   []Option

	mu          sync.Mutex
	controllers map[storage.Scope]*Controller
	closed      bool
}

// NewManager creates a Manager. opts are applied to every controller.
func NewManager(gw *storage.Gateway, limits models.Limits, log *slog.Logger, opts ...Option) *Manager {
	return &Manager{
		gw:          gw,
		limits:      limits,
		log:         log,
		opts:        opts,
		controllers: make(map[storage.Scope]*Controller),
	}
}

// Get returns the controller for scope, creating and restoring it if needed.
// After Close it returns an idle, closed controller that is not kept, so
// requests still in flight during shutdown cannot start new timers.
func (m *Manager) Get(ctx context.Context, scope storage.Scope) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.controllers[scope]; ok {
		return c
	}
	c := NewController(scope, m.gw, m.limits, m.log, m.opts...)
	if m.closed {
		c.Close()
		return c
	}
	c.Restore(ctx)
	m.controllers[scope] = c
	return c
}

// Scopes returns the scopes with a live controller.
func (m *Manager) Scopes() []storage.Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Scope, 0, len(m.controllers))
	for s := range m.controllers {
		out = append(out, s)
	}
	return out
}

// Close stops every controller's timers. Persisted sessions are kept.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for scope, c := range m.controllers {
		c.Close()
		delete(m.controllers, scope)
	}
}
