package mcp

import (
	"context"
	"log/slog"

	"github.com/claude/gymrats/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const scopeKey contextKey = iota

// ScopeFromContext extracts the persistence scope injected by the transport
// layer. Without one, calls address the guest scope.
func ScopeFromContext(ctx context.Context) storage.Scope {
	if s, ok := ctx.Value(scopeKey).(storage.Scope); ok {
		return s
	}
	return ""
}

// WithScope returns a context with the given scope.
func WithScope(ctx context.Context, scope storage.Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// New creates an MCP server with all tools and resources registered.
func New(b Backend, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("GymRats", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("GymRats workout session server. Start a session from a template, log sets as they happen, run rest timers and finish the session to record it in history. Exercise and set indices are 0-based positions in the current session."),
	)

	h := &handlers{b: b, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolStartSession, Handler: h.startSession},
		server.ServerTool{Tool: toolAddExercise, Handler: h.addExercise},
		server.ServerTool{Tool: toolUpdateSet, Handler: h.updateSet},
		server.ServerTool{Tool: toolToggleRestTimer, Handler: h.toggleRestTimer},
		server.ServerTool{Tool: toolFinishSession, Handler: h.finishSession},
		server.ServerTool{Tool: toolCancelSession, Handler: h.cancelSession},
		server.ServerTool{Tool: toolListTemplates, Handler: h.listTemplates},
		server.ServerTool{Tool: toolGetHistory, Handler: h.getHistory},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resCurrentSession, Handler: h.currentSession},
		server.ServerResource{Resource: resTemplates, Handler: h.templateList},
		server.ServerResource{Resource: resHistory, Handler: h.history},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	b   Backend
	log *slog.Logger
}

// --- Resource definitions ---

var resCurrentSession = mcp.NewResource(
	"gymrats://current_session",
	"Current Session",
	mcp.WithResourceDescription("The session in progress with every exercise and set, elapsed time, running rest timers and the outcome of the last save"),
	mcp.WithMIMEType("application/json"),
)

var resTemplates = mcp.NewResource(
	"gymrats://templates",
	"Templates",
	mcp.WithResourceDescription("Saved workout templates a session can be started from"),
	mcp.WithMIMEType("application/json"),
)

var resHistory = mcp.NewResource(
	"gymrats://history",
	"History",
	mcp.WithResourceDescription("Every finished session with its calendar day"),
	mcp.WithMIMEType("application/json"),
)
