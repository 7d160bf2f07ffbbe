package mcp

import (
	"context"

	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/session"
	"github.com/claude/gymrats/internal/storage"
)

// Backend abstracts the session layer for MCP tools. Both *Local (in
// process) and HTTPClient (remote via REST API) satisfy this interface.
type Backend interface {
	CurrentSession(ctx context.Context) (*session.View, error)
	StartSession(ctx context.Context, req session.StartRequest) (*models.Session, error)
	AddExercise(ctx context.Context, req session.AddExerciseRequest) (*session.View, error)
	UpdateSet(ctx context.Context, exerciseIndex, setIndex int, update session.SetUpdate) (*session.View, error)
	ToggleRest(ctx context.Context, exerciseIndex, seconds int) (*session.RestToggle, error)
	FinishSession(ctx context.Context) (*models.Session, error)
	CancelSession(ctx context.Context) (*storage.Result, error)
	ListTemplates(ctx context.Context) ([]models.Template, error)
	History(ctx context.Context, month string) (*models.HistoryReport, error)
}

// Compile-time check: *Local satisfies Backend.
var _ Backend = (*Local)(nil)
