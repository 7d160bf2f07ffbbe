package mcp

import (
	"context"

	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/session"
	"github.com/claude/gymrats/internal/storage"
	"github.com/claude/gymrats/internal/templates"
)

// Local serves the Backend from in-process controllers. The scope of every
// call comes from the context (see WithScope).
type Local struct {
	sessions    *session.Manager
	templates   *templates.Store
	restSeconds int
}

// NewLocal creates a Local backend. restSeconds is used when a rest toggle
// does not name a duration.
func NewLocal(sessions *session.Manager, store *templates.Store, restSeconds int) *Local {
	return &Local{sessions: sessions, templates: store, restSeconds: restSeconds}
}

func (l *Local) controller(ctx context.Context) *session.Controller {
	return l.sessions.Get(ctx, ScopeFromContext(ctx))
}

func (l *Local) CurrentSession(ctx context.Context) (*session.View, error) {
	v := l.controller(ctx).Snapshot()
	return &v, nil
}

func (l *Local) StartSession(ctx context.Context, req session.StartRequest) (*models.Session, error) {
	tmpl, err := l.templates.Resolve(ctx, ScopeFromContext(ctx), req.TemplateID, req.Template)
	if err != nil {
		return nil, err
	}
	s, err := l.controller(ctx).StartNewSession(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *Local) AddExercise(ctx context.Context, req session.AddExerciseRequest) (*session.View, error) {
	c := l.controller(ctx)
	if err := c.AddExercise(ctx, req.Name, req.Sets); err != nil {
		return nil, err
	}
	v := c.Snapshot()
	return &v, nil
}

func (l *Local) UpdateSet(ctx context.Context, exerciseIndex, setIndex int, update session.SetUpdate) (*session.View, error) {
	c := l.controller(ctx)
	if err := c.UpdateSet(ctx, exerciseIndex, setIndex, update.Field, update.Value); err != nil {
		return nil, err
	}
	v := c.Snapshot()
	return &v, nil
}

func (l *Local) ToggleRest(ctx context.Context, exerciseIndex, seconds int) (*session.RestToggle, error) {
	if seconds == 0 {
		seconds = l.restSeconds
	}
	st, err := l.controller(ctx).ToggleRest(exerciseIndex, seconds)
	if err != nil {
		return nil, err
	}
	return &session.RestToggle{ExerciseIndex: exerciseIndex, Seconds: seconds, Status: st}, nil
}

func (l *Local) FinishSession(ctx context.Context) (*models.Session, error) {
	s, err := l.controller(ctx).Finish(ctx)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *Local) CancelSession(ctx context.Context) (*storage.Result, error) {
	res := l.controller(ctx).Cancel(ctx)
	return &res, nil
}

func (l *Local) ListTemplates(ctx context.Context) ([]models.Template, error) {
	return l.templates.List(ctx, ScopeFromContext(ctx))
}

func (l *Local) History(ctx context.Context, month string) (*models.HistoryReport, error) {
	entries, err := l.controller(ctx).History(ctx)
	if err != nil {
		return nil, err
	}
	r, err := models.MonthReport(entries, month)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
