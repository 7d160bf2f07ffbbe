// Package templates manages the reusable exercise plans a session can be
// started from.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/storage"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for an unknown template id.
	ErrNotFound = errors.New("template not found")
	// ErrNoTemplate is returned by Resolve when neither an id nor an
	// inline template is given.
	ErrNoTemplate = errors.New("a template id or an inline template is required")
)

// Store reads and writes a scope's template list through the gateway.
type Store struct {
	gw     *storage.Gateway
	limits models.Limits
	log    *slog.Logger
}

// NewStore creates a template store.
func NewStore(gw *storage.Gateway, limits models.Limits, log *slog.Logger) *Store {
	return &Store{gw: gw, limits: limits, log: log}
}

// List returns scope's templates in creation order.
func (s *Store) List(ctx context.Context, scope storage.Scope) ([]models.Template, error) {
	list, res := s.gw.LoadTemplates(ctx, scope)
	if res.Err != nil {
		return nil, fmt.Errorf("loading templates: %w", res.Err)
	}
	if list == nil {
		list = []models.Template{}
	}
	return list, nil
}

// Get returns one template by id.
func (s *Store) Get(ctx context.Context, scope storage.Scope, id string) (models.Template, error) {
	list, err := s.List(ctx, scope)
	if err != nil {
		return models.Template{}, err
	}
	for _, t := range list {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Resolve returns the stored template id, or inline when id is empty. The
// inline template is not stored.
func (s *Store) Resolve(ctx context.Context, scope storage.Scope, id string, inline *models.Template) (models.Template, error) {
	switch {
	case id != "":
		return s.Get(ctx, scope, id)
	case inline != nil:
		return inline.Clone(), nil
	default:
		return models.Template{}, ErrNoTemplate
	}
}

// Save validates t and stores it. An empty id creates a new template; an
// existing id replaces that template in place.
func (s *Store) Save(ctx context.Context, scope storage.Scope, t models.Template) (models.Template, error) {
	t = t.Clone()
	t.Name = strings.TrimSpace(t.Name)
	for i := range t.Exercises {
		t.Exercises[i].Name = strings.TrimSpace(t.Exercises[i].Name)
	}
	if err := s.limits.ValidateTemplate(t); err != nil {
		return models.Template{}, err
	}

	list, err := s.List(ctx, scope)
	if err != nil {
		return models.Template{}, err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
		list = append(list, t)
	} else {
		idx := -1
		for i := range list {
			if list[i].ID == t.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return models.Template{}, fmt.Errorf("%w: %s", ErrNotFound, t.ID)
		}
		list[idx] = t
	}

	if res := s.gw.SaveTemplates(ctx, scope, list); res.Err != nil {
		return models.Template{}, fmt.Errorf("saving templates: %w", res.Err)
	}
	s.log.Info("template saved", "scope", string(scope), "id", t.ID, "exercises", len(t.Exercises))
	return t, nil
}

// Delete removes a template. Sessions already started from it keep their
// own copy of its exercises.
func (s *Store) Delete(ctx context.Context, scope storage.Scope, id string) error {
	list, err := s.List(ctx, scope)
	if err != nil {
		return err
	}
	kept := list[:0]
	found := false
	for _, t := range list {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if res := s.gw.SaveTemplates(ctx, scope, kept); res.Err != nil {
		return fmt.Errorf("saving templates: %w", res.Err)
	}
	s.log.Info("template deleted", "scope", string(scope), "id", id)
	return nil
}
