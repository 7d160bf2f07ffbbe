package session

import (
	"github.com/claude/gymrats/internal/models"
	"github.com/claude/gymrats/internal/rest"
)

// StartRequest selects what a new session is built from: a saved template
// by id, or an inline template.
type StartRequest struct {
	TemplateID string           `json:"templateId,omitempty"`
	Template   *models.Template `json:"template,omitempty"`
}

// AddExerciseRequest is the body of an exercise addition.
type AddExerciseRequest struct {
	Name string `json:"name"`
	Sets int    `json:"sets"`
}

// SetUpdate is the body of a set edit.
type SetUpdate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// RestToggle reports a rest timer after it was toggled.
type RestToggle struct {
	ExerciseIndex int         `json:"exerciseIndex"`
	Seconds       int         `json:"seconds,omitempty"`
	Status        rest.Status `json:"status"`
}
