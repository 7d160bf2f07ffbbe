package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidTemplate is returned when a template fails validation.
var ErrInvalidTemplate = errors.New("invalid template")

// TemplateExercise is one planned exercise: a name and a set count.
type TemplateExercise struct {
	Name string `json:"name"`
	Sets int    `json:"sets"`
}

// Template is a reusable named plan. Sessions copy its exercise list at
// start, so later edits never reach a session already running.
type Template struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Exercises []TemplateExercise `json:"exercises"`
}

// Limits bounds user-entered names and set counts.
type Limits struct {
	MaxSets         int `yaml:"max_sets"`
	MaxExerciseName int `yaml:"max_exercise_name"`
	MaxTemplateName int `yaml:"max_template_name"`
}

// DefaultLimits matches the template editor's bounds.
func DefaultLimits() Limits {
	return Limits{MaxSets: 10, MaxExerciseName: 50, MaxTemplateName: 25}
}

// ValidateExercise checks a name/set-count pair against the limits.
func (l Limits) ValidateExercise(name string, sets int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidExercise)
	}
	if l.MaxExerciseName > 0 && utf8.RuneCountInString(name) > l.MaxExerciseName {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidExercise, l.MaxExerciseName)
	}
	if sets < 1 || (l.MaxSets > 0 && sets > l.MaxSets) {
		return fmt.Errorf("%w: sets must be between 1 and %d, got %d", ErrInvalidExercise, l.MaxSets, sets)
	}
	return nil
}

// ValidateTemplate checks the template name and every exercise.
func (l Limits) ValidateTemplate(t Template) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if l.MaxTemplateName > 0 && utf8.RuneCountInString(name) > l.MaxTemplateName {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidTemplate, l.MaxTemplateName)
	}
	if len(t.Exercises) == 0 {
		return fmt.Errorf("%w: at least one exercise is required", ErrInvalidTemplate)
	}
	for i, ex := range t.Exercises {
		if err := l.ValidateExercise(ex.Name, ex.Sets); err != nil {
			return fmt.Errorf("%w: exercise %d: %w", ErrInvalidTemplate, i+1, err)
		}
	}
	return nil
}

// Clone returns a copy whose exercise slice is not shared with t.
func (t Template) Clone() Template {
	out := t
	out.Exercises = make([]TemplateExercise, len(t.Exercises))
	copy(out.Exercises, t.Exercises)
	return out
}
