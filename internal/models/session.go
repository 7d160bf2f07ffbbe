package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidExercise is returned for an empty exercise name or a set
	// count outside the allowed range.
	ErrInvalidExercise = errors.New("invalid exercise")
	// ErrInvalidField is returned for an unknown set field or a value the
	// field cannot hold.
	ErrInvalidField = errors.New("invalid set field")
	// ErrNotStarted is returned when ending a session that never started.
	ErrNotStarted = errors.New("session not started")
	// ErrSessionEnded is returned when growing a terminal session.
	ErrSessionEnded = errors.New("session already ended")
)

// Field names a mutable column of a Set.
type Field string

const (
	FieldWeight    Field = "weight"
	FieldReps      Field = "reps"
	FieldRPE       Field = "rpe"
	FieldCompleted Field = "completed"
)

// ParseField validates a field name coming from a caller.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldWeight, FieldReps, FieldRPE, FieldCompleted:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidField, s)
}

// Set is one row of an exercise. Index is the 1-based display position.
type Set struct {
	Index     int    `json:"index"`
	Weight    string `json:"weight"`
	Reps      string `json:"reps"`
	RPE       string `json:"rpe"`
	Completed bool   `json:"completed"`
}

// Exercise is an ordered, fixed-length list of sets under a display name.
type Exercise struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Sets []Set  `json:"sets"`
}

// Session is one workout. It only grows while active: exercises and sets
// are appended or overwritten in place, never removed.
type Session struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Exercises []Exercise `json:"exercises"`
}

// NewSession returns an empty, not yet started session.
func NewSession(name string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Exercises: []Exercise{},
	}
}

// Start records the start time. Later calls keep the first value.
func (s *Session) Start(at time.Time) {
	if s.StartTime != nil {
		return
	}
	s.StartTime = &at
}

// Started reports whether Start has been called.
func (s *Session) Started() bool { return s.StartTime != nil }

// Ended reports whether the session is terminal.
func (s *Session) Ended() bool { return s.EndTime != nil }

// Active reports whether the session has started and not yet ended.
func (s *Session) Active() bool { return s.Started() && !s.Ended() }

// Empty reports whether the session has no exercises.
func (s *Session) Empty() bool { return len(s.Exercises) == 0 }

// AddExercise appends an exercise with setCount blank sets.
func (s *Session) AddExercise(name string, setCount int) (*Exercise, error) {
	if s.Ended() {
		return nil, ErrSessionEnded
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidExercise)
	}
	if setCount < 1 {
		return nil, fmt.Errorf("%w: set count must be positive, got %d", ErrInvalidExercise, setCount)
	}

	sets := make([]Set, setCount)
	for i := range sets {
		sets[i] = Set{Index: i + 1}
	}
	s.Exercises = append(s.Exercises, Exercise{
		ID:   uuid.NewString(),
		Name: name,
		Sets: sets,
	})
	return &s.Exercises[len(s.Exercises)-1], nil
}

// UpdateSet overwrites one field of one set. Indices are 0-based storage
// positions; an out-of-range index is ignored so late events from a view
// that no longer matches the session cannot fail.
func (s *Session) UpdateSet(exerciseIndex, setIndex int, field Field, value string) error {
	var completed bool
	switch field {
	case FieldWeight, FieldReps, FieldRPE:
	case FieldCompleted:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: completed=%q", ErrInvalidField, value)
		}
		completed = b
	default:
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}

	if s.Ended() {
		return nil
	}
	set := s.set(exerciseIndex, setIndex)
	if set == nil {
		return nil
	}

	switch field {
	case FieldWeight:
		set.Weight = value
	case FieldReps:
		set.Reps = value
	case FieldRPE:
		set.RPE = value
	case FieldCompleted:
		set.Completed = completed
	}
	return nil
}

func (s *Session) set(exerciseIndex, setIndex int) *Set {
	if exerciseIndex < 0 || exerciseIndex >= len(s.Exercises) {
		return nil
	}
	sets := s.Exercises[exerciseIndex].Sets
	if setIndex < 0 || setIndex >= len(sets) {
		return nil
	}
	return &sets[setIndex]
}

// End seals the session. It fails if the session never started and is a
// no-op on a session that already ended.
func (s *Session) End(at time.Time) error {
	if s.StartTime == nil {
		return ErrNotStarted
	}
	if s.EndTime != nil {
		return nil
	}
	s.EndTime = &at
	return nil
}

// ExerciseIndex returns the list position of the exercise with the given
// id, or -1.
func (s *Session) ExerciseIndex(id string) int {
	for i := range s.Exercises {
		if s.Exercises[i].ID == id {
			return i
		}
	}
	return -1
}

// ExerciseIDs lists exercise ids in order.
func (s *Session) ExerciseIDs() []string {
	ids := make([]string, len(s.Exercises))
	for i := range s.Exercises {
		ids[i] = s.Exercises[i].ID
	}
	return ids
}

// Clone returns a deep copy that shares no memory with s.
func (s *Session) Clone() Session {
	out := Session{ID: s.ID, Name: s.Name}
	if s.StartTime != nil {
		t := *s.StartTime
		out.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	out.Exercises = make([]Exercise, len(s.Exercises))
	for i, ex := range s.Exercises {
		sets := make([]Set, len(ex.Sets))
		copy(sets, ex.Sets)
		out.Exercises[i] = Exercise{ID: ex.ID, Name: ex.Name, Sets: sets}
	}
	return out
}
