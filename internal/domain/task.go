package domain

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrTaskNotFound is returned when looking up a non-existent task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrValidation is returned when an input fails shape validation.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidTransition is the sentinel matched by InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TaskID is an opaque unique task identifier, assigned at creation and stable
// for the task's lifetime.
type TaskID string

// TaskState is the closed set of task lifecycle states.
type TaskState string

const (
	StatePending    TaskState = "pending"
	StateInProgress TaskState = "in_progress"
	StateCompleted  TaskState = "completed"
	StateCancelled  TaskState = "cancelled"
)

// ParseTaskState validates a state string against the fixed state set.
func ParseTaskState(s string) (TaskState, error) {
	switch state := TaskState(s); state {
	case StatePending, StateInProgress, StateCompleted, StateCancelled:
		return state, nil
	default:
		return "", fmt.Errorf("%w: unknown state %q", ErrValidation, s)
	}
}

// transitions is the legal edge set of the task state graph. Terminal states
// (completed, cancelled) have no outgoing edges.
//
//nolint:gochecknoglobals
var transitions = map[TaskState][]TaskState{
	StatePending:    {StateInProgress, StateCancelled},
	StateInProgress: {StateCompleted, StatePending, StateCancelled},
	StateCompleted:  {},
	StateCancelled:  {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to TaskState) bool {
	return slices.Contains(transitions[from], to)
}

// Terminal reports whether a state has no outgoing edges.
func Terminal(state TaskState) bool {
	return len(transitions[state]) == 0
}

// InvalidTransitionError names the offending edge of an illegal transition
// attempt. It matches ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	From TaskState
	To   TaskState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Comment is one append-only task comment. Comments are never edited or
// removed once added.
type Comment struct {
	Author    string `json:"author"` // Name of the commenting user
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"` // Server-assigned Unix timestamp
}

// Task represents one task record. Assignees reference users by name only;
// the task never owns the user objects.
type Task struct {
	ID          TaskID    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	State       TaskState `json:"state"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   int64     `json:"createdAt"`
	Assignees   []string  `json:"assignees,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
}

// Assigned reports whether the named user is in the task's assignee set.
func (t *Task) Assigned(name string) bool {
	return slices.Contains(t.Assignees, name)
}

// Clone returns a deep copy of the task, so callers can hand out task values
// without exposing internal slices to mutation.
func (t *Task) Clone() Task {
	clone := *t
	clone.Assignees = slices.Clone(t.Assignees)
	clone.Comments = slices.Clone(t.Comments)

	return clone
}
