// Package taskstore owns the task collection and its internal consistency:
// state transitions, assignment, and append-only comments. Referential checks
// against the user registry belong to the Manager, not to this package. The
// store is not internally synchronized.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/infra/logging"
	"github.com/jortega/taskdesk/internal/util/encoding"
	"github.com/jortega/taskdesk/internal/util/uuid"
)

// Store is the in-memory task collection. Iteration order is creation order.
type Store struct {
	tasks map[domain.TaskID]*domain.Task
	order []domain.TaskID
	log   logging.Logger
	now   func() int64
	newID func() (domain.TaskID, error)
}

// Option customizes a Store, mainly for tests.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() int64) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides task ID generation.
func WithIDGenerator(newID func() (domain.TaskID, error)) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	store := &Store{
		tasks: make(map[domain.TaskID]*domain.Task),
		log:   logging.GetLogger("taskstore"),
		now:   func() int64 { return time.Now().Unix() },
		newID: newTaskID,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// newTaskID produces an opaque, time-ordered task identifier.
func newTaskID() (domain.TaskID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new uuid: %w", err)
	}

	return domain.TaskID(encoding.EncodeCrockfordB32LC(id.Bytes())), nil
}

// Create adds a new task in the pending state.
// Returns domain.ErrValidation if the title is empty.
func (s *Store) Create(ctx context.Context, title, description, creator string) (_ domain.Task, err error) {
	log := s.log.With(logging.Group("task", "title", title, "creator", creator))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "create task failed", "error", err)
		} else {
			log.DebugContext(ctx, "task created")
		}
	}()

	if title == "" {
		return domain.Task{}, fmt.Errorf("%w: empty title", domain.ErrValidation)
	}

	id, err := s.newID()
	if err != nil {
		return domain.Task{}, fmt.Errorf("new task id: %w", err)
	}

	task := &domain.Task{
		ID:          id,
		Title:       title,
		Description: description,
		State:       domain.StatePending,
		CreatedBy:   creator,
		CreatedAt:   s.now(),
	}
	s.tasks[id] = task
	s.order = append(s.order, id)

	return task.Clone(), nil
}

// Assign adds a user to the task's assignee set. Assigning an already-assigned
// user is a no-op, not an error. Returns domain.ErrTaskNotFound for an unknown
// task; the caller is responsible for resolving the user in the registry first.
func (s *Store) Assign(ctx context.Context, id domain.TaskID, name string) error {
	task, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %q", domain.ErrTaskNotFound, id)
	}

	if task.Assigned(name) {
		return nil
	}

	task.Assignees = append(task.Assignees, name)
	s.log.DebugContext(ctx, "user assigned", logging.Group("task", "id", string(id), "user", name))

	return nil
}

// Unassign removes a user from the task's assignee set. Removing a user that
// is not assigned is a no-op.
func (s *Store) Unassign(ctx context.Context, id domain.TaskID, name string) error {
	task, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %q", domain.ErrTaskNotFound, id)
	}

	for i, assignee := range task.Assignees {
		if assignee == name {
			task.Assignees = append(task.Assignees[:i], task.Assignees[i+1:]...)
			s.log.DebugContext(ctx, "user unassigned",
				logging.Group("task", "id", string(id), "user", name))

			break
		}
	}

	return nil
}

// Transition moves a task along one edge of the state graph.
// An illegal edge fails with an InvalidTransitionError naming the pair.
func (s *Store) Transition(ctx context.Context, id domain.TaskID, to domain.TaskState) (err error) {
	task, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %q", domain.ErrTaskNotFound, id)
	}

	log := s.log.With(logging.Group("task",
		"id", string(id),
		"from", string(task.State),
		"to", string(to),
	))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "transition failed", "error", err)
		} else {
			log.DebugContext(ctx, "task transitioned")
		}
	}()

	if _, err := domain.ParseTaskState(string(to)); err != nil {
		return err
	}

	if !domain.CanTransition(task.State, to) {
		return &domain.InvalidTransitionError{From: task.State, To: to}
	}

	task.State = to

	return nil
}

// AddComment appends a comment with a server-assigned timestamp. Comments are
// immutable once appended. Returns domain.ErrValidation if the text is empty.
func (s *Store) AddComment(ctx context.Context, id domain.TaskID, author, text string) (domain.Comment, error) {
	task, exists := s.tasks[id]
	if !exists {
		return domain.Comment{}, fmt.Errorf("%w: %q", domain.ErrTaskNotFound, id)
	}

	if text == "" {
		return domain.Comment{}, fmt.Errorf("%w: empty comment", domain.ErrValidation)
	}

	comment := domain.Comment{
		Author:    author,
		Text:      text,
		CreatedAt: s.now(),
	}
	task.Comments = append(task.Comments, comment)

	s.log.DebugContext(ctx, "comment added",
		logging.Group("task", "id", string(id), "author", author))

	return comment, nil
}

// Get returns a copy of the task and whether it exists.
func (s *Store) Get(id domain.TaskID) (domain.Task, bool) {
	task, exists := s.tasks[id]
	if !exists {
		return domain.Task{}, false
	}

	return task.Clone(), true
}

// List returns copies of all tasks in creation order.
func (s *Store) List() []domain.Task {
	tasks := make([]domain.Task, 0, len(s.order))

	for _, id := range s.order {
		tasks = append(tasks, s.tasks[id].Clone())
	}

	return tasks
}

// ListByAssignee returns copies of the tasks the named user is assigned to,
// in creation order.
func (s *Store) ListByAssignee(name string) []domain.Task {
	var tasks []domain.Task

	for _, id := range s.order {
		if task := s.tasks[id]; task.Assigned(name) {
			tasks = append(tasks, task.Clone())
		}
	}

	return tasks
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	return len(s.order)
}

// CountByState returns how many tasks are in each state.
func (s *Store) CountByState() map[domain.TaskState]int {
	counts := make(map[domain.TaskState]int, 4)

	for _, task := range s.tasks {
		counts[task.State]++
	}

	return counts
}

// Snapshot returns a self-consistent copy of the store in creation order.
func (s *Store) Snapshot() domain.StoreSnapshot {
	return domain.StoreSnapshot{Tasks: s.List()}
}

// Restore builds a Store from a snapshot. The snapshot must already have
// passed domain.ValidateSnapshots; a duplicate ID here aborts the restore.
func Restore(snap domain.StoreSnapshot, opts ...Option) (*Store, error) {
	store := New(opts...)

	for _, task := range snap.Tasks {
		if _, dup := store.tasks[task.ID]; dup {
			return nil, errors.Join(domain.ErrCorruptData,
				fmt.Errorf("duplicate task %q", task.ID))
		}

		clone := task.Clone()
		store.tasks[task.ID] = &clone
		store.order = append(store.order, task.ID)
	}

	return store, nil
}
