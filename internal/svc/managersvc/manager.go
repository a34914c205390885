// Package managersvc holds the Manager, the only component front ends may
// call. It enforces role-based authorization before delegating to the user
// registry and the task store, and owns session token issue/verify. Manager
// operations run to completion one at a time; the embedding front end must
// serialize access (see the HTTP transport's mutex).
package managersvc

import (
	"context"
	"fmt"

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/infra/logging"
	"github.com/jortega/taskdesk/internal/registry"
	"github.com/jortega/taskdesk/internal/taskstore"
)

// Manager coordinates the registry and the store. It is the sole mutator of
// both; no other component bypasses it. State is passed in at construction,
// never ambient.
type Manager struct {
	Registry *registry.Registry
	Store    *taskstore.Store
	Sessions *Sessions
	Log      logging.Logger
}

// New creates a Manager over the given registry and store.
func New(reg *registry.Registry, store *taskstore.Store, sessions *Sessions) *Manager {
	return &Manager{
		Registry: reg,
		Store:    store,
		Sessions: sessions,
		Log:      logging.GetLogger("svc.managersvc.manager"),
	}
}

// NewFromSnapshots validates the snapshots and builds a Manager from them.
// An invariant violation in the snapshots (for example a task referencing no
// registry-resolvable assignee) aborts the restore with domain.ErrCorruptData;
// durable data is never silently repaired.
func NewFromSnapshots(
	regSnap domain.RegistrySnapshot,
	storeSnap domain.StoreSnapshot,
	sessions *Sessions,
) (*Manager, error) {
	if err := domain.ValidateSnapshots(regSnap, storeSnap); err != nil {
		return nil, fmt.Errorf("validate snapshots: %w", err)
	}

	reg, err := registry.Restore(regSnap)
	if err != nil {
		return nil, fmt.Errorf("restore registry: %w", err)
	}

	store, err := taskstore.Restore(storeSnap)
	if err != nil {
		return nil, fmt.Errorf("restore store: %w", err)
	}

	return New(reg, store, sessions), nil
}

// Snapshots returns self-consistent copies of the registry and the store for
// a persistence checkpoint.
func (m *Manager) Snapshots() (domain.RegistrySnapshot, domain.StoreSnapshot) {
	return m.Registry.Snapshot(), m.Store.Snapshot()
}

// actor resolves the acting user. A name that does not resolve in the
// registry cannot act at all, regardless of what its session token claims.
func (m *Manager) actor(actorName string) (domain.User, error) {
	user, ok := m.Registry.Lookup(actorName)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: unknown actor %q", domain.ErrUnauthorized, actorName)
	}

	return user, nil
}

// Login authenticates a user and issues a session token.
func (m *Manager) Login(ctx context.Context, name, password string) (_ string, _ domain.User, err error) {
	defer func() {
		if err != nil {
			m.Log.ErrorContext(ctx, "login failed", "error", err)
		} else {
			m.Log.InfoContext(ctx, "login", logging.Group("user", "name", name))
		}
	}()

	user, err := m.Registry.Authenticate(ctx, name, password)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("authenticate: %w", err)
	}

	token, err := m.Sessions.Issue(user)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("issue session: %w", err)
	}

	return token, user, nil
}

// RegisterUser creates a new user account. User management is an admin
// capability; the first admin is seeded at bootstrap, not through here.
func (m *Manager) RegisterUser(
	ctx context.Context,
	actorName, name, password string,
	role domain.Role,
) (domain.User, error) {
	actor, err := m.actor(actorName)
	if err != nil {
		return domain.User{}, err
	}

	if err := authorize(actor.Role, ActionManageUsers); err != nil {
		return domain.User{}, err
	}

	return m.Registry.Register(ctx, name, password, role)
}

// SetRole changes a user's role. Admin only; the registry re-checks the
// actor's role itself, so the gate holds even for direct registry callers.
func (m *Manager) SetRole(ctx context.Context, actorName, target string, role domain.Role) error {
	actor, err := m.actor(actorName)
	if err != nil {
		return err
	}

	if err := authorize(actor.Role, ActionManageUsers); err != nil {
		return err
	}

	return m.Registry.SetRole(ctx, actor.Name, target, role)
}

// CreateTask creates a task in the pending state, owned by the actor.
func (m *Manager) CreateTask(ctx context.Context, actorName, title, description string) (domain.Task, error) {
	actor, err := m.actor(actorName)
	if err != nil {
		return domain.Task{}, err
	}

	if err := authorize(actor.Role, ActionCreateTask); err != nil {
		return domain.Task{}, err
	}

	return m.Store.Create(ctx, title, description, actor.Name)
}

// AssignTask adds a registered user to a task's assignee set. The user must
// resolve in the registry at assignment time; the task stores only the name.
func (m *Manager) AssignTask(ctx context.Context, actorName string, taskID domain.TaskID, userName string) error {
	actor, err := m.actor(actorName)
	if err != nil {
		return err
	}

	if err := authorize(actor.Role, ActionAssignTask); err != nil {
		return err
	}

	if _, ok := m.Registry.Lookup(userName); !ok {
		return fmt.Errorf("%w: %q", domain.ErrUserNotFound, userName)
	}

	return m.Store.Assign(ctx, taskID, userName)
}

// UnassignTask removes a user from a task's assignee set. Removing a user
// that is not assigned is a no-op.
func (m *Manager) UnassignTask(ctx context.Context, actorName string, taskID domain.TaskID, userName string) error {
	actor, err := m.actor(actorName)
	if err != nil {
		return err
	}

	if err := authorize(actor.Role, ActionAssignTask); err != nil {
		return err
	}

	return m.Store.Unassign(ctx, taskID, userName)
}

// TransitionTask moves a task along the state graph. Members may only steer
// tasks they are assigned to; cancelling someone else's task additionally
// requires the supervisor-level cancel permission.
func (m *Manager) TransitionTask(
	ctx context.Context,
	actorName string,
	taskID domain.TaskID,
	to domain.TaskState,
) error {
	actor, err := m.actor(actorName)
	if err != nil {
		return err
	}

	task, ok := m.Store.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrTaskNotFound, taskID)
	}

	var anyAction, assignedAction Action

	if to == domain.StateCancelled {
		anyAction, assignedAction = ActionCancelAny, ActionCancelAssigned
	} else {
		anyAction, assignedAction = ActionTransitionAny, ActionTransitionAssigned
	}

	if !allowed(actor.Role, anyAction) {
		if err := authorize(actor.Role, assignedAction); err != nil {
			return err
		}

		if !task.Assigned(actor.Name) {
			return fmt.Errorf("%w: %q is not assigned to task %q",
				domain.ErrUnauthorized, actor.Name, taskID)
		}
	}

	return m.Store.Transition(ctx, taskID, to)
}

// CommentTask appends a comment as the actor. Members may only comment on
// tasks they are assigned to.
func (m *Manager) CommentTask(
	ctx context.Context,
	actorName string,
	taskID domain.TaskID,
	text string,
) (domain.Comment, error) {
	actor, err := m.actor(actorName)
	if err != nil {
		return domain.Comment{}, err
	}

	task, ok := m.Store.Get(taskID)
	if !ok {
		return domain.Comment{}, fmt.Errorf("%w: %q", domain.ErrTaskNotFound, taskID)
	}

	if !allowed(actor.Role, ActionCommentAny) {
		if err := authorize(actor.Role, ActionCommentAssigned); err != nil {
			return domain.Comment{}, err
		}

		if !task.Assigned(actor.Name) {
			return domain.Comment{}, fmt.Errorf("%w: %q is not assigned to task %q",
				domain.ErrUnauthorized, actor.Name, taskID)
		}
	}

	return m.Store.AddComment(ctx, taskID, actor.Name, text)
}

// GetTask returns one task. Any authenticated actor may read.
func (m *Manager) GetTask(ctx context.Context, actorName string, taskID domain.TaskID) (domain.Task, error) {
	if _, err := m.actor(actorName); err != nil {
		return domain.Task{}, err
	}

	task, ok := m.Store.Get(taskID)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %q", domain.ErrTaskNotFound, taskID)
	}

	return task, nil
}

// ListTasks returns all tasks in creation order.
func (m *Manager) ListTasks(ctx context.Context, actorName string) ([]domain.Task, error) {
	if _, err := m.actor(actorName); err != nil {
		return nil, err
	}

	return m.Store.List(), nil
}

// ListOwnTasks returns the tasks the actor is assigned to.
func (m *Manager) ListOwnTasks(ctx context.Context, actorName string) ([]domain.Task, error) {
	actor, err := m.actor(actorName)
	if err != nil {
		return nil, err
	}

	return m.Store.ListByAssignee(actor.Name), nil
}

// TaskStats returns the number of tasks per state. Supervisors and admins only.
func (m *Manager) TaskStats(ctx context.Context, actorName string) (map[domain.TaskState]int, error) {
	actor, err := m.actor(actorName)
	if err != nil {
		return nil, err
	}

	if err := authorize(actor.Role, ActionViewStats); err != nil {
		return nil, err
	}

	return m.Store.CountByState(), nil
}

// UserStats returns the number of users per role. Supervisors and admins only.
func (m *Manager) UserStats(ctx context.Context, actorName string) (map[domain.Role]int, error) {
	actor, err := m.actor(actorName)
	if err != nil {
		return nil, err
	}

	if err := authorize(actor.Role, ActionViewStats); err != nil {
		return nil, err
	}

	return m.Registry.CountByRole(), nil
}
