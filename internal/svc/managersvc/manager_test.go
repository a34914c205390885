package managersvc_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/registry"
	"github.com/jortega/taskdesk/internal/svc/managersvc"
	"github.com/jortega/taskdesk/internal/taskstore"
)

func newTestManager(t *testing.T) *managersvc.Manager {
	t.Helper()

	ctx := context.Background()
	reg := registry.New(registry.WithHashCost(bcrypt.MinCost))

	users := []struct {
		name string
		role domain.Role
	}{
		{"alice", domain.RoleAdmin},
		{"bob", domain.RoleMember},
		{"carol", domain.RoleSupervisor},
	}

	for _, u := range users {
		if _, err := reg.Register(ctx, u.name, u.name+"-pass", u.role); err != nil {
			t.Fatalf("Register(%q) error = %v", u.name, err)
		}
	}

	sessions := managersvc.NewSessions(managersvc.SessionConfig{
		Secret:        "test-secret",
		TokenDuration: 3600,
	})

	return managersvc.New(reg, taskstore.New(), sessions)
}

func TestManager_TaskLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	task, err := mgr.CreateTask(ctx, "alice", "Write report", "quarterly numbers")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if task.State != domain.StatePending {
		t.Errorf("CreateTask() state = %q, want %q", task.State, domain.StatePending)
	}

	if err := mgr.AssignTask(ctx, "alice", task.ID, "bob"); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}

	// Bob is assigned now, so he may steer the task himself.
	if err := mgr.TransitionTask(ctx, "bob", task.ID, domain.StateInProgress); err != nil {
		t.Fatalf("TransitionTask(in_progress) error = %v", err)
	}

	if err := mgr.TransitionTask(ctx, "bob", task.ID, domain.StateCompleted); err != nil {
		t.Fatalf("TransitionTask(completed) error = %v", err)
	}

	err = mgr.TransitionTask(ctx, "bob", task.ID, domain.StateInProgress)

	var invalidTransition *domain.InvalidTransitionError
	if !errors.As(err, &invalidTransition) {
		t.Fatalf("TransitionTask() from completed error = %v, want InvalidTransitionError", err)
	}

	if invalidTransition.From != domain.StateCompleted || invalidTransition.To != domain.StateInProgress {
		t.Errorf("InvalidTransitionError = %v -> %v, want completed -> in_progress",
			invalidTransition.From, invalidTransition.To)
	}

	got, err := mgr.GetTask(ctx, "bob", task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}

	if got.State != domain.StateCompleted {
		t.Errorf("GetTask() state = %q, want %q (failed transition must not change state)",
			got.State, domain.StateCompleted)
	}
}

func TestManager_AssignedMemberMayReturnTaskToPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	task, err := mgr.CreateTask(ctx, "alice", "Write report", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if err := mgr.AssignTask(ctx, "alice", task.ID, "bob"); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}

	if err := mgr.TransitionTask(ctx, "bob", task.ID, domain.StateInProgress); err != nil {
		t.Fatalf("TransitionTask(in_progress) error = %v", err)
	}

	// Handing work back is an assignee capability, not a supervisor one.
	if err := mgr.TransitionTask(ctx, "bob", task.ID, domain.StatePending); err != nil {
		t.Fatalf("TransitionTask(pending) error = %v", err)
	}

	got, err := mgr.GetTask(ctx, "bob", task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}

	if got.State != domain.StatePending {
		t.Errorf("GetTask() state = %q, want %q", got.State, domain.StatePending)
	}
}

func TestManager_MemberCannotSteerUnassignedTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	task, err := mgr.CreateTask(ctx, "alice", "Write report", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	tests := []struct {
		name string
		op   func() error
	}{
		{
			name: "transition",
			op: func() error {
				return mgr.TransitionTask(ctx, "bob", task.ID, domain.StateInProgress)
			},
		},
		{
			name: "cancel",
			op: func() error {
				return mgr.TransitionTask(ctx, "bob", task.ID, domain.StateCancelled)
			},
		},
		{
			name: "comment",
			op: func() error {
				_, err := mgr.CommentTask(ctx, "bob", task.ID, "hi")

				return err
			},
		},
		{
			name: "assign",
			op: func() error {
				return mgr.AssignTask(ctx, "bob", task.ID, "bob")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("%s as unassigned member error = %v, want ErrUnauthorized", tt.name, err)
			}
		})
	}
}

func TestManager_SupervisorSteersAnyTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	task, err := mgr.CreateTask(ctx, "bob", "Write report", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if err := mgr.TransitionTask(ctx, "carol", task.ID, domain.StateInProgress); err != nil {
		t.Errorf("TransitionTask() as supervisor error = %v", err)
	}

	if _, err := mgr.CommentTask(ctx, "carol", task.ID, "please hurry"); err != nil {
		t.Errorf("CommentTask() as supervisor error = %v", err)
	}

	if err := mgr.TransitionTask(ctx, "carol", task.ID, domain.StateCancelled); err != nil {
		t.Errorf("TransitionTask(cancelled) as supervisor error = %v", err)
	}
}

func TestManager_UserManagementIsAdminOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	for _, actor := range []string{"bob", "carol"} {
		if _, err := mgr.RegisterUser(ctx, actor, "dave", "pw", domain.RoleMember); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("RegisterUser() as %q error = %v, want ErrUnauthorized", actor, err)
		}

		if err := mgr.SetRole(ctx, actor, "bob", domain.RoleSupervisor); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("SetRole() as %q error = %v, want ErrUnauthorized", actor, err)
		}
	}

	user, err := mgr.RegisterUser(ctx, "alice", "dave", "pw", domain.RoleMember)
	if err != nil {
		t.Fatalf("RegisterUser() as admin error = %v", err)
	}

	if user.Role != domain.RoleMember {
		t.Errorf("RegisterUser() role = %q, want %q", user.Role, domain.RoleMember)
	}

	if err := mgr.SetRole(ctx, "alice", "dave", domain.RoleSupervisor); err != nil {
		t.Errorf("SetRole() as admin error = %v", err)
	}
}

func TestManager_StatsAreSupervisorAndUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	if _, err := mgr.CreateTask(ctx, "alice", "Write report", ""); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if _, err := mgr.TaskStats(ctx, "bob"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("TaskStats() as member error = %v, want ErrUnauthorized", err)
	}

	if _, err := mgr.UserStats(ctx, "bob"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("UserStats() as member error = %v, want ErrUnauthorized", err)
	}

	taskStats, err := mgr.TaskStats(ctx, "carol")
	if err != nil {
		t.Fatalf("TaskStats() as supervisor error = %v", err)
	}

	if taskStats[domain.StatePending] != 1 {
		t.Errorf("TaskStats() pending = %d, want 1", taskStats[domain.StatePending])
	}

	userStats, err := mgr.UserStats(ctx, "alice")
	if err != nil {
		t.Fatalf("UserStats() as admin error = %v", err)
	}

	if userStats[domain.RoleMember] != 1 {
		t.Errorf("UserStats() members = %d, want 1", userStats[domain.RoleMember])
	}
}

func TestManager_AssignRequiresRegisteredUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	task, err := mgr.CreateTask(ctx, "alice", "Write report", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if err := mgr.AssignTask(ctx, "alice", task.ID, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("AssignTask() unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestManager_UnknownActorIsUnauthorized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	if _, err := mgr.CreateTask(ctx, "mallory", "Write report", ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("CreateTask() unknown actor error = %v, want ErrUnauthorized", err)
	}

	if _, err := mgr.ListTasks(ctx, "mallory"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("ListTasks() unknown actor error = %v, want ErrUnauthorized", err)
	}
}

func TestManager_ListOwnTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	first, err := mgr.CreateTask(ctx, "alice", "Write report", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if _, err := mgr.CreateTask(ctx, "alice", "Review report", ""); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if err := mgr.AssignTask(ctx, "alice", first.ID, "bob"); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}

	own, err := mgr.ListOwnTasks(ctx, "bob")
	if err != nil {
		t.Fatalf("ListOwnTasks() error = %v", err)
	}

	if len(own) != 1 || own[0].ID != first.ID {
		t.Errorf("ListOwnTasks() = %d tasks, want just %q", len(own), first.ID)
	}
}

func TestManager_LoginIssuesVerifiableToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	token, user, err := mgr.Login(ctx, "alice", "alice-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if user.Name != "alice" || user.Role != domain.RoleAdmin {
		t.Errorf("Login() user = %q/%q, want alice/admin", user.Name, user.Role)
	}

	name, role, err := mgr.Sessions.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if name != "alice" || role != domain.RoleAdmin {
		t.Errorf("Verify() = %q/%q, want alice/admin", name, role)
	}
}

func TestManager_LoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	// Unknown user and wrong password must be indistinguishable.
	if _, _, err := mgr.Login(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Login() wrong password error = %v, want ErrInvalidCredentials", err)
	}

	if _, _, err := mgr.Login(ctx, "mallory", "whatever"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Login() unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestSessions_Verify(t *testing.T) {
	t.Parallel()

	sessions := managersvc.NewSessions(managersvc.SessionConfig{
		Secret:        "test-secret",
		TokenDuration: 3600,
	})

	tests := []struct {
		name  string
		token func(t *testing.T) string
		ok    bool
	}{
		{
			name: "valid token",
			token: func(t *testing.T) string {
				t.Helper()

				token, err := sessions.Issue(domain.User{Name: "alice", Role: domain.RoleAdmin})
				if err != nil {
					t.Fatalf("Issue() error = %v", err)
				}

				return token
			},
			ok: true,
		},
		{
			name:  "garbage token",
			token: func(*testing.T) string { return "not.a.token" },
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				t.Helper()

				other := managersvc.NewSessions(managersvc.SessionConfig{
					Secret:        "other-secret",
					TokenDuration: 3600,
				})

				token, err := other.Issue(domain.User{Name: "alice", Role: domain.RoleAdmin})
				if err != nil {
					t.Fatalf("Issue() error = %v", err)
				}

				return token
			},
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				t.Helper()

				expired := managersvc.NewSessions(managersvc.SessionConfig{
					Secret:        "test-secret",
					TokenDuration: -60,
				})

				token, err := expired.Issue(domain.User{Name: "alice", Role: domain.RoleAdmin})
				if err != nil {
					t.Fatalf("Issue() error = %v", err)
				}

				return token
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			name, role, err := sessions.Verify(tt.token(t))

			if tt.ok {
				if err != nil {
					t.Fatalf("Verify() error = %v", err)
				}

				if name != "alice" || role != domain.RoleAdmin {
					t.Errorf("Verify() = %q/%q, want alice/admin", name, role)
				}

				return
			}

			if !errors.Is(err, managersvc.ErrInvalidSession) {
				t.Errorf("Verify() error = %v, want ErrInvalidSession", err)
			}
		})
	}
}

func TestManager_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := newTestManager(t)

	task, err := mgr.CreateTask(ctx, "alice", "Write report", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if err := mgr.AssignTask(ctx, "alice", task.ID, "bob"); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}

	if _, err := mgr.CommentTask(ctx, "bob", task.ID, "started"); err != nil {
		t.Fatalf("CommentTask() error = %v", err)
	}

	regSnap, storeSnap := mgr.Snapshots()

	restored, err := managersvc.NewFromSnapshots(regSnap, storeSnap, mgr.Sessions)
	if err != nil {
		t.Fatalf("NewFromSnapshots() error = %v", err)
	}

	got, err := restored.GetTask(ctx, "bob", task.ID)
	if err != nil {
		t.Fatalf("GetTask() after restore error = %v", err)
	}

	if len(got.Assignees) != 1 || got.Assignees[0] != "bob" {
		t.Errorf("restored assignees = %v, want [bob]", got.Assignees)
	}

	if len(got.Comments) != 1 || got.Comments[0].Text != "started" {
		t.Errorf("restored comments = %v, want the one added before the snapshot", got.Comments)
	}

	// Credentials survive the round trip.
	if _, _, err := restored.Login(ctx, "alice", "alice-pass"); err != nil {
		t.Errorf("Login() after restore error = %v", err)
	}
}

func TestNewFromSnapshots_RejectsCorruptData(t *testing.T) {
	t.Parallel()

	sessions := managersvc.NewSessions(managersvc.SessionConfig{
		Secret:        "test-secret",
		TokenDuration: 3600,
	})

	regSnap := domain.RegistrySnapshot{}
	storeSnap := domain.StoreSnapshot{
		Tasks: []domain.Task{{
			ID:        "task-1",
			Title:     "Write report",
			State:     domain.StatePending,
			CreatedBy: "ghost",
			Assignees: []string{"ghost"},
		}},
	}

	if _, err := managersvc.NewFromSnapshots(regSnap, storeSnap, sessions); !errors.Is(err, domain.ErrCorruptData) {
		t.Errorf("NewFromSnapshots() error = %v, want ErrCorruptData", err)
	}
}
