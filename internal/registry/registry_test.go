package registry_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	return registry.New(registry.WithHashCost(bcrypt.MinCost))
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		role     domain.Role
		setup    func(ctx context.Context, reg *registry.Registry)
		wantErr  error
	}{
		{
			name:     "successful registration",
			username: "alice",
			password: "secret",
			role:     domain.RoleAdmin,
		},
		{
			name:     "duplicate name",
			username: "bob",
			password: "secret",
			role:     domain.RoleMember,
			setup: func(ctx context.Context, reg *registry.Registry) {
				_, _ = reg.Register(ctx, "bob", "other", domain.RoleMember)
			},
			wantErr: domain.ErrDuplicateUser,
		},
		{
			name:     "unknown role",
			username: "carol",
			password: "secret",
			role:     domain.Role("owner"),
			wantErr:  domain.ErrInvalidRole,
		},
		{
			name:     "empty name",
			username: "",
			password: "secret",
			role:     domain.RoleMember,
			wantErr:  domain.ErrValidation,
		},
		{
			name:     "empty password",
			username: "dave",
			password: "",
			role:     domain.RoleMember,
			wantErr:  domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			reg := newTestRegistry(t)

			if tt.setup != nil {
				tt.setup(ctx, reg)
			}

			user, err := reg.Register(ctx, tt.username, tt.password, tt.role)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				return
			}

			if user.Name != tt.username || user.Role != tt.role {
				t.Errorf("Register() = %+v, want name %q role %q", user, tt.username, tt.role)
			}

			if string(user.PasswordHash) == tt.password || len(user.PasswordHash) == 0 {
				t.Error("Register() stored something other than a hash")
			}
		})
	}
}

func TestRegistry_Authenticate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newTestRegistry(t)

	if _, err := reg.Register(ctx, "alice", "correct-horse", domain.RoleMember); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{
			name:     "matching password",
			username: "alice",
			password: "correct-horse",
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "battery-staple",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name:     "unknown user yields the same error as wrong password",
			username: "mallory",
			password: "correct-horse",
			wantErr:  domain.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			user, err := reg.Authenticate(ctx, tt.username, tt.password)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err == nil && user.Name != tt.username {
				t.Errorf("Authenticate() name = %q, want %q", user.Name, tt.username)
			}
		})
	}
}

func TestRegistry_SetRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		actor   string
		target  string
		role    domain.Role
		wantErr error
	}{
		{
			name:   "admin promotes member",
			actor:  "root",
			target: "bob",
			role:   domain.RoleSupervisor,
		},
		{
			name:    "member cannot change roles",
			actor:   "bob",
			target:  "bob",
			role:    domain.RoleAdmin,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "supervisor cannot change roles",
			actor:   "sue",
			target:  "bob",
			role:    domain.RoleMember,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "unknown actor",
			actor:   "ghost",
			target:  "bob",
			role:    domain.RoleMember,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "unknown target",
			actor:   "root",
			target:  "ghost",
			role:    domain.RoleMember,
			wantErr: domain.ErrUserNotFound,
		},
		{
			name:    "unknown role",
			actor:   "root",
			target:  "bob",
			role:    domain.Role("owner"),
			wantErr: domain.ErrInvalidRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			reg := newTestRegistry(t)

			for name, role := range map[string]domain.Role{
				"root": domain.RoleAdmin,
				"sue":  domain.RoleSupervisor,
				"bob":  domain.RoleMember,
			} {
				if _, err := reg.Register(ctx, name, "pw", role); err != nil {
					t.Fatalf("Register(%q) error = %v", name, err)
				}
			}

			err := reg.SetRole(ctx, tt.actor, tt.target, tt.role)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetRole() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err == nil {
				if user, _ := reg.Lookup(tt.target); user.Role != tt.role {
					t.Errorf("SetRole() role = %q, want %q", user.Role, tt.role)
				}
			}
		})
	}
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newTestRegistry(t)

	for _, name := range []string{"carol", "alice", "bob"} {
		if _, err := reg.Register(ctx, name, "pw", domain.RoleMember); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}

	snap := reg.Snapshot()

	if len(snap.Users) != 3 {
		t.Fatalf("Snapshot() users = %d, want 3", len(snap.Users))
	}

	for i, want := range []string{"alice", "bob", "carol"} {
		if snap.Users[i].Name != want {
			t.Errorf("Snapshot() users[%d] = %q, want %q", i, snap.Users[i].Name, want)
		}
	}

	restored, err := registry.Restore(snap)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if restored.Len() != reg.Len() {
		t.Errorf("Restore() len = %d, want %d", restored.Len(), reg.Len())
	}

	if _, err := restored.Authenticate(ctx, "alice", "pw"); err != nil {
		t.Errorf("Authenticate() after restore error = %v", err)
	}
}

func TestRegistry_CountByRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newTestRegistry(t)

	_, _ = reg.Register(ctx, "root", "pw", domain.RoleAdmin)
	_, _ = reg.Register(ctx, "bob", "pw", domain.RoleMember)
	_, _ = reg.Register(ctx, "carol", "pw", domain.RoleMember)

	counts := reg.CountByRole()

	if counts[domain.RoleAdmin] != 1 || counts[domain.RoleMember] != 2 || counts[domain.RoleSupervisor] != 0 {
		t.Errorf("CountByRole() = %v, want 1 admin, 2 members", counts)
	}
}
