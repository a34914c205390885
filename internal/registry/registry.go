// Package registry owns the mapping from user name to user record and is the
// sole authority on credential verification. It is not internally
// synchronized; the embedding front end serializes access.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/infra/logging"
)

// Registry is the in-memory user collection.
type Registry struct {
	users map[string]*domain.User
	log   logging.Logger
	now   func() int64
	cost  int
}

// Option customizes a Registry, mainly for tests.
type Option func(*Registry)

// WithClock overrides the timestamp source.
func WithClock(now func() int64) Option {
	return func(r *Registry) { r.now = now }
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(r *Registry) { r.cost = cost }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	reg := &Registry{
		users: make(map[string]*domain.User),
		log:   logging.GetLogger("registry"),
		now:   unixNow,
		cost:  bcrypt.DefaultCost,
	}

	for _, opt := range opts {
		opt(reg)
	}

	return reg
}

// Register creates a new user with a salted one-way hash of the password.
// Returns domain.ErrDuplicateUser if the name is taken, domain.ErrInvalidRole
// if the role is not in the fixed set, and domain.ErrValidation for an empty
// name or password.
func (r *Registry) Register(ctx context.Context, name, password string, role domain.Role) (_ domain.User, err error) {
	log := r.log.With(logging.Group("user", "name", name, "role", string(role)))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "register user failed", "error", err)
		} else {
			log.DebugContext(ctx, "user registered")
		}
	}()

	if name == "" {
		return domain.User{}, fmt.Errorf("%w: empty user name", domain.ErrValidation)
	}

	if password == "" {
		return domain.User{}, fmt.Errorf("%w: empty password", domain.ErrValidation)
	}

	if _, err := domain.ParseRole(string(role)); err != nil {
		return domain.User{}, err
	}

	if _, exists := r.users[name]; exists {
		return domain.User{}, fmt.Errorf("%w: %q", domain.ErrDuplicateUser, name)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    r.now(),
	}
	r.users[name] = user

	return *user, nil
}

// Authenticate verifies a name/password pair against the stored verifier.
// An unknown name and a wrong password both yield domain.ErrInvalidCredentials,
// so callers cannot enumerate registered users.
func (r *Registry) Authenticate(ctx context.Context, name, password string) (_ domain.User, err error) {
	defer func() {
		if err != nil {
			r.log.ErrorContext(ctx, "authenticate failed", "error", err)
		} else {
			r.log.DebugContext(ctx, "authenticated", logging.Group("user", "name", name))
		}
	}()

	user, exists := r.users[name]
	if !exists {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	return *user, nil
}

// SetRole changes the target user's role. Only an admin actor may do this;
// anyone else gets domain.ErrUnauthorized.
func (r *Registry) SetRole(ctx context.Context, actorName, targetName string, role domain.Role) (err error) {
	log := r.log.With(logging.Group("role",
		"actor", actorName,
		"target", targetName,
		"role", string(role),
	))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "set role failed", "error", err)
		} else {
			log.InfoContext(ctx, "role changed")
		}
	}()

	actor, exists := r.users[actorName]
	if !exists || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: role change requires admin", domain.ErrUnauthorized)
	}

	if _, err := domain.ParseRole(string(role)); err != nil {
		return err
	}

	target, exists := r.users[targetName]
	if !exists {
		return fmt.Errorf("%w: %q", domain.ErrUserNotFound, targetName)
	}

	target.Role = role

	return nil
}

// Lookup returns the named user and whether it exists.
func (r *Registry) Lookup(name string) (domain.User, bool) {
	user, exists := r.users[name]
	if !exists {
		return domain.User{}, false
	}

	return *user, true
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	return len(r.users)
}

// CountByRole returns how many users hold each role.
func (r *Registry) CountByRole() map[domain.Role]int {
	counts := make(map[domain.Role]int, 3)

	for _, user := range r.users {
		counts[user.Role]++
	}

	return counts
}

// Snapshot returns a self-consistent copy of the registry, ordered by name.
func (r *Registry) Snapshot() domain.RegistrySnapshot {
	users := make([]domain.User, 0, len(r.users))

	for _, user := range r.users {
		users = append(users, *user)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })

	return domain.RegistrySnapshot{Users: users}
}

// Restore builds a Registry from a snapshot. The snapshot must already have
// passed domain.ValidateSnapshots; a duplicate name here means the caller
// skipped validation and aborts the restore.
func Restore(snap domain.RegistrySnapshot, opts ...Option) (*Registry, error) {
	reg := New(opts...)

	for _, user := range snap.Users {
		if _, dup := reg.users[user.Name]; dup {
			return nil, errors.Join(domain.ErrCorruptData,
				fmt.Errorf("duplicate user %q", user.Name))
		}

		u := user
		reg.users[user.Name] = &u
	}

	return reg, nil
}

func unixNow() int64 {
	return time.Now().Unix()
}
