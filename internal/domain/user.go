package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateUser is returned when trying to register a user with a name that is already taken.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrUserNotFound is returned when looking up a non-existent user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when authentication fails. It deliberately does not
	// distinguish an unknown name from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRole is returned when a role is not one of the fixed role set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrUnauthorized is returned when the acting user's role does not permit an operation.
	ErrUnauthorized = errors.New("unauthorized")
)

// Role is the closed set of user roles. There are no custom roles.
type Role string

const (
	RoleMember     Role = "member"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// ParseRole validates a role string against the fixed role set.
// Returns ErrInvalidRole for anything else.
func ParseRole(s string) (Role, error) {
	switch role := Role(s); role {
	case RoleMember, RoleSupervisor, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// User represents a registered user. The password is stored only as a salted
// one-way hash; the plaintext never outlives the registration or login call.
type User struct {
	Name         string `json:"name"`         // Unique login name
	PasswordHash []byte `json:"passwordHash"` // bcrypt hash, salt embedded
	Role         Role   `json:"role"`
	CreatedAt    int64  `json:"createdAt"` // Unix timestamp of registration
}
