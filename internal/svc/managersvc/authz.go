package managersvc

import (
	"fmt"

	"github.com/jortega/taskdesk/internal/domain"
)

// Action names one authorizable operation. The pairing of actions and roles
// below is the whole authorization policy; there is no inheritance beyond
// this table.
type Action string

const (
	ActionCreateTask         Action = "task.create"
	ActionAssignTask         Action = "task.assign"
	ActionTransitionAssigned Action = "task.transition.assigned"
	ActionTransitionAny      Action = "task.transition.any"
	ActionCancelAssigned     Action = "task.cancel.assigned"
	ActionCancelAny          Action = "task.cancel.any"
	ActionCommentAssigned    Action = "task.comment.assigned"
	ActionCommentAny         Action = "task.comment.any"
	ActionManageUsers        Action = "user.manage"
	ActionViewStats          Action = "stats.view"
)

// rolePermissions maps role x action -> allowed. Members act only on tasks
// they are assigned to; supervisors additionally steer any task; admins
// additionally manage users and roles.
//
//nolint:gochecknoglobals
var rolePermissions = map[domain.Role]map[Action]bool{
	domain.RoleMember: {
		ActionCreateTask:         true,
		ActionTransitionAssigned: true,
		ActionCancelAssigned:     true,
		ActionCommentAssigned:    true,
	},
	domain.RoleSupervisor: {
		ActionCreateTask:         true,
		ActionAssignTask:         true,
		ActionTransitionAssigned: true,
		ActionTransitionAny:      true,
		ActionCancelAssigned:     true,
		ActionCancelAny:          true,
		ActionCommentAssigned:    true,
		ActionCommentAny:         true,
		ActionViewStats:          true,
	},
	domain.RoleAdmin: {
		ActionCreateTask:         true,
		ActionAssignTask:         true,
		ActionTransitionAssigned: true,
		ActionTransitionAny:      true,
		ActionCancelAssigned:     true,
		ActionCancelAny:          true,
		ActionCommentAssigned:    true,
		ActionCommentAny:         true,
		ActionViewStats:          true,
		ActionManageUsers:        true,
	},
}

// allowed reports whether the role permits the action.
func allowed(role domain.Role, action Action) bool {
	return rolePermissions[role][action]
}

// authorize returns domain.ErrUnauthorized unless the role permits the action.
func authorize(role domain.Role, action Action) error {
	if !allowed(role, action) {
		return fmt.Errorf("%w: role %q may not %s", domain.ErrUnauthorized, role, action)
	}

	return nil
}
