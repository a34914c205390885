package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence is returned when the durable storage layer fails.
	ErrPersistence = errors.New("persistence failure")
	// ErrCorruptData is returned when durable state cannot be deserialized into
	// valid entities. A corrupt snapshot aborts the load; it is never repaired.
	ErrCorruptData = errors.New("corrupt durable state")
)

// RegistrySnapshot is a complete, self-consistent copy of the user registry
// suitable for serialization.
type RegistrySnapshot struct {
	Users []User `json:"users"`
}

// StoreSnapshot is a complete, self-consistent copy of the task store
// suitable for serialization. Task order is creation order.
type StoreSnapshot struct {
	Tasks []Task `json:"tasks"`
}

// ValidateSnapshots checks both snapshots against the data model invariants:
// unique non-empty user names, known roles, non-empty titles, known states,
// unique task IDs, and registry-resolvable assignees and comment authors.
// Returns an error joining ErrCorruptData on the first violation found.
//
//nolint:cyclop
func ValidateSnapshots(reg RegistrySnapshot, store StoreSnapshot) error {
	names := make(map[string]struct{}, len(reg.Users))

	for _, user := range reg.Users {
		if user.Name == "" {
			return fmt.Errorf("%w: user with empty name", ErrCorruptData)
		}

		if _, dup := names[user.Name]; dup {
			return fmt.Errorf("%w: duplicate user %q", ErrCorruptData, user.Name)
		}

		if _, err := ParseRole(string(user.Role)); err != nil {
			return errors.Join(ErrCorruptData, err)
		}

		if len(user.PasswordHash) == 0 {
			return fmt.Errorf("%w: user %q without password hash", ErrCorruptData, user.Name)
		}

		names[user.Name] = struct{}{}
	}

	ids := make(map[TaskID]struct{}, len(store.Tasks))

	for _, task := range store.Tasks {
		if task.ID == "" {
			return fmt.Errorf("%w: task with empty id", ErrCorruptData)
		}

		if _, dup := ids[task.ID]; dup {
			return fmt.Errorf("%w: duplicate task %q", ErrCorruptData, task.ID)
		}

		if task.Title == "" {
			return fmt.Errorf("%w: task %q with empty title", ErrCorruptData, task.ID)
		}

		if _, err := ParseTaskState(string(task.State)); err != nil {
			return errors.Join(ErrCorruptData, err)
		}

		for _, assignee := range task.Assignees {
			if _, ok := names[assignee]; !ok {
				return fmt.Errorf("%w: task %q references unknown assignee %q",
					ErrCorruptData, task.ID, assignee)
			}
		}

		for _, comment := range task.Comments {
			if _, ok := names[comment.Author]; !ok {
				return fmt.Errorf("%w: task %q comment by unknown author %q",
					ErrCorruptData, task.ID, comment.Author)
			}

			if comment.Text == "" {
				return fmt.Errorf("%w: task %q with empty comment", ErrCorruptData, task.ID)
			}
		}

		ids[task.ID] = struct{}{}
	}

	return nil
}
