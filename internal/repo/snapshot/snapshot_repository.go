package snapshot

import (
	"context"

	"github.com/jortega/taskdesk/internal/domain"
)

// Repository is the persistence gateway: it serializes the registry and the
// store to durable storage as one atomic unit. Either a Save fully replaces
// durable state or the previous durable state stays intact; no partial write
// is observable after a crash.
type Repository interface {
	// Save persists both snapshots atomically.
	Save(ctx context.Context, reg domain.RegistrySnapshot, store domain.StoreSnapshot) error

	// Load retrieves the last saved snapshots. Durable state that cannot be
	// deserialized into valid entities fails with domain.ErrCorruptData and
	// never yields a partially valid pair. Missing durable state loads as
	// empty snapshots.
	Load(ctx context.Context) (domain.RegistrySnapshot, domain.StoreSnapshot, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func() (Repository, error)
