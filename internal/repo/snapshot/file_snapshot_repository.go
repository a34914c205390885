package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/infra/logging"
)

const snapshotFormatVersion = 1

// FileSnapshotRepositoryConfig holds configuration for the file-based snapshot repository.
type FileSnapshotRepositoryConfig struct {
	// Path is the filesystem path of the snapshot file
	Path string `env:"PATH" default:"var/storage/taskdesk.json"`
}

// snapshotDocument is the on-disk form: both collections plus format metadata,
// written as one JSON document.
type snapshotDocument struct {
	Version  int                     `json:"version"`
	SavedAt  int64                   `json:"savedAt"`
	Registry domain.RegistrySnapshot `json:"registry"`
	Store    domain.StoreSnapshot    `json:"store"`
}

// FileSnapshotRepository implements Repository on a single JSON file.
// Saves go through a temp file in the same directory followed by a rename,
// so a crash mid-write leaves the previous durable state intact.
type FileSnapshotRepository struct {
	cfg       FileSnapshotRepositoryConfig
	log       logging.Logger
	writeLock *sync.Mutex
	now       func() int64
}

var _ Repository = (*FileSnapshotRepository)(nil)

// FileSnapshotRepositoryFactory creates a factory function that returns a new
// FileSnapshotRepository. The factory function implements the RepositoryFactory type.
func FileSnapshotRepositoryFactory(cfg FileSnapshotRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewFileSnapshotRepository(cfg)
	}
}

// NewFileSnapshotRepository creates a new FileSnapshotRepository with the given
// configuration, creating the parent directory if needed.
func NewFileSnapshotRepository(cfg FileSnapshotRepositoryConfig) (*FileSnapshotRepository, error) {
	log := logging.GetLogger("repo.snapshot.file_snapshot_repository").With(
		logging.Group("file", "path", cfg.Path),
	)

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	return &FileSnapshotRepository{
		cfg:       cfg,
		log:       log,
		writeLock: new(sync.Mutex),
		now:       func() int64 { return time.Now().Unix() },
	}, nil
}

// Save implements Repository.Save with write-to-temp-then-rename.
func (r *FileSnapshotRepository) Save(
	ctx context.Context,
	reg domain.RegistrySnapshot,
	store domain.StoreSnapshot,
) (err error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	defer func() {
		if err != nil {
			r.log.ErrorContext(ctx, "save snapshot failed", "error", err)
		} else {
			r.log.DebugContext(ctx, "snapshot saved",
				logging.Group("snapshot", "users", len(reg.Users), "tasks", len(store.Tasks)))
		}
	}()

	doc := snapshotDocument{
		Version:  snapshotFormatVersion,
		SavedAt:  r.now(),
		Registry: reg,
		Store:    store,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Join(domain.ErrPersistence, fmt.Errorf("marshal snapshot: %w", err))
	}

	// Temp file in the same directory so the rename stays on one filesystem
	tmp, err := os.CreateTemp(filepath.Dir(r.cfg.Path), filepath.Base(r.cfg.Path)+".tmp-*")
	if err != nil {
		return errors.Join(domain.ErrPersistence, fmt.Errorf("create temp file: %w", err))
	}

	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return errors.Join(domain.ErrPersistence, fmt.Errorf("write temp file: %w", err))
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return errors.Join(domain.ErrPersistence, fmt.Errorf("sync temp file: %w", err))
	}

	if err = tmp.Close(); err != nil {
		return errors.Join(domain.ErrPersistence, fmt.Errorf("close temp file: %w", err))
	}

	if err = os.Rename(tmpName, r.cfg.Path); err != nil {
		return errors.Join(domain.ErrPersistence, fmt.Errorf("rename temp file: %w", err))
	}

	return nil
}

// Load implements Repository.Load. A missing file loads as empty snapshots;
// anything undecodable or invariant-violating fails with domain.ErrCorruptData.
func (r *FileSnapshotRepository) Load(
	ctx context.Context,
) (domain.RegistrySnapshot, domain.StoreSnapshot, error) {
	data, err := os.ReadFile(r.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.DebugContext(ctx, "no snapshot file, starting empty")

			return domain.RegistrySnapshot{}, domain.StoreSnapshot{}, nil
		}

		return domain.RegistrySnapshot{}, domain.StoreSnapshot{},
			errors.Join(domain.ErrPersistence, fmt.Errorf("read snapshot: %w", err))
	}

	var doc snapshotDocument

	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.RegistrySnapshot{}, domain.StoreSnapshot{},
			errors.Join(domain.ErrCorruptData, fmt.Errorf("unmarshal snapshot: %w", err))
	}

	if doc.Version != snapshotFormatVersion {
		return domain.RegistrySnapshot{}, domain.StoreSnapshot{},
			fmt.Errorf("%w: unsupported snapshot version %d", domain.ErrCorruptData, doc.Version)
	}

	if err := domain.ValidateSnapshots(doc.Registry, doc.Store); err != nil {
		return domain.RegistrySnapshot{}, domain.StoreSnapshot{},
			fmt.Errorf("validate snapshot: %w", err)
	}

	r.log.DebugContext(ctx, "snapshot loaded",
		logging.Group("snapshot", "users", len(doc.Registry.Users), "tasks", len(doc.Store.Tasks)))

	return doc.Registry, doc.Store, nil
}

// Close implements Repository.Close. The file repository holds no open resources.
func (r *FileSnapshotRepository) Close() error {
	return nil
}
