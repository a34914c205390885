package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/infra/logging"
)

// SQLiteSnapshotRepositoryConfig holds configuration for the SQLite snapshot repository.
type SQLiteSnapshotRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/taskdesk.db"`
}

// SQLiteSnapshotRepository implements Repository using SQLite as the storage
// backend. Each Save replaces the previous durable state inside a single
// transaction, which gives the same all-or-nothing guarantee as the file
// backend's rename.
type SQLiteSnapshotRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteSnapshotRepository)(nil)

// SQLiteSnapshotRepositoryFactory creates a factory function that returns a new
// SQLiteSnapshotRepository. The factory function implements the RepositoryFactory type.
func SQLiteSnapshotRepositoryFactory(cfg SQLiteSnapshotRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLiteSnapshotRepository(cfg)
	}
}

// NewSQLiteSnapshotRepository creates a new SQLiteSnapshotRepository with the given
// configuration. It initializes the database connection and creates the schema if needed.
func NewSQLiteSnapshotRepository(cfg SQLiteSnapshotRepositoryConfig) (*SQLiteSnapshotRepository, error) {
	log := logging.GetLogger("repo.snapshot.sqlite_snapshot_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteSnapshotRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

func initializeDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			name          TEXT    PRIMARY KEY,
			password_hash BLOB    NOT NULL,
			role          TEXT    NOT NULL,
			created_at    INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT    PRIMARY KEY,
			title       TEXT    NOT NULL,
			description TEXT    NOT NULL,
			state       TEXT    NOT NULL,
			created_by  TEXT    NOT NULL,
			created_at  INTEGER NOT NULL,
			position    INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS task_assignees (
			task_id   TEXT    NOT NULL,
			user_name TEXT    NOT NULL,
			position  INTEGER NOT NULL,
			PRIMARY KEY (task_id, user_name)
		);
		CREATE TABLE IF NOT EXISTS task_comments (
			task_id    TEXT    NOT NULL,
			position   INTEGER NOT NULL,
			author     TEXT    NOT NULL,
			text       TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (task_id, position)
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Save implements Repository.Save. The previous durable state is replaced
// inside one transaction; a failure at any point rolls everything back.
//
//nolint:funlen
func (r *SQLiteSnapshotRepository) Save(
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

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(domain.ErrPersistence, fmt.Errorf("begin tx: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"task_comments", "task_assignees", "tasks", "users"} {
		if _, err = tx.Exec("DELETE FROM " + table); err != nil {
			return errors.Join(domain.ErrPersistence, fmt.Errorf("clear %s: %w", table, err))
		}
	}

	for _, user := range reg.Users {
		if _, err = tx.Exec(
			"INSERT INTO users (name, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
			user.Name, user.PasswordHash, string(user.Role), user.CreatedAt,
		); err != nil {
			return errors.Join(domain.ErrPersistence, fmt.Errorf("insert user: %w", err))
		}
	}

	for pos, task := range store.Tasks {
		if _, err = tx.Exec(
			"INSERT INTO tasks (id, title, description, state, created_by, created_at, position)"+
				" VALUES (?, ?, ?, ?, ?, ?, ?)",
			string(task.ID), task.Title, task.Description, string(task.State),
			task.CreatedBy, task.CreatedAt, pos,
		); err != nil {
			return errors.Join(domain.ErrPersistence, fmt.Errorf("insert task: %w", err))
		}

		for i, assignee := range task.Assignees {
			if _, err = tx.Exec(
				"INSERT INTO task_assignees (task_id, user_name, position) VALUES (?, ?, ?)",
				string(task.ID), assignee, i,
			); err != nil {
				return errors.Join(domain.ErrPersistence, fmt.Errorf("insert assignee: %w", err))
			}
		}

		for i, comment := range task.Comments {
			if _, err = tx.Exec(
				"INSERT INTO task_comments (task_id, position, author, text, created_at)"+
					" VALUES (?, ?, ?, ?, ?)",
				string(task.ID), i, comment.Author, comment.Text, comment.CreatedAt,
			); err != nil {
				return errors.Join(domain.ErrPersistence, fmt.Errorf("insert comment: %w", err))
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Join(domain.ErrPersistence, fmt.Errorf("commit: %w", err))
	}

	return nil
}

// Load implements Repository.Load by reassembling both snapshots and
// validating them against the data model invariants.
//
//nolint:funlen,cyclop
func (r *SQLiteSnapshotRepository) Load(
	ctx context.Context,
) (domain.RegistrySnapshot, domain.StoreSnapshot, error) {
	var (
		reg   domain.RegistrySnapshot
		store domain.StoreSnapshot
	)

	fail := func(err error) (domain.RegistrySnapshot, domain.StoreSnapshot, error) {
		return domain.RegistrySnapshot{}, domain.StoreSnapshot{}, err
	}

	userRows, err := r.db.QueryContext(ctx,
		"SELECT name, password_hash, role, created_at FROM users ORDER BY name")
	if err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("query users: %w", err)))
	}
	defer userRows.Close()

	for userRows.Next() {
		var user domain.User

		if err := userRows.Scan(&user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return fail(errors.Join(domain.ErrCorruptData, fmt.Errorf("scan user: %w", err)))
		}

		reg.Users = append(reg.Users, user)
	}

	if err := userRows.Err(); err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("iterate users: %w", err)))
	}

	taskRows, err := r.db.QueryContext(ctx,
		"SELECT id, title, description, state, created_by, created_at FROM tasks ORDER BY position")
	if err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("query tasks: %w", err)))
	}
	defer taskRows.Close()

	for taskRows.Next() {
		var task domain.Task

		if err := taskRows.Scan(
			&task.ID, &task.Title, &task.Description, &task.State, &task.CreatedBy, &task.CreatedAt,
		); err != nil {
			return fail(errors.Join(domain.ErrCorruptData, fmt.Errorf("scan task: %w", err)))
		}

		store.Tasks = append(store.Tasks, task)
	}

	if err := taskRows.Err(); err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("iterate tasks: %w", err)))
	}

	// The slice must not grow past this point; byID holds pointers into it
	byID := make(map[domain.TaskID]*domain.Task, len(store.Tasks))
	for i := range store.Tasks {
		byID[store.Tasks[i].ID] = &store.Tasks[i]
	}

	assigneeRows, err := r.db.QueryContext(ctx,
		"SELECT task_id, user_name FROM task_assignees ORDER BY task_id, position")
	if err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("query assignees: %w", err)))
	}
	defer assigneeRows.Close()

	for assigneeRows.Next() {
		var (
			taskID domain.TaskID
			name   string
		)

		if err := assigneeRows.Scan(&taskID, &name); err != nil {
			return fail(errors.Join(domain.ErrCorruptData, fmt.Errorf("scan assignee: %w", err)))
		}

		task, ok := byID[taskID]
		if !ok {
			return fail(fmt.Errorf("%w: assignee row for unknown task %q", domain.ErrCorruptData, taskID))
		}

		task.Assignees = append(task.Assignees, name)
	}

	if err := assigneeRows.Err(); err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("iterate assignees: %w", err)))
	}

	commentRows, err := r.db.QueryContext(ctx,
		"SELECT task_id, author, text, created_at FROM task_comments ORDER BY task_id, position")
	if err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("query comments: %w", err)))
	}
	defer commentRows.Close()

	for commentRows.Next() {
		var (
			taskID  domain.TaskID
			comment domain.Comment
		)

		if err := commentRows.Scan(&taskID, &comment.Author, &comment.Text, &comment.CreatedAt); err != nil {
			return fail(errors.Join(domain.ErrCorruptData, fmt.Errorf("scan comment: %w", err)))
		}

		task, ok := byID[taskID]
		if !ok {
			return fail(fmt.Errorf("%w: comment row for unknown task %q", domain.ErrCorruptData, taskID))
		}

		task.Comments = append(task.Comments, comment)
	}

	if err := commentRows.Err(); err != nil {
		return fail(errors.Join(domain.ErrPersistence, fmt.Errorf("iterate comments: %w", err)))
	}

	if err := domain.ValidateSnapshots(reg, store); err != nil {
		return fail(fmt.Errorf("validate snapshot: %w", err))
	}

	r.log.DebugContext(ctx, "snapshot loaded",
		logging.Group("snapshot", "users", len(reg.Users), "tasks", len(store.Tasks)))

	return reg, store, nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteSnapshotRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
