package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jortega/taskdesk/internal/domain"
	"github.com/jortega/taskdesk/internal/infra/config"
	"github.com/jortega/taskdesk/internal/infra/logging"
	"github.com/jortega/taskdesk/internal/infra/transport/http"
	"github.com/jortega/taskdesk/internal/repo/snapshot"
	"github.com/jortega/taskdesk/internal/svc/managersvc"
)

const (
	appName = "taskdesk"
	svcName = "tasksvc"
)

type Config struct {
	config.EnvConfig

	Log     logging.LoggerConfig                    `envPrefix:"LOG_"`
	Session managersvc.SessionConfig                `envPrefix:"SESSION_"`
	HTTP    managersvc.HTTPTransportConfig          `envPrefix:"HTTP_"`
	File    snapshot.FileSnapshotRepositoryConfig   `envPrefix:"SNAPSHOT_FILE_"`
	SQLite  snapshot.SQLiteSnapshotRepositoryConfig `envPrefix:"SNAPSHOT_SQLITE_"`

	// SnapshotBackend selects the persistence gateway: "file" or "sqlite"
	SnapshotBackend string `env:"SNAPSHOT_BACKEND" default:"file"`

	// AdminName and AdminPassword seed the first admin account when the
	// registry is empty. With an empty password no account is seeded.
	AdminName     string `env:"ADMIN_NAME" default:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD" default:""`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	if err := run(ctx, cfg); err != nil {
		panic(err)
	}
}

func repositoryFactory(cfg Config) (snapshot.RepositoryFactory, error) {
	switch cfg.SnapshotBackend {
	case "file":
		return snapshot.FileSnapshotRepositoryFactory(cfg.File), nil
	case "sqlite":
		return snapshot.SQLiteSnapshotRepositoryFactory(cfg.SQLite), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.tasksvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
			panic(err)
		}

		log.InfoContext(ctx, "shutdown")
	}()

	factory, err := repositoryFactory(cfg)
	if err != nil {
		return err
	}

	repo, err := factory()
	if err != nil {
		return fmt.Errorf("new snapshot repository: %w", err)
	}
	defer repo.Close()

	regSnap, storeSnap, err := repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}

	mgr, err := managersvc.NewFromSnapshots(regSnap, storeSnap, managersvc.NewSessions(cfg.Session))
	if err != nil {
		return fmt.Errorf("restore manager: %w", err)
	}

	if err := seedAdmin(ctx, cfg, mgr, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	checkpoint := func(ctx context.Context) error {
		reg, store := mgr.Snapshots()

		return repo.Save(ctx, reg, store)
	}

	if err := checkpoint(ctx); err != nil {
		return fmt.Errorf("initial checkpoint: %w", err)
	}

	httpTransport := managersvc.NewHTTPTransport(mgr, checkpoint, cfg.HTTP)

	if err := http.ListenAndServe(ctx, httpTransport, cfg.HTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// seedAdmin registers the bootstrap admin account on first start. User
// management is admin-gated, so an empty registry would otherwise be a
// dead end.
func seedAdmin(ctx context.Context, cfg Config, mgr *managersvc.Manager, log logging.Logger) error {
	if mgr.Registry.Len() > 0 {
		return nil
	}

	if cfg.AdminPassword == "" {
		log.WarnContext(ctx, "registry is empty and no admin password configured; no account seeded")

		return nil
	}

	if _, err := mgr.Registry.Register(ctx, cfg.AdminName, cfg.AdminPassword, domain.RoleAdmin); err != nil {
		return err
	}

	log.InfoContext(ctx, "seeded admin account", logging.Group("user", "name", cfg.AdminName))

	return nil
}
