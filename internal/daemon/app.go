// Package daemon initializes and runs the driftguard daemon: storage,
// migrations, the engine, the detector sweep and the payload archiver, with
// graceful shutdown on OS signals.
package daemon

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"

	"github.com/driftguard/driftguard/internal/archive"
	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/engine"
	"github.com/driftguard/driftguard/internal/filex"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/repositories/repomanager"
)

// staticTransport satisfies engine.Transport with a fixed answer. The
// daemon has no live transport of its own; remote snapshots arrive through
// the engine API.
type staticTransport struct{ online bool }

func (t staticTransport) Online() bool { return t.online }

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	engine   *engine.Engine
	archiver *archive.Archiver
}

func NewApp(cfg *config.Config) (*App, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, manager, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	eng := engine.New(db, manager, staticTransport{online: !cfg.Offline}, logger, engine.Options{
		SandboxTimeout: cfg.SandboxTimeout,
	})

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
		engine: eng,
	}
	if cfg.ArchiveAfter > 0 && db == nil {
		logger.Warn(context.Background(), "archiver disabled: memory storage has nothing worth offloading")
	} else if cfg.ArchiveAfter > 0 {
		app.archiver = archive.New(manager.Versions(db), cfg, logger)
	}
	return app, nil
}

func newLogger(level string) (logging.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logging.NewZapLogger(z), nil
}

// openStorage opens the configured backend and runs migrations. The
// database connection is retried with fibonacci backoff so the daemon
// survives starting before its database.
func openStorage(cfg *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	ctx := context.Background()

	var driverName string
	var manager repomanager.RepositoryManager
	switch cfg.DatabaseDriver {
	case "postgres":
		driverName = "pgx"
		manager = repomanager.NewPostgresRepositoryManager()
	case "sqlite":
		driverName = "sqlite"
		manager = repomanager.NewSQLiteRepositoryManager()
		if _, err := filex.EnsureDataDir(""); err != nil {
			return nil, nil, err
		}
	case "memory":
		return nil, repomanager.NewMemoryRepositoryManager(), nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}

	db, err := sql.Open(driverName, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	backoff := retry.WithMaxRetries(6, retry.NewFibonacci(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	if err := manager.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, manager, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// loadRules applies the configured YAML rules file on startup. Upserts keep
// manually edited rules with the same ids in sync with the file.
func (app *App) loadRules(ctx context.Context) error {
	if app.config.RulesFile == "" {
		return nil
	}
	resolution, overrides, err := config.LoadRulesFile(app.config.RulesFile)
	if err != nil {
		return err
	}
	for _, r := range resolution {
		if err := app.engine.UpsertResolutionRule(ctx, r); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	for _, r := range overrides {
		if err := app.engine.UpsertOverrideRule(ctx, r); err != nil {
			return fmt.Errorf("override rule %s: %w", r.ID, err)
		}
	}
	app.logger.Info(ctx, "rules loaded",
		"file", app.config.RulesFile,
		"resolution_rules", len(resolution), "override_rules", len(overrides))
	return nil
}

// Engine exposes the running engine to embedders.
func (app *App) Engine() *engine.Engine { return app.engine }

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting driftguard",
		"driver", app.config.DatabaseDriver, "scan_interval", app.config.ScanInterval.String())

	app.initSignalHandler(cancelFunc)

	if err := app.loadRules(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.engine.Detector().RunLoop(ctx, app.config.ScanInterval)
	}()

	if app.archiver != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.archiver.RunLoop(ctx, time.Hour)
		}()
	}

	// drain the event feed into the log so activity is visible
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-app.engine.Events():
				app.logger.Debug(ctx, "event",
					"kind", string(ev.Kind), "resource_id", ev.ResourceID,
					"conflict_id", ev.ConflictID, "version_id", ev.VersionID)
			}
		}
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close failed", "error", err)
		}
	}
	app.logger.Info(ctx, "driftguard stopped")
	return nil
}
