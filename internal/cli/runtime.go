package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fernandezvara/dbkit"

	"github.com/fernandezvara/grantkit"
	"github.com/fernandezvara/grantkit/internal/app"
)

// runtime bundles what every subcommand needs.
type runtime struct {
	cfg       *app.Config
	logger    *slog.Logger
	db        *dbkit.DBKit
	store     *grantkit.BunStore
	directory *grantkit.BunDirectory
	service   *grantkit.Service
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	db, err := dbkit.New(dbkit.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := grantkit.NewBunStore(db)
	if err := store.ConfigurePool(grantkit.PoolConfig{
		MaxOpenConnections:    cfg.MaxOpenConns,
		MaxIdleConnections:    cfg.MaxIdleConns,
		ConnectionMaxLifetime: cfg.ConnMaxLifetime,
		ConnectionMaxIdleTime: cfg.ConnMaxIdleTime,
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	directory := grantkit.NewBunDirectory(db)

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		store:     store,
		directory: directory,
		service:   grantkit.NewService(store, directory, grantkit.WithLogger(logger)),
	}, nil
}

func (rt *runtime) Close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close database", "error", err)
	}
}

// migrate applies pending migrations and logs what ran.
func (rt *runtime) migrate(ctx context.Context) error {
	applied, err := rt.store.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	rt.logger.Info("migrations applied", "count", len(applied), "ids", applied)
	return nil
}

// systemContext marks mutations made by the daemon itself.
func systemContext(ctx context.Context) context.Context {
	return grantkit.WithActorID(ctx, grantkit.SystemActor)
}
