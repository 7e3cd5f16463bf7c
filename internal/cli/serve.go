package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fernandezvara/grantkit"
	"github.com/fernandezvara/grantkit/httpapi"
	"github.com/fernandezvara/grantkit/internal/sweep"
)

// sweepLockTTL outlives the sweeper's own per-run timeout.
const sweepLockTTL = 2 * time.Minute

func newServeCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			return serve(ctx, rt, skipMigrate)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations on startup")
	return cmd
}

func serve(ctx context.Context, rt *runtime, skipMigrate bool) error {
	cfg, logger := rt.cfg, rt.logger

	if !skipMigrate {
		if err := rt.migrate(ctx); err != nil {
			return err
		}
	}
	if cfg.SeedSystemRoles {
		if _, err := rt.service.EnsureRoles(systemContext(ctx), grantkit.DefaultRoleSet()); err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}
	}
	if n, err := rt.directory.CountPrincipals(ctx, true); err == nil {
		logger.Info("principal directory loaded", "active", n)
	}

	var lock *sweep.Lock
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		lock = sweep.NewLock(client, sweep.DefaultLockKey, sweepLockTTL)
	}
	sweeper := sweep.NewSweeper(rt.service, lock, logger)
	if cfg.LapseSchedule != "" {
		if err := sweeper.Start(cfg.LapseSchedule); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(httpapi.NewHandler(logger, rt.service), cfg.RequestTimeout),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down grantd")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGrace)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("grantd listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
