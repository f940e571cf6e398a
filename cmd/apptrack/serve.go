package main

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

	"github.com/garnizeh/apptrack/api"
	"github.com/garnizeh/apptrack/internal/app"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var withWorker, withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API server.

Reminder delivery needs a worker and a scheduler. Run them in this process
with --with-worker and --with-scheduler, or separately with the worker and
scheduler commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), withWorker, withScheduler)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "run the job worker pool in this process")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "run the periodic job scheduler in this process")
	return cmd
}

func runServe(parent context.Context, withWorker, withScheduler bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.Config
	a.Logger.Info("starting apptrack", "version", version, "build_time", buildTime)

	deps, closeDeps := apiDeps(a)
	defer closeDeps()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.SetupRoutes(cfg, version, buildTime, deps),
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	if withWorker {
		pool := a.WorkerPool()
		pool.Start(ctx)
		defer pool.Stop()
	}
	if withScheduler {
		sched := a.Scheduler()
		sched.Start(ctx)
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.Logger.Info("shutting down server")

	// Give outstanding requests time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.Logger.Info("server exited")
	return nil
}

// apiDeps builds the handler dependencies. A Redis client is opened for the
// rate limiter when one is configured.
func apiDeps(a *app.App) (api.Deps, func()) {
	deps := api.Deps{
		DB:            a.DB.GetConn(),
		Users:         a.Repo,
		Jobs:          a.Repo,
		Applications:  a.Applications,
		Reminders:     a.Reminders,
		Attachments:   a.Attachments,
		Notifications: a.Notifications,
	}
	rl := a.Config.RateLimit
	if rl.RedisAddr == "" {
		return deps, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rl.RedisAddr,
		Password: rl.RedisPassword,
		DB:       rl.RedisDB,
	})
	deps.Limiter = api.NewRedisLimiter(client, "apptrack:ratelimit:")
	return deps, func() {
		if err := client.Close(); err != nil {
			a.Logger.Warn("close redis client", "err", err)
		}
	}
}
