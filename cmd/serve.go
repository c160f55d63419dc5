package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/taskmirror/internal/server"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/desertthunder/taskmirror/internal/tasks"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

// Serve migrates the database, closes runs left over from a previous process,
// starts the scheduler and serves the API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	bootedAt := time.Now().UTC()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = port
	}

	a, err := r.open(true)
	if err != nil {
		return err
	}

	if err := shared.RunMigrations(a.db); err != nil {
		a.Close(ctx)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if n, err := a.coordinator.ExpireStale(ctx, bootedAt); err != nil {
		r.logger.Warn("failed to expire stale runs", "error", err)
	} else if n > 0 {
		r.logger.Info("expired stale runs", "count", n)
	}

	var scheduler *tasks.Scheduler
	if !cmd.Bool("no-scheduler") {
		scheduler, err = tasks.NewScheduler(tasks.SchedulerOpts{
			Accounts:               a.accounts,
			Starter:                a.coordinator,
			Schedule:               r.config.Sync.SweepSchedule,
			DefaultIntervalMinutes: r.config.Sync.DefaultIntervalMinutes,
			Logger:                 r.logger,
		})
		if err == nil {
			err = scheduler.Start()
		}
		if err != nil {
			a.Close(ctx)
			return err
		}
	}

	srv := server.NewServer(server.ServerOpts{
		Config: r.config.Server,
		Sync:   a.coordinator,
		DB:     a.db,
		Logger: r.logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		r.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutting down")
	case err = <-serveErr:
		if err != nil {
			r.logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		r.logger.Error("server shutdown failed", "error", serr)
	}
	if cerr := a.Close(shutdownCtx); cerr != nil {
		r.logger.Error("shutdown incomplete", "error", cerr)
	}

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	r.logger.Info("server stopped")
	return nil
}
