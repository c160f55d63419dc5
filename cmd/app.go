package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/repositories"
	"github.com/desertthunder/taskmirror/internal/services"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/desertthunder/taskmirror/internal/tasks"
	"golang.org/x/oauth2"
)

// app is the wired object graph shared by the commands that touch the database.
type app struct {
	db          *sql.DB
	accounts    *repositories.AccountRepository
	mirrors     *repositories.MirrorRepository
	runs        *repositories.RunLogRepository
	notion      *services.NotionService
	engine      *tasks.MirrorEngine
	dispatcher  *tasks.Dispatcher // nil unless opened with background workers
	coordinator *tasks.Coordinator
}

// unconfiguredSource stands in for the Google client when its credentials are missing,
// so read-only commands still work and passes fail with the configuration error.
type unconfiguredSource struct{ err error }

func (u unconfiguredSource) EnsureValid(context.Context, *models.Account) (*oauth2.Token, error) {
	return nil, u.err
}

func (u unconfiguredSource) ListAllItems(context.Context, *models.Account, *oauth2.Token) ([]models.SourceItem, error) {
	return nil, u.err
}

// open connects to the database and builds repositories, clients, engine and coordinator.
// With background set, a dispatcher is started and must be stopped through [app.Close].
func (r *Runner) open(background bool) (*app, error) {
	cfg := r.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	a := &app{
		db:       db,
		accounts: repositories.NewAccountRepository(db),
		mirrors:  repositories.NewMirrorRepository(db),
		runs:     repositories.NewRunLogRepository(db, cfg.Sync.RunLease),
	}

	a.notion = services.NewNotionService(services.NotionOpts{
		Config:     cfg.Notion,
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})

	var (
		credentials services.CredentialProvider
		source      services.SourceFetcher
	)
	google, err := r.googleClient(a.accounts)
	if err != nil {
		r.logger.Warn("google client unavailable, sync passes will fail", "error", err)
		stub := unconfiguredSource{err: err}
		credentials, source = stub, stub
	} else {
		credentials, source = google, google
	}

	a.engine, err = tasks.NewMirrorEngine(tasks.EngineOpts{
		Accounts:          a.accounts,
		Mirrors:           a.mirrors,
		Runs:              a.runs,
		Credentials:       credentials,
		Source:            source,
		Destination:       a.notion,
		ItemWorkers:       cfg.Sync.ItemWorkers,
		CallTimeout:       cfg.Sync.CallTimeout,
		HeartbeatInterval: cfg.Sync.RunLease / 4,
		Logger:            r.logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if background {
		a.dispatcher = tasks.NewDispatcher(cfg.Sync.Workers, cfg.Sync.QueueSize, r.logger)
	}

	a.coordinator, err = tasks.NewCoordinator(tasks.CoordinatorOpts{
		Accounts:   a.accounts,
		Mirrors:    a.mirrors,
		Runs:       a.runs,
		Engine:     a.engine,
		Dispatcher: a.dispatcher,
		Validator:  a.notion,
		RecentRuns: cfg.Sync.RecentRuns,
		Logger:     r.logger,
	})
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	return a, nil
}

// googleClient builds the Google Tasks client. A nil store leaves refreshed tokens unsaved.
func (r *Runner) googleClient(store services.CredentialStore) (*services.GoogleTasksService, error) {
	return services.NewGoogleTasksService(services.GoogleOpts{
		Config:     r.config.Google,
		Store:      store,
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})
}

// Close drains the dispatcher, if any, and closes the database.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain sync queue: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}
