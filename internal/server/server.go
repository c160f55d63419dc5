package server

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/desertthunder/taskmirror/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// SyncAPI is the set of sync operations exposed over HTTP. [tasks.Coordinator] implements it.
type SyncAPI interface {
	Start(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, error)
	Status(ctx context.Context, accountID string) (*tasks.SyncStatus, error)
	SetPolicy(ctx context.Context, accountID string, update tasks.PolicyUpdate) (*models.SyncPolicy, error)
	ListMirrorRecords(ctx context.Context, accountID string, page, pageSize int) (*models.MirrorPage, error)
	Stats(ctx context.Context, accountID string) (*models.MirrorStats, error)
}

// Pinger reports database liveness. [*sql.DB] implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ServerOpts contains the dependencies of the HTTP server.
type ServerOpts struct {
	Config shared.ServerConfig
	Sync   SyncAPI
	DB     Pinger
	Logger *log.Logger
}

// NewServer builds an [http.Server] serving the API on the configured address.
func NewServer(opts ServerOpts) *http.Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &http.Server{
		Addr:         opts.Config.Addr(),
		Handler:      NewRouter(NewAPI(opts.Sync, opts.DB, opts.Logger), opts.Config.APIKey, opts.Logger),
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
	}
}
