package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/services"
	"github.com/desertthunder/taskmirror/internal/shared"
)

// AccountStore is the account persistence used by the engine, coordinator and scheduler.
type AccountStore interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	ListAutoSync(ctx context.Context) ([]*models.Account, error)
	TouchLastSync(ctx context.Context, id string, at time.Time) error
	UpdatePolicy(ctx context.Context, id string, autoSync bool, intervalMinutes int) error
	SetDestination(ctx context.Context, id string, dest models.DestinationConfig) error
}

// MirrorStore is the mirror record persistence.
type MirrorStore interface {
	Get(ctx context.Context, accountID, sourceItemID string) (*models.MirrorRecord, error)
	Upsert(ctx context.Context, rec *models.MirrorRecord) error
	List(ctx context.Context, accountID string, page, size int) (*models.MirrorPage, error)
	Stats(ctx context.Context, accountID string) (*models.MirrorStats, error)
}

// RunLog is the run history and admission guard.
type RunLog interface {
	Open(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, error)
	Complete(ctx context.Context, entry *models.RunLogEntry) error
	Fail(ctx context.Context, entry *models.RunLogEntry, message string) error
	Heartbeat(ctx context.Context, entry *models.RunLogEntry) error
	Recent(ctx context.Context, accountID string, limit int) ([]models.RunLogEntry, error)
	IsRunning(ctx context.Context, accountID string) (bool, error)
	ExpireStale(ctx context.Context, before time.Time) (int, error)
}

// DestinationValidator checks destination settings before they are stored.
type DestinationValidator interface {
	ValidateDatabase(ctx context.Context, token, databaseID string) (*services.DatabaseInfo, error)
}

// RunOutcome is the result of one pass.
type RunOutcome struct {
	Entry  *models.RunLogEntry `json:"sync"`
	Errors []ItemError         `json:"errors,omitempty"`
}

// ItemError describes one item that failed during a pass.
type ItemError struct {
	ItemID string `json:"googleTaskId"`
	Title  string `json:"taskTitle"`
	Error  string `json:"error"`
}

// callWithTimeout runs fn under a per-call deadline. A deadline hit wraps [shared.ErrTimeout].
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w after %s: %w", shared.ErrTimeout, timeout, err)
	}
	return v, err
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
