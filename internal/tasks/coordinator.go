package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/services"
	"github.com/desertthunder/taskmirror/internal/shared"
)

const (
	DefaultPageSize   = 20
	MaxPageSize       = 100
	DefaultRecentRuns = 10
)

// PassRunner performs one pass for an admitted entry. [MirrorEngine] implements it.
type PassRunner interface {
	Run(ctx context.Context, entry *models.RunLogEntry, progress chan<- ProgressUpdate) (*RunOutcome, error)
}

// SyncStatus is the current state and recent history of an account.
type SyncStatus struct {
	IsRunning  bool                 `json:"isRunning"`
	RecentRuns []models.RunLogEntry `json:"recentSyncs"`
}

// PolicyUpdate changes an account's sync policy. Nil fields keep their current value.
type PolicyUpdate struct {
	AutoSync        *bool `json:"autoSync,omitempty"`
	IntervalMinutes *int  `json:"syncInterval,omitempty"`
}

// CoordinatorOpts contains the dependencies of a [Coordinator].
type CoordinatorOpts struct {
	Accounts   AccountStore
	Mirrors    MirrorStore
	Runs       RunLog
	Engine     PassRunner
	Dispatcher *Dispatcher
	Validator  DestinationValidator
	RecentRuns int
	Logger     *log.Logger
}

// Coordinator is the caller boundary shared by the HTTP API, the CLI and the scheduler.
type Coordinator struct {
	accounts   AccountStore
	mirrors    MirrorStore
	runs       RunLog
	engine     PassRunner
	dispatcher *Dispatcher
	validator  DestinationValidator
	recentRuns int
	logger     *log.Logger
}

// NewCoordinator creates a coordinator. Dispatcher and Validator may be nil for callers that
// only run passes in the foreground or never change destinations.
func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if opts.Accounts == nil || opts.Mirrors == nil || opts.Runs == nil || opts.Engine == nil {
		return nil, fmt.Errorf("%w: coordinator dependencies not initialized", shared.ErrServiceUnavailable)
	}
	if opts.RecentRuns <= 0 {
		opts.RecentRuns = DefaultRecentRuns
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Coordinator{
		accounts:   opts.Accounts,
		mirrors:    opts.Mirrors,
		runs:       opts.Runs,
		engine:     opts.Engine,
		dispatcher: opts.Dispatcher,
		validator:  opts.Validator,
		recentRuns: opts.RecentRuns,
		logger:     opts.Logger,
	}, nil
}

// TryAdmit opens a started entry for the account if none is in progress.
// A denial returns ok=false with a nil error.
func (c *Coordinator) TryAdmit(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, bool, error) {
	entry, err := c.runs.Open(ctx, accountID, trigger)
	if errors.Is(err, shared.ErrAlreadyRunning) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Start admits a pass and hands it to the dispatcher. It returns once the pass is queued.
func (c *Coordinator) Start(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, error) {
	if c.dispatcher == nil {
		return nil, fmt.Errorf("%w: background sync is not running", shared.ErrServiceUnavailable)
	}

	entry, err := c.admit(ctx, accountID, trigger)
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(c.logger, "account", accountID, "run", entry.ID)
	err = c.dispatcher.Submit(func(ctx context.Context) {
		if _, err := c.engine.Run(ctx, entry, nil); err != nil {
			logger.Debug("background sync finished with error", "error", err)
		}
	})
	if err != nil {
		if ferr := c.runs.Fail(context.WithoutCancel(ctx), entry, "sync not started: "+err.Error()); ferr != nil {
			logger.Error("failed to release rejected run", "error", ferr)
		}
		return nil, err
	}

	logger.Debug("sync queued", "trigger", trigger)
	return entry, nil
}

// RunNow admits a pass and runs it in the caller's goroutine.
func (c *Coordinator) RunNow(ctx context.Context, accountID string, trigger models.TriggerKind, progress chan<- ProgressUpdate) (*RunOutcome, error) {
	entry, err := c.admit(ctx, accountID, trigger)
	if err != nil {
		return nil, err
	}
	return c.engine.Run(ctx, entry, progress)
}

func (c *Coordinator) admit(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, error) {
	if !trigger.Valid() {
		return nil, fmt.Errorf("%w: unknown trigger %q", shared.ErrInvalidInput, trigger)
	}
	if _, err := c.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}

	entry, ok, err := c.TryAdmit(ctx, accountID, trigger)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: account %s", shared.ErrAlreadyRunning, accountID)
	}
	return entry, nil
}

// Status reports whether a pass is in progress and the most recent runs, newest first.
func (c *Coordinator) Status(ctx context.Context, accountID string) (*SyncStatus, error) {
	if _, err := c.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}

	running, err := c.runs.IsRunning(ctx, accountID)
	if err != nil {
		return nil, err
	}
	recent, err := c.runs.Recent(ctx, accountID, c.recentRuns)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []models.RunLogEntry{}
	}
	return &SyncStatus{IsRunning: running, RecentRuns: recent}, nil
}

// SetPolicy applies update to the account's policy and returns the stored result.
func (c *Coordinator) SetPolicy(ctx context.Context, accountID string, update PolicyUpdate) (*models.SyncPolicy, error) {
	account, err := c.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	policy := account.Policy
	if update.AutoSync != nil {
		policy.AutoSync = *update.AutoSync
	}
	if update.IntervalMinutes != nil {
		policy.IntervalMinutes = *update.IntervalMinutes
	}
	if err := models.ValidateInterval(policy.IntervalMinutes); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	if err := c.accounts.UpdatePolicy(ctx, accountID, policy.AutoSync, policy.IntervalMinutes); err != nil {
		return nil, err
	}

	c.logger.Info("sync settings updated", "account", accountID, "auto_sync", policy.AutoSync, "interval", policy.IntervalMinutes)
	return &policy, nil
}

// ListMirrorRecords returns one page of the account's records, most recently synced first.
// Page defaults to 1 and pageSize to [DefaultPageSize], capped at [MaxPageSize].
func (c *Coordinator) ListMirrorRecords(ctx context.Context, accountID string, page, pageSize int) (*models.MirrorPage, error) {
	if _, err := c.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	return c.mirrors.List(ctx, accountID, page, pageSize)
}

// Stats aggregates the account's records by source status and outcome.
func (c *Coordinator) Stats(ctx context.Context, accountID string) (*models.MirrorStats, error) {
	if _, err := c.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return c.mirrors.Stats(ctx, accountID)
}

// ConfigureDestination validates the Notion database and stores it as the account's destination.
func (c *Coordinator) ConfigureDestination(ctx context.Context, accountID, token, databaseID string) (*services.DatabaseInfo, error) {
	if _, err := c.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	if c.validator == nil {
		return nil, fmt.Errorf("%w: destination validation", shared.ErrServiceUnavailable)
	}

	info, err := c.validator.ValidateDatabase(ctx, token, databaseID)
	if err != nil {
		return nil, err
	}

	dest := models.DestinationConfig{APIToken: token, DatabaseID: databaseID, Configured: true}
	if err := c.accounts.SetDestination(ctx, accountID, dest); err != nil {
		return nil, err
	}

	c.logger.Info("destination configured", "account", accountID, "database", info.Title)
	return info, nil
}

// ExpireStale closes started entries whose lease has run out or that were last seen before the given time.
//
// A process calls it at boot with its start time, since no pass from an earlier process can still be running.
func (c *Coordinator) ExpireStale(ctx context.Context, before time.Time) (int, error) {
	return c.runs.ExpireStale(ctx, before)
}
