package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/services"
	"github.com/desertthunder/taskmirror/internal/shared"
	"golang.org/x/oauth2"
)

type itemAction int

const (
	actionErrored itemAction = iota
	actionCreated
	actionUpdated
)

func (a itemAction) symbol() string {
	switch a {
	case actionCreated:
		return "+"
	case actionUpdated:
		return "~"
	default:
		return "✗"
	}
}

// EngineOpts contains the dependencies of a [MirrorEngine].
type EngineOpts struct {
	Accounts    AccountStore
	Mirrors     MirrorStore
	Runs        RunLog
	Credentials services.CredentialProvider
	Source      services.SourceFetcher
	Destination services.DestinationWriter
	ItemWorkers int           // Concurrent item writes per pass (default: 1)
	CallTimeout time.Duration // Deadline for each remote call, zero disables
	// How often a running pass renews its run lease (default: 1 minute).
	// Must stay well below the lease configured on the run log.
	HeartbeatInterval time.Duration
	Logger            *log.Logger
}

// MirrorEngine reconciles one account's Google Tasks into its Notion database.
type MirrorEngine struct {
	accounts    AccountStore
	mirrors     MirrorStore
	runs        RunLog
	credentials services.CredentialProvider
	source      services.SourceFetcher
	destination services.DestinationWriter
	itemWorkers int
	callTimeout time.Duration
	heartbeat   time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// NewMirrorEngine creates an engine, failing when a dependency is missing.
func NewMirrorEngine(opts EngineOpts) (*MirrorEngine, error) {
	if opts.Accounts == nil || opts.Mirrors == nil || opts.Runs == nil {
		return nil, fmt.Errorf("%w: engine stores not initialized", shared.ErrServiceUnavailable)
	}
	if opts.Credentials == nil || opts.Source == nil || opts.Destination == nil {
		return nil, fmt.Errorf("%w: engine services not initialized", shared.ErrServiceUnavailable)
	}
	if opts.ItemWorkers <= 0 {
		opts.ItemWorkers = 1
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &MirrorEngine{
		accounts:    opts.Accounts,
		mirrors:     opts.Mirrors,
		runs:        opts.Runs,
		credentials: opts.Credentials,
		source:      opts.Source,
		destination: opts.Destination,
		itemWorkers: opts.ItemWorkers,
		callTimeout: opts.CallTimeout,
		heartbeat:   opts.HeartbeatInterval,
		logger:      opts.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run performs one pass for the account of an admitted, started entry and closes the entry.
//
// The entry is completed when every item was attempted, even if some failed, and failed when the
// pass aborted before items could be processed. The returned error is the top-level failure.
func (e *MirrorEngine) Run(ctx context.Context, entry *models.RunLogEntry, progress chan<- ProgressUpdate) (*RunOutcome, error) {
	if entry == nil || entry.Status != models.RunStarted {
		return nil, fmt.Errorf("%w: pass requires a started run log entry", shared.ErrInvalidInput)
	}

	logger := shared.WithLogger(e.logger, "account", entry.AccountID, "run", entry.ID)
	logger.Info("sync started", "trigger", entry.Trigger)

	outcome := &RunOutcome{Entry: entry}
	runErr := e.reconcile(ctx, logger, entry, outcome, progress)

	// The entry must be closed even when ctx was cancelled mid-pass.
	closeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		logger.Error("sync failed", "error", runErr)
		if err := e.runs.Fail(closeCtx, entry, runErr.Error()); err != nil {
			return outcome, errors.Join(runErr, fmt.Errorf("failed to record run failure: %w", err))
		}
		sendProgress(progress, finishRunUpdate(entry))
		return outcome, runErr
	}

	if err := e.runs.Complete(closeCtx, entry); err != nil {
		return outcome, fmt.Errorf("failed to complete run log entry: %w", err)
	}

	c := entry.Counters
	logger.Info("sync completed",
		"processed", c.Seen, "created", c.Created, "updated", c.Updated, "errors", c.Errored,
		"duration", entry.Duration)
	sendProgress(progress, finishRunUpdate(entry))
	return outcome, nil
}

// reconcile runs the pass steps. A returned error aborts the pass.
func (e *MirrorEngine) reconcile(
	ctx context.Context,
	logger *log.Logger,
	entry *models.RunLogEntry,
	outcome *RunOutcome,
	progress chan<- ProgressUpdate,
) error {
	sendProgress(progress, loadAccountUpdate(entry.AccountID))
	account, err := e.accounts.Get(ctx, entry.AccountID)
	if err != nil {
		return err
	}
	if !account.Destination.Ready() {
		return fmt.Errorf("%w: Notion database is not set up for %s", shared.ErrNotConfigured, account.Email)
	}

	sendProgress(progress, refreshCredentialsUpdate(account.Email))
	token, err := callWithTimeout(ctx, e.callTimeout, func(ctx context.Context) (*oauth2.Token, error) {
		return e.credentials.EnsureValid(ctx, account)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	sendProgress(progress, fetchItemsUpdate())
	items, err := callWithTimeout(ctx, e.callTimeout, func(ctx context.Context) ([]models.SourceItem, error) {
		return e.source.ListAllItems(ctx, account, token)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrFetchFailed, err)
	}
	entry.Counters.Seen = len(items)
	sendProgress(progress, fetchedItemsUpdate(len(items)))
	logger.Debug("fetched source items", "count", len(items))

	if err := e.renewLease(ctx, logger, entry); err != nil {
		return fmt.Errorf("run lease lost after fetch: %w", err)
	}
	if err := e.mirrorItems(ctx, logger, account, entry, outcome, items, progress); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sync interrupted: %w", err)
	}

	if err := e.accounts.TouchLastSync(ctx, account.ID, e.now()); err != nil {
		logger.Warn("failed to record last sync time", "error", err)
	}
	return nil
}

type itemJob struct {
	index int
	item  models.SourceItem
}

type itemResult struct {
	item   models.SourceItem
	action itemAction
	err    error
}

// mirrorItems writes every item through a bounded worker pool and renews the run lease as results arrive.
//
// Item failures never stop the pass. Losing the lease does: another pass may already own the account.
func (e *MirrorEngine) mirrorItems(
	ctx context.Context,
	logger *log.Logger,
	account *models.Account,
	entry *models.RunLogEntry,
	outcome *RunOutcome,
	items []models.SourceItem,
	progress chan<- ProgressUpdate,
) error {
	if len(items) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan itemJob, len(items))
	results := make(chan itemResult, len(items))

	workers := min(e.itemWorkers, len(items))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				action, err := e.mirrorItem(ctx, account, job.item)
				results <- itemResult{item: job.item, action: action, err: err}
			}
		}()
	}

	for i, item := range items {
		jobs <- itemJob{index: i, item: item}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var leaseErr error
	lastBeat := e.now()
	step := 0
	for res := range results {
		step++
		switch res.action {
		case actionCreated:
			entry.Counters.Created++
		case actionUpdated:
			entry.Counters.Updated++
		default:
			entry.Counters.Errored++
			outcome.Errors = append(outcome.Errors, ItemError{ItemID: res.item.ID, Title: res.item.Title, Error: res.err.Error()})
			logger.Warn("failed to mirror task", "task", res.item.ID, "error", res.err)
		}
		sendProgress(progress, mirrorItemUpdate(step, len(items), res.item, res.action, res.err))

		if now := e.now(); leaseErr == nil && now.Sub(lastBeat) >= e.heartbeat {
			lastBeat = now
			if err := e.renewLease(ctx, logger, entry); err != nil {
				leaseErr = fmt.Errorf("run lease lost after %d of %d items: %w", step, len(items), err)
				cancel()
			}
		}
	}
	return leaseErr
}

// renewLease extends the entry's lease. Only a closed entry is reported; other failures are retried
// at the next renewal.
func (e *MirrorEngine) renewLease(ctx context.Context, logger *log.Logger, entry *models.RunLogEntry) error {
	err := e.runs.Heartbeat(ctx, entry)
	if err == nil || errors.Is(err, shared.ErrRunLogTerminal) {
		return err
	}
	logger.Warn("failed to renew run lease", "error", err)
	return nil
}

// mirrorItem creates or updates the destination page for item and records the result.
func (e *MirrorEngine) mirrorItem(ctx context.Context, account *models.Account, item models.SourceItem) (itemAction, error) {
	item = item.Normalized()
	rec := models.NewMirrorRecord(account.ID, item, e.now())

	existing, err := e.mirrors.Get(ctx, account.ID, item.ID)
	if err != nil && !errors.Is(err, shared.ErrRecordNotFound) {
		return actionErrored, e.recordFailure(ctx, rec, fmt.Errorf("failed to look up mirror record: %w", err))
	}

	action := actionCreated
	var result *models.WriteResult
	if existing != nil && existing.DestinationID != "" {
		action = actionUpdated
		result, err = callWithTimeout(ctx, e.callTimeout, func(ctx context.Context) (*models.WriteResult, error) {
			return e.destination.Update(ctx, account, existing.DestinationID, item)
		})
	} else {
		result, err = callWithTimeout(ctx, e.callTimeout, func(ctx context.Context) (*models.WriteResult, error) {
			return e.destination.Create(ctx, account, item)
		})
	}
	if err != nil {
		return actionErrored, e.recordFailure(ctx, rec, fmt.Errorf("%w: %w", shared.ErrWriteFailed, err))
	}

	rec.DestinationID = result.ID
	if rec.DestinationID == "" && existing != nil {
		rec.DestinationID = existing.DestinationID
	}
	rec.DestinationPayload = result.Payload
	rec.Outcome = models.OutcomeSuccess

	if err := e.mirrors.Upsert(ctx, rec); err != nil {
		// The page exists remotely, so its id must survive for the next pass to update it.
		return actionErrored, e.recordFailure(ctx, rec, fmt.Errorf("failed to save mirror record: %w", err))
	}
	return action, nil
}

// recordFailure stores cause on the item's mirror record. An empty destination id keeps the stored one.
func (e *MirrorEngine) recordFailure(ctx context.Context, rec *models.MirrorRecord, cause error) error {
	rec.Outcome = models.OutcomeError
	rec.ErrorMessage = cause.Error()

	if err := e.mirrors.Upsert(context.WithoutCancel(ctx), rec); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to record item error: %w", err))
	}
	return cause
}
