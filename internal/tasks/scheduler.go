package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 5m"

// Starter admits and dispatches a pass. [Coordinator] implements it.
type Starter interface {
	Start(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, error)
}

// SweepReport summarizes one scheduler sweep.
type SweepReport struct {
	Evaluated  int `json:"evaluated"`
	Due        int `json:"due"`
	Dispatched int `json:"dispatched"`
	Skipped    int `json:"skipped"`
}

// SchedulerOpts contains configuration for a [Scheduler].
type SchedulerOpts struct {
	Accounts               AccountStore
	Starter                Starter
	Schedule               string // cron spec (default: every 5 minutes)
	DefaultIntervalMinutes int
	Logger                 *log.Logger
}

// Scheduler periodically starts automatic passes for accounts whose interval has elapsed.
type Scheduler struct {
	cron            *cron.Cron
	accounts        AccountStore
	starter         Starter
	schedule        string
	defaultInterval int
	logger          *log.Logger
	now             func() time.Time
}

// NewScheduler creates a scheduler. Call [Scheduler.Start] to begin sweeping.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.Accounts == nil || opts.Starter == nil {
		return nil, fmt.Errorf("%w: scheduler dependencies not initialized", shared.ErrServiceUnavailable)
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSweepSchedule
	}
	if opts.DefaultIntervalMinutes <= 0 {
		opts.DefaultIntervalMinutes = models.DefaultIntervalMinutes
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Scheduler{
		cron:            cron.New(),
		accounts:        opts.Accounts,
		starter:         opts.Starter,
		schedule:        opts.Schedule,
		defaultInterval: opts.DefaultIntervalMinutes,
		logger:          opts.Logger,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start registers the sweep job and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("%w: invalid sweep schedule %q: %v", shared.ErrInvalidConfig, s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron runner and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	report, err := s.Sweep(context.Background(), s.now())
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if report.Due > 0 {
		s.logger.Info("sweep finished", "evaluated", report.Evaluated, "due", report.Due,
			"dispatched", report.Dispatched, "skipped", report.Skipped)
	}
}

// Sweep starts an automatic pass for every eligible account that is due at now.
//
// Per-account errors are logged and counted as skipped. Only a failure to list accounts is returned.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	accounts, err := s.accounts.ListAutoSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-sync accounts: %w", err)
	}

	report := &SweepReport{}
	for _, account := range accounts {
		if !account.AutoSyncEligible() {
			continue
		}
		report.Evaluated++
		if !IsDue(account.Policy, now, s.defaultInterval) {
			continue
		}
		report.Due++

		if _, err := s.starter.Start(ctx, account.ID, models.TriggerAutomatic); err != nil {
			report.Skipped++
			if errors.Is(err, shared.ErrAlreadyRunning) {
				s.logger.Debug("sync already running", "account", account.ID)
			} else {
				s.logger.Warn("failed to start scheduled sync", "account", account.ID, "error", err)
			}
			continue
		}
		report.Dispatched++
	}
	return report, nil
}

// IsDue reports whether a policy's interval has elapsed at now. An account that never synced is due.
func IsDue(policy models.SyncPolicy, now time.Time, defaultIntervalMinutes int) bool {
	if policy.LastSyncAt == nil {
		return true
	}
	return now.Sub(*policy.LastSyncAt) >= policy.Interval(defaultIntervalMinutes)
}
