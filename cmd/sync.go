package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/taskmirror/internal/formatter"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/server"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/desertthunder/taskmirror/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun starts a manual pass.
//
// Without --wait the pass is queued by the running server, so it is guarded and logged the same
// way as a request from any other client. With --wait it runs here and reports progress.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	id, err := accountArg(cmd)
	if err != nil {
		return err
	}

	if !cmd.Bool("wait") {
		syncID, err := r.startRemote(ctx, cmd.String("server"), id)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(map[string]string{"syncId": syncID}, true)
		}
		return r.writePlain("✓ Sync started: %s\n", syncID)
	}

	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if cmd.Bool("json") {
				continue
			}
			if update.Total > 1 {
				r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
			} else {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	outcome, runErr := a.coordinator.RunNow(ctx, id, models.TriggerManual, progress)
	close(progress)
	<-done

	if outcome == nil {
		return runErr
	}
	if cmd.Bool("json") {
		if err := r.writeJSON(outcome, true); err != nil {
			return err
		}
		return runErr
	}

	data, err := formatter.RunsToText([]models.RunLogEntry{*outcome.Entry}, r.palette)
	if err != nil {
		return err
	}
	r.writePlainln("%s", strings.TrimRight(string(data), "\n"))
	for _, itemErr := range outcome.Errors {
		r.writePlain("  ✗ %s: %s\n", itemErr.Title, itemErr.Error)
	}
	return runErr
}

// startRemote asks the server to start a pass and returns the run id.
func (r *Runner) startRemote(ctx context.Context, base, accountID string) (string, error) {
	if base == "" {
		base = "http://" + r.config.Server.Addr()
	}
	endpoint := strings.TrimRight(base, "/") + "/api/accounts/" + url.PathEscape(accountID) + "/sync"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if key := r.config.Server.APIKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: is 'taskmirror serve' running? %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		var body struct {
			SyncID string `json:"syncId"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		return body.SyncID, nil
	}

	var apiErr server.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return "", fmt.Errorf("%w: %s", remoteError(resp.StatusCode), apiErr.Message)
}

// remoteError maps an API status code back to the sentinel the server derived it from.
func remoteError(status int) error {
	switch status {
	case http.StatusConflict:
		return shared.ErrAlreadyRunning
	case http.StatusNotFound:
		return shared.ErrAccountNotFound
	case http.StatusServiceUnavailable:
		return shared.ErrServiceUnavailable
	case http.StatusPreconditionFailed:
		return shared.ErrNotConfigured
	case http.StatusBadRequest:
		return shared.ErrInvalidInput
	case http.StatusUnauthorized:
		return shared.ErrAuthFailed
	default:
		return shared.ErrAPIRequest
	}
}

// SyncStatus prints the running flag and recent runs.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	id, err := accountArg(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	status, err := a.coordinator.Status(ctx, id)
	if err != nil {
		return err
	}

	if format == formatter.FormatJSON {
		return r.writeJSON(status, true)
	}
	if format == formatter.FormatText {
		running := "no"
		if status.IsRunning {
			running = "yes"
		}
		r.writePlain("Running: %s\n\n", running)
	}

	data, err := formatter.RenderRuns(status.RecentRuns, format, r.palette)
	if err != nil {
		return err
	}
	return r.writeRendered(data, "")
}

// SyncSettings applies the flags that were given and prints the resulting policy.
func (r *Runner) SyncSettings(ctx context.Context, cmd *cli.Command) error {
	id, err := accountArg(cmd)
	if err != nil {
		return err
	}

	var update tasks.PolicyUpdate
	if cmd.IsSet("auto-sync") {
		v := cmd.Bool("auto-sync")
		update.AutoSync = &v
	}
	if cmd.IsSet("interval") {
		v := cmd.Int("interval")
		update.IntervalMinutes = &v
	}

	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	policy, err := a.coordinator.SetPolicy(ctx, id, update)
	if err != nil {
		return err
	}

	auto := "off"
	if policy.AutoSync {
		auto = "on"
	}
	r.writePlain("auto-sync: %s\ninterval:  %d minutes\n", auto, policy.IntervalMinutes)
	if policy.LastSyncAt != nil {
		r.writePlain("last sync: %s\n", policy.LastSyncAt.Format(time.RFC3339))
	}
	return nil
}

// SyncSweep runs the scheduler's eligibility check once and drains the passes it started.
func (r *Runner) SyncSweep(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(true)
	if err != nil {
		return err
	}

	scheduler, err := tasks.NewScheduler(tasks.SchedulerOpts{
		Accounts:               a.accounts,
		Starter:                a.coordinator,
		Schedule:               r.config.Sync.SweepSchedule,
		DefaultIntervalMinutes: r.config.Sync.DefaultIntervalMinutes,
		Logger:                 r.logger,
	})
	if err != nil {
		a.Close(ctx)
		return err
	}

	report, err := scheduler.Sweep(ctx, time.Now().UTC())
	if cerr := a.Close(ctx); cerr != nil {
		r.logger.Error("sweep passes did not finish cleanly", "error", cerr)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}
	return r.writePlain("evaluated: %d  due: %d  dispatched: %d  skipped: %d\n",
		report.Evaluated, report.Due, report.Dispatched, report.Skipped)
}
