package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
)

const runLogColumns = `
	id, account_id, trigger_kind, status, items_seen, items_created, items_updated, items_errored,
	duration_ms, error_message, started_at, finished_at
`

// LeaseExpiredMessage is written to entries closed because their pass stopped renewing its lease.
const LeaseExpiredMessage = "run lease expired before the pass finished"

// RunLogRepository persists [models.RunLogEntry] rows and enforces one started entry per account.
type RunLogRepository struct {
	db    *sql.DB
	lease time.Duration
	now   func() time.Time
}

// NewRunLogRepository creates a new [RunLogRepository].
//
// A started entry older than lease no longer blocks new passes for its account.
func NewRunLogRepository(db *sql.DB, lease time.Duration) *RunLogRepository {
	return &RunLogRepository{db: db, lease: lease, now: func() time.Time { return time.Now().UTC() }}
}

// Open atomically admits a pass for accountID and records it as started.
//
// Returns [shared.ErrAlreadyRunning] when the account already has a live started entry.
// A started entry past its lease is closed as failed first.
func (r *RunLogRepository) Open(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, error) {
	entry := &models.RunLogEntry{
		ID:        shared.GenerateID(),
		AccountID: accountID,
		Trigger:   trigger,
		Status:    models.RunStarted,
		StartedAt: r.now(),
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		runningID string
		startedAt time.Time
		beatAt    sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, started_at, heartbeat_at FROM run_logs WHERE account_id = ? AND status = ?`,
		accountID, string(models.RunStarted),
	).Scan(&runningID, &startedAt, &beatAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to check running entry: %w", err)
	case r.expired(lastSeen(startedAt, beatAt), entry.StartedAt):
		if err := expireTx(ctx, tx, runningID, startedAt, entry.StartedAt); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: account %s (run %s)", shared.ErrAlreadyRunning, accountID, runningID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_logs (id, account_id, trigger_kind, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.AccountID, string(entry.Trigger), string(entry.Status), entry.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: account %s", shared.ErrAlreadyRunning, accountID)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to insert run log entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: account %s", shared.ErrAlreadyRunning, accountID)
		}
		return nil, fmt.Errorf("failed to commit run log entry: %w", err)
	}
	return entry, nil
}

// Complete closes a started entry as completed with its final counters.
func (r *RunLogRepository) Complete(ctx context.Context, entry *models.RunLogEntry) error {
	return r.finish(ctx, entry, models.RunCompleted, "")
}

// Fail closes a started entry as failed with the top-level error message.
func (r *RunLogRepository) Fail(ctx context.Context, entry *models.RunLogEntry, message string) error {
	if message == "" {
		message = "sync failed"
	}
	return r.finish(ctx, entry, models.RunFailed, message)
}

// finish performs the single terminal transition. Terminal rows never match the WHERE clause.
func (r *RunLogRepository) finish(ctx context.Context, entry *models.RunLogEntry, status models.RunStatus, message string) error {
	if !entry.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s is %s", shared.ErrRunLogTerminal, entry.ID, entry.Status)
	}

	finishedAt := r.now()
	duration := finishedAt.Sub(entry.StartedAt)
	if duration < 0 {
		duration = 0
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE run_logs
		SET status = ?, items_seen = ?, items_created = ?, items_updated = ?, items_errored = ?,
			duration_ms = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`, string(status), entry.Counters.Seen, entry.Counters.Created, entry.Counters.Updated, entry.Counters.Errored,
		duration.Milliseconds(), nullString(message), finishedAt, entry.ID, string(models.RunStarted))
	if err != nil {
		return fmt.Errorf("failed to close run log entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunLogTerminal, entry.ID)
	}

	entry.Status = status
	entry.ErrorMessage = message
	entry.Duration = duration
	entry.FinishedAt = &finishedAt
	return nil
}

// Heartbeat renews the lease of a started entry.
//
// Returns [shared.ErrRunLogTerminal] when the entry was already closed, for example by lease expiry.
func (r *RunLogRepository) Heartbeat(ctx context.Context, entry *models.RunLogEntry) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE run_logs SET heartbeat_at = ? WHERE id = ? AND status = ?`,
		r.now(), entry.ID, string(models.RunStarted),
	)
	if err != nil {
		return fmt.Errorf("failed to renew run lease: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunLogTerminal, entry.ID)
	}
	return nil
}

// Get retrieves a single entry by ID.
func (r *RunLogRepository) Get(ctx context.Context, id string) (*models.RunLogEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runLogColumns+` FROM run_logs WHERE id = ?`, id)
	entry, err := scanRunLogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run log entry not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run log entry: %w", err)
	}
	return entry, nil
}

// Recent returns up to limit entries for an account, most recent first.
func (r *RunLogRepository) Recent(ctx context.Context, accountID string, limit int) ([]models.RunLogEntry, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runLogColumns+`
		FROM run_logs
		WHERE account_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run log entries: %w", err)
	}
	defer rows.Close()

	entries := []models.RunLogEntry{}
	for rows.Next() {
		entry, err := scanRunLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// IsRunning reports whether the account has a started entry within its lease.
func (r *RunLogRepository) IsRunning(ctx context.Context, accountID string) (bool, error) {
	var (
		startedAt time.Time
		beatAt    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT started_at, heartbeat_at FROM run_logs WHERE account_id = ? AND status = ?`,
		accountID, string(models.RunStarted),
	).Scan(&startedAt, &beatAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check running entry: %w", err)
	}
	return !r.expired(lastSeen(startedAt, beatAt), r.now()), nil
}

// ExpireStale closes started entries as failed and returns how many were closed.
//
// An entry is stale when its lease ran out, or when it was last seen before the given time.
// A zero before applies the lease only.
func (r *RunLogRepository) ExpireStale(ctx context.Context, before time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, started_at, heartbeat_at FROM run_logs WHERE status = ?`, string(models.RunStarted))
	if err != nil {
		return 0, fmt.Errorf("failed to query started entries: %w", err)
	}

	type started struct {
		id string
		at time.Time
	}
	var stale []started
	now := r.now()
	for rows.Next() {
		var (
			s      started
			beatAt sql.NullTime
		)
		if err := rows.Scan(&s.id, &s.at, &beatAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan started entry: %w", err)
		}
		seen := lastSeen(s.at, beatAt)
		if r.expired(seen, now) || seen.Before(before) {
			stale = append(stale, s)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	for _, s := range stale {
		if err := expireTx(ctx, tx, s.id, s.at, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expired entries: %w", err)
	}
	return len(stale), nil
}

func (r *RunLogRepository) expired(seen, now time.Time) bool {
	return r.lease > 0 && now.Sub(seen) >= r.lease
}

// lastSeen is the latest of an entry's start and its last heartbeat.
func lastSeen(startedAt time.Time, beatAt sql.NullTime) time.Time {
	if beatAt.Valid && beatAt.Time.After(startedAt) {
		return beatAt.Time
	}
	return startedAt
}

func expireTx(ctx context.Context, tx *sql.Tx, id string, startedAt, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE run_logs
		SET status = ?, error_message = ?, duration_ms = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`, string(models.RunFailed), LeaseExpiredMessage, now.Sub(startedAt).Milliseconds(), now, id, string(models.RunStarted))
	if err != nil {
		return fmt.Errorf("failed to expire run log entry %s: %w", id, err)
	}
	return nil
}

func scanRunLogEntry(s scanner) (*models.RunLogEntry, error) {
	var (
		e          models.RunLogEntry
		trigger    string
		status     string
		durationMS int64
		errMsg     sql.NullString
		finishedAt sql.NullTime
	)
	err := s.Scan(
		&e.ID, &e.AccountID, &trigger, &status,
		&e.Counters.Seen, &e.Counters.Created, &e.Counters.Updated, &e.Counters.Errored,
		&durationMS, &errMsg, &e.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Trigger = models.TriggerKind(trigger)
	e.Status = models.RunStatus(status)
	e.Duration = time.Duration(durationMS) * time.Millisecond
	e.ErrorMessage = errMsg.String
	e.FinishedAt = timeFromNull(finishedAt)
	e.StartedAt = e.StartedAt.UTC()
	return &e, nil
}
