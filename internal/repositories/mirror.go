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

const mirrorColumns = `
	id, account_id, source_item_id, destination_id, title, status, collection_name, due_date, notes,
	last_synced_at, outcome, error_message, source_payload, destination_payload, created_at, updated_at
`

// MirrorRepository persists [models.MirrorRecord] rows keyed by (account, source item).
type MirrorRepository struct {
	db *sql.DB
}

// NewMirrorRepository creates a new [MirrorRepository] with the given database connection
func NewMirrorRepository(db *sql.DB) *MirrorRepository {
	return &MirrorRepository{db: db}
}

// Get returns the record for a source item, or [shared.ErrRecordNotFound].
func (r *MirrorRepository) Get(ctx context.Context, accountID, sourceItemID string) (*models.MirrorRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mirrorColumns+` FROM mirror_records WHERE account_id = ? AND source_item_id = ?`,
		accountID, sourceItemID,
	)
	rec, err := scanMirrorRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRecordNotFound, sourceItemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror record: %w", err)
	}
	return rec, nil
}

// Upsert inserts or overwrites the record for (AccountID, SourceItemID) in one statement.
//
// An empty DestinationID or DestinationPayload never clears a stored value, so a failed
// update keeps the link to the page created earlier.
func (r *MirrorRepository) Upsert(ctx context.Context, rec *models.MirrorRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if rec.LastSyncedAt.IsZero() {
		rec.LastSyncedAt = now
	}
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	query := `
		INSERT INTO mirror_records (` + mirrorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, source_item_id) DO UPDATE SET
			destination_id = CASE WHEN excluded.destination_id != '' THEN excluded.destination_id ELSE mirror_records.destination_id END,
			title = excluded.title,
			status = excluded.status,
			collection_name = excluded.collection_name,
			due_date = excluded.due_date,
			notes = excluded.notes,
			last_synced_at = excluded.last_synced_at,
			outcome = excluded.outcome,
			error_message = excluded.error_message,
			source_payload = COALESCE(excluded.source_payload, mirror_records.source_payload),
			destination_payload = COALESCE(excluded.destination_payload, mirror_records.destination_payload),
			updated_at = excluded.updated_at
		RETURNING id, destination_id
	`

	var errMsg sql.NullString
	if rec.Outcome == models.OutcomeError {
		errMsg = nullString(rec.ErrorMessage)
	}

	err := r.db.QueryRowContext(ctx, query,
		shared.GenerateID(), rec.AccountID, rec.SourceItemID, rec.DestinationID,
		rec.Title, string(rec.Status), rec.CollectionName, nullTime(rec.DueDate), rec.Notes,
		rec.LastSyncedAt.UTC(), string(rec.Outcome), errMsg,
		rawPayload(rec.SourcePayload), rawPayload(rec.DestinationPayload),
		rec.CreatedAt.UTC(), rec.UpdatedAt,
	).Scan(&rec.ID, &rec.DestinationID)
	if err != nil {
		return fmt.Errorf("failed to upsert mirror record: %w", err)
	}
	return nil
}

// List returns one page of an account's records, most recently synced first.
func (r *MirrorRepository) List(ctx context.Context, accountID string, page, size int) (*models.MirrorPage, error) {
	if page < 1 || size < 1 {
		return nil, fmt.Errorf("%w: page and size must be positive", shared.ErrInvalidInput)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mirror_records WHERE account_id = ?`, accountID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count mirror records: %w", err)
	}

	meta := models.NewPage(page, size, total)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mirrorColumns+`
		FROM mirror_records
		WHERE account_id = ?
		ORDER BY last_synced_at DESC, source_item_id ASC
		LIMIT ? OFFSET ?
	`, accountID, size, meta.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror records: %w", err)
	}
	defer rows.Close()

	records := []models.MirrorRecord{}
	for rows.Next() {
		rec, err := scanMirrorRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirror record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &models.MirrorPage{Records: records, Pagination: meta}, nil
}

// Count returns the number of records held for an account.
func (r *MirrorRepository) Count(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mirror_records WHERE account_id = ?`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count mirror records: %w", err)
	}
	return n, nil
}

// Stats aggregates an account's records by source status and outcome.
func (r *MirrorRepository) Stats(ctx context.Context, accountID string) (*models.MirrorStats, error) {
	var stats models.MirrorStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		FROM mirror_records
		WHERE account_id = ?
	`, string(models.TaskCompleted), string(models.TaskPending), string(models.OutcomeError), accountID,
	).Scan(&stats.Total, &stats.Completed, &stats.Pending, &stats.Errored)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate mirror records: %w", err)
	}
	return &stats, nil
}

func scanMirrorRecord(s scanner) (*models.MirrorRecord, error) {
	var (
		rec         models.MirrorRecord
		status      string
		outcome     string
		due         sql.NullTime
		errMsg      sql.NullString
		srcPayload  sql.NullString
		destPayload sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.AccountID, &rec.SourceItemID, &rec.DestinationID, &rec.Title, &status,
		&rec.CollectionName, &due, &rec.Notes, &rec.LastSyncedAt, &outcome, &errMsg,
		&srcPayload, &destPayload, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = models.TaskStatus(status)
	rec.Outcome = models.SyncOutcome(outcome)
	rec.DueDate = timeFromNull(due)
	rec.ErrorMessage = errMsg.String
	rec.SourcePayload = payloadFromNull(srcPayload)
	rec.DestinationPayload = payloadFromNull(destPayload)
	return &rec, nil
}
