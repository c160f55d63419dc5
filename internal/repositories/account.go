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

const accountColumns = `
	id, email, name, source_subject, access_token, refresh_token, token_expiry,
	notion_token, notion_database_id, destination_configured,
	auto_sync, sync_interval_minutes, last_sync_at, active, created_at, updated_at
`

// AccountRepository persists [models.Account] rows.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new [AccountRepository] with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account, generating its ID when unset.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if account.ID == "" {
		account.ID = shared.GenerateID()
	}
	now := time.Now().UTC()
	account.CreatedAt, account.UpdatedAt = now, now

	query := `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Name, account.SourceSubject,
		account.Credentials.AccessToken, account.Credentials.RefreshToken, nullTime(&account.Credentials.Expiry),
		account.Destination.APIToken, account.Destination.DatabaseID, account.Destination.Configured,
		account.Policy.AutoSync, account.Policy.IntervalMinutes, nullTime(account.Policy.LastSyncAt),
		account.Active, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account %s already exists", shared.ErrInvalidInput, account.Email)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID.
func (r *AccountRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// GetBySubject retrieves an account by its source service identity.
func (r *AccountRepository) GetBySubject(ctx context.Context, subject string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE source_subject = ?`, subject)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: subject %s", shared.ErrAccountNotFound, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// Enroll creates the account for a verified identity or refreshes the profile and
// credentials of the existing one. Policy and destination are left as they are.
func (r *AccountRepository) Enroll(ctx context.Context, account *models.Account) (*models.Account, error) {
	existing, err := r.GetBySubject(ctx, account.SourceSubject)
	if errors.Is(err, shared.ErrAccountNotFound) {
		if err := r.Create(ctx, account); err != nil {
			return nil, err
		}
		return account, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		UPDATE accounts
		SET email = ?, name = ?, access_token = ?, refresh_token = ?, token_expiry = ?, active = 1, updated_at = ?
		WHERE id = ?
	`, account.Email, account.Name, account.Credentials.AccessToken, account.Credentials.RefreshToken,
		nullTime(&account.Credentials.Expiry), now, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return r.Get(ctx, existing.ID)
}

// List returns every account ordered by creation time.
func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC`)
}

// ListAutoSync returns active accounts with auto-sync on and a configured destination.
func (r *AccountRepository) ListAutoSync(ctx context.Context) ([]*models.Account, error) {
	return r.query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE auto_sync = 1 AND destination_configured = 1 AND active = 1
		ORDER BY created_at ASC
	`)
}

// SaveCredentials stores renewed source tokens.
func (r *AccountRepository) SaveCredentials(ctx context.Context, id string, creds models.Credentials) error {
	return r.update(ctx, id, `access_token = ?, refresh_token = ?, token_expiry = ?`,
		creds.AccessToken, creds.RefreshToken, nullTime(&creds.Expiry))
}

// SetDestination stores the destination settings for an account.
func (r *AccountRepository) SetDestination(ctx context.Context, id string, dest models.DestinationConfig) error {
	return r.update(ctx, id, `notion_token = ?, notion_database_id = ?, destination_configured = ?`,
		dest.APIToken, dest.DatabaseID, dest.Configured)
}

// UpdatePolicy replaces the auto-sync flag and interval.
func (r *AccountRepository) UpdatePolicy(ctx context.Context, id string, autoSync bool, intervalMinutes int) error {
	if err := models.ValidateInterval(intervalMinutes); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return r.update(ctx, id, `auto_sync = ?, sync_interval_minutes = ?`, autoSync, intervalMinutes)
}

// TouchLastSync records the time a pass finished processing items.
func (r *AccountRepository) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, `last_sync_at = ?`, at.UTC())
}

// SetActive enables or disables an account.
func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, id, `active = ?`, active)
}

func (r *AccountRepository) update(ctx context.Context, id, set string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id)
	}
	return nil
}

func (r *AccountRepository) query(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return accounts, nil
}

func scanAccount(s scanner) (*models.Account, error) {
	var (
		a          models.Account
		expiry     sql.NullTime
		lastSyncAt sql.NullTime
	)
	err := s.Scan(
		&a.ID, &a.Email, &a.Name, &a.SourceSubject,
		&a.Credentials.AccessToken, &a.Credentials.RefreshToken, &expiry,
		&a.Destination.APIToken, &a.Destination.DatabaseID, &a.Destination.Configured,
		&a.Policy.AutoSync, &a.Policy.IntervalMinutes, &lastSyncAt,
		&a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		a.Credentials.Expiry = expiry.Time.UTC()
	}
	a.Policy.LastSyncAt = timeFromNull(lastSyncAt)
	return &a, nil
}
