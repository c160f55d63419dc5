package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultIntervalMinutes = 30
	MaxIntervalMinutes     = 24 * 60
)

// Credentials holds the source service OAuth tokens for an account.
type Credentials struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
}

// Expired reports whether the access token must be renewed before use at now.
//
// A zero expiry is treated as non-expiring.
func (c Credentials) Expired(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Before(c.Expiry)
}

// DestinationConfig points an account at its destination database.
type DestinationConfig struct {
	APIToken   string `json:"-"`
	DatabaseID string `json:"databaseId"`
	Configured bool   `json:"configured"`
}

// Ready reports whether a pass can write to the destination.
func (d DestinationConfig) Ready() bool {
	return d.Configured && d.APIToken != "" && d.DatabaseID != ""
}

// SyncPolicy controls automatic passes for an account.
type SyncPolicy struct {
	AutoSync        bool       `json:"autoSync"`
	IntervalMinutes int        `json:"syncInterval"`
	LastSyncAt      *time.Time `json:"lastSyncAt,omitempty"`
}

// Interval returns the policy interval, falling back to fallback minutes when unset.
func (p SyncPolicy) Interval(fallback int) time.Duration {
	minutes := p.IntervalMinutes
	if minutes <= 0 {
		minutes = fallback
	}
	if minutes <= 0 {
		minutes = DefaultIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Account is a user enrolled for mirroring, keyed by the source service identity.
//
// Secrets never appear in the JSON projection.
type Account struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	Name          string            `json:"name"`
	SourceSubject string            `json:"-"`
	Credentials   Credentials       `json:"credentials"`
	Destination   DestinationConfig `json:"destination"`
	Policy        SyncPolicy        `json:"policy"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// NewAccount creates an active account with the default policy.
func NewAccount(email, name, subject string) *Account {
	now := time.Now().UTC()
	return &Account{
		Email:         strings.TrimSpace(email),
		Name:          strings.TrimSpace(name),
		SourceSubject: subject,
		Policy:        SyncPolicy{IntervalMinutes: DefaultIntervalMinutes},
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate implements [Model].
func (a *Account) Validate() error {
	if a.Email == "" || !strings.Contains(a.Email, "@") {
		return fmt.Errorf("account email is invalid: %q", a.Email)
	}
	if a.SourceSubject == "" {
		return fmt.Errorf("account source subject is required")
	}
	if err := ValidateInterval(a.Policy.IntervalMinutes); err != nil {
		return err
	}
	return nil
}

// AutoSyncEligible reports whether the scheduler should consider the account at all.
func (a *Account) AutoSyncEligible() bool {
	return a.Active && a.Policy.AutoSync && a.Destination.Ready()
}

// ValidateInterval checks a sync interval in minutes.
func ValidateInterval(minutes int) error {
	if minutes < 1 || minutes > MaxIntervalMinutes {
		return fmt.Errorf("sync interval must be between 1 and %d minutes, got %d", MaxIntervalMinutes, minutes)
	}
	return nil
}
