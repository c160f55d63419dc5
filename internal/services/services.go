package services

import (
	"context"

	"github.com/desertthunder/taskmirror/internal/models"
	"golang.org/x/oauth2"
)

// CredentialProvider returns a usable source access token for an account, renewing it when needed.
type CredentialProvider interface {
	EnsureValid(ctx context.Context, account *models.Account) (*oauth2.Token, error)
}

// SourceFetcher lists every task of every task list of an account.
type SourceFetcher interface {
	ListAllItems(ctx context.Context, account *models.Account, token *oauth2.Token) ([]models.SourceItem, error)
}

// DestinationWriter creates and updates destination pages for source items.
type DestinationWriter interface {
	Create(ctx context.Context, account *models.Account, item models.SourceItem) (*models.WriteResult, error)
	Update(ctx context.Context, account *models.Account, destinationID string, item models.SourceItem) (*models.WriteResult, error)
}

// CredentialStore persists renewed source credentials.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, accountID string, creds models.Credentials) error
}

// Identity is the verified profile behind a source access token.
type Identity struct {
	Subject string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// IdentityVerifier resolves the account identity a token belongs to.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error)
}
