// Google Tasks implementation of [CredentialProvider], [SourceFetcher] and [IdentityVerifier]
//
// API reference: https://developers.google.com/tasks/reference/rest
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const googlePageSize = 100

// GoogleOpts contains configuration options for creating a [GoogleTasksService].
type GoogleOpts struct {
	Config     shared.GoogleConfig
	Store      CredentialStore
	HTTPClient *http.Client
	// TokenURL overrides the OAuth token endpoint.
	TokenURL string
	Logger   *log.Logger
}

// GoogleTasksService reads task lists and tasks with per-account OAuth2 tokens.
type GoogleTasksService struct {
	config     *oauth2.Config
	store      CredentialStore
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
	now        func() time.Time
}

// NewGoogleTasksService creates a new Google Tasks client.
func NewGoogleTasksService(opts GoogleOpts) (*GoogleTasksService, error) {
	if opts.Config.ClientID == "" || opts.Config.ClientSecret == "" {
		return nil, fmt.Errorf("%w: google client_id and client_secret are required", shared.ErrInvalidConfig)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	endpoint := google.Endpoint
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}

	return &GoogleTasksService{
		config: &oauth2.Config{
			ClientID:     opts.Config.ClientID,
			ClientSecret: opts.Config.ClientSecret,
			RedirectURL:  opts.Config.RedirectURI,
			Scopes:       []string{tasks.TasksReadonlyScope, oauth2api.UserinfoEmailScope, oauth2api.UserinfoProfileScope},
			Endpoint:     endpoint,
		},
		store:      opts.Store,
		httpClient: opts.HTTPClient,
		baseURL:    opts.Config.BaseURL,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

// EnsureValid returns the stored token while it is valid. Once expired, it refreshes the token,
// persists the renewed credentials and updates account in place.
func (s *GoogleTasksService) EnsureValid(ctx context.Context, account *models.Account) (*oauth2.Token, error) {
	creds := account.Credentials
	if !creds.Expired(s.now()) {
		return credentialsToken(creds), nil
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	renewed := models.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry.UTC(),
	}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = creds.RefreshToken
	}

	if s.store != nil {
		if err := s.store.SaveCredentials(ctx, account.ID, renewed); err != nil {
			return nil, fmt.Errorf("%w: failed to persist refreshed credentials: %v", shared.ErrAuthFailed, err)
		}
	}
	account.Credentials = renewed

	s.logger.Debug("refreshed google token", "account", account.ID, "expiry", renewed.Expiry)
	return credentialsToken(renewed), nil
}

// ListAllItems fetches every task list and every task in it, completed and hidden tasks included.
//
// Any failing call fails the whole fetch so a pass never works from a partial listing.
func (s *GoogleTasksService) ListAllItems(ctx context.Context, account *models.Account, token *oauth2.Token) ([]models.SourceItem, error) {
	svc, err := tasks.NewService(ctx, s.clientOptions(ctx, token)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks client: %w", err)
	}

	var lists []*tasks.TaskList
	err = svc.Tasklists.List().MaxResults(googlePageSize).Pages(ctx, func(page *tasks.TaskLists) error {
		lists = append(lists, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list task lists: %v", shared.ErrAPIRequest, err)
	}

	var items []models.SourceItem
	for _, list := range lists {
		call := svc.Tasks.List(list.Id).ShowCompleted(true).ShowHidden(true).MaxResults(googlePageSize)
		err := call.Pages(ctx, func(page *tasks.Tasks) error {
			for _, task := range page.Items {
				items = append(items, toSourceItem(task, list))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list tasks in %q: %v", shared.ErrAPIRequest, list.Title, err)
		}
	}

	s.logger.Debug("fetched google tasks", "account", account.ID, "lists", len(lists), "tasks", len(items))
	return items, nil
}

// VerifyIdentity resolves the Google account behind token.
func (s *GoogleTasksService) VerifyIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	svc, err := oauth2api.NewService(ctx, s.clientOptions(ctx, token)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if info.Id == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: userinfo response is missing id or email", shared.ErrAuthFailed)
	}

	return &Identity{Subject: info.Id, Email: info.Email, Name: info.Name}, nil
}

// GetAuthURL returns the consent URL for the configured client.
func (s *GoogleTasksService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *GoogleTasksService) clientOptions(ctx context.Context, token *oauth2.Token) []option.ClientOption {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)))}
	if s.baseURL != "" {
		opts = append(opts, option.WithEndpoint(s.baseURL))
	}
	return opts
}

func credentialsToken(creds models.Credentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}
}

func toSourceItem(task *tasks.Task, list *tasks.TaskList) models.SourceItem {
	item := models.SourceItem{
		ID:             task.Id,
		Title:          task.Title,
		Status:         models.TaskStatus(task.Status),
		Notes:          task.Notes,
		CollectionID:   list.Id,
		CollectionName: list.Title,
	}
	if task.Due != "" {
		if due, err := time.Parse(time.RFC3339, task.Due); err == nil {
			due = due.UTC()
			item.Due = &due
		}
	}
	if raw, err := json.Marshal(task); err == nil {
		item.Raw = raw
	}
	return item.Normalized()
}
