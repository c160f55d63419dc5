// Notion implementation of [DestinationWriter]
//
// API reference: https://developers.notion.com/reference
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"golang.org/x/time/rate"
)

const (
	notionBaseURL     = "https://api.notion.com/v1"
	notionVersion     = "2022-06-28"
	notionTextLimit   = 2000
	notionStatusDone  = "Done"
	notionStatusOpen  = "Not started"
	notionDefaultRate = 3
)

// Property names expected in the destination database.
const (
	PropertyName     = "Name"
	PropertyStatus   = "Status"
	PropertyDueDate  = "Due Date"
	PropertyTaskID   = "Google Task ID"
	PropertyTaskList = "Task List"
)

// NotionOpts contains configuration options for creating a [NotionService].
type NotionOpts struct {
	Config     shared.NotionConfig
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NotionService writes pages into each account's Notion database.
//
// A single limiter is shared across accounts since Notion rate limits per integration.
type NotionService struct {
	baseURL    string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion API error: status %d", e.Status)
	}
	return fmt.Sprintf("notion API error: status %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return shared.ErrAPIRequest }

// DatabaseInfo describes a destination database.
type DatabaseInfo struct {
	ID         string                     `json:"id"`
	Title      string                     `json:"title"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// NewNotionService creates a new Notion client.
func NewNotionService(opts NotionOpts) *NotionService {
	cfg := opts.Config
	if cfg.BaseURL == "" {
		cfg.BaseURL = notionBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = notionVersion
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = notionDefaultRate
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &NotionService{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.Version,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     opts.Logger,
	}
}

// Create adds a page for item to the account's database.
func (s *NotionService) Create(ctx context.Context, account *models.Account, item models.SourceItem) (*models.WriteResult, error) {
	if err := checkDestination(account); err != nil {
		return nil, err
	}

	body := map[string]any{
		"parent":     map[string]string{"database_id": account.Destination.DatabaseID},
		"properties": pageProperties(item, false),
	}
	return s.writePage(ctx, account.Destination.APIToken, http.MethodPost, "/pages", body)
}

// Update overwrites the mirrored properties of an existing page.
//
// A due date removed at the source is cleared on the page.
func (s *NotionService) Update(ctx context.Context, account *models.Account, destinationID string, item models.SourceItem) (*models.WriteResult, error) {
	if err := checkDestination(account); err != nil {
		return nil, err
	}
	if destinationID == "" {
		return nil, fmt.Errorf("%w: destination id is required for update", shared.ErrInvalidInput)
	}

	body := map[string]any{"properties": pageProperties(item, true)}
	return s.writePage(ctx, account.Destination.APIToken, http.MethodPatch, "/pages/"+destinationID, body)
}

// ValidateDatabase checks that token can reach databaseID and returns its metadata.
func (s *NotionService) ValidateDatabase(ctx context.Context, token, databaseID string) (*DatabaseInfo, error) {
	if token == "" || databaseID == "" {
		return nil, fmt.Errorf("%w: notion token and database id are required", shared.ErrMissingArgument)
	}

	raw, err := s.doRequest(ctx, token, http.MethodGet, "/databases/"+databaseID, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Status {
			case http.StatusUnauthorized:
				return nil, fmt.Errorf("%w: invalid Notion API token", shared.ErrAuthFailed)
			case http.StatusForbidden:
				return nil, fmt.Errorf("%w: integration does not have access to this database", shared.ErrAuthFailed)
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: database not found or not shared with the integration", shared.ErrInvalidArgument)
			}
		}
		return nil, err
	}

	var db struct {
		ID    string `json:"id"`
		Title []struct {
			PlainText string `json:"plain_text"`
		} `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &db); err != nil {
		return nil, fmt.Errorf("failed to decode database: %w", err)
	}

	info := &DatabaseInfo{ID: db.ID, Properties: db.Properties}
	for _, t := range db.Title {
		info.Title += t.PlainText
	}
	return info, nil
}

func (s *NotionService) writePage(ctx context.Context, token, method, path string, body any) (*models.WriteResult, error) {
	raw, err := s.doRequest(ctx, token, method, path, body)
	if err != nil {
		return nil, err
	}

	var page struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("%w: failed to decode page: %v", shared.ErrWriteFailed, err)
	}
	if page.ID == "" {
		return nil, fmt.Errorf("%w: response has no page id", shared.ErrWriteFailed)
	}

	return &models.WriteResult{ID: page.ID, Payload: raw}, nil
}

// doRequest performs a rate-limited, authenticated request and returns the raw response body.
func (s *NotionService) doRequest(ctx context.Context, token, method, path string, body any) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", s.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		_ = json.Unmarshal(raw, apiErr)
		apiErr.Status = resp.StatusCode
		s.logger.Debug("notion request failed", "method", method, "path", path, "status", resp.StatusCode, "code", apiErr.Code)
		return nil, apiErr
	}
	return raw, nil
}

func checkDestination(account *models.Account) error {
	if account == nil || !account.Destination.Ready() {
		return fmt.Errorf("%w: notion destination", shared.ErrNotConfigured)
	}
	return nil
}

type richText struct {
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

func textValue(s string) []richText {
	rt := richText{}
	rt.Text.Content = shared.Truncate(s, notionTextLimit)
	return []richText{rt}
}

// pageProperties maps an item onto the destination schema.
func pageProperties(item models.SourceItem, clearEmpty bool) map[string]any {
	item = item.Normalized()

	status := notionStatusOpen
	if item.Status == models.TaskCompleted {
		status = notionStatusDone
	}

	props := map[string]any{
		PropertyName:     map[string]any{"title": textValue(item.Title)},
		PropertyStatus:   map[string]any{"select": map[string]string{"name": status}},
		PropertyTaskID:   map[string]any{"rich_text": textValue(item.ID)},
		PropertyTaskList: map[string]any{"rich_text": textValue(item.CollectionName)},
	}

	if due := item.DueDate(); due != "" {
		props[PropertyDueDate] = map[string]any{"date": map[string]string{"start": due}}
	} else if clearEmpty {
		props[PropertyDueDate] = map[string]any{"date": nil}
	}
	return props
}
