// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"golang.org/x/oauth2"
)

// NewTestDB creates a migrated SQLite database in a temporary directory, closed on cleanup.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// NewConfiguredAccount returns an unsaved account with valid credentials and a ready destination.
func NewConfiguredAccount(email string) *models.Account {
	a := models.NewAccount(email, "Test User", "subject-"+email)
	a.Credentials = models.Credentials{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}
	a.Destination = models.DestinationConfig{APIToken: "notion-token", DatabaseID: "database-id", Configured: true}
	return a
}

// FakeCredentials is a test double for the credential provider.
type FakeCredentials struct {
	Err   error
	mu    sync.Mutex
	calls int
}

func (f *FakeCredentials) EnsureValid(ctx context.Context, account *models.Account) (*oauth2.Token, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return &oauth2.Token{AccessToken: account.Credentials.AccessToken, Expiry: account.Credentials.Expiry}, nil
}

func (f *FakeCredentials) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeSource is a test double for the source fetcher.
//
// When Gate is set, ListAllItems blocks until Gate is closed or ctx ends.
// Started, if set, is closed on the first call.
type FakeSource struct {
	Items   []models.SourceItem
	Err     error
	Gate    chan struct{}
	Started chan struct{}

	mu    sync.Mutex
	calls int
	once  sync.Once
}

func (f *FakeSource) ListAllItems(ctx context.Context, account *models.Account, token *oauth2.Token) ([]models.SourceItem, error) {
	f.mu.Lock()
	f.calls++
	items := append([]models.SourceItem(nil), f.Items...)
	f.mu.Unlock()

	if f.Started != nil {
		f.once.Do(func() { close(f.Started) })
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return items, nil
}

// SetItems replaces the items returned by later calls.
func (f *FakeSource) SetItems(items []models.SourceItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Items = items
}

func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakePage is what [FakeDestination] holds for each page.
type FakePage struct {
	ID     string
	Item   models.SourceItem
	Writes int
}

// FakeDestination is an in-memory destination database.
//
// Items whose ID is a key of FailOn fail with that error on every write.
type FakeDestination struct {
	FailOn map[string]error

	mu      sync.Mutex
	pages   map[string]*FakePage
	creates int
	updates int
}

func NewFakeDestination() *FakeDestination {
	return &FakeDestination{FailOn: map[string]error{}, pages: map[string]*FakePage{}}
}

func (f *FakeDestination) Create(ctx context.Context, account *models.Account, item models.SourceItem) (*models.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.FailOn[item.ID]; err != nil {
		return nil, err
	}
	f.creates++
	page := &FakePage{ID: fmt.Sprintf("page-%d", len(f.pages)+1), Item: item, Writes: 1}
	f.pages[page.ID] = page
	return &models.WriteResult{ID: page.ID, Payload: models.RawJSON(map[string]string{"id": page.ID})}, nil
}

func (f *FakeDestination) Update(ctx context.Context, account *models.Account, pageID string, item models.SourceItem) (*models.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.FailOn[item.ID]; err != nil {
		return nil, err
	}
	page, ok := f.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("%w: page %s not found", shared.ErrAPIRequest, pageID)
	}
	f.updates++
	page.Item = item
	page.Writes++
	return &models.WriteResult{ID: page.ID, Payload: models.RawJSON(map[string]string{"id": page.ID})}, nil
}

// Fail makes every later write of itemID return err. A nil err clears the failure.
func (f *FakeDestination) Fail(itemID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.FailOn, itemID)
		return
	}
	f.FailOn[itemID] = err
}

// Page returns a copy of the page with the given ID.
func (f *FakeDestination) Page(id string) (FakePage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return FakePage{}, false
	}
	return *p, true
}

// Counts returns the number of pages and successful creates and updates.
func (f *FakeDestination) Counts() (pages, creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages), f.creates, f.updates
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}
