package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"golang.org/x/oauth2"
)

type recordingStore struct {
	mu    sync.Mutex
	id    string
	saved models.Credentials
	calls int
	err   error
}

func (s *recordingStore) SaveCredentials(ctx context.Context, accountID string, creds models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.id, s.saved = accountID, creds
	return nil
}

func newGoogleService(t *testing.T, baseURL, tokenURL string, store CredentialStore) *GoogleTasksService {
	t.Helper()
	svc, err := NewGoogleTasksService(GoogleOpts{
		Config:   shared.GoogleConfig{ClientID: "client-id", ClientSecret: "client-secret", BaseURL: baseURL},
		Store:    store,
		TokenURL: tokenURL,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return svc
}

func writeJSONResponse(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestGoogleTasksService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewGoogleTasksService", func(t *testing.T) {
		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewGoogleTasksService(GoogleOpts{Config: shared.GoogleConfig{ClientID: "client-id"}})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("Auth URL requests offline access", func(t *testing.T) {
			svc := newGoogleService(t, "", "", nil)
			url := svc.GetAuthURL("state-123")
			for _, want := range []string{"state=state-123", "access_type=offline", "client_id=client-id"} {
				if !strings.Contains(url, want) {
					t.Errorf("expected auth URL to contain %q, got %s", want, url)
				}
			}
		})
	})

	t.Run("EnsureValid", func(t *testing.T) {
		t.Run("valid token is returned without refresh", func(t *testing.T) {
			store := &recordingStore{}
			svc := newGoogleService(t, "", "http://127.0.0.1:1/token", store)
			account := models.NewAccount("user@example.com", "", "sub")
			account.Credentials = models.Credentials{AccessToken: "live", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}

			token, err := svc.EnsureValid(ctx, account)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.AccessToken != "live" {
				t.Errorf("expected stored token, got %s", token.AccessToken)
			}
			if store.calls != 0 {
				t.Errorf("expected no persistence, got %d calls", store.calls)
			}
		})

		t.Run("expired token is refreshed and persisted", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseForm(); err != nil {
					t.Errorf("failed to parse form: %v", err)
				}
				if got := r.Form.Get("grant_type"); got != "refresh_token" {
					t.Errorf("expected refresh_token grant, got %s", got)
				}
				if got := r.Form.Get("refresh_token"); got != "stored-refresh" {
					t.Errorf("expected stored refresh token, got %s", got)
				}
				writeJSONResponse(t, w, map[string]any{"access_token": "renewed", "token_type": "Bearer", "expires_in": 3600})
			}))
			defer srv.Close()

			store := &recordingStore{}
			svc := newGoogleService(t, "", srv.URL, store)
			account := models.NewAccount("user@example.com", "", "sub")
			account.Credentials = models.Credentials{AccessToken: "old", RefreshToken: "stored-refresh", Expiry: time.Now().Add(-time.Minute)}

			token, err := svc.EnsureValid(ctx, account)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.AccessToken != "renewed" {
				t.Errorf("expected renewed token, got %s", token.AccessToken)
			}
			if store.calls != 1 || store.id != account.ID {
				t.Fatalf("expected credentials persisted once for %s, got %d calls for %s", account.ID, store.calls, store.id)
			}
			if store.saved.RefreshToken != "stored-refresh" {
				t.Errorf("expected refresh token kept, got %q", store.saved.RefreshToken)
			}
			if account.Credentials.AccessToken != "renewed" {
				t.Errorf("expected account updated in place")
			}
		})

		t.Run("missing refresh token", func(t *testing.T) {
			svc := newGoogleService(t, "", "", nil)
			account := models.NewAccount("user@example.com", "", "sub")
			account.Credentials = models.Credentials{AccessToken: "old", Expiry: time.Now().Add(-time.Minute)}

			_, err := svc.EnsureValid(ctx, account)
			if !errors.Is(err, shared.ErrRefreshFailed) || !errors.Is(err, shared.ErrNoRefreshToken) {
				t.Errorf("expected ErrRefreshFailed wrapping ErrNoRefreshToken, got %v", err)
			}
		})

		t.Run("rejected refresh", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
			}))
			defer srv.Close()

			store := &recordingStore{}
			svc := newGoogleService(t, "", srv.URL, store)
			account := models.NewAccount("user@example.com", "", "sub")
			account.Credentials = models.Credentials{AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Minute)}

			if _, err := svc.EnsureValid(ctx, account); !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
			if store.calls != 0 {
				t.Errorf("expected nothing persisted")
			}
		})

		t.Run("persist failure", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSONResponse(t, w, map[string]any{"access_token": "renewed", "token_type": "Bearer", "expires_in": 3600})
			}))
			defer srv.Close()

			svc := newGoogleService(t, "", srv.URL, &recordingStore{err: errors.New("disk full")})
			account := models.NewAccount("user@example.com", "", "sub")
			account.Credentials = models.Credentials{RefreshToken: "r"}

			if _, err := svc.EnsureValid(ctx, account); !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})
	})

	t.Run("ListAllItems", func(t *testing.T) {
		account := models.NewAccount("user@example.com", "", "sub")
		token := &oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}

		t.Run("walks every list and page", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer access" {
					t.Errorf("expected bearer token, got %q", got)
				}
				switch r.URL.Path {
				case "/tasks/v1/users/@me/lists":
					writeJSONResponse(t, w, map[string]any{"items": []map[string]string{
						{"id": "L1", "title": "Groceries"},
						{"id": "L2", "title": ""},
					}})
				case "/tasks/v1/lists/L1/tasks":
					if r.URL.Query().Get("showCompleted") != "true" || r.URL.Query().Get("showHidden") != "true" {
						t.Errorf("expected completed and hidden tasks requested, got %s", r.URL.RawQuery)
					}
					if r.URL.Query().Get("pageToken") == "" {
						writeJSONResponse(t, w, map[string]any{
							"items":         []map[string]string{{"id": "g1", "title": "Buy milk", "status": "needsAction", "due": "2024-05-01T00:00:00.000Z"}},
							"nextPageToken": "next",
						})
						return
					}
					writeJSONResponse(t, w, map[string]any{
						"items": []map[string]string{{"id": "g2", "title": "Eggs", "status": "completed"}},
					})
				case "/tasks/v1/lists/L2/tasks":
					writeJSONResponse(t, w, map[string]any{
						"items": []map[string]string{{"id": "g3", "title": ""}},
					})
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer srv.Close()

			svc := newGoogleService(t, srv.URL+"/", "", nil)
			items, err := svc.ListAllItems(ctx, account, token)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(items) != 3 {
				t.Fatalf("expected 3 items, got %d", len(items))
			}

			milk := items[0]
			if milk.ID != "g1" || milk.CollectionName != "Groceries" || milk.Status != models.TaskPending {
				t.Errorf("unexpected first item: %+v", milk)
			}
			if milk.DueDate() != "2024-05-01" {
				t.Errorf("expected due date 2024-05-01, got %q", milk.DueDate())
			}
			if !strings.Contains(string(milk.Raw), `"Buy milk"`) {
				t.Errorf("expected raw payload to carry the task, got %s", milk.Raw)
			}
			if items[1].Status != models.TaskCompleted {
				t.Errorf("expected completed second item, got %s", items[1].Status)
			}
			if items[2].Title != models.DefaultTitle || items[2].CollectionName != models.DefaultCollectionName {
				t.Errorf("expected defaults applied, got %+v", items[2])
			}
		})

		t.Run("a failing list fails the fetch", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/tasks/v1/users/@me/lists":
					writeJSONResponse(t, w, map[string]any{"items": []map[string]string{{"id": "L1", "title": "Work"}}})
				default:
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusForbidden)
					w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
				}
			}))
			defer srv.Close()

			svc := newGoogleService(t, srv.URL+"/", "", nil)
			if _, err := svc.ListAllItems(ctx, account, token); !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})
	})

	t.Run("VerifyIdentity", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/oauth2/v2/userinfo" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			writeJSONResponse(t, w, map[string]string{"id": "1234", "email": "user@example.com", "name": "Test User"})
		}))
		defer srv.Close()

		svc := newGoogleService(t, srv.URL+"/", "", nil)
		identity, err := svc.VerifyIdentity(ctx, &oauth2.Token{AccessToken: "access"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if identity.Subject != "1234" || identity.Email != "user@example.com" {
			t.Errorf("unexpected identity: %+v", identity)
		}
	})
}
