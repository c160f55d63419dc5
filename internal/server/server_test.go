package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/desertthunder/taskmirror/internal/tasks"
)

type fakeSync struct {
	err        error
	lastID     string
	lastPage   int
	lastSize   int
	lastUpdate tasks.PolicyUpdate
	panicOn    string
}

func (f *fakeSync) Start(ctx context.Context, accountID string, trigger models.TriggerKind) (*models.RunLogEntry, error) {
	if f.panicOn == "start" {
		panic("boom")
	}
	f.lastID = accountID
	if f.err != nil {
		return nil, f.err
	}
	return &models.RunLogEntry{ID: "run-1", AccountID: accountID, Trigger: trigger, Status: models.RunStarted}, nil
}

func (f *fakeSync) Status(ctx context.Context, accountID string) (*tasks.SyncStatus, error) {
	f.lastID = accountID
	if f.err != nil {
		return nil, f.err
	}
	finished := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)
	return &tasks.SyncStatus{RecentRuns: []models.RunLogEntry{{
		ID:         "run-1",
		AccountID:  accountID,
		Trigger:    models.TriggerManual,
		Status:     models.RunCompleted,
		Counters:   models.RunCounters{Seen: 1, Created: 1},
		Duration:   1500 * time.Millisecond,
		StartedAt:  finished.Add(-1500 * time.Millisecond),
		FinishedAt: &finished,
	}}}, nil
}

func (f *fakeSync) SetPolicy(ctx context.Context, accountID string, update tasks.PolicyUpdate) (*models.SyncPolicy, error) {
	f.lastID, f.lastUpdate = accountID, update
	if f.err != nil {
		return nil, f.err
	}
	policy := models.SyncPolicy{IntervalMinutes: 30}
	if update.AutoSync != nil {
		policy.AutoSync = *update.AutoSync
	}
	if update.IntervalMinutes != nil {
		policy.IntervalMinutes = *update.IntervalMinutes
	}
	return &policy, nil
}

func (f *fakeSync) ListMirrorRecords(ctx context.Context, accountID string, page, pageSize int) (*models.MirrorPage, error) {
	f.lastID, f.lastPage, f.lastSize = accountID, page, pageSize
	if f.err != nil {
		return nil, f.err
	}
	return &models.MirrorPage{
		Records:    []models.MirrorRecord{{ID: "m1", AccountID: accountID, SourceItemID: "g1", Title: "Buy milk", Outcome: models.OutcomeSuccess}},
		Pagination: models.NewPage(1, 20, 1),
	}, nil
}

func (f *fakeSync) Stats(ctx context.Context, accountID string) (*models.MirrorStats, error) {
	f.lastID = accountID
	if f.err != nil {
		return nil, f.err
	}
	return &models.MirrorStats{Total: 3, Completed: 1, Pending: 2, Errored: 1}, nil
}

type fakeDB struct{ err error }

func (f fakeDB) PingContext(ctx context.Context) error { return f.err }

func newTestRouter(sync SyncAPI, db Pinger, apiKey string) http.Handler {
	logger := shared.NewLogger(io.Discard)
	return NewRouter(NewAPI(sync, db, logger), apiKey, logger)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestRoutes(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{}, fakeDB{}, "secret"), "GET", "/api/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode(t, rec); body["database"] != "ok" {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("health with unreachable database", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{}, fakeDB{err: errors.New("closed")}, ""), "GET", "/api/health", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("start sync", func(t *testing.T) {
		sync := &fakeSync{}
		rec := do(t, newTestRouter(sync, nil, ""), "POST", "/api/accounts/acc-1/sync", "")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		body := decode(t, rec)
		if body["syncId"] != "run-1" || body["message"] != "Sync started" {
			t.Errorf("unexpected body: %v", body)
		}
		if sync.lastID != "acc-1" {
			t.Errorf("expected account acc-1, got %s", sync.lastID)
		}
	})

	t.Run("status", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{}, nil, ""), "GET", "/api/accounts/acc-1/sync/status", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode(t, rec)
		if body["isRunning"] != false {
			t.Errorf("expected isRunning false, got %v", body["isRunning"])
		}
		runs := body["recentSyncs"].([]any)
		run := runs[0].(map[string]any)
		if run["status"] != "completed" || run["syncType"] != "manual" || run["duration"] != float64(1500) {
			t.Errorf("unexpected run: %v", run)
		}
	})

	t.Run("settings", func(t *testing.T) {
		sync := &fakeSync{}
		rec := do(t, newTestRouter(sync, nil, ""), "PUT", "/api/accounts/acc-1/sync/settings", `{"autoSync":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if sync.lastUpdate.AutoSync == nil || !*sync.lastUpdate.AutoSync || sync.lastUpdate.IntervalMinutes != nil {
			t.Errorf("expected only autoSync set, got %+v", sync.lastUpdate)
		}
		settings := decode(t, rec)["settings"].(map[string]any)
		if settings["autoSync"] != true || settings["syncInterval"] != float64(30) {
			t.Errorf("unexpected settings: %v", settings)
		}
	})

	t.Run("settings with invalid body", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{}, nil, ""), "PUT", "/api/accounts/acc-1/sync/settings", `{`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("tasks with pagination", func(t *testing.T) {
		sync := &fakeSync{}
		rec := do(t, newTestRouter(sync, nil, ""), "GET", "/api/accounts/acc-1/tasks?page=2&limit=50", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if sync.lastPage != 2 || sync.lastSize != 50 {
			t.Errorf("expected page 2 size 50, got %d and %d", sync.lastPage, sync.lastSize)
		}
		body := decode(t, rec)
		if _, ok := body["tasks"]; !ok {
			t.Errorf("expected tasks key, got %v", body)
		}
		if _, ok := body["pagination"]; !ok {
			t.Errorf("expected pagination key, got %v", body)
		}
	})

	t.Run("tasks with bad page", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{}, nil, ""), "GET", "/api/accounts/acc-1/tasks?page=two", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{}, nil, ""), "GET", "/api/accounts/acc-1/tasks/stats", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode(t, rec); body["total"] != float64(3) || body["errors"] != float64(1) {
			t.Errorf("unexpected stats: %v", body)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{}, nil, ""), "DELETE", "/api/accounts/acc-1/sync", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("panic is recovered", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeSync{panicOn: "start"}, nil, ""), "POST", "/api/accounts/acc-1/sync", "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown account", fmt.Errorf("%w: acc-1", shared.ErrAccountNotFound), http.StatusNotFound, ErrNotFound},
		{"already running", fmt.Errorf("%w: account acc-1", shared.ErrAlreadyRunning), http.StatusConflict, ErrConflict},
		{"queue full", fmt.Errorf("%w: 64 jobs waiting", shared.ErrQueueFull), http.StatusServiceUnavailable, ErrUnavailable},
		{"invalid interval", fmt.Errorf("%w: interval", shared.ErrInvalidInput), http.StatusBadRequest, ErrValidation},
		{"internal", errors.New("disk I/O error"), http.StatusInternalServerError, ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(&fakeSync{err: tt.err}, nil, ""), "POST", "/api/accounts/acc-1/sync", "")
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			body := decode(t, rec)
			if body["error"] != tt.code {
				t.Errorf("expected code %s, got %v", tt.code, body["error"])
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(body["message"].(string), "disk") {
				t.Error("internal error details must not leak")
			}
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	router := newTestRouter(&fakeSync{}, fakeDB{}, "secret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			rec := do(t, router, "GET", "/api/accounts/acc-1/tasks/stats", "", headers...)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	t.Run("health stays public", func(t *testing.T) {
		if rec := do(t, router, "GET", "/api/health", ""); rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestNewServer(t *testing.T) {
	srv := NewServer(ServerOpts{
		Config: shared.ServerConfig{Host: "127.0.0.1", Port: 3000, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second},
		Sync:   &fakeSync{},
	})
	if srv.Addr != "127.0.0.1:3000" || srv.ReadTimeout != 5*time.Second || srv.WriteTimeout != 10*time.Second {
		t.Errorf("unexpected server: addr=%s read=%s write=%s", srv.Addr, srv.ReadTimeout, srv.WriteTimeout)
	}
}
