package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/taskmirror/internal/shared"
	tu "github.com/desertthunder/taskmirror/internal/testing"
)

// cliHarness runs the real command tree against a config and database in a temp dir.
type cliHarness struct {
	runner     *Runner
	out        *bytes.Buffer
	configPath string
}

func newCLIHarness(t *testing.T, notionURL string) *cliHarness {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	config := fmt.Sprintf("[database]\npath = %q\n\n[notion]\nbase_url = %q\n\n[log]\nlevel = \"error\"\n",
		filepath.Join(dir, "taskmirror.db"), notionURL)
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	out := &bytes.Buffer{}
	return &cliHarness{
		runner: NewRunner(RunnerOpts{
			Logger: shared.NewLogger(io.Discard),
			Output: out,
			Plain:  true,
		}),
		out:        out,
		configPath: configPath,
	}
}

func (h *cliHarness) run(args ...string) error {
	h.out.Reset()
	app := newApp(h.runner)
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	return app.Run(context.Background(), append([]string{"taskmirror", "--config", h.configPath}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/etc/taskmirror.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/etc/taskmirror.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.palette == nil {
				t.Error("expected styled palette by default")
			}
		})

		t.Run("with zero options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("plain disables styling", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Plain: true})
			if runner.palette != nil {
				t.Error("expected nil palette")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world" {
			t.Errorf("expected 'hello world', got %q", output.String())
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("test"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("writeRendered to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.csv")
		runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}, Logger: shared.NewLogger(io.Discard)})

		if err := runner.writeRendered([]byte("ID\n"), path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil || string(data) != "ID\n" {
			t.Errorf("unexpected file contents %q (%v)", data, err)
		}
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		want := []string{"setup", "serve", "accounts", "sync", "tasks"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil || cmd.Name != want[i] {
				t.Errorf("command %d: expected %s, got %+v", i, want[i], cmd)
			}
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads the file named by --config", func(t *testing.T) {
		h := newCLIHarness(t, "http://notion.invalid")
		if err := h.run("setup", "migrations"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.runner.configPath != h.configPath {
			t.Errorf("expected configPath %s, got %s", h.configPath, h.runner.configPath)
		}
		if h.runner.config.Notion.BaseURL != "http://notion.invalid" {
			t.Errorf("expected notion base url from file, got %s", h.runner.config.Notion.BaseURL)
		}
		if h.runner.config.Sync.Workers != shared.DefaultConfig().Sync.Workers {
			t.Error("expected unset values to keep defaults")
		}
	})

	t.Run("malformed file fails", func(t *testing.T) {
		h := newCLIHarness(t, "")
		os.WriteFile(h.configPath, []byte("[database\n"), 0600)

		if err := h.run("setup", "migrations"); err == nil {
			t.Fatal("expected parse error")
		}
	})

	t.Run("setup config refuses to overwrite", func(t *testing.T) {
		h := newCLIHarness(t, "")
		if err := h.run("setup", "config"); err == nil {
			t.Fatal("expected error for existing config")
		}

		fresh := filepath.Join(t.TempDir(), "new.toml")
		h.configPath = fresh
		if err := h.run("setup", "config"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := shared.LoadConfig(fresh); err != nil {
			t.Errorf("created config does not load: %v", err)
		}
	})
}

func TestCommands(t *testing.T) {
	notion := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"object":"error","code":"unauthorized","message":"API token is invalid."}`))
			return
		}
		w.Write([]byte(`{"id":"db1","title":[{"plain_text":"My Tasks"}],"properties":{}}`))
	}))
	defer notion.Close()

	h := newCLIHarness(t, notion.URL)

	if err := h.run("setup", "database"); err != nil {
		t.Fatalf("setup database failed: %v", err)
	}

	err := h.run("accounts", "add", "--verify=false", "--email", "ada@example.com", "--name", "Ada",
		"--subject", "sub-1", "--refresh-token", "rt-1")
	if err != nil {
		t.Fatalf("accounts add failed: %v", err)
	}
	if !strings.Contains(h.out.String(), "✓ Account ada@example.com") {
		t.Errorf("unexpected output: %s", h.out.String())
	}

	if err := h.run("accounts", "list", "--json"); err != nil {
		t.Fatalf("accounts list failed: %v", err)
	}
	var accounts []map[string]any
	if err := json.Unmarshal(h.out.Bytes(), &accounts); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, h.out.String())
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	id, _ := accounts[0]["id"].(string)
	if strings.Contains(h.out.String(), "rt-1") {
		t.Error("account JSON leaked the refresh token")
	}

	t.Run("accounts add again keeps one account", func(t *testing.T) {
		err := h.run("accounts", "add", "--verify=false", "--email", "ada@example.com",
			"--subject", "sub-1", "--refresh-token", "rt-2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h.run("accounts", "list", "--json")
		var again []map[string]any
		json.Unmarshal(h.out.Bytes(), &again)
		if len(again) != 1 || again[0]["id"] != id {
			t.Errorf("expected re-enrollment of %s, got %v", id, again)
		}
	})

	t.Run("accounts add without identity", func(t *testing.T) {
		err := h.run("accounts", "add", "--verify=false", "--refresh-token", "rt")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("sync run without destination fails the pass", func(t *testing.T) {
		err := h.run("sync", "run", "--wait", id)
		if !errors.Is(err, shared.ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
		if !strings.Contains(h.out.String(), "failed") {
			t.Errorf("expected failed run in output, got %s", h.out.String())
		}

		if err := h.run("sync", "status", id); err != nil {
			t.Fatalf("sync status failed: %v", err)
		}
		out := h.out.String()
		if !strings.Contains(out, "Running: no") || !strings.Contains(out, "manual") {
			t.Errorf("unexpected status output: %s", out)
		}
	})

	t.Run("sync status as JSON", func(t *testing.T) {
		if err := h.run("sync", "status", "--format", "json", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var status struct {
			IsRunning   bool             `json:"isRunning"`
			RecentSyncs []map[string]any `json:"recentSyncs"`
		}
		if err := json.Unmarshal(h.out.Bytes(), &status); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if status.IsRunning || len(status.RecentSyncs) != 1 || status.RecentSyncs[0]["status"] != "failed" {
			t.Errorf("unexpected status: %+v", status)
		}
	})

	t.Run("sync status rejects unknown format", func(t *testing.T) {
		err := h.run("sync", "status", "--format", "xml", id)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("sync settings", func(t *testing.T) {
		if err := h.run("sync", "settings", "--auto-sync", "--interval", "15", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := h.out.String()
		if !strings.Contains(out, "auto-sync: on") || !strings.Contains(out, "interval:  15 minutes") {
			t.Errorf("unexpected output: %s", out)
		}

		if err := h.run("sync", "settings", "--auto-sync=false", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(h.out.String(), "auto-sync: off") || !strings.Contains(h.out.String(), "15 minutes") {
			t.Errorf("expected interval kept, got %s", h.out.String())
		}

		err := h.run("sync", "settings", "--interval", "0", id)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("accounts destination", func(t *testing.T) {
		err := h.run("accounts", "destination", "--token", "wrong", "--database", "db1", id)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}

		if err := h.run("accounts", "destination", "--token", "secret", "--database", "db1", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(h.out.String(), `"My Tasks"`) {
			t.Errorf("unexpected output: %s", h.out.String())
		}

		h.run("accounts", "list")
		if !strings.Contains(h.out.String(), "destination: db1") {
			t.Errorf("expected destination in listing, got %s", h.out.String())
		}
	})

	t.Run("deactivate and activate", func(t *testing.T) {
		if err := h.run("accounts", "deactivate", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h.run("accounts", "list")
		if !strings.Contains(h.out.String(), "(inactive)") {
			t.Errorf("expected inactive marker, got %s", h.out.String())
		}
		if err := h.run("accounts", "activate", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("tasks stats and list on an empty mirror", func(t *testing.T) {
		if err := h.run("tasks", "stats", "--json", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var stats map[string]int
		json.Unmarshal(h.out.Bytes(), &stats)
		if stats["total"] != 0 {
			t.Errorf("expected empty stats, got %v", stats)
		}

		if err := h.run("tasks", "list", "--format", "csv", id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(h.out.String(), "ID,Task ID,Page ID") {
			t.Errorf("expected CSV header, got %s", h.out.String())
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		err := h.run("tasks", "list", "missing")
		if !errors.Is(err, shared.ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("missing account argument", func(t *testing.T) {
		err := h.run("sync", "status")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("sweep skips accounts without a due interval", func(t *testing.T) {
		if err := h.run("sync", "sweep", "--json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var report map[string]int
		if err := json.Unmarshal(h.out.Bytes(), &report); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		// auto-sync was turned off above.
		if report["evaluated"] != 0 || report["dispatched"] != 0 {
			t.Errorf("unexpected report: %v", report)
		}
	})
}

func TestStartRemote(t *testing.T) {
	t.Run("returns the run id", func(t *testing.T) {
		var gotAuth, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth, gotPath = r.Header.Get("Authorization"), r.URL.Path
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"message":"Sync started","syncId":"run-1"}`))
		}))
		defer srv.Close()

		config := shared.DefaultConfig()
		config.Server.APIKey = "k"
		runner := NewRunner(RunnerOpts{Config: config})

		id, err := runner.startRemote(context.Background(), srv.URL+"/", "acc 1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "run-1" {
			t.Errorf("expected run-1, got %s", id)
		}
		if gotAuth != "Bearer k" {
			t.Errorf("expected bearer key, got %q", gotAuth)
		}
		if gotPath != "/api/accounts/acc 1/sync" {
			t.Errorf("unexpected path %q", gotPath)
		}
	})

	t.Run("maps API errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"conflict","message":"sync already in progress"}`))
		}))
		defer srv.Close()

		_, err := NewRunner(RunnerOpts{}).startRemote(context.Background(), srv.URL, "acc-1")
		if !errors.Is(err, shared.ErrAlreadyRunning) {
			t.Errorf("expected ErrAlreadyRunning, got %v", err)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
		runner := NewRunner(RunnerOpts{HTTPClient: client})

		_, err := runner.startRemote(context.Background(), "", "acc-1")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestRemoteError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, shared.ErrAlreadyRunning},
		{http.StatusNotFound, shared.ErrAccountNotFound},
		{http.StatusServiceUnavailable, shared.ErrServiceUnavailable},
		{http.StatusPreconditionFailed, shared.ErrNotConfigured},
		{http.StatusBadRequest, shared.ErrInvalidInput},
		{http.StatusUnauthorized, shared.ErrAuthFailed},
		{http.StatusInternalServerError, shared.ErrAPIRequest},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := remoteError(tt.status); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
