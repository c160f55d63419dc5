package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		name  string
		level string
		want  log.Level
	}{
		{name: "empty defaults to info", level: "", want: log.InfoLevel},
		{name: "debug", level: "debug", want: log.DebugLevel},
		{name: "mixed case", level: "WaRn", want: log.WarnLevel},
		{name: "unknown defaults to info", level: "chatty", want: log.InfoLevel},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLogLevel(tt.level); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithLogger(NewLogger(&buf), "account", "acct-1")
	logger.Info("sync started")

	out := buf.String()
	if !strings.Contains(out, "sync started") || !strings.Contains(out, "acct-1") {
		t.Errorf("expected message and context in output, got %q", out)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected unique IDs")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected a valid uuid, got %q", a)
	}
}

func TestTruncate(t *testing.T) {
	tc := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "exactly10!", n: 10, want: "exactly10!"},
		{in: "a longer message", n: 8, want: "a lon..."},
		{in: "abc", n: 2, want: "ab"},
		{in: "unbounded", n: 0, want: "unbounded"},
	}

	for _, tt := range tc {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestDSN(t *testing.T) {
	if got := DSN("app.db"); got != "app.db?"+sqliteParams {
		t.Errorf("unexpected DSN %q", got)
	}
	if got := DSN("file:app.db?mode=rwc"); got != "file:app.db?mode=rwc&"+sqliteParams {
		t.Errorf("unexpected DSN %q", got)
	}
}
