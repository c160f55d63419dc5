package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./taskmirror.db" {
			t.Errorf("expected database path ./taskmirror.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Sync.SweepSchedule != "@every 5m" {
			t.Errorf("expected sweep schedule @every 5m, got %s", config.Sync.SweepSchedule)
		}

		if config.Sync.DefaultIntervalMinutes != 30 {
			t.Errorf("expected default interval 30, got %d", config.Sync.DefaultIntervalMinutes)
		}

		if config.Sync.CallTimeout != 30*time.Second {
			t.Errorf("expected call timeout 30s, got %v", config.Sync.CallTimeout)
		}

		if config.Sync.RunLease != time.Hour {
			t.Errorf("expected run lease 1h, got %v", config.Sync.RunLease)
		}

		if config.Notion.Version != "2022-06-28" {
			t.Errorf("expected notion version 2022-06-28, got %s", config.Notion.Version)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate, got %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080
api_key = "secret"

[google]
client_id = "test_client_id"
client_secret = "test_secret"

[sync]
workers = 2
call_timeout = "5s"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}

		if config.Google.ClientID != "test_client_id" {
			t.Errorf("expected google client_id test_client_id, got %s", config.Google.ClientID)
		}

		if config.Sync.Workers != 2 {
			t.Errorf("expected 2 workers, got %d", config.Sync.Workers)
		}

		if config.Sync.CallTimeout != 5*time.Second {
			t.Errorf("expected call timeout 5s, got %v", config.Sync.CallTimeout)
		}

		if config.Sync.QueueSize != 64 {
			t.Errorf("expected unset queue size to keep default 64, got %d", config.Sync.QueueSize)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name   string
			mutate func(*Config)
		}{
			{name: "empty database path", mutate: func(c *Config) { c.Database.Path = "" }},
			{name: "zero workers", mutate: func(c *Config) { c.Sync.Workers = 0 }},
			{name: "zero queue", mutate: func(c *Config) { c.Sync.QueueSize = 0 }},
			{name: "zero item workers", mutate: func(c *Config) { c.Sync.ItemWorkers = 0 }},
			{name: "zero interval", mutate: func(c *Config) { c.Sync.DefaultIntervalMinutes = 0 }},
			{name: "zero timeout", mutate: func(c *Config) { c.Sync.CallTimeout = 0 }},
			{name: "zero lease", mutate: func(c *Config) { c.Sync.RunLease = 0 }},
			{name: "zero rate", mutate: func(c *Config) { c.Notion.RequestsPerSecond = 0 }},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})
}
