package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Google   GoogleConfig   `toml:"google"`
	Notion   NotionConfig   `toml:"notion"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
//
// When APIKey is set, every /api route except health requires "Authorization: Bearer <key>".
type ServerConfig struct {
	Host         string        `toml:"host"`
	Port         int           `toml:"port"`
	APIKey       string        `toml:"api_key"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GoogleConfig contains Google OAuth client credentials for the Tasks API.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	// BaseURL overrides the API endpoint (tests, proxies). Empty uses Google's default.
	BaseURL string `toml:"base_url"`
}

// NotionConfig contains Notion API settings shared by every account.
type NotionConfig struct {
	BaseURL           string  `toml:"base_url"`
	Version           string  `toml:"version"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// SyncConfig contains scheduler, worker pool and timeout settings.
type SyncConfig struct {
	SweepSchedule          string        `toml:"sweep_schedule"`
	DefaultIntervalMinutes int           `toml:"default_interval_minutes"`
	Workers                int           `toml:"workers"`
	QueueSize              int           `toml:"queue_size"`
	ItemWorkers            int           `toml:"item_workers"`
	CallTimeout            time.Duration `toml:"call_timeout"`
	RunLease               time.Duration `toml:"run_lease"`
	RecentRuns             int           `toml:"recent_runs"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Validate reports settings that would leave the sync pipeline unusable.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	case c.Sync.Workers < 1:
		return fmt.Errorf("%w: sync.workers must be at least 1", ErrInvalidConfig)
	case c.Sync.QueueSize < 1:
		return fmt.Errorf("%w: sync.queue_size must be at least 1", ErrInvalidConfig)
	case c.Sync.ItemWorkers < 1:
		return fmt.Errorf("%w: sync.item_workers must be at least 1", ErrInvalidConfig)
	case c.Sync.DefaultIntervalMinutes < 1:
		return fmt.Errorf("%w: sync.default_interval_minutes must be at least 1", ErrInvalidConfig)
	case c.Sync.CallTimeout <= 0:
		return fmt.Errorf("%w: sync.call_timeout must be positive", ErrInvalidConfig)
	case c.Sync.RunLease <= 0:
		return fmt.Errorf("%w: sync.run_lease must be positive", ErrInvalidConfig)
	case c.Notion.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: notion.requests_per_second must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
