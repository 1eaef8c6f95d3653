// Package config loads tool configuration from a TOML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all operator-tunable settings.
type Config struct {
	// GroupMe API.
	AccessToken string `toml:"access_token"`
	APIBaseURL  string `toml:"api_base_url"`

	// Rate limiting (sliding window).
	RateLimitCalls  int `toml:"rate_limit_calls"`
	RateLimitPeriod int `toml:"rate_limit_period_seconds"`

	// Sync behavior.
	PageSize       int      `toml:"page_size"`
	MaxRetries     int      `toml:"max_retries"`
	RetryDelay     int      `toml:"retry_delay_seconds"`
	RetryBackoff   float64  `toml:"retry_backoff_multiplier"`
	Concurrency    int      `toml:"concurrency"`
	BackupGroupIDs []string `toml:"backup_group_ids"`

	// Storage.
	DataDir string `toml:"data_dir"`
}

// Defaults returns a config with the documented default values.
func Defaults() *Config {
	return &Config{
		APIBaseURL:      "https://api.groupme.com/v3",
		RateLimitCalls:  100,
		RateLimitPeriod: 60,
		PageSize:        100,
		MaxRetries:      3,
		RetryDelay:      5,
		RetryBackoff:    2.0,
		Concurrency:     1,
		DataDir:         defaultDataDir(),
	}
}

// Load reads config from path (if it exists), applies environment overrides,
// and validates the result. A .env file in the working directory is honored.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GROUPME_ACCESS_TOKEN"); v != "" {
		c.AccessToken = v
	}
	if v := os.Getenv("GROUPME_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("GROUPME_RATE_LIMIT_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitCalls = n
		}
	}
	if v := os.Getenv("GROUPME_RATE_LIMIT_PERIOD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitPeriod = n
		}
	}
	if v := os.Getenv("GROUPME_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BACKUP_GROUP_IDS"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.BackupGroupIDs = ids
	}
}

// Validate checks the config at startup, before anything touches the network
// or the database.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return errors.New("access token is required (set GROUPME_ACCESS_TOKEN or access_token in config)")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("page_size must be 1..100, got %d", c.PageSize)
	}
	if c.RateLimitCalls < 1 {
		return fmt.Errorf("rate_limit_calls must be positive, got %d", c.RateLimitCalls)
	}
	if c.RateLimitPeriod < 1 {
		return fmt.Errorf("rate_limit_period_seconds must be positive, got %d", c.RateLimitPeriod)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}

// DBPath returns the SQLite database path inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "groupme.db")
}

// LogPath returns the JSON log file path inside the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "backup.log")
}

// RateLimitWindow returns the rate-limit period as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitPeriod) * time.Second
}

// RetryInitialDelay returns the first-retry delay as a duration.
func (c *Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".groupme-backup"
	}
	return filepath.Join(home, ".groupme-backup")
}
