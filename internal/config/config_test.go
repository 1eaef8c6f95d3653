package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.RateLimitCalls != 100 || cfg.RateLimitPeriod != 60 {
		t.Errorf("rate limit defaults = %d/%ds, want 100/60s", cfg.RateLimitCalls, cfg.RateLimitPeriod)
	}
	if cfg.PageSize != 100 {
		t.Errorf("page_size default = %d, want 100", cfg.PageSize)
	}
	if cfg.APIBaseURL != "https://api.groupme.com/v3" {
		t.Errorf("api_base_url default = %q", cfg.APIBaseURL)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("GROUPME_ACCESS_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
access_token = "tok-from-file"
rate_limit_calls = 50
page_size = 25
backup_group_ids = ["111", "222"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AccessToken != "tok-from-file" {
		t.Errorf("access_token = %q", cfg.AccessToken)
	}
	if cfg.RateLimitCalls != 50 {
		t.Errorf("rate_limit_calls = %d, want 50", cfg.RateLimitCalls)
	}
	if cfg.PageSize != 25 {
		t.Errorf("page_size = %d, want 25", cfg.PageSize)
	}
	if len(cfg.BackupGroupIDs) != 2 || cfg.BackupGroupIDs[0] != "111" {
		t.Errorf("backup_group_ids = %v", cfg.BackupGroupIDs)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`access_token = "file"`), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GROUPME_ACCESS_TOKEN", "env")
	t.Setenv("BACKUP_GROUP_IDS", "1, 2 ,3,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AccessToken != "env" {
		t.Errorf("access_token = %q, want env override", cfg.AccessToken)
	}
	if len(cfg.BackupGroupIDs) != 3 || cfg.BackupGroupIDs[2] != "3" {
		t.Errorf("backup_group_ids = %v, want [1 2 3]", cfg.BackupGroupIDs)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.AccessToken = "" }},
		{"page size zero", func(c *Config) { c.PageSize = 0 }},
		{"page size over cap", func(c *Config) { c.PageSize = 101 }},
		{"zero rate limit", func(c *Config) { c.RateLimitCalls = 0 }},
		{"zero period", func(c *Config) { c.RateLimitPeriod = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.AccessToken = "tok"
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := Defaults()
	cfg.AccessToken = "tok"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GROUPME_ACCESS_TOKEN", "tok")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimitCalls != 100 {
		t.Errorf("rate_limit_calls = %d, want default 100", cfg.RateLimitCalls)
	}
}
