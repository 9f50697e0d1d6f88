package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds persistent CLI configuration loaded from ~/.keyring/config.yaml.
type Config struct {
	// Backend selects the credential store: auto, keychain,
	// secret-service, credential or memory.
	Backend string `yaml:"backend"`
	// Store is the default store used when --store is not given.
	Store          string `yaml:"store"`
	AuditLog       string `yaml:"audit_log"`
	DisableAudit   bool   `yaml:"disable_audit"`
	LogLevel       string `yaml:"log_level"`
	Schema         string `yaml:"schema"`
	SearchListLock string `yaml:"search_list_lock"`
}

// Home returns the keyring home directory (~/.keyring).
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".keyring"), nil
}

// DefaultPath returns the default config file path: ~/.keyring/config.yaml.
func DefaultPath() string {
	home, err := Home()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "config.yaml")
}

// Load reads a YAML config file from path and fills unset fields with
// defaults. A missing, empty or all-comment file yields the defaults.
// LogLevel is not checked here; callers validate it with Level once any
// overrides are applied.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = "auto"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	home, err := Home()
	if err != nil {
		return
	}
	if c.AuditLog == "" {
		c.AuditLog = filepath.Join(home, "audit.log")
	}
	if c.SearchListLock == "" {
		c.SearchListLock = filepath.Join(home, "searchlist.lock")
	}
}

// Level parses LogLevel as a slog level name (debug, info, warn, error).
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
