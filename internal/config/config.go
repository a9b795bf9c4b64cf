// Package config handles Muster configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds Muster configuration
type Config struct {
	// Database path (SQLite)
	DatabasePath string `yaml:"database_path"`

	// Worker pool size for phase jobs
	Workers int `yaml:"workers"`

	// Git settings
	CheckoutDir string `yaml:"checkout_dir"`
	RepoURL     string `yaml:"repo_url"`
	BaseBranch  string `yaml:"base_branch"`

	// Agent settings
	AgentPath string `yaml:"agent_path"`

	// Tracker API settings
	TrackerBaseURL string `yaml:"tracker_base_url"`
	TrackerToken   string `yaml:"tracker_token"`

	// Tracker workflow status names, applied best-effort on transitions
	StatusStarted  string `yaml:"status_started"`
	StatusInReview string `yaml:"status_in_review"`
	StatusDone     string `yaml:"status_done"`

	// Webhook server settings
	ListenAddr    string `yaml:"listen_addr"`
	TrackerSecret string `yaml:"tracker_secret"`
	HostSecret    string `yaml:"host_secret"`

	// Mention pattern that triggers the PR-comment phase
	TriggerPhrase string `yaml:"trigger_phrase"`

	// How long shutdown waits for running phase jobs to drain
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Verbose mode for debugging
	Verbose bool `yaml:"verbose"`
}

// Load loads configuration from the optional config file, then applies
// environment overrides and defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:    filepath.Join(".muster", "muster.db"),
		Workers:         3,
		CheckoutDir:     filepath.Join(".muster", "checkouts"),
		BaseBranch:      "main",
		AgentPath:       "claude",
		StatusStarted:   "In Progress",
		StatusInReview:  "In Review",
		StatusDone:      "Done",
		ListenAddr:      ":8080",
		TriggerPhrase:   "@muster",
		ShutdownTimeout: 30 * time.Second,
	}

	if err := loadFile(cfg); err != nil {
		return nil, err
	}

	// Environment overrides
	if v := os.Getenv("MUSTER_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("MUSTER_WORKERS"); v != "" {
		cfg.Workers = parseIntOrDefault(v, cfg.Workers)
	}
	if v := os.Getenv("MUSTER_CHECKOUT_DIR"); v != "" {
		cfg.CheckoutDir = v
	}
	if v := os.Getenv("MUSTER_REPO_URL"); v != "" {
		cfg.RepoURL = v
	}
	if v := os.Getenv("MUSTER_BASE_BRANCH"); v != "" {
		cfg.BaseBranch = v
	}
	if v := os.Getenv("MUSTER_AGENT_PATH"); v != "" {
		cfg.AgentPath = v
	}
	if v := os.Getenv("MUSTER_TRACKER_BASE_URL"); v != "" {
		cfg.TrackerBaseURL = v
	}
	if v := os.Getenv("MUSTER_TRACKER_TOKEN"); v != "" {
		cfg.TrackerToken = v
	}
	if v := os.Getenv("MUSTER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MUSTER_TRACKER_SECRET"); v != "" {
		cfg.TrackerSecret = v
	}
	if v := os.Getenv("MUSTER_HOST_SECRET"); v != "" {
		cfg.HostSecret = v
	}
	if v := os.Getenv("MUSTER_TRIGGER_PHRASE"); v != "" {
		cfg.TriggerPhrase = v
	}
	if v := os.Getenv("MUSTER_SHUTDOWN_TIMEOUT"); v != "" {
		cfg.ShutdownTimeout = parseDurationOrDefault(v, cfg.ShutdownTimeout)
	}
	if v := os.Getenv("MUSTER_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}

	return cfg, nil
}

// loadFile merges the YAML config file into cfg if one exists. Lookup
// order: MUSTER_CONFIG, then ~/.muster/config.yaml.
func loadFile(cfg *Config) error {
	path := os.Getenv("MUSTER_CONFIG")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".muster", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks settings that serve cannot run without.
func (c *Config) Validate() error {
	if c.RepoURL == "" {
		return fmt.Errorf("repo_url is required (set MUSTER_REPO_URL)")
	}
	if c.TrackerBaseURL == "" {
		return fmt.Errorf("tracker_base_url is required (set MUSTER_TRACKER_BASE_URL)")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

func parseIntOrDefault(s string, def int) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return def
	}
	return i
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
