package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// SourceURL is the upstream merged ICS feed. When empty, LocalFallback
	// is read instead.
	SourceURL string `yaml:"source_url" json:"source_url"`

	// LocalFallback is a local ICS file used when no SourceURL is set.
	LocalFallback string `yaml:"local_fallback" json:"local_fallback"`

	// RulesDir holds one JSON rule document per course.
	RulesDir string `yaml:"rules_dir" json:"rules_dir"`

	// FeedsDir receives the generated {course}--{token}.ics files.
	FeedsDir string `yaml:"feeds_dir" json:"feeds_dir"`

	// TokenDB is the bbolt database holding course -> feed token.
	TokenDB string `yaml:"token_db" json:"token_db"`

	// CacheDir stores the upstream body and conditional-request state.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is the cron schedule for periodic regeneration when the
	// process runs in watch mode (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CatchAll, when non-empty, names the bucket that collects events no
	// course claims. Empty means such events are dropped.
	CatchAll string `yaml:"catch_all" json:"catch_all"`

	// ExpandRecurring flattens RRULE events into concrete occurrences
	// (within HorizonDays) before classification.
	ExpandRecurring bool `yaml:"expand_recurring" json:"expand_recurring"`

	// HorizonDays bounds recurrence flattening.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// Listen, when non-empty, starts an HTTP server exposing the feeds
	// directory and a health endpoint.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		LocalFallback: "personal.ics",
		RulesDir:      "rules",
		FeedsDir:      "feeds",
		TokenDB:       "var/tokens.db",
		CacheDir:      "var/ics-cache",
		RefreshCron:   "*/15 * * * *",
		HorizonDays:   120,
		LogLevel:      "INFO",
	}
}

// Normalize fills in missing values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.LocalFallback == "" {
		c.LocalFallback = d.LocalFallback
	}
	if c.RulesDir == "" {
		c.RulesDir = d.RulesDir
	}
	if c.FeedsDir == "" {
		c.FeedsDir = d.FeedsDir
	}
	if c.TokenDB == "" {
		c.TokenDB = d.TokenDB
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Load loads configuration from the given YAML path. A missing file is not
// an error: the defaults are written there with 0600 perms and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".coursecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
