// Package config provides configuration loading and management for ctf.
//
// Configuration is loaded using Viper, supporting a YAML settings file and
// environment variable overrides. The defaults work for reading reports from
// a local SQLite log; recording events needs at least a developer name.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [StoreConfig] selects and configures the event log backend
//   - [BoardsConfig] contains az CLI settings
//
// Configuration priority (highest to lowest):
//  1. Environment variables (CTF_ prefix)
//  2. Settings file specified by CTF_CONFIG_PATH
//  3. $CTF_DIR/ctf_settings.yml
//  4. User config directory (platform-standard):
//     - Linux: ~/.config/cycletrack/ctf_settings.yml
//     - macOS: ~/Library/Application Support/cycletrack/ctf_settings.yml
//     - Windows: %APPDATA%\cycletrack\ctf_settings.yml
//  5. ./ctf_settings.yml
//  6. [DefaultConfig] defaults
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Store backends.
const (
	BackendFirebase = "firebase"
	BackendSQLite   = "sqlite"
)

// Validation errors.
var (
	// ErrMissingDevName indicates dev_name is unset. Needed to record events.
	ErrMissingDevName = errors.New("dev_name is not configured (set it in ctf_settings.yml or CTF_DEV_NAME)")

	// ErrMissingFirebaseURI indicates the firebase backend has no uri.
	ErrMissingFirebaseURI = errors.New("store.firebase.uri is not configured (set CTF_FIREBASE_URI)")

	// ErrUnknownBackend indicates store.backend is not a known backend.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Config represents the root configuration structure.
type Config struct {
	// DevName is recorded on every event this user creates.
	DevName string `mapstructure:"dev_name" yaml:"dev_name"`

	// Store selects the event log.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Boards contains Azure Boards (az CLI) settings.
	Boards BoardsConfig `mapstructure:"boards" yaml:"boards"`

	// Report contains sprint report settings.
	Report ReportConfig `mapstructure:"report" yaml:"report"`

	// Log contains diagnostic logging settings.
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// StoreConfig selects the event log backend.
type StoreConfig struct {
	// Backend is "firebase" or "sqlite". Default: "sqlite".
	Backend string `mapstructure:"backend" yaml:"backend"`

	Firebase FirebaseConfig `mapstructure:"firebase" yaml:"firebase"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
}

// FirebaseConfig configures the Firebase Realtime Database backend.
type FirebaseConfig struct {
	// URI is the database root, e.g. https://project.firebaseio.com.
	// Can be overridden with CTF_FIREBASE_URI.
	URI string `mapstructure:"uri" yaml:"uri"`

	// Secret is the database secret. Can be overridden with CTF_FIREBASE_SECRET.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Timeout bounds each request. Default: 15s.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MaxRetries bounds retries of transient failures. Default: 3.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// SQLiteConfig configures the local SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. Default: events.db in the config directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// BoardsConfig contains az CLI settings.
type BoardsConfig struct {
	// Enabled turns on work item lookups and updates. Default: true.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BinaryPath is the az executable. Default: "az".
	// Can be overridden with CTF_AZ_PATH.
	BinaryPath string `mapstructure:"binary_path" yaml:"binary_path"`
}

// ReportConfig contains sprint report settings.
type ReportConfig struct {
	// UnplannedType is the work item type left out of reports.
	// Default: "Production Support Incident".
	UnplannedType string `mapstructure:"unplanned_type" yaml:"unplanned_type"`

	// Concurrency bounds parallel story lookups. Default: 8.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// SprintDays is the length of one sprint. Default: 14.
	SprintDays int `mapstructure:"sprint_days" yaml:"sprint_days"`
}

// LogConfig contains diagnostic logging settings.
type LogConfig struct {
	// Level is a logrus level name. Default: "warn".
	// Can be overridden with CTF_LOG_LEVEL.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "text" or "json". Default: "text".
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	sqlitePath := "ctf_events.db"
	if dir, err := ConfigDir(); err == nil {
		sqlitePath = filepath.Join(dir, "events.db")
	}

	return &Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			Firebase: FirebaseConfig{
				Timeout:    15 * time.Second,
				MaxRetries: 3,
			},
			SQLite: SQLiteConfig{
				Path: sqlitePath,
			},
		},
		Boards: BoardsConfig{
			Enabled:    true,
			BinaryPath: "az",
		},
		Report: ReportConfig{
			UnplannedType: "Production Support Incident",
			Concurrency:   8,
			SprintDays:    14,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Validate checks the store settings. When forWrite is set it also requires
// a developer name.
func (c *Config) Validate(forWrite bool) error {
	if forWrite && strings.TrimSpace(c.DevName) == "" {
		return ErrMissingDevName
	}
	switch c.Store.Backend {
	case BackendFirebase:
		if strings.TrimSpace(c.Store.Firebase.URI) == "" {
			return ErrMissingFirebaseURI
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	return nil
}

// SprintLength returns Report.SprintDays as a duration.
func (c *Config) SprintLength() time.Duration {
	days := c.Report.SprintDays
	if days <= 0 {
		days = 14
	}
	return time.Duration(days) * 24 * time.Hour
}
