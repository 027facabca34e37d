package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SettingsFile is the settings file name looked up in each config location.
const SettingsFile = "ctf_settings.yml"

// envBindings maps config keys to their short environment variable names.
// Every key is also reachable as CTF_<KEY> with dots replaced by underscores.
var envBindings = map[string]string{
	"dev_name":              "CTF_DEV_NAME",
	"store.backend":         "CTF_STORE_BACKEND",
	"store.firebase.uri":    "CTF_FIREBASE_URI",
	"store.firebase.secret": "CTF_FIREBASE_SECRET",
	"store.sqlite.path":     "CTF_SQLITE_PATH",
	"boards.binary_path":    "CTF_AZ_PATH",
	"log.level":             "CTF_LOG_LEVEL",
}

// Loader handles configuration loading with Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new Loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load reads the first settings file found in the standard locations,
// applies environment overrides, and returns the merged configuration.
// A missing settings file is not an error.
func (l *Loader) Load() (*Config, error) {
	l.prepare()

	path, err := findSettingsFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadFromFile reads configuration from path, with environment overrides.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.prepare()

	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

// ConfigFileUsed returns the settings file read by the last load, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) prepare() {
	setDefaults(l.v, DefaultConfig())

	l.v.SetEnvPrefix("CTF")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	for key, env := range envBindings {
		// BindEnv only fails without a key.
		_ = l.v.BindEnv(key, env, "CTF_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("dev_name", d.DevName)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.firebase.uri", d.Store.Firebase.URI)
	v.SetDefault("store.firebase.secret", d.Store.Firebase.Secret)
	v.SetDefault("store.firebase.timeout", d.Store.Firebase.Timeout)
	v.SetDefault("store.firebase.max_retries", d.Store.Firebase.MaxRetries)
	v.SetDefault("store.sqlite.path", d.Store.SQLite.Path)
	v.SetDefault("boards.enabled", d.Boards.Enabled)
	v.SetDefault("boards.binary_path", d.Boards.BinaryPath)
	v.SetDefault("report.unplanned_type", d.Report.UnplannedType)
	v.SetDefault("report.concurrency", d.Report.Concurrency)
	v.SetDefault("report.sprint_days", d.Report.SprintDays)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// findSettingsFile returns the highest-priority settings file that exists,
// or "" if there is none. CTF_CONFIG_PATH must exist when set.
func findSettingsFile() (string, error) {
	if p := os.Getenv("CTF_CONFIG_PATH"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("error reading config file: %w", err)
		}
		return p, nil
	}

	var candidates []string
	if dir := os.Getenv("CTF_DIR"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, SettingsFile))
	}
	if p, err := DefaultConfigPath(); err == nil {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, SettingsFile)

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error reading config file: %w", err)
		}
	}
	return "", nil
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
