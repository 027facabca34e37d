package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every config location at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	originalWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(originalWd) })

	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	for _, env := range []string{
		"CTF_CONFIG_PATH", "CTF_DIR", "CTF_DEV_NAME", "CTF_FIREBASE_URI",
		"CTF_FIREBASE_SECRET", "CTF_STORE_BACKEND", "CTF_SQLITE_PATH",
		"CTF_AZ_PATH", "CTF_LOG_LEVEL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	return tmpDir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 15*time.Second, cfg.Store.Firebase.Timeout)
	assert.Equal(t, 3, cfg.Store.Firebase.MaxRetries)
	assert.NotEmpty(t, cfg.Store.SQLite.Path)
	assert.True(t, cfg.Boards.Enabled)
	assert.Equal(t, "az", cfg.Boards.BinaryPath)
	assert.Equal(t, "Production Support Incident", cfg.Report.UnplannedType)
	assert.Equal(t, 8, cfg.Report.Concurrency)
	assert.Equal(t, 14*24*time.Hour, cfg.SprintLength())
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		forWrite bool
		wantErr  error
	}{
		{name: "defaults readable", mutate: func(*Config) {}},
		{name: "write needs dev name", mutate: func(*Config) {}, forWrite: true, wantErr: ErrMissingDevName},
		{name: "write with dev name", mutate: func(c *Config) { c.DevName = "Person" }, forWrite: true},
		{
			name:    "firebase needs uri",
			mutate:  func(c *Config) { c.Store.Backend = BackendFirebase },
			wantErr: ErrMissingFirebaseURI,
		},
		{
			name: "firebase with uri",
			mutate: func(c *Config) {
				c.Store.Backend = BackendFirebase
				c.Store.Firebase.URI = "https://example.firebaseio.com"
			},
		},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "mongo" }, wantErr: ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate(tt.forWrite)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoader_LoadFromFile(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "ctf_settings.yml")

	configContent := `
dev_name: Person
store:
  backend: firebase
  firebase:
    uri: https://example.firebaseio.com
    secret: s3cret
    timeout: 5s
boards:
  enabled: false
report:
  sprint_days: 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	loader := NewLoader()
	cfg, err := loader.LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "Person", cfg.DevName)
	assert.Equal(t, BackendFirebase, cfg.Store.Backend)
	assert.Equal(t, "https://example.firebaseio.com", cfg.Store.Firebase.URI)
	assert.Equal(t, "s3cret", cfg.Store.Firebase.Secret)
	assert.Equal(t, 5*time.Second, cfg.Store.Firebase.Timeout)
	assert.Equal(t, 3, cfg.Store.Firebase.MaxRetries)
	assert.False(t, cfg.Boards.Enabled)
	assert.Equal(t, 7*24*time.Hour, cfg.SprintLength())
	assert.Equal(t, configPath, loader.ConfigFileUsed())
}

func TestLoader_LoadFromFile_NonExistent(t *testing.T) {
	_, err := NewLoader().LoadFromFile("/nonexistent/path/ctf_settings.yml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoader_LoadFromFile_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yml")
	invalidContent := `
store:
  - this is not valid yaml for this structure
    missing: colon here
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidContent), 0o644))

	_, err := NewLoader().LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestLoader_Load_DefaultsWithNoConfigFile(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "az", cfg.Boards.BinaryPath)
	assert.Empty(t, cfg.DevName)
}

func TestLoader_Load_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CTF_DEV_NAME", "Env Person")
	t.Setenv("CTF_FIREBASE_URI", "https://env.firebaseio.com")
	t.Setenv("CTF_AZ_PATH", "/opt/az")
	t.Setenv("CTF_REPORT_CONCURRENCY", "2")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "Env Person", cfg.DevName)
	assert.Equal(t, "https://env.firebaseio.com", cfg.Store.Firebase.URI)
	assert.Equal(t, "/opt/az", cfg.Boards.BinaryPath)
	assert.Equal(t, 2, cfg.Report.Concurrency)
}

func TestLoader_Load_WithConfigPathEnv(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("dev_name: From File\nboards:\n  binary_path: /from/file/az\n"), 0o644))

	t.Setenv("CTF_CONFIG_PATH", configPath)
	t.Setenv("CTF_AZ_PATH", "/from/env/az")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "From File", cfg.DevName)
	// env wins over the file
	assert.Equal(t, "/from/env/az", cfg.Boards.BinaryPath)
}

func TestLoader_Load_MissingConfigPathEnv(t *testing.T) {
	isolate(t)
	t.Setenv("CTF_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yml"))

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_Load_CTFDirAndWorkingDir(t *testing.T) {
	wd := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(wd, SettingsFile), []byte("dev_name: Working Dir\n"), 0o644))

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "Working Dir", cfg.DevName)

	ctfDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ctfDir, SettingsFile), []byte("dev_name: CTF Dir\n"), 0o644))
	t.Setenv("CTF_DIR", ctfDir)

	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "CTF Dir", cfg.DevName)
}

func TestMustLoad_Success(t *testing.T) {
	isolate(t)
	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

func TestSave_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", SettingsFile)

	cfg := DefaultConfig()
	cfg.DevName = "Saved Person"
	cfg.Store.Backend = BackendFirebase
	cfg.Store.Firebase.URI = "https://saved.firebaseio.com"
	cfg.Store.Firebase.Timeout = 30 * time.Second
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfigDir(t *testing.T) {
	configDir, err := ConfigDir()
	require.NoError(t, err)
	assert.Contains(t, configDir, "cycletrack")

	configPath, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Contains(t, configPath, SettingsFile)
}

func TestEnsureConfigDir(t *testing.T) {
	isolate(t)
	require.NoError(t, EnsureConfigDir())

	dir, err := ConfigDir()
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
