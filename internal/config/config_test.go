package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/songgrid/pkg/grid"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "songgrid.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
server:
  port: 8081
  static_dir: ./client/build
database:
  url: postgres://grid@localhost/grid?sslmode=disable
  timeout: 3s
redis:
  url: redis://localhost:6379/0
  namespace: prod
spotify:
  client_id: abc
  client_secret: def
  batch_size: 20
edit:
  cooldown_minutes: 10
  min_username: 2
  max_username: 20
grid:
  rows: 10
  cols: 12
logging:
  level: debug
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, ":8081", config.Server.Addr())
	assert.Equal(t, "./client/build", config.Server.StaticDir)
	assert.Equal(t, 3*time.Second, config.Database.Timeout)
	assert.Equal(t, DefaultTable, config.Database.Table)
	assert.Equal(t, "prod", config.Redis.Namespace)
	assert.Equal(t, 20, config.Spotify.BatchSize)
	assert.Equal(t, 10*time.Minute, config.Edit.Cooldown())
	assert.Equal(t, 2, config.Edit.MinUsername)
	assert.Equal(t, 20, config.Edit.MaxUsername)
	assert.Equal(t, grid.Extent{Rows: 10, Cols: 12}, config.Grid)
	assert.True(t, config.HasCredentials())
	assert.NoError(t, config.RequireServe())
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/songgrid.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  - this is invalid\n    yaml syntax\n")

	config, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_NoFile(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, config.Server.Port)
}

func TestValidate_Defaults(t *testing.T) {
	var config Config
	require.NoError(t, config.Validate())

	assert.Equal(t, DefaultPort, config.Server.Port)
	assert.Equal(t, int64(DefaultMaxBodyBytes), config.Server.MaxBodyBytes)
	assert.Equal(t, DefaultShutdownTimeout, config.Server.ShutdownTimeout)
	assert.Equal(t, DefaultTable, config.Database.Table)
	assert.Equal(t, DefaultStoreTimeout, config.Database.Timeout)
	assert.Equal(t, DefaultStoreTimeout, config.Redis.Timeout)
	assert.Equal(t, DefaultProviderTimeout, config.Spotify.Timeout)
	assert.Equal(t, DefaultBatchSize, config.Spotify.BatchSize)
	assert.Equal(t, DefaultCooldownMinutes, config.Edit.CooldownMinutes)
	assert.Equal(t, 30*time.Minute, config.Edit.Cooldown())
	assert.Equal(t, 3, config.Edit.MinUsername)
	assert.Equal(t, 15, config.Edit.MaxUsername)
	assert.Equal(t, grid.DefaultExtent(), config.Grid)
	assert.Equal(t, "info", config.Logging.Level)
	assert.False(t, config.HasCredentials())
}

func TestValidate_Errors(t *testing.T) {
	negative := -1
	cases := map[string]struct {
		config Config
		want   string
	}{
		"bad version":        {Config{Version: "2.0"}, "unsupported version"},
		"bad port":           {Config{Server: ServerConfig{Port: 70000}}, "server.port"},
		"batch too large":    {Config{Spotify: SpotifyConfig{BatchSize: 51}}, "spotify.batch_size"},
		"negative batch":     {Config{Spotify: SpotifyConfig{BatchSize: -5}}, "spotify.batch_size"},
		"negative cooldown":  {Config{Edit: EditConfig{CooldownMinutes: negative}}, "edit.cooldown_minutes"},
		"inverted usernames": {Config{Edit: EditConfig{MinUsername: 10, MaxUsername: 5}}, "edit.min_username"},
		"negative grid":      {Config{Grid: grid.Extent{Rows: -1, Cols: 20}}, "grid extent"},
		"bad log level":      {Config{Logging: LoggingConfig{Level: "loud"}}, "logging.level"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_ZeroCooldownFallsBackToDefault(t *testing.T) {
	config := Config{Edit: EditConfig{CooldownMinutes: 0}}
	require.NoError(t, config.Validate())
	assert.Equal(t, DefaultCooldownMinutes, config.Edit.CooldownMinutes)
	assert.Equal(t, 30*time.Minute, config.Edit.Cooldown())

	t.Run("from the environment", func(t *testing.T) {
		var config Config
		require.NoError(t, config.ApplyEnv(env(map[string]string{"EDIT_COOLDOWN_MINUTES": "0"})))
		require.NoError(t, config.Validate())
		assert.Equal(t, 30*time.Minute, config.Edit.Cooldown())
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides file values", func(t *testing.T) {
		config := Config{Server: ServerConfig{Port: 8081}, Database: DatabaseConfig{URL: "postgres://file"}}
		err := config.ApplyEnv(env(map[string]string{
			"DATABASE_URL":          "postgres://env",
			"REDIS_URL":             "redis://env:6379",
			"CLIENT_ID":             " id ",
			"CLIENT_SECRET":         "secret",
			"PORT":                  "9000",
			"EDIT_COOLDOWN_MINUTES": "0",
			"STATIC_DIR":            "/srv/www",
			"LOG_LEVEL":             "warn",
		}))
		require.NoError(t, err)
		require.NoError(t, config.Validate())

		assert.Equal(t, "postgres://env", config.Database.URL)
		assert.Equal(t, "redis://env:6379", config.Redis.URL)
		assert.Equal(t, "id", config.Spotify.ClientID)
		assert.Equal(t, 9000, config.Server.Port)
		assert.Equal(t, 30*time.Minute, config.Edit.Cooldown())
		assert.Equal(t, "/srv/www", config.Server.StaticDir)
		assert.Equal(t, "warn", config.Logging.Level)
	})

	t.Run("blank variables are ignored", func(t *testing.T) {
		config := Config{Database: DatabaseConfig{URL: "postgres://file"}}
		require.NoError(t, config.ApplyEnv(env(map[string]string{"DATABASE_URL": "  ", "PORT": ""})))
		assert.Equal(t, "postgres://file", config.Database.URL)
		assert.Zero(t, config.Server.Port)
	})

	t.Run("rejects non-numeric values", func(t *testing.T) {
		var config Config
		assert.ErrorContains(t, config.ApplyEnv(env(map[string]string{"PORT": "http"})), "invalid PORT")
		assert.ErrorContains(t, config.ApplyEnv(env(map[string]string{"EDIT_COOLDOWN_MINUTES": "soon"})), "invalid EDIT_COOLDOWN_MINUTES")
	})
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://file\nedit:\n  cooldown_minutes: 45\n")
	t.Setenv("DATABASE_URL", "memory://")
	t.Setenv("EDIT_COOLDOWN_MINUTES", "5")

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory://", config.Database.URL)
	assert.Equal(t, 5*time.Minute, config.Edit.Cooldown())
}

func TestRequireServe(t *testing.T) {
	config := Config{}
	assert.ErrorContains(t, config.RequireServe(), "database url")

	config.Database.URL = "memory://"
	assert.ErrorContains(t, config.RequireServe(), "redis url")

	config.Redis.URL = "redis://localhost:6379"
	assert.NoError(t, config.RequireServe())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SONGGRID_TEST_DOTENV=from-file\nSONGGRID_TEST_KEEP=from-file\n"), 0644))

	t.Setenv("SONGGRID_TEST_KEEP", "from-env")
	t.Cleanup(func() { os.Unsetenv("SONGGRID_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("SONGGRID_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("SONGGRID_TEST_KEEP"))
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "error"} {
		log, err := NewLogger(level)
		require.NoError(t, err)
		assert.NotNil(t, log)
	}

	_, err := NewLogger("chatty")
	assert.Error(t, err)
}
