package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "circlesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Listen)
	assert.Equal(t, int64(4<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "circlesync.db", cfg.Database.Path)
	assert.Equal(t, 100, cfg.Sync.PullDefaultLimit)
	assert.Equal(t, 500, cfg.Sync.PullMaxLimit)
	assert.Equal(t, 500, cfg.Sync.PushMaxBatch)
	assert.Equal(t, "circlesync", cfg.Auth.Issuer)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateServe(), "no secret by default")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	path := writeConfig(t, `
server:
  listen: ":9000"
  shutdown_timeout: 30s
  cors_origins: ["https://app.example.com"]
database:
  path: /var/lib/circlesync/data.db
sync:
  pull_max_limit: 1000
auth:
  secret: from-file
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/var/lib/circlesync/data.db", cfg.Database.Path)
	assert.Equal(t, 1000, cfg.Sync.PullMaxLimit)
	assert.Equal(t, 100, cfg.Sync.PullDefaultLimit, "unset keys keep their default")
	assert.Equal(t, "from-file", cfg.Auth.Secret)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.ValidateServe())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddress, cfg.Server.Listen)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 80\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		EnvListen:      "0.0.0.0:80",
		EnvDatabase:    "/tmp/x.db",
		EnvJWTSecret:   "s3cret",
		EnvLogLevel:    "debug",
		EnvCORSOrigins: " https://a.example , ,https://b.example",
	}))

	assert.Equal(t, "0.0.0.0:80", cfg.Server.Listen)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	// Empty values do not clear settings.
	cfg.ApplyEnv(envMap(map[string]string{EnvListen: ""}))
	assert.Equal(t, "0.0.0.0:80", cfg.Server.Listen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"zero default limit", func(c *Config) { c.Sync.PullDefaultLimit = 0 }, "pull_default_limit"},
		{"default above max", func(c *Config) { c.Sync.PullDefaultLimit = 600 }, "pull_max_limit"},
		{"zero batch", func(c *Config) { c.Sync.PushMaxBatch = 0 }, "push_max_batch"},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
