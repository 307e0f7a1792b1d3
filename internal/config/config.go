package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/circlesync/internal/logging"
)

// Environment variables applied after the config file.
const (
	EnvListen      = "CIRCLESYNC_LISTEN"
	EnvDatabase    = "CIRCLESYNC_DB"
	EnvJWTSecret   = "CIRCLESYNC_JWT_SECRET"
	EnvLogLevel    = "CIRCLESYNC_LOG_LEVEL"
	EnvCORSOrigins = "CIRCLESYNC_CORS_ORIGINS"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// CORSOrigins lists allowed browser origins. Empty disables CORS.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig holds the engine limits.
type SyncConfig struct {
	PullDefaultLimit int `yaml:"pull_default_limit"`
	PullMaxLimit     int `yaml:"pull_max_limit"`
	PushMaxBatch     int `yaml:"push_max_batch"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// Secret is the HS256 key. Prefer CIRCLESYNC_JWT_SECRET over the file.
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every documented default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            DefaultListenAddress,
			MaxBodyBytes:      DefaultMaxBodyBytes,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Sync: SyncConfig{
			PullDefaultLimit: DefaultPullLimit,
			PullMaxLimit:     DefaultPullMaxLimit,
			PushMaxBatch:     DefaultPushMaxBatch,
		},
		Auth: AuthConfig{
			Issuer:   DefaultTokenIssuer,
			TokenTTL: DefaultTokenTTL,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads path (when non-empty) over the defaults and applies the
// environment. Unknown keys in the file are errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from the CIRCLESYNC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Server.Listen = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.Auth.Secret = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvCORSOrigins); ok {
		c.Server.CORSOrigins = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if c.Sync.PullDefaultLimit < 1 {
		errs = append(errs, fmt.Errorf("sync.pull_default_limit must be positive, got %d", c.Sync.PullDefaultLimit))
	}
	if c.Sync.PullMaxLimit < c.Sync.PullDefaultLimit {
		errs = append(errs, fmt.Errorf("sync.pull_max_limit (%d) must be at least pull_default_limit (%d)",
			c.Sync.PullMaxLimit, c.Sync.PullDefaultLimit))
	}
	if c.Sync.PushMaxBatch < 1 {
		errs = append(errs, fmt.Errorf("sync.push_max_batch must be positive, got %d", c.Sync.PushMaxBatch))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ValidateServe adds the checks only the HTTP server needs.
func (c *Config) ValidateServe() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.Secret == "" {
		errs = append(errs, fmt.Errorf("auth secret is required (set %s)", EnvJWTSecret))
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Server.MaxBodyBytes < 1 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	return errors.Join(errs...)
}
