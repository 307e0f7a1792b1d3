// Package config provides configuration defaults and loading for the
// circlesync server.
//
// Every tunable has a documented default here. Values can be overridden
// in a YAML file (--config) and then by CIRCLESYNC_* environment variables.
package config

import "time"

// =============================================================================
// Server Defaults
// =============================================================================

const (
	// DefaultListenAddress is the HTTP listen address.
	// Override via config: server.listen, env CIRCLESYNC_LISTEN
	DefaultListenAddress = "127.0.0.1:8787"

	// DefaultMaxBodyBytes limits request bodies. A full 500-change batch of
	// maximum-size letters stays well below it.
	// Override via config: server.max_body_bytes
	DefaultMaxBodyBytes = 4 * 1024 * 1024

	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	// Override via config: server.read_header_timeout
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultShutdownTimeout is how long in-flight requests get on shutdown.
	// Override via config: server.shutdown_timeout
	DefaultShutdownTimeout = 15 * time.Second
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDatabasePath is the SQLite database file.
	// Override via config: database.path, env CIRCLESYNC_DB
	DefaultDatabasePath = "circlesync.db"
)

// =============================================================================
// Sync Defaults
// =============================================================================

const (
	// DefaultPullLimit is the page size when GET /sync/changes has no limit.
	// Override via config: sync.pull_default_limit
	DefaultPullLimit = 100

	// DefaultPullMaxLimit caps the limit a client may ask for.
	// Override via config: sync.pull_max_limit
	DefaultPullMaxLimit = 500

	// DefaultPushMaxBatch caps the number of changes in one push.
	// Override via config: sync.push_max_batch
	DefaultPushMaxBatch = 500
)

// =============================================================================
// Auth Defaults
// =============================================================================

const (
	// DefaultTokenIssuer is the expected iss claim of bearer tokens.
	// Override via config: auth.issuer
	DefaultTokenIssuer = "circlesync"

	// DefaultTokenTTL is the lifetime of tokens minted by `token issue`.
	// Override via config: auth.token_ttl
	DefaultTokenTTL = 24 * time.Hour
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is one of debug, info, warn, error.
	// Override via config: log.level, env CIRCLESYNC_LOG_LEVEL
	DefaultLogLevel = "info"

	// DefaultLogFormat is text or json.
	// Override via config: log.format
	DefaultLogFormat = "text"
)
