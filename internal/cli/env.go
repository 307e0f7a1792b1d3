package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/circlesync/internal/config"
	"github.com/roach88/circlesync/internal/engine"
	"github.com/roach88/circlesync/internal/logging"
	"github.com/roach88/circlesync/internal/store"
)

// runtime is the database and engine a command works against.
type runtime struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}

// loadConfig reads --config, applies CIRCLESYNC_* variables and checks
// the result.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeInvalidInput, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeInvalidInput, "invalid config", err)
	}
	return cfg, nil
}

// setupLogging installs the process logger. --verbose forces debug.
func setupLogging(w io.Writer, cfg *config.Config, opts *RootOptions) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		// Validate already rejected unknown levels.
		return
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logging.InitWriter(w, level, cfg.Log.Format == "json")
}

// openRuntime loads the config and opens the engine on its database.
func openRuntime(ctx context.Context, logOut io.Writer, opts *RootOptions) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	setupLogging(logOut, cfg, opts)
	return openEngine(ctx, cfg)
}

// openEngine opens the database at cfg.Database.Path.
func openEngine(ctx context.Context, cfg *config.Config) (*runtime, error) {
	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeStorage, "failed to open database", err)
	}

	eng, err := engine.New(ctx, s,
		engine.WithMaxBatch(cfg.Sync.PushMaxBatch),
		engine.WithPullLimits(cfg.Sync.PullDefaultLimit, cfg.Sync.PullMaxLimit),
		engine.WithLogger(logging.Component("engine")),
	)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, ErrCodeStorage, "failed to start engine", err)
	}
	return &runtime{cfg: cfg, store: s, engine: eng}, nil
}
