package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/circlesync/internal/api"
	"github.com/roach88/circlesync/internal/auth"
	"github.com/roach88/circlesync/internal/config"
	"github.com/roach88/circlesync/internal/logging"
	"github.com/roach88/circlesync/internal/schema"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	DB     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync HTTP server",
		Long: `Serve the sync API until interrupted.

Routes:
  GET  /sync/changes   pull changes since a watermark
  POST /sync/push      push a batch of offline changes
  GET  /sync/full      snapshot of one circle
  GET  /sync/status    circles of the caller
  GET  /health         liveness and database check
  GET  /metrics        Prometheus metrics

The token secret must be set (auth.secret or CIRCLESYNC_JWT_SECRET).
SIGINT or SIGTERM drains in-flight requests before exiting.

Examples:
  circlesync serve --config circlesync.yaml
  CIRCLESYNC_JWT_SECRET=... circlesync serve --listen :8787 --db data.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "database path (overrides config)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeInvalidInput, "failed to load config", err)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.DB != "" {
		cfg.Database.Path = opts.DB
	}
	if err := cfg.ValidateServe(); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeInvalidInput, "invalid config", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg, opts.RootOptions)
	log := logging.Component("serve")

	tokens, err := auth.New([]byte(cfg.Auth.Secret), cfg.Auth.Issuer)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeInvalidInput, "invalid auth config", err)
	}
	validator, err := schema.New()
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeGeneric, "failed to load schema", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := api.New(rt.engine, tokens, validator, api.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Logger:       logging.Component("api"),
	})

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("failed to listen on %s", cfg.Server.Listen), err)
	}

	return serve(ctx, ln, srv.Handler(), cfg.Server, log)
}

// serve runs handler on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, cfg config.ServerConfig, log *slog.Logger) error {
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeGeneric, "server failed", err)
	}
	return nil
}
