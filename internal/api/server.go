// Package api serves the sync engine over HTTP.
//
// Routes:
//
//	GET  /health        database ping
//	GET  /metrics       Prometheus exposition
//	GET  /sync/changes  pull feed (bearer token)
//	POST /sync/push     push reconciler (bearer token)
//	GET  /sync/full     snapshot bootstrap (bearer token)
//	GET  /sync/status   circles of the caller (bearer token)
//
// Success bodies are the bare response shapes of package ir. Failures use
// {"error":{"code","message"},"requestId"}.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/roach88/circlesync/internal/auth"
	"github.com/roach88/circlesync/internal/engine"
	"github.com/roach88/circlesync/internal/logging"
	"github.com/roach88/circlesync/internal/metrics"
	"github.com/roach88/circlesync/internal/schema"
)

// Options tunes a Server. Zero values select the defaults.
type Options struct {
	// MaxBodyBytes limits push bodies. Default 4 MiB.
	MaxBodyBytes int64

	// CORSOrigins enables CORS for the listed origins. "*" allows any.
	CORSOrigins []string

	Logger *slog.Logger
}

const defaultMaxBodyBytes = 4 << 20

// Server holds the collaborators every handler needs.
type Server struct {
	engine    *engine.Engine
	tokens    *auth.Tokens
	validator *schema.Validator
	logger    *slog.Logger

	maxBody     int64
	corsOrigins []string
}

// New creates a Server. All three collaborators are required.
func New(eng *engine.Engine, tokens *auth.Tokens, validator *schema.Validator, opts Options) *Server {
	s := &Server{
		engine:      eng,
		tokens:      tokens,
		validator:   validator,
		logger:      opts.Logger,
		maxBody:     opts.MaxBodyBytes,
		corsOrigins: opts.CORSOrigins,
	}
	if s.logger == nil {
		s.logger = logging.Component("api")
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBodyBytes
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.accessLog, s.recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(newCORS(s.corsOrigins).Handler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeInvalidInput, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/sync", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/changes", s.handlePull)
		r.Post("/push", s.handlePush)
		r.Get("/full", s.handleFullSync)
		r.Get("/status", s.handleStatus)
	})

	return r
}

func newCORS(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}
	for _, o := range origins {
		if o == "*" {
			opts.AllowOriginFunc = func(string) bool { return true }
			return cors.New(opts)
		}
	}
	opts.AllowedOrigins = origins
	return cors.New(opts)
}
