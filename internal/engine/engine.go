package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/logging"
	"github.com/roach88/circlesync/internal/store"
)

// Engine is the offline-first sync engine of one database.
//
// It reconciles pushed change batches, serves the pull feed and builds
// full snapshots. Every timestamp it writes comes from its TimeSource and
// is issued inside the transaction that uses it; the store's single
// connection serializes those transactions, so log order equals
// timestamp order.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	store    *store.Store
	clock    TimeSource
	registry map[ir.EntityType]store.EntityStore
	ids      IDGenerator
	logger   *slog.Logger

	maxBatch    int
	defaultPull int
	maxPull     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall-clock time source.
func WithClock(c TimeSource) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMaxBatch sets the maximum number of changes per push.
//
// Default: 500 (DefaultMaxBatch). Zero disables the limit.
func WithMaxBatch(n int) Option {
	return func(e *Engine) {
		e.maxBatch = n
	}
}

// WithPullLimits sets the default and maximum pull page sizes.
func WithPullLimits(def, maxLimit int) Option {
	return func(e *Engine) {
		e.defaultPull = def
		e.maxPull = maxLimit
	}
}

// WithLogger replaces the engine's component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator replaces the UUIDv7 generator used for server-created ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithEntityStore registers es for its entity type, replacing the default.
func WithEntityStore(es store.EntityStore) Option {
	return func(e *Engine) {
		e.registry[es.Type()] = es
	}
}

// New creates an Engine over s.
//
// The entity store registry must cover every synced entity type exactly;
// New fails otherwise. A clock implementing Seeder is seeded with the newest
// logged timestamp so a restarted server never issues an older one.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store: s,
		clock: NewClock(),
		registry: map[ir.EntityType]store.EntityStore{
			ir.EntityMoment:  s.Moments(),
			ir.EntityLetter:  s.Letters(),
			ir.EntityComment: s.Comments(),
		},
		ids:         UUIDv7Generator{},
		maxBatch:    DefaultMaxBatch,
		defaultPull: DefaultPullLimit,
		maxPull:     MaxPullLimit,
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Component("engine")
	}

	if err := validateRegistry(e.registry); err != nil {
		return nil, err
	}
	if e.defaultPull < 1 || e.maxPull < e.defaultPull {
		return nil, fmt.Errorf("invalid pull limits: default %d, max %d", e.defaultPull, e.maxPull)
	}

	if seeder, ok := e.clock.(Seeder); ok {
		latest, err := s.Log().Latest(ctx, s.DB())
		if err != nil {
			return nil, fmt.Errorf("failed to seed clock: %w", err)
		}
		if latest != nil {
			seeder.Seed(*latest)
		}
	}

	return e, nil
}

func validateRegistry(registry map[ir.EntityType]store.EntityStore) error {
	synced := make(map[ir.EntityType]bool, len(ir.SyncedEntityTypes))
	for _, t := range ir.SyncedEntityTypes {
		synced[t] = true
		es, ok := registry[t]
		if !ok {
			return &SyncError{Code: ErrCodeUnknownEntityType, Message: fmt.Sprintf("no store registered for %s", t)}
		}
		if es.Type() != t {
			return &SyncError{Code: ErrCodeUnknownEntityType, Message: fmt.Sprintf("store for %s serves %s", t, es.Type())}
		}
	}
	for t := range registry {
		if !synced[t] {
			return &SyncError{Code: ErrCodeUnknownEntityType, Message: fmt.Sprintf("%s is not a synced entity type", t)}
		}
	}
	return nil
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// EntityStore returns the store registered for t.
func (e *Engine) EntityStore(t ir.EntityType) (store.EntityStore, bool) {
	es, ok := e.registry[t]
	return es, ok
}

// requireMember maps a failed membership check to a request-level error.
func (e *Engine) requireMember(ctx context.Context, q store.Querier, circleID, userID string) error {
	err := e.store.Circles().RequireMember(ctx, q, circleID, userID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotMember):
		return newForbiddenError(circleID)
	default:
		return newStorageError("membership check", err)
	}
}
