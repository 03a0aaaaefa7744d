package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/cli/config"
	"github.com/conduit-lang/conduit-odm/internal/fixture"
	"github.com/conduit-lang/conduit-odm/internal/orm/attributes"
	"github.com/conduit-lang/conduit-odm/internal/orm/crud"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
	"github.com/conduit-lang/conduit-odm/internal/orm/tracking"
)

// Runtime is an engine over the Person family wired from configuration
type Runtime struct {
	Registry *schema.Registry
	Store    storage.Store
	Engine   *crud.Engine
	Logger   *zap.Logger

	queue   *hooks.AsyncQueue
	closers []func() error
}

// NewRuntime builds the registry, storage collaborator, snapshot store and
// engine cfg describes
func NewRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	registry, err := fixture.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to register document types: %w", err)
	}

	rt := &Runtime{Registry: registry, Logger: logger}

	store, err := rt.openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	rt.Store = store

	trackerOpts := []tracking.Option{tracking.WithLogger(logger)}
	switch cfg.Snapshots.Backend {
	case "memory":
		trackerOpts = append(trackerOpts, tracking.WithSnapshots(tracking.NewMemorySnapshotStore()))
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Snapshots.Redis.Addr,
			Password: cfg.Snapshots.Redis.Password,
			DB:       cfg.Snapshots.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			rt.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Snapshots.Redis.Addr, err)
		}
		rt.closers = append(rt.closers, client.Close)
		trackerOpts = append(trackerOpts, tracking.WithSnapshots(tracking.NewRedisSnapshotStore(client, cfg.Snapshots.Redis.Prefix)))
	}

	assignerOpts := []attributes.Option{attributes.WithLogger(logger)}
	if cfg.Assignment.StrictProtection {
		assignerOpts = append(assignerOpts, attributes.WithStrictProtection())
	}

	scopes := query.NewScopeRegistry()
	fixture.RegisterScopes(scopes)

	rt.queue = hooks.NewAsyncQueue(2, logger)
	rt.queue.Start()

	rt.Engine = crud.NewEngine(registry, store,
		crud.WithScopes(scopes),
		crud.WithTracker(tracking.NewTracker(trackerOpts...)),
		crud.WithHooks(hooks.NewExecutor(nil, rt.queue, logger)),
		crud.WithAssigner(attributes.NewAssigner(registry, assignerOpts...)),
		crud.WithLogger(logger),
	)
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Driver == "memory" {
		return storage.NewMemoryStore(rt.Registry, rt.Logger), nil
	}

	store, err := storage.Open(cfg.Driver, cfg.DSN, rt.Registry, storage.WithLogger(rt.Logger))
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		store.DB().SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

// Close drains pending async hooks and releases connections
func (rt *Runtime) Close() error {
	if rt.queue != nil {
		rt.queue.Shutdown()
	}
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	rt.closers = nil
	return err
}
