package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/the-dev-tools/socketapi/internal/api"
	"github.com/the-dev-tools/socketapi/internal/api/rhealth"
	"github.com/the-dev-tools/socketapi/internal/api/rsocket"
	"github.com/the-dev-tools/socketapi/internal/config"
	"github.com/the-dev-tools/socketapi/internal/todo"
	"github.com/the-dev-tools/socketapi/pkg/dispatch"
	"github.com/the-dev-tools/socketapi/pkg/encoder"
	"github.com/the-dev-tools/socketapi/pkg/fanout"
	"github.com/the-dev-tools/socketapi/pkg/route"
	"github.com/the-dev-tools/socketapi/pkg/store"
	"github.com/the-dev-tools/socketapi/pkg/store/memory"
	"github.com/the-dev-tools/socketapi/pkg/store/redisstore"
	"github.com/the-dev-tools/socketapi/pkg/store/sqlstore"
	"github.com/the-dev-tools/socketapi/pkg/subscription"
	"github.com/the-dev-tools/socketapi/pkg/wire"
)

// App is a fully wired server: store, routes, engine and the HTTP services
// exposing them.
type App struct {
	Hub      *rsocket.Hub
	Registry *subscription.Registry
	Engine   *dispatch.Engine
	Store    store.Store
	Services []api.Service

	logger     *slog.Logger
	closeStore func() error
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	codecs := encoder.NewRegistry(nil)

	st, closeStore, err := openStore(ctx, cfg.Store, codecs)
	if err != nil {
		return nil, err
	}

	routes := route.NewTable()
	todos := todo.New(st, logger.With("service", "todo"))
	if err := todos.Register(routes, codecs); err != nil {
		return nil, errors.Join(err, closeStore())
	}
	if cfg.Seed != "" {
		seed, err := todo.LoadSeed(cfg.Seed)
		if err == nil {
			_, err = todos.Seed(ctx, seed)
		}
		if err != nil {
			return nil, errors.Join(err, closeStore())
		}
	}

	registry := subscription.New()
	hub := rsocket.New(logger.With("component", "rsocket"), rsocket.WithSendBuffer(cfg.Transport.SendBuffer))
	out := fanout.New(registry, hub, wire.NewEncoder(codecs), logger.With("component", "fanout"))
	engine := dispatch.New(routes, registry, st, out,
		dispatch.WithLogger(logger.With("component", "dispatch")),
		dispatch.WithDebug(cfg.Debug),
	)
	hub.Bind(engine)

	return &App{
		Hub:      hub,
		Registry: registry,
		Engine:   engine,
		Store:    st,
		Services: []api.Service{
			*rsocket.CreateService(hub, cfg.Server.Path),
			*rhealth.CreateService(rhealth.New(hub, registry)),
		},
		logger:     logger,
		closeStore: closeStore,
	}, nil
}

// Run serves the app until ctx is done, then closes every websocket.
func (a *App) Run(ctx context.Context, cfg api.Config) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenServices(ctx, cfg, a.Services)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Hub.Close()
		return nil
	})
	return g.Wait()
}

func (a *App) Close() error {
	return a.closeStore()
}

func openStore(ctx context.Context, cfg config.StoreConfig, codecs *encoder.Registry) (store.Store, func() error, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		return memory.New(codecs), func() error { return nil }, nil
	case config.StoreSQLite:
		st, err := sqlstore.Open(ctx, cfg.DSN, codecs)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.StoreRedis:
		st, err := redisstore.Dial(ctx, cfg.RedisAddr, codecs)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
