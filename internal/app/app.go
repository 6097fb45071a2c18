// Package app wires the toolrack subsystems into one runnable unit: the
// reliability log and its store, the catalog with builtins, the search
// facade, and the protocol handler. Both the CLI server and the socket
// daemon build an App and mount transports on top of it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/config"
	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/mcp"
	"github.com/toolrack/toolrack/internal/observe"
	"github.com/toolrack/toolrack/internal/pipeline"
	"github.com/toolrack/toolrack/internal/reliability"
	"github.com/toolrack/toolrack/internal/search"
	"github.com/toolrack/toolrack/internal/state"
	"github.com/toolrack/toolrack/pkg/version"
)

var log = logger.ForComponent("app")

// App owns the subsystem lifetimes. New creates and connects everything,
// Close tears it down in reverse order.
type App struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	facade  *search.Facade
	handler *mcp.Handler
	states  *state.Manager

	closers   []func() error
	closeOnce sync.Once
}

// New builds a ready-to-serve App from cfg. The config must already be
// validated.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Server.Name,
			ServiceVersion: version.Version,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
	}

	store, err := openStore(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("app: open reliability store: %w", err)
	}
	relog := reliability.NewLog(cfg.ReliabilityParams(), store)
	a.closers = append(a.closers, relog.Close)

	a.catalog = catalog.New(catalog.WithReliability(relog))
	if err := catalog.RegisterBuiltins(a.catalog); err != nil {
		a.close()
		return nil, fmt.Errorf("app: register builtins: %w", err)
	}

	a.facade = search.NewFacadeWith(a.catalog, cfg.SearchFacadeConfig())
	a.closers = append(a.closers, a.facade.Close)
	if err := search.RegisterSearchTool(a.catalog, a.facade); err != nil {
		a.close()
		return nil, fmt.Errorf("app: register search tool: %w", err)
	}

	a.states = state.NewManager(cfg.State.MaxUsers)

	a.handler = mcp.NewHandler(a.catalog, mcp.HandlerConfig{
		ServerName:  cfg.Server.Name,
		ExecTimeout: cfg.Server.ExecTimeout.Std(),
		Expose:      cfg.Expose,
	})

	return a, nil
}

func openStore(cfg *config.Config) (reliability.Store, error) {
	switch cfg.Reliability.Store {
	case config.StoreNone:
		return nil, nil
	case config.StoreFile:
		s, err := reliability.NewFileStore(cfg.Reliability.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		s, err := reliability.NewSQLiteStore(cfg.Reliability.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Reliability.Store)
	}
}

// Catalog returns the tool registry. Hosts register their tools here before
// mounting transports.
func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// Facade returns the search entry point.
func (a *App) Facade() *search.Facade { return a.facade }

// Handler returns the protocol core shared by the line transports.
func (a *App) Handler() *mcp.Handler { return a.handler }

// States returns the per-user session state manager.
func (a *App) States() *state.Manager { return a.states }

// Config returns the config the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// RegisterPipeline compiles spec against the catalog and registers it as a
// callable tool backed by this App's session state.
func (a *App) RegisterPipeline(spec pipeline.Spec) error {
	return pipeline.Build(a.catalog, a.states, spec)
}

// Reload applies the runtime-tunable parts of cfg: reliability decay and
// search ranking constants. Transport and store changes need a restart.
func (a *App) Reload(cfg *config.Config) {
	a.catalog.Reliability().SetParams(cfg.ReliabilityParams())
	a.facade.SetConfig(cfg.SearchFacadeConfig())
	log.Info("runtime tunables applied",
		"decay_base", cfg.Reliability.DecayBase,
		"failure_weight", cfg.Search.FailureWeight,
		"strategy", cfg.Search.Strategy)
}

// Close releases every subsystem in reverse creation order. Safe to call
// more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() { err = a.close() })
	return err
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
